package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/internal/pricing"
	"github.com/richxcame/dispatch/pkg/cache"
	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/config"
	"github.com/richxcame/dispatch/pkg/database"
	"github.com/richxcame/dispatch/pkg/eventbus"
	"github.com/richxcame/dispatch/pkg/lock"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/metrics"
	"github.com/richxcame/dispatch/pkg/models"
)

// ErrInFlight is returned when another request is currently settling the
// same trip. Callers should poll or retry with backoff.
var ErrInFlight = errors.New("payment is being processed")

// Publisher publishes events to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event *eventbus.Event) error
}

// ProcessRequest settles a completed trip. Method defaults to the one the
// rider chose at request time.
type ProcessRequest struct {
	TripID         uuid.UUID             `json:"trip_id" validate:"required"`
	Method         *models.PaymentMethod `json:"payment_method,omitempty"`
	IdempotencyKey string                `json:"idempotency_key" validate:"required,min=8,max=128"`
}

// RefundRequest reverses a completed non-cash payment.
type RefundRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// Service runs the idempotent payment pipeline: at most one settlement per
// trip, with replays answered from the stored outcome.
type Service struct {
	db         *pgxpool.Pool
	repo       *Repository
	psp        PSP
	cache      *cache.Manager
	locker     *lock.Locker
	bus        Publisher
	cfg        config.PaymentsConfig
	pspTimeout time.Duration
}

// NewService creates a payments service.
func NewService(
	db *pgxpool.Pool,
	repo *Repository,
	psp PSP,
	cacheManager *cache.Manager,
	locker *lock.Locker,
	bus Publisher,
	cfg config.PaymentsConfig,
	pspTimeout time.Duration,
) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		psp:        psp,
		cache:      cacheManager,
		locker:     locker,
		bus:        bus,
		cfg:        cfg,
		pspTimeout: pspTimeout,
	}
}

// Process settles a trip. The idempotency cache answers replays without
// touching the database; the per-trip lock serializes concurrent first
// attempts; inside the transaction the existing payment row is the source
// of truth for whether this key already ran.
func (s *Service) Process(ctx context.Context, req *ProcessRequest) (*models.Payment, error) {
	if cached := s.cachedOutcome(ctx, req.IdempotencyKey); cached != nil {
		return cached, nil
	}

	tripLock, err := s.locker.Acquire(ctx, "payment:trip:"+req.TripID.String(), s.cfg.LockLease)
	if err != nil {
		if !errors.Is(err, lock.ErrNotAcquired) {
			return nil, err
		}
		// A rival request holds the trip. Give it a beat to land its outcome
		// in the idempotency cache before reporting in-flight.
		time.Sleep(100 * time.Millisecond)
		if cached := s.cachedOutcome(ctx, req.IdempotencyKey); cached != nil {
			return cached, nil
		}
		return nil, ErrInFlight
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := tripLock.Release(releaseCtx); err != nil {
			logger.Warn("failed to release payment lock", zap.String("trip_id", req.TripID.String()), zap.Error(err))
		}
	}()

	var payment *models.Payment
	var tc *TripContext
	replay := false

	err = database.WithTransaction(ctx, s.db, func(tx pgx.Tx) error {
		replay = false
		existing, err := s.repo.GetByTripForUpdate(ctx, tx, req.TripID)
		if err != nil {
			var appErr *common.AppError
			if !errors.As(err, &appErr) || appErr.ErrorCode != common.CodeNotFound {
				return err
			}
			existing = nil
		}

		if existing != nil {
			if existing.IdempotencyKey == req.IdempotencyKey {
				// Same key, stored outcome wins; failed outcomes replay as
				// failed rather than re-charging.
				payment = existing
				replay = true
				return nil
			}
			if existing.Status != models.PaymentStatusFailed {
				return common.NewConflictError("trip already has a payment")
			}
		}

		loaded, err := s.repo.TripContextForUpdate(ctx, tx, req.TripID)
		if err != nil {
			return err
		}
		if loaded.TripStatus != models.TripStatusCompleted {
			return common.NewInvalidStateError("trip is not completed")
		}
		if loaded.Amount == nil || loaded.Currency == nil {
			return common.NewInvalidStateError("trip has no finalized fare")
		}
		tc = loaded

		method := tc.Method
		if req.Method != nil {
			if !req.Method.Valid() {
				return common.NewValidationError("unsupported payment method")
			}
			method = *req.Method
		}

		if existing != nil {
			// Retry of a failed payment under a fresh key.
			if err := s.repo.Reattempt(ctx, tx, existing.ID, req.IdempotencyKey); err != nil {
				return err
			}
			payment = existing
			payment.IdempotencyKey = req.IdempotencyKey
			payment.Status = models.PaymentStatusProcessing
			payment.PSPRef = nil
			payment.PSPResponse = nil
			payment.CompletedAt = nil
			payment.Method = method
		} else {
			payment = &models.Payment{
				ID:             uuid.New(),
				TripID:         req.TripID,
				Amount:         *tc.Amount,
				Currency:       *tc.Currency,
				Method:         method,
				Status:         models.PaymentStatusProcessing,
				IdempotencyKey: req.IdempotencyKey,
			}
			if err := s.repo.Create(ctx, tx, payment); err != nil {
				return err
			}
		}

		pspCtx, cancel := context.WithTimeout(ctx, s.pspTimeout)
		defer cancel()
		result, err := s.psp.Charge(pspCtx, payment.Method, payment.Amount)
		if err != nil {
			return common.NewServiceUnavailableError("payment provider unavailable", err)
		}

		now := time.Now().UTC()
		payment.PSPRef = &result.Ref
		payment.PSPResponse = &result.Response
		if result.Approved {
			payment.Status = models.PaymentStatusCompleted
			payment.CompletedAt = &now
		} else {
			payment.Status = models.PaymentStatusFailed
		}
		return s.repo.Finalize(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.cacheOutcome(ctx, payment)
	if !replay {
		s.invalidateParties(ctx, tc)
		metrics.PaymentsProcessed.WithLabelValues(string(payment.Method), string(payment.Status)).Inc()
		if payment.Status == models.PaymentStatusCompleted && tc != nil {
			s.publishSettled(ctx, payment, tc)
		}
		logger.InfoContext(ctx, "payment processed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("trip_id", payment.TripID.String()),
			zap.String("status", string(payment.Status)),
		)
	}
	return payment, nil
}

// Retry re-runs a failed payment under a freshly generated idempotency key.
func (s *Service) Retry(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusFailed {
		return nil, common.NewConflictError("only failed payments can be retried")
	}

	return s.Process(ctx, &ProcessRequest{
		TripID:         payment.TripID,
		Method:         &payment.Method,
		IdempotencyKey: "retry-" + uuid.NewString(),
	})
}

// Refund reverses a completed non-cash payment.
func (s *Service) Refund(ctx context.Context, paymentID uuid.UUID, reason string) (*models.Payment, error) {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Method == models.PaymentMethodCash {
		return nil, common.NewConflictError("cash payments cannot be refunded")
	}

	refunded, err := s.repo.MarkRefunded(ctx, paymentID, reason)
	if err != nil {
		return nil, err
	}

	// The stored idempotency outcome must reflect the refund.
	s.cacheOutcome(ctx, refunded)
	metrics.PaymentsProcessed.WithLabelValues(string(refunded.Method), string(refunded.Status)).Inc()
	logger.InfoContext(ctx, "payment refunded",
		zap.String("payment_id", paymentID.String()),
		zap.String("reason", reason),
	)
	return refunded, nil
}

// GetPayment returns a payment by id.
func (s *Service) GetPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	return s.repo.GetByID(ctx, paymentID)
}

func (s *Service) cachedOutcome(ctx context.Context, idempotencyKey string) *models.Payment {
	var payment models.Payment
	err := s.cache.Get(ctx, cache.Keys.PaymentIdempotency(idempotencyKey), &payment)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.WarnContext(ctx, "idempotency cache lookup failed", zap.Error(err))
		}
		return nil
	}
	return &payment
}

// invalidateParties drops the cached ride, driver and rider so their next
// reads observe the settlement.
func (s *Service) invalidateParties(ctx context.Context, tc *TripContext) {
	if tc == nil {
		return
	}
	keys := []string{
		cache.Keys.Ride(tc.RideID.String()),
		cache.Keys.Rider(tc.RiderID.String()),
	}
	if tc.DriverID != nil {
		keys = append(keys, cache.Keys.Driver(tc.DriverID.String()))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logger.WarnContext(ctx, "failed to invalidate caches after settlement", zap.Error(err))
	}
}

func (s *Service) cacheOutcome(ctx context.Context, payment *models.Payment) {
	key := cache.Keys.PaymentIdempotency(payment.IdempotencyKey)
	if err := s.cache.Set(ctx, key, payment, s.cfg.IdempotencyTTL); err != nil {
		logger.WarnContext(ctx, "failed to cache payment outcome", zap.Error(err))
	}
}

func (s *Service) publishSettled(ctx context.Context, payment *models.Payment, tc *TripContext) {
	completed := eventbus.PaymentCompletedData{
		PaymentID:   payment.ID,
		TripID:      payment.TripID,
		RideID:      tc.RideID,
		RiderID:     tc.RiderID,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Method:      string(payment.Method),
		CompletedAt: *payment.CompletedAt,
	}
	s.publish(ctx, tc.RiderID.String(), eventbus.EventTypePaymentCompleted, completed)

	if tc.DriverID != nil {
		received := eventbus.PaymentReceivedData{
			PaymentID:  payment.ID,
			RideID:     tc.RideID,
			DriverID:   *tc.DriverID,
			Earnings:   pricing.Round2(payment.Amount * pricing.DriverShare),
			Currency:   payment.Currency,
			ReceivedAt: *payment.CompletedAt,
		}
		s.publish(ctx, tc.DriverID.String(), eventbus.EventTypePaymentReceived, received)
	}
}

func (s *Service) publish(ctx context.Context, key, eventType string, data interface{}) {
	event, err := eventbus.NewEvent(eventType, "payments", data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build event", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, eventbus.TopicNotifications, key, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
