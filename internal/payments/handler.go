package payments

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/validation"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a payments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires payment routes onto the v1 group.
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.POST("/payments", h.ProcessPayment)
	v1.GET("/payments/:id", h.GetPayment)
	v1.POST("/payments/:id/retry", h.RetryPayment)
	v1.POST("/payments/:id/refund", h.RefundPayment)
}

func paymentIDParam(c *gin.Context) (uuid.UUID, bool) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid payment id", err))
		return uuid.Nil, false
	}
	return paymentID, true
}

// ProcessPayment settles a completed trip. The idempotency key may arrive in
// the body or the Idempotency-Key header; replays return the stored outcome.
// A settlement already running elsewhere answers 202.
func (h *Handler) ProcessPayment(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid request body", err))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	if err := validation.ValidateStruct(&req); err != nil {
		common.HandleError(c, common.NewValidationError(err.Error()))
		return
	}

	payment, err := h.service.Process(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInFlight) {
			common.SuccessResponseWithStatus(c, http.StatusAccepted, gin.H{"status": "processing"})
			return
		}
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, payment)
}

// GetPayment returns a payment by id.
func (h *Handler) GetPayment(c *gin.Context) {
	paymentID, ok := paymentIDParam(c)
	if !ok {
		return
	}

	payment, err := h.service.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, payment)
}

// RetryPayment re-runs a failed payment with a fresh idempotency key.
func (h *Handler) RetryPayment(c *gin.Context) {
	paymentID, ok := paymentIDParam(c)
	if !ok {
		return
	}

	payment, err := h.service.Retry(c.Request.Context(), paymentID)
	if err != nil {
		if errors.Is(err, ErrInFlight) {
			common.SuccessResponseWithStatus(c, http.StatusAccepted, gin.H{"status": "processing"})
			return
		}
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, payment)
}

// RefundPayment reverses a completed non-cash payment.
func (h *Handler) RefundPayment(c *gin.Context) {
	paymentID, ok := paymentIDParam(c)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.HandleError(c, common.NewBadRequestError("invalid request body", err))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		common.HandleError(c, common.NewValidationError(err.Error()))
		return
	}

	payment, err := h.service.Refund(c.Request.Context(), paymentID, req.Reason)
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessResponse(c, payment)
}
