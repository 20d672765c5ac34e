package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/richxcame/dispatch/pkg/logger"
)

// Sweeper periodically expires pending offers whose TTL has elapsed.
type Sweeper struct {
	service  *Service
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates an offer expiry sweeper.
func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logger.Info("offer sweeper started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop halts the sweep loop and waits for the in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	logger.Info("offer sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.service.ExpireOffers(ctx); err != nil {
		logger.Error("offer sweep failed", zap.Error(err))
	}
}
