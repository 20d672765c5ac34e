package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand"
	"time"

	"github.com/richxcame/dispatch/pkg/models"
)

// PSPResult is the provider's verdict on a charge attempt.
type PSPResult struct {
	Ref      string
	Approved bool
	Response string
}

// PSP charges a payment method. The context bounds the provider call.
type PSP interface {
	Charge(ctx context.Context, method models.PaymentMethod, amount float64) (*PSPResult, error)
}

// MockPSP simulates a payment service provider. Cash settles instantly and
// always succeeds, wallet succeeds after a short delay, and card succeeds
// with a configurable probability after a longer one.
type MockPSP struct {
	cardSuccessProbability float64
	randFloat              func() float64
	sleep                  func(ctx context.Context, d time.Duration) error
}

// NewMockPSP creates a mock provider with the given card success probability.
func NewMockPSP(cardSuccessProbability float64) *MockPSP {
	return &MockPSP{
		cardSuccessProbability: cardSuccessProbability,
		randFloat:              mathrand.Float64,
		sleep:                  sleepCtx,
	}
}

// Charge attempts to settle the amount against the provider.
func (p *MockPSP) Charge(ctx context.Context, method models.PaymentMethod, amount float64) (*PSPResult, error) {
	switch method {
	case models.PaymentMethodCash:
		return &PSPResult{
			Ref:      fmt.Sprintf("CASH-%d", time.Now().UnixMilli()),
			Approved: true,
			Response: "collected by driver",
		}, nil

	case models.PaymentMethodWallet:
		if err := p.sleep(ctx, jitterDuration(p.randFloat, 30, 100)); err != nil {
			return nil, err
		}
		return &PSPResult{
			Ref:      fmt.Sprintf("WALLET-%d", time.Now().UnixMilli()),
			Approved: true,
			Response: "wallet debited",
		}, nil

	case models.PaymentMethodCard:
		if err := p.sleep(ctx, jitterDuration(p.randFloat, 50, 150)); err != nil {
			return nil, err
		}
		ref := fmt.Sprintf("CARD-%s", shortRef())
		if p.randFloat() < p.cardSuccessProbability {
			return &PSPResult{Ref: ref, Approved: true, Response: "approved"}, nil
		}
		return &PSPResult{Ref: ref, Approved: false, Response: "CARD_DECLINED"}, nil

	default:
		return nil, fmt.Errorf("unsupported payment method: %s", method)
	}
}

func jitterDuration(randFloat func() float64, minMs, maxMs int) time.Duration {
	spread := float64(maxMs - minMs)
	return time.Duration(float64(minMs)+randFloat()*spread) * time.Millisecond
}

func shortRef() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(buf)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
