package payments

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richxcame/dispatch/pkg/models"
)

func newTestPSP(cardSuccessProbability, roll float64) *MockPSP {
	return &MockPSP{
		cardSuccessProbability: cardSuccessProbability,
		randFloat:              func() float64 { return roll },
		sleep:                  func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func TestChargeCashAlwaysSucceeds(t *testing.T) {
	psp := newTestPSP(0, 0.99)

	result, err := psp.Charge(context.Background(), models.PaymentMethodCash, 131.25)
	require.NoError(t, err)

	assert.True(t, result.Approved)
	assert.True(t, strings.HasPrefix(result.Ref, "CASH-"))
}

func TestChargeWalletAlwaysSucceeds(t *testing.T) {
	psp := newTestPSP(0, 0.99)

	result, err := psp.Charge(context.Background(), models.PaymentMethodWallet, 200)
	require.NoError(t, err)

	assert.True(t, result.Approved)
	assert.True(t, strings.HasPrefix(result.Ref, "WALLET-"))
}

func TestChargeCardApprovedUnderProbability(t *testing.T) {
	psp := newTestPSP(0.95, 0.5)

	result, err := psp.Charge(context.Background(), models.PaymentMethodCard, 500)
	require.NoError(t, err)

	assert.True(t, result.Approved)
	assert.Equal(t, "approved", result.Response)
	assert.True(t, strings.HasPrefix(result.Ref, "CARD-"))
}

func TestChargeCardDeclinedOverProbability(t *testing.T) {
	psp := newTestPSP(0.95, 0.96)

	result, err := psp.Charge(context.Background(), models.PaymentMethodCard, 500)
	require.NoError(t, err)

	assert.False(t, result.Approved)
	assert.Equal(t, "CARD_DECLINED", result.Response)
}

func TestChargeCardZeroProbabilityAlwaysDeclines(t *testing.T) {
	psp := newTestPSP(0, 0)

	result, err := psp.Charge(context.Background(), models.PaymentMethodCard, 500)
	require.NoError(t, err)
	assert.False(t, result.Approved)
}

func TestChargeUnsupportedMethod(t *testing.T) {
	psp := newTestPSP(1, 0)

	_, err := psp.Charge(context.Background(), models.PaymentMethod("cheque"), 100)
	assert.Error(t, err)
}

func TestChargeRespectsContextCancellation(t *testing.T) {
	psp := NewMockPSP(1)
	psp.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := psp.Charge(ctx, models.PaymentMethodCard, 100)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJitterDurationStaysInRange(t *testing.T) {
	low := jitterDuration(func() float64 { return 0 }, 50, 150)
	high := jitterDuration(func() float64 { return 0.999 }, 50, 150)

	assert.Equal(t, 50*time.Millisecond, low)
	assert.GreaterOrEqual(t, high, 50*time.Millisecond)
	assert.Less(t, high, 150*time.Millisecond)
}
