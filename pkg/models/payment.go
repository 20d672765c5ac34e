package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the payment pipeline state.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Payment settles a completed trip. The idempotency key binds a request to
// its outcome: replays with the same key return the stored row verbatim.
type Payment struct {
	ID             uuid.UUID     `json:"id"`
	TripID         uuid.UUID     `json:"trip_id"`
	Amount         float64       `json:"amount"`
	Currency       string        `json:"currency"`
	Method         PaymentMethod `json:"method"`
	Status         PaymentStatus `json:"status"`
	PSPRef         *string       `json:"psp_ref,omitempty"`
	PSPResponse    *string       `json:"psp_response,omitempty"`
	IdempotencyKey string        `json:"idempotency_key"`
	CreatedAt      time.Time     `json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	RefundedAt     *time.Time    `json:"refunded_at,omitempty"`
	RefundReason   *string       `json:"refund_reason,omitempty"`
}
