package models

import (
	"time"

	"github.com/google/uuid"
)

// RideStatus is the ride lifecycle state.
type RideStatus string

const (
	RideStatusRequested      RideStatus = "REQUESTED"
	RideStatusMatching       RideStatus = "MATCHING"
	RideStatusDriverAssigned RideStatus = "DRIVER_ASSIGNED"
	RideStatusDriverEnRoute  RideStatus = "DRIVER_EN_ROUTE"
	RideStatusDriverArrived  RideStatus = "DRIVER_ARRIVED"
	RideStatusInProgress     RideStatus = "IN_PROGRESS"
	RideStatusCompleted      RideStatus = "COMPLETED"
	RideStatusCancelled      RideStatus = "CANCELLED"
)

// Terminal reports whether the ride can never transition again.
func (s RideStatus) Terminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// Active reports whether the ride occupies a driver.
func (s RideStatus) Active() bool {
	switch s {
	case RideStatusDriverAssigned, RideStatusDriverEnRoute, RideStatusDriverArrived, RideStatusInProgress:
		return true
	}
	return false
}

// PaymentMethod is the rider's chosen settlement method.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodWallet PaymentMethod = "wallet"
)

// Valid reports whether the method is supported.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodWallet:
		return true
	}
	return false
}

// Ride is the central dispatch entity. Version increases strictly on every
// update; DriverID is non-nil iff the status is DRIVER_ASSIGNED or later.
type Ride struct {
	ID                uuid.UUID     `json:"id"`
	TenantID          uuid.UUID     `json:"tenant_id"`
	RiderID           uuid.UUID     `json:"rider_id"`
	DriverID          *uuid.UUID    `json:"driver_id,omitempty"`
	Status            RideStatus    `json:"status"`
	PickupLatitude    float64       `json:"pickup_latitude"`
	PickupLongitude   float64       `json:"pickup_longitude"`
	PickupAddress     *string       `json:"pickup_address,omitempty"`
	DropoffLatitude   float64       `json:"dropoff_latitude"`
	DropoffLongitude  float64       `json:"dropoff_longitude"`
	DropoffAddress    *string       `json:"dropoff_address,omitempty"`
	Tier              VehicleClass  `json:"tier"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	SurgeMultiplier   float64       `json:"surge_multiplier"`
	EstimatedFare     float64       `json:"estimated_fare"`
	EstimatedDistance float64       `json:"estimated_distance_km"`
	EstimatedDuration int           `json:"estimated_duration_mins"`
	Version           int64         `json:"version"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	MatchedAt         *time.Time    `json:"matched_at,omitempty"`
	CancelledAt       *time.Time    `json:"cancelled_at,omitempty"`
	CancelReason      *string       `json:"cancel_reason,omitempty"`
}

// OfferStatus is the ride offer state.
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusDeclined  OfferStatus = "declined"
	OfferStatusExpired   OfferStatus = "expired"
	OfferStatusCancelled OfferStatus = "cancelled"
)

// RideOffer is a time-boxed invitation sent to a candidate driver. At most
// one offer exists per (ride, driver) and at most one offer per ride ever
// reaches accepted.
type RideOffer struct {
	ID            uuid.UUID   `json:"id"`
	RideID        uuid.UUID   `json:"ride_id"`
	DriverID      uuid.UUID   `json:"driver_id"`
	Status        OfferStatus `json:"status"`
	OfferedAt     time.Time   `json:"offered_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
	RespondedAt   *time.Time  `json:"responded_at,omitempty"`
	DeclineReason *string     `json:"decline_reason,omitempty"`
}
