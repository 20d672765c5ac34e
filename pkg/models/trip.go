package models

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus is the trip state. A trip exists iff the ride ever reached
// IN_PROGRESS.
type TripStatus string

const (
	TripStatusStarted    TripStatus = "STARTED"
	TripStatusInProgress TripStatus = "IN_PROGRESS"
	TripStatusCompleted  TripStatus = "COMPLETED"
	TripStatusDisputed   TripStatus = "DISPUTED"
)

// FareBreakdown itemizes a trip fare. Total closes over the components:
// total = base + distance + time + surge + taxes (rounded to 2 decimals).
type FareBreakdown struct {
	Base     float64 `json:"base"`
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
	Surge    float64 `json:"surge"`
	Taxes    float64 `json:"taxes"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
}

// Trip records the physical journey of a ride (1:1).
type Trip struct {
	ID              uuid.UUID      `json:"id"`
	RideID          uuid.UUID      `json:"ride_id"`
	Status          TripStatus     `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	ActualDistance  *float64       `json:"actual_distance_km,omitempty"`
	ActualDuration  *int           `json:"actual_duration_mins,omitempty"`
	RoutePolyline   *string        `json:"route_polyline,omitempty"`
	Fare            *FareBreakdown `json:"fare_breakdown,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
