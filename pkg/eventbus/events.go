package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Event types carried on the ride-events topic.
const (
	EventTypeRideCreated       = "RIDE_CREATED"
	EventTypeRideStatusChanged = "RIDE_STATUS_CHANGED"
	EventTypeRideCancelled     = "RIDE_CANCELLED"
)

// Event types carried on the notifications topic. The realtime fabric maps
// each of these onto websocket rooms.
const (
	EventTypeRideOffer         = "RIDE_OFFER"
	EventTypeDriverAssigned    = "DRIVER_ASSIGNED"
	EventTypeRideDriverEnRoute = "RIDE_DRIVER_EN_ROUTE"
	EventTypeRideDriverArrived = "RIDE_DRIVER_ARRIVED"
	EventTypeDriverLocation    = "DRIVER_LOCATION"
	EventTypeTripStarted       = "TRIP_STARTED"
	EventTypeTripCompleted     = "TRIP_COMPLETED"
	EventTypePaymentCompleted  = "PAYMENT_COMPLETED"
	EventTypePaymentReceived   = "PAYMENT_RECEIVED"
)

// Event type carried on the location-updates topic.
const EventTypeLocationUpdate = "LOCATION_UPDATE"

// LocationUpdateData is published for every accepted driver position report.
type LocationUpdateData struct {
	DriverID     uuid.UUID `json:"driver_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Heading      *float64  `json:"heading,omitempty"`
	Speed        *float64  `json:"speed,omitempty"`
	Accuracy     *float64  `json:"accuracy,omitempty"`
	VehicleClass string    `json:"vehicle_class"`
	Status       string    `json:"status"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// RideCreatedData is emitted when a rider requests a ride.
type RideCreatedData struct {
	RideID            uuid.UUID `json:"ride_id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	RiderID           uuid.UUID `json:"rider_id"`
	PickupLatitude    float64   `json:"pickup_latitude"`
	PickupLongitude   float64   `json:"pickup_longitude"`
	DropoffLatitude   float64   `json:"dropoff_latitude"`
	DropoffLongitude  float64   `json:"dropoff_longitude"`
	Tier              string    `json:"tier"`
	EstimatedFare     float64   `json:"estimated_fare"`
	EstimatedDistance float64   `json:"estimated_distance_km"`
	RequestedAt       time.Time `json:"requested_at"`
}

// RideStatusChangedData is emitted on every ride state transition.
type RideStatusChangedData struct {
	RideID         uuid.UUID  `json:"ride_id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	RiderID        uuid.UUID  `json:"rider_id"`
	DriverID       *uuid.UUID `json:"driver_id,omitempty"`
	PreviousStatus string     `json:"previous_status"`
	Status         string     `json:"status"`
	Version        int64      `json:"version"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// RideCancelledData is emitted when a ride is cancelled.
type RideCancelledData struct {
	RideID      uuid.UUID  `json:"ride_id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	RiderID     uuid.UUID  `json:"rider_id"`
	DriverID    *uuid.UUID `json:"driver_id,omitempty"`
	CancelledBy string     `json:"cancelled_by"` // "rider", "driver" or "system"
	Reason      string     `json:"reason"`
	CancelledAt time.Time  `json:"cancelled_at"`
}

// RideOfferData is sent to a candidate driver during dispatch.
type RideOfferData struct {
	OfferID           uuid.UUID `json:"offer_id"`
	RideID            uuid.UUID `json:"ride_id"`
	DriverID          uuid.UUID `json:"driver_id"`
	PickupLatitude    float64   `json:"pickup_latitude"`
	PickupLongitude   float64   `json:"pickup_longitude"`
	PickupAddress     string    `json:"pickup_address,omitempty"`
	DropoffLatitude   float64   `json:"dropoff_latitude"`
	DropoffLongitude  float64   `json:"dropoff_longitude"`
	DropoffAddress    string    `json:"dropoff_address,omitempty"`
	EstimatedFare     float64   `json:"estimated_fare"`
	PickupDistanceKm  float64   `json:"pickup_distance_km"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// DriverAssignedData tells the rider who accepted their ride.
type DriverAssignedData struct {
	RideID       uuid.UUID `json:"ride_id"`
	RiderID      uuid.UUID `json:"rider_id"`
	DriverID     uuid.UUID `json:"driver_id"`
	DriverName   string    `json:"driver_name,omitempty"`
	VehicleClass string    `json:"vehicle_class"`
	Rating       float64   `json:"rating"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// RideProgressData covers en-route and arrived notifications.
type RideProgressData struct {
	RideID     uuid.UUID `json:"ride_id"`
	RiderID    uuid.UUID `json:"rider_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DriverLocationData streams the assigned driver's position to the rider.
// Arrived marks the final sample of a leg.
type DriverLocationData struct {
	RideID     uuid.UUID `json:"ride_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Arrived    bool      `json:"arrived,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TripStartedData is emitted when the physical trip begins.
type TripStartedData struct {
	TripID    uuid.UUID `json:"trip_id"`
	RideID    uuid.UUID `json:"ride_id"`
	RiderID   uuid.UUID `json:"rider_id"`
	DriverID  uuid.UUID `json:"driver_id"`
	StartedAt time.Time `json:"started_at"`
}

// TripCompletedData is emitted when the trip ends with a finalized fare.
type TripCompletedData struct {
	TripID         uuid.UUID `json:"trip_id"`
	RideID         uuid.UUID `json:"ride_id"`
	RiderID        uuid.UUID `json:"rider_id"`
	DriverID       uuid.UUID `json:"driver_id"`
	FareTotal      float64   `json:"fare_total"`
	Currency       string    `json:"currency"`
	DistanceKm     float64   `json:"distance_km"`
	DurationMins   int       `json:"duration_mins"`
	DriverEarnings float64   `json:"driver_earnings"`
	CompletedAt    time.Time `json:"completed_at"`
}

// PaymentCompletedData confirms settlement to the rider.
type PaymentCompletedData struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	TripID      uuid.UUID `json:"trip_id"`
	RideID      uuid.UUID `json:"ride_id"`
	RiderID     uuid.UUID `json:"rider_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	CompletedAt time.Time `json:"completed_at"`
}

// PaymentReceivedData tells the driver their earnings landed.
type PaymentReceivedData struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	RideID     uuid.UUID `json:"ride_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	Earnings   float64   `json:"earnings"`
	Currency   string    `json:"currency"`
	ReceivedAt time.Time `json:"received_at"`
}
