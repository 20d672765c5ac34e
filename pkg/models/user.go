package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is an isolated operator/region. Every rider, driver and ride
// belongs to exactly one tenant; no ride crosses tenants.
type Tenant struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Region string    `json:"region"`
}

// Rider is a passenger account.
type Rider struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Phone     string    `json:"phone"`
	Name      *string   `json:"name,omitempty"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VehicleClass determines fare scale and geo-index partition.
type VehicleClass string

const (
	VehicleClassEconomy VehicleClass = "economy"
	VehicleClassPremium VehicleClass = "premium"
	VehicleClassXL      VehicleClass = "xl"
)

// Valid reports whether the vehicle class is one of the known tiers.
func (v VehicleClass) Valid() bool {
	switch v {
	case VehicleClassEconomy, VehicleClassPremium, VehicleClassXL:
		return true
	}
	return false
}

// DriverStatus is the driver's availability state.
type DriverStatus string

const (
	DriverStatusOffline DriverStatus = "offline"
	DriverStatusOnline  DriverStatus = "online"
	DriverStatusBusy    DriverStatus = "busy"
)

// Valid reports whether the status is a known driver state.
func (s DriverStatus) Valid() bool {
	switch s {
	case DriverStatusOffline, DriverStatusOnline, DriverStatusBusy:
		return true
	}
	return false
}

// Driver is a driver account. A busy driver has exactly one active ride;
// an online driver has none.
type Driver struct {
	ID             uuid.UUID    `json:"id"`
	TenantID       uuid.UUID    `json:"tenant_id"`
	Phone          string       `json:"phone"`
	Name           *string      `json:"name,omitempty"`
	VehicleID      *string      `json:"vehicle_id,omitempty"`
	VehicleClass   VehicleClass `json:"vehicle_class"`
	Status         DriverStatus `json:"status"`
	Rating         float64      `json:"rating"`          // [0, 5]
	TotalRides     int          `json:"total_rides"`     // >= 0
	AcceptanceRate float64      `json:"acceptance_rate"` // [0, 100]
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
