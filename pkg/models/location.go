package models

import (
	"time"

	"github.com/google/uuid"
)

// DriverLocationSample is an append-only telemetry record. The latest
// sample per driver restores the geo index after a restart.
type DriverLocationSample struct {
	DriverID   uuid.UUID `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
