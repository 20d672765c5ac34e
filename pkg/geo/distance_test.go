package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Connaught Place and Gurgaon Cyber City, roughly 22 km apart.
const (
	cpLat = 28.6315
	cpLng = 77.2167
	ccLat = 28.4950
	ccLng = 77.0890
)

func TestHaversine(t *testing.T) {
	d := Haversine(cpLat, cpLng, ccLat, ccLng)
	assert.InDelta(t, 19.7, d, 1.0)
}

func TestHaversineZeroForSamePoint(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(cpLat, cpLng, cpLat, cpLng))
}

func TestHaversineSymmetry(t *testing.T) {
	forward := Haversine(cpLat, cpLng, ccLat, ccLng)
	backward := Haversine(ccLat, ccLng, cpLat, cpLng)
	assert.InDelta(t, forward, backward, 1e-9)
}

func TestHaversineRounded(t *testing.T) {
	d := HaversineRounded(cpLat, cpLng, ccLat, ccLng)
	assert.Equal(t, math.Round(d*100)/100, d)
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 15, EstimateDuration(10)) // 10 km at 40 km/h
	assert.Equal(t, 0, EstimateDuration(0))
}

func TestDestinationRoundTrip(t *testing.T) {
	bearing := InitialBearing(cpLat, cpLng, ccLat, ccLng)
	stepKm := 2.0

	lat, lng := Destination(cpLat, cpLng, bearing, stepKm)

	travelled := Haversine(cpLat, cpLng, lat, lng)
	assert.InDelta(t, stepKm, travelled, 0.01)

	// Stepping toward the target must shrink the remaining distance by the
	// step length.
	before := Haversine(cpLat, cpLng, ccLat, ccLng)
	after := Haversine(lat, lng, ccLat, ccLng)
	assert.InDelta(t, before-stepKm, after, 0.05)
}

func TestDestinationZeroDistance(t *testing.T) {
	lat, lng := Destination(cpLat, cpLng, 1.0, 0)
	assert.InDelta(t, cpLat, lat, 1e-9)
	assert.InDelta(t, cpLng, lng, 1e-9)
}
