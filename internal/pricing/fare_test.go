package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/richxcame/dispatch/pkg/models"
)

func TestEstimateFare(t *testing.T) {
	tests := []struct {
		name       string
		class      models.VehicleClass
		distanceKm float64
		want       float64
	}{
		{"economy short hop", models.VehicleClassEconomy, 4.9, 109}, // 50 + round(58.8)
		{"economy zero distance", models.VehicleClassEconomy, 0, 50},
		{"premium", models.VehicleClassPremium, 10, 280},
		{"xl", models.VehicleClassXL, 3.2, 220}, // 150 + round(70.4)
		{"unknown class falls back to economy", models.VehicleClass("rickshaw"), 2, 74},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateFare(tt.class, tt.distanceKm), 1e-9)
		})
	}
}

func TestComputeFareClosesOverComponents(t *testing.T) {
	fare := ComputeFare(models.VehicleClassEconomy, 5, 10, 1.0)

	assert.Equal(t, 50.0, fare.Base)
	assert.Equal(t, 60.0, fare.Distance)
	assert.Equal(t, 15.0, fare.Time)
	assert.Equal(t, 0.0, fare.Surge)
	assert.Equal(t, 6.25, fare.Taxes)
	assert.Equal(t, 131.25, fare.Total)
	assert.Equal(t, "INR", fare.Currency)

	sum := fare.Base + fare.Distance + fare.Time + fare.Surge + fare.Taxes
	assert.Equal(t, Round2(sum), fare.Total)
}

func TestComputeFareWithSurge(t *testing.T) {
	fare := ComputeFare(models.VehicleClassPremium, 8, 20, 1.5)

	// subtotal = 100 + 144 + 50 = 294; surge = 147; taxes = 22.05
	assert.Equal(t, 147.0, fare.Surge)
	assert.Equal(t, 22.05, fare.Taxes)
	assert.Equal(t, 463.05, fare.Total)

	sum := fare.Base + fare.Distance + fare.Time + fare.Surge + fare.Taxes
	assert.Equal(t, Round2(sum), fare.Total)
}

func TestComputeFareIgnoresSubUnitySurge(t *testing.T) {
	discounted := ComputeFare(models.VehicleClassEconomy, 5, 10, 0.5)
	normal := ComputeFare(models.VehicleClassEconomy, 5, 10, 1.0)
	assert.Equal(t, normal.Total, discounted.Total)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 2.67, Round2(2.666666))
	assert.Equal(t, 3.14, Round2(3.14159))
	assert.Equal(t, 0.0, Round2(0))
}
