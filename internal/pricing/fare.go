package pricing

import (
	"math"

	"github.com/richxcame/dispatch/pkg/models"
)

// FareTier holds the pricing constants for one vehicle class, in INR.
type FareTier struct {
	Base   float64
	PerKm  float64
	PerMin float64
}

var fareTiers = map[models.VehicleClass]FareTier{
	models.VehicleClassEconomy: {Base: 50, PerKm: 12, PerMin: 1.5},
	models.VehicleClassPremium: {Base: 100, PerKm: 18, PerMin: 2.5},
	models.VehicleClassXL:      {Base: 150, PerKm: 22, PerMin: 3.0},
}

const (
	taxRate  = 0.05
	currency = "INR"

	// DriverShare is the fraction of the fare credited to the driver.
	DriverShare = 0.8
)

// TierFor returns the pricing constants for a vehicle class. Unknown classes
// fall back to economy.
func TierFor(class models.VehicleClass) FareTier {
	if tier, ok := fareTiers[class]; ok {
		return tier
	}
	return fareTiers[models.VehicleClassEconomy]
}

// EstimateFare quotes a fare at request time: base plus the rounded distance
// component. The time component is left out of quotes since duration is only
// an estimate.
func EstimateFare(class models.VehicleClass, distanceKm float64) float64 {
	tier := TierFor(class)
	return tier.Base + math.Round(distanceKm*tier.PerKm)
}

// ComputeFare produces the final itemized fare for a completed trip.
func ComputeFare(class models.VehicleClass, distanceKm float64, durationMins int, surge float64) *models.FareBreakdown {
	tier := TierFor(class)

	distanceFare := Round2(distanceKm * tier.PerKm)
	timeFare := Round2(float64(durationMins) * tier.PerMin)
	subtotal := tier.Base + distanceFare + timeFare

	var surgeFare float64
	if surge > 1 {
		surgeFare = Round2(subtotal * (surge - 1))
	}

	taxes := Round2((subtotal + surgeFare) * taxRate)

	return &models.FareBreakdown{
		Base:     tier.Base,
		Distance: distanceFare,
		Time:     timeFare,
		Surge:    surgeFare,
		Taxes:    taxes,
		Total:    Round2(subtotal + surgeFare + taxes),
		Currency: currency,
	}
}

// Round2 rounds a currency amount to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
