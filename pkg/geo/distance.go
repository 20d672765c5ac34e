package geo

import "math"

const (
	earthRadiusKm   = 6371.0
	averageSpeedKmh = 40.0 // city traffic average
)

// Haversine calculates the great-circle distance in kilometres between two
// coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180.0)*math.Cos(lat2*math.Pi/180.0)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// HaversineRounded returns the distance rounded to two decimal places,
// which is what fare estimates and API payloads use.
func HaversineRounded(lat1, lon1, lat2, lon2 float64) float64 {
	return math.Round(Haversine(lat1, lon1, lat2, lon2)*100) / 100
}

// EstimateDuration returns the estimated travel time in minutes for a given
// distance in kilometres, assuming an average city speed of 40 km/h.
func EstimateDuration(distanceKm float64) int {
	return int(math.Round((distanceKm / averageSpeedKmh) * 60))
}

// InitialBearing returns the great-circle bearing in radians from the first
// coordinate towards the second.
func InitialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180.0
	phi2 := lat2 * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	return math.Atan2(y, x)
}

// Destination returns the coordinate reached by travelling distanceKm from
// (lat, lon) along the given bearing (radians).
func Destination(lat, lon, bearing, distanceKm float64) (float64, float64) {
	phi1 := lat * math.Pi / 180.0
	lambda1 := lon * math.Pi / 180.0
	delta := distanceKm / earthRadiusKm

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(bearing))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(bearing)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	return phi2 * 180.0 / math.Pi, lambda2 * 180.0 / math.Pi
}
