// README: Great-circle distance and flight-time estimates between places.
package location

import (
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// DistanceKm is the great-circle distance between two places.
func DistanceKm(a, b Place) float64 {
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

const (
	cruiseKmPerHour = 800.0
	taxiAndClimb    = 30 * time.Minute
)

// EstimateFlightTime gives a rough nonstop block time for a distance, used
// when a search result does not carry a duration.
func EstimateFlightTime(km float64) time.Duration {
	if km <= 0 {
		return 0
	}
	airborne := time.Duration(km / cruiseKmPerHour * float64(time.Hour))
	return (airborne + taxiAndClimb).Round(5 * time.Minute)
}
