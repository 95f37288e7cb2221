package assign

import (
	"math"

	"dispatchd/internal/model"
)

// ETAEstimator is the travel-time oracle consumed by the eligibility
// filter and cost model. Implementations must be safe for concurrent use.
type ETAEstimator interface {
	ETAMinutes(from, to model.GeoPoint) float64
}

// HaversineETA estimates travel time as great-circle distance at a fixed
// average speed. It is the default oracle when no live-traffic provider
// is configured.
type HaversineETA struct {
	SpeedKph float64
}

func (h HaversineETA) ETAMinutes(from, to model.GeoPoint) float64 {
	speed := h.SpeedKph
	if speed <= 0 {
		speed = 30
	}
	meters := haversine(from.Lat, from.Lng, to.Lat, to.Lng)
	return meters / (speed * 1000.0 / 60.0)
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
