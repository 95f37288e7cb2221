package assign

import "dispatchd/internal/model"

// Eligible reports whether the courier may serve the order given an
// already-computed pickup ETA. Pure over the snapshot; no side effects.
func Eligible(o model.Order, c model.Courier, etaMin, maxEtaMin float64) bool {
	if c.State != model.CourierAvailable {
		return false
	}
	if !c.CanServe(o.ServiceType) {
		return false
	}
	return etaMin <= maxEtaMin
}

// FilterEligible returns the indices of couriers able to serve the order.
// pickup is the effective pickup point (order pickup or per-request
// override). Orders with an empty result are carried to the next cycle
// and reported unassignable, never dropped.
func FilterEligible(o model.Order, pickup model.GeoPoint, couriers []model.Courier, eta ETAEstimator, maxEtaMin float64) []int {
	var out []int
	for i, c := range couriers {
		if Eligible(o, c, eta.ETAMinutes(c.Location, pickup), maxEtaMin) {
			out = append(out, i)
		}
	}
	return out
}
