package assign

import (
	"time"

	"dispatchd/internal/model"
)

// Sentinel is the finite stand-in cost for infeasible pairs. Keeping it
// finite keeps the solver arithmetic well-defined; any match at or above
// it is reported unassigned instead of committed.
const Sentinel = 1e6

// CourierStats is the fairness view of one courier at cycle start.
type CourierStats struct {
	Deliveries  int
	DailyTarget int
	IdleMinutes float64
}

// Matrix is the per-cycle cost matrix. Built fresh each invocation,
// never persisted.
type Matrix struct {
	Orders   []model.Order
	Couriers []model.Courier
	Cost     [][]float64 // orders x couriers; Sentinel where infeasible
	ETAMin   [][]float64
}

// Feasible reports whether (order i, courier j) is an eligible pair.
func (m Matrix) Feasible(i, j int) bool { return m.Cost[i][j] < Sentinel }

// BuildMatrix computes the dense cost matrix over the snapshot.
// pickups, when non-empty, overrides order pickup points positionally.
func BuildMatrix(orders []model.Order, pickups []model.GeoPoint, couriers []model.Courier, eta ETAEstimator, stats map[string]CourierStats, now time.Time, cfg Config) Matrix {
	m := Matrix{
		Orders:   orders,
		Couriers: couriers,
		Cost:     make([][]float64, len(orders)),
		ETAMin:   make([][]float64, len(orders)),
	}
	mean := fleetMeanDeliveries(couriers, stats)
	for i, o := range orders {
		pickup := o.Pickup
		if i < len(pickups) {
			pickup = pickups[i]
		}
		m.Cost[i] = make([]float64, len(couriers))
		m.ETAMin[i] = make([]float64, len(couriers))
		urgency := slaUrgency(o, now, cfg.SLASoftSlackMin)
		for j, c := range couriers {
			etaMin := eta.ETAMinutes(c.Location, pickup)
			m.ETAMin[i][j] = etaMin
			if !Eligible(o, c, etaMin, cfg.MaxEtaToPickupMin) {
				m.Cost[i][j] = Sentinel
				continue
			}
			m.Cost[i][j] = pairCost(urgency, etaMin, statsFor(c, stats), mean, cfg)
		}
	}
	return m
}

// pairCost is the weighted sum of normalized sub-costs. Every sub-cost is
// clamped to [0,1] before weighting so no term can swamp the SLA term
// through unbounded magnitude.
//
// The SLA sub-cost couples urgency with pickup ETA: 1 - urgency*(1-etaNorm).
// Urgent orders are cheap to serve (so they are never the ones dropped when
// couriers are scarce) and cheapest for the fastest courier; for relaxed
// orders the term flattens and the fairness tie-breakers decide.
func pairCost(urgency, etaMin float64, st CourierStats, fleetMean float64, cfg Config) float64 {
	w := cfg.Weights
	etaNorm := clamp01(etaMin / cfg.MaxEtaToPickupMin)
	cost := w.SLA * (1 - urgency*(1-etaNorm))
	cost += w.ETA * etaNorm
	cost += w.FairDeliveries * deliveryCountDeviation(st.Deliveries, fleetMean)
	cost += w.FairTarget * targetGapCost(st)
	cost += w.Idle * idleCost(st.IdleMinutes, cfg.IdleThresholdMin)
	return cost
}

// slaUrgency rises toward 1 as remaining time shrinks:
// max(0, 1 - remaining/(target+softSlack)), clamped to [0,1] so breached
// orders saturate rather than grow without bound.
func slaUrgency(o model.Order, now time.Time, softSlackMin float64) float64 {
	target := o.SLADeadline.Sub(o.CreatedAt).Minutes()
	if target <= 0 {
		return 1
	}
	remaining := o.SLADeadline.Sub(now).Minutes()
	return clamp01(1 - remaining/(target+softSlackMin))
}

// deliveryCountDeviation maps the courier's today-count relative to the
// fleet mean into [0,1]; couriers below the mean land under 0.5, giving
// them a discount that balances load.
func deliveryCountDeviation(count int, mean float64) float64 {
	denom := mean
	if denom < 1 {
		denom = 1
	}
	return clamp01(0.5 + (float64(count)-mean)/(2*denom))
}

// targetGapCost prefers couriers further from their unmet daily target.
// Without a target the term is neutral.
func targetGapCost(st CourierStats) float64 {
	if st.DailyTarget <= 0 {
		return 0.5
	}
	gap := clamp01(float64(st.DailyTarget-st.Deliveries) / float64(st.DailyTarget))
	return 1 - gap
}

// idleCost discounts couriers idle past the threshold.
func idleCost(idleMin, thresholdMin float64) float64 {
	if thresholdMin <= 0 {
		return 0
	}
	return 1 - clamp01(idleMin/thresholdMin)
}

func statsFor(c model.Courier, stats map[string]CourierStats) CourierStats {
	if st, ok := stats[c.ID]; ok {
		return st
	}
	// fall back to the snapshot's own fields when the tracker has no record
	return CourierStats{Deliveries: c.DeliveriesToday, DailyTarget: c.DailyTarget, IdleMinutes: c.IdleMinutes}
}

func fleetMeanDeliveries(couriers []model.Courier, stats map[string]CourierStats) float64 {
	if len(couriers) == 0 {
		return 0
	}
	sum := 0
	for _, c := range couriers {
		sum += statsFor(c, stats).Deliveries
	}
	return float64(sum) / float64(len(couriers))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
