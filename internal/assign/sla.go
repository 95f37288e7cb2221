package assign

import (
	"sort"
	"time"

	"dispatchd/internal/model"
)

// RiskMonitor classifies orders by time-to-SLA-breach. It never mutates
// order or courier state, so it is safe to query from dashboards while
// cycles run.
type RiskMonitor struct {
	RiskWindowMin     float64
	CriticalWindowMin float64
}

func NewRiskMonitor(cfg Config) RiskMonitor {
	return RiskMonitor{RiskWindowMin: cfg.RiskWindowMin, CriticalWindowMin: cfg.CriticalWindowMin}
}

// Classify returns the remaining minutes and severity for one order.
// Severity is monotone in time: moving an order closer to its deadline
// never lowers it.
func (m RiskMonitor) Classify(o model.Order, now time.Time) model.OrderRisk {
	remaining := o.SLADeadline.Sub(now).Minutes()
	level := model.RiskNormal
	switch {
	case remaining < 0:
		level = model.RiskBreached
	case remaining < m.CriticalWindowMin:
		level = model.RiskCritical
	case remaining < m.RiskWindowMin:
		level = model.RiskAtRisk
	}
	return model.OrderRisk{OrderID: o.ID, RemainingMinutes: remaining, Urgency: level}
}

// AtRiskOrders returns every non-normal order sorted by ascending
// remaining minutes, plus severity counts over the whole input.
func (m RiskMonitor) AtRiskOrders(orders []model.Order, now time.Time) model.AtRiskResponse {
	resp := model.AtRiskResponse{
		Orders: []model.OrderRisk{},
		Summary: map[model.RiskLevel]int{
			model.RiskNormal: 0, model.RiskAtRisk: 0, model.RiskCritical: 0, model.RiskBreached: 0,
		},
	}
	for _, o := range orders {
		if o.Status.Terminal() {
			continue
		}
		r := m.Classify(o, now)
		resp.Summary[r.Urgency]++
		if r.Urgency != model.RiskNormal {
			resp.Orders = append(resp.Orders, r)
		}
	}
	sort.SliceStable(resp.Orders, func(i, j int) bool {
		if resp.Orders[i].RemainingMinutes != resp.Orders[j].RemainingMinutes {
			return resp.Orders[i].RemainingMinutes < resp.Orders[j].RemainingMinutes
		}
		return resp.Orders[i].OrderID < resp.Orders[j].OrderID
	})
	return resp
}
