package assign

import (
	"sort"
	"sync"
	"time"

	"dispatchd/internal/model"
)

// Tracker keeps rolling per-courier workload and idle statistics. It is
// the engine's only long-lived mutable state besides the committed
// assignment set, and it is updated under the controller's single-writer
// commit discipline so fairness accounting stays consistent with the
// assignments that produced it.
type Tracker struct {
	mu    sync.Mutex
	stats map[string]*trackedCourier
}

type trackedCourier struct {
	deliveries  int
	dailyTarget int
	lastAssign  time.Time
	idleSince   time.Time
}

func NewTracker() *Tracker {
	return &Tracker{stats: map[string]*trackedCourier{}}
}

func (t *Tracker) get(id string) *trackedCourier {
	tc, ok := t.stats[id]
	if !ok {
		tc = &trackedCourier{}
		t.stats[id] = tc
	}
	return tc
}

// RecordAssignment notes a committed assignment: the courier's daily
// count rises and its idle clock stops.
func (t *Tracker) RecordAssignment(courierID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tc := t.get(courierID)
	tc.deliveries++
	tc.lastAssign = at
	tc.idleSince = time.Time{}
}

// RecordReassignment moves a previously counted assignment from one
// courier to another without inflating totals.
func (t *Tracker) RecordReassignment(fromCourierID, toCourierID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	from := t.get(fromCourierID)
	if from.deliveries > 0 {
		from.deliveries--
	}
	from.idleSince = at
	to := t.get(toCourierID)
	to.deliveries++
	to.lastAssign = at
	to.idleSince = time.Time{}
}

// RecordCompletion starts the courier's idle clock after it finishes an
// order (observed from the external state feed).
func (t *Tracker) RecordCompletion(courierID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(courierID).idleSince = at
}

// SetTargets installs daily delivery targets.
func (t *Tracker) SetTargets(targets []model.DriverTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tg := range targets {
		t.get(tg.DriverID).dailyTarget = tg.DailyTarget
	}
}

// ResetDaily zeroes counters at the configured daily boundary. Targets
// survive the reset; counts and idle clocks do not.
func (t *Tracker) ResetDaily(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tc := range t.stats {
		tc.deliveries = 0
		tc.lastAssign = time.Time{}
		tc.idleSince = now
	}
}

// Snapshot merges tracked stats with the courier snapshot for the cost
// model. Couriers the tracker has never seen keep their snapshot fields.
func (t *Tracker) Snapshot(couriers []model.Courier, now time.Time) map[string]CourierStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]CourierStats, len(couriers))
	for _, c := range couriers {
		tc, ok := t.stats[c.ID]
		if !ok {
			out[c.ID] = CourierStats{Deliveries: c.DeliveriesToday, DailyTarget: c.DailyTarget, IdleMinutes: c.IdleMinutes}
			continue
		}
		idle := c.IdleMinutes
		if !tc.idleSince.IsZero() {
			idle = now.Sub(tc.idleSince).Minutes()
		}
		target := tc.dailyTarget
		if target == 0 {
			target = c.DailyTarget
		}
		out[c.ID] = CourierStats{Deliveries: tc.deliveries, DailyTarget: target, IdleMinutes: idle}
	}
	return out
}

// TargetStatuses reports per-courier progress against daily targets.
func (t *Tracker) TargetStatuses() []model.TargetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := []model.TargetStatus{}
	for id, tc := range t.stats {
		if tc.dailyTarget <= 0 {
			continue
		}
		gap := float64(tc.dailyTarget-tc.deliveries) / float64(tc.dailyTarget)
		if gap < 0 {
			gap = 0
		}
		out = append(out, model.TargetStatus{
			DriverID:    id,
			DailyTarget: tc.dailyTarget,
			Delivered:   tc.deliveries,
			Achieved:    tc.deliveries >= tc.dailyTarget,
			GapRatio:    gap,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}
