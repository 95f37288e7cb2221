package assign

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dispatchd/internal/model"
)

// EventSink receives cycle events (assignment.committed,
// assignment.superseded, order.unassigned, cycle.completed).
type EventSink interface {
	Publish(eventType string, data map[string]any)
}

type noopSink struct{}

func (noopSink) Publish(string, map[string]any) {}

// State is the controller's position in the Idle -> Solving ->
// Committing -> Idle cycle, with Failed as the error terminal for one
// invocation.
type State string

const (
	StateIdle       State = "idle"
	StateSolving    State = "solving"
	StateCommitting State = "committing"
	StateFailed     State = "failed"
)

// Controller orchestrates solver cycles over a shared pending-order
// pool. Commits are serialized under a single writer; matrix build and
// solving for independent cycles may overlap.
type Controller struct {
	cfg  Config
	eta  ETAEstimator
	fair *Tracker
	hist *History
	sink EventSink

	mu        sync.Mutex
	state     State
	committed map[string]model.Assignment // orderID -> current assignment
	busy      map[string]string           // courierID -> orderID, provisional flags
}

func NewController(cfg Config, eta ETAEstimator, fair *Tracker, hist *History, sink EventSink) *Controller {
	if eta == nil {
		eta = HaversineETA{SpeedKph: cfg.SpeedKph}
	}
	if fair == nil {
		fair = NewTracker()
	}
	if hist == nil {
		hist = NewHistory(0)
	}
	if sink == nil {
		sink = noopSink{}
	}
	return &Controller{
		cfg:       cfg,
		eta:       eta,
		fair:      fair,
		hist:      hist,
		sink:      sink,
		state:     StateIdle,
		committed: map[string]model.Assignment{},
		busy:      map[string]string{},
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig swaps the engine defaults. In-flight cycles keep the config
// they started with.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

func (c *Controller) Fairness() *Tracker { return c.fair }

func (c *Controller) History() *History { return c.hist }

// Assignments returns the committed set for still-open orders, sorted by
// order id for stable output.
func (c *Controller) Assignments() []model.Assignment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Assignment, 0, len(c.committed))
	for _, a := range c.committed {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// ReleaseCourier reconciles a courier-state change from the driver state
// service: the provisional busy flag is dropped and, when the courier's
// order is done, the assignment is retired and fairness starts its idle
// clock.
func (c *Controller) ReleaseCourier(courierID string, completed bool, at time.Time) {
	c.mu.Lock()
	orderID, held := c.busy[courierID]
	delete(c.busy, courierID)
	if held && completed {
		delete(c.committed, orderID)
	}
	c.mu.Unlock()
	if completed {
		c.fair.RecordCompletion(courierID, at)
	}
}

// RetireOrder removes an order that reached a terminal status.
func (c *Controller) RetireOrder(orderID string, at time.Time) {
	c.mu.Lock()
	var courierID string
	if a, ok := c.committed[orderID]; ok {
		courierID = a.CourierID
		delete(c.committed, orderID)
		if c.busy[courierID] == orderID {
			delete(c.busy, courierID)
		}
	}
	c.mu.Unlock()
	if courierID != "" {
		c.fair.RecordCompletion(courierID, at)
	}
}

// AssignDynamic solves the full order/courier snapshot and commits the
// result (unless dry-run).
func (c *Controller) AssignDynamic(ctx context.Context, req model.AssignRequest) (model.AssignResponse, error) {
	cfg := c.Config().WithOptions(req.Options)
	orders, err := c.normalizeOrders(req.Orders, cfg)
	if err != nil {
		return model.AssignResponse{}, err
	}
	if err := validateCouriers(req.Couriers); err != nil {
		return model.AssignResponse{}, err
	}
	if len(req.PickupPoints) > 0 && len(req.PickupPoints) != len(orders) {
		return model.AssignResponse{}, validationf("pickupPoints length %d does not match orders length %d", len(req.PickupPoints), len(orders))
	}
	prev := map[string]string{}
	c.mu.Lock()
	for id, a := range c.committed {
		prev[id] = a.CourierID
	}
	c.mu.Unlock()
	return c.runCycle(ctx, orders, req.PickupPoints, req.Couriers, prev, cfg)
}

// Reoptimize solves the incremental sub-problem: newOrders against the
// couriers freed since the last commit. When no courier was freed but
// orders are still outstanding it falls back to the full courier set so
// the cycle always makes forward progress.
func (c *Controller) Reoptimize(ctx context.Context, req model.ReoptimizeRequest) (model.AssignResponse, error) {
	cfg := c.Config().WithOptions(req.Options)
	orders, err := c.normalizeOrders(req.NewOrders, cfg)
	if err != nil {
		return model.AssignResponse{}, err
	}
	if err := validateCouriers(req.Couriers); err != nil {
		return model.AssignResponse{}, err
	}
	if len(req.PickupPoints) > 0 && len(req.PickupPoints) != len(orders) {
		return model.AssignResponse{}, validationf("pickupPoints length %d does not match newOrders length %d", len(req.PickupPoints), len(orders))
	}

	// The request's assignment set is authoritative for this invocation.
	held := map[string]string{} // courierID -> orderID
	prev := map[string]string{} // orderID -> courierID
	for _, a := range req.CurrentAssignments {
		held[a.CourierID] = a.OrderID
		prev[a.OrderID] = a.CourierID
	}
	c.mu.Lock()
	for courierID, orderID := range held {
		if engineHeld, ok := c.busy[courierID]; ok && engineHeld != orderID {
			c.mu.Unlock()
			return model.AssignResponse{}, &StateConflictError{OrderID: orderID, CourierID: courierID}
		}
	}
	for id, a := range c.committed {
		if _, ok := prev[id]; !ok {
			prev[id] = a.CourierID
			held[a.CourierID] = id
		}
	}
	c.mu.Unlock()

	freed := make([]model.Courier, 0, len(req.Couriers))
	for _, cr := range req.Couriers {
		if cr.State != model.CourierAvailable {
			continue
		}
		if _, taken := held[cr.ID]; !taken {
			freed = append(freed, cr)
		}
	}
	pool := freed
	if len(pool) == 0 && len(orders) > 0 {
		// No courier freed but orders outstanding: widen to every
		// available courier. The driver state service is authoritative,
		// so a courier it reports available is fair game even if an old
		// assignment still references it.
		pool = req.Couriers
	}

	resp, err := c.runCycle(ctx, orders, req.PickupPoints, pool, prev, cfg)
	if err != nil {
		return resp, err
	}
	// Carry untouched current assignments through to the response.
	reassigned := map[string]bool{}
	for _, a := range resp.Assignments {
		reassigned[a.OrderID] = true
	}
	for _, a := range req.CurrentAssignments {
		if !reassigned[a.OrderID] {
			resp.Assignments = append(resp.Assignments, a)
		}
	}
	sort.Slice(resp.Assignments, func(i, j int) bool { return resp.Assignments[i].OrderID < resp.Assignments[j].OrderID })
	return resp, nil
}

func (c *Controller) runCycle(ctx context.Context, orders []model.Order, pickups []model.GeoPoint, couriers []model.Courier, prev map[string]string, cfg Config) (model.AssignResponse, error) {
	started := time.Now()
	cycleID := "cyc_" + uuid.NewString()[:8]
	resp := model.AssignResponse{CycleID: cycleID, Assignments: []model.Assignment{}, Unassigned: []model.UnassignedOrder{}, DryRun: cfg.DryRun}
	if len(orders) == 0 {
		return resp, nil
	}

	c.setState(StateSolving)

	// Candidate pool: available couriers not provisionally held by an
	// order outside this cycle.
	inCycle := map[string]bool{}
	for _, o := range orders {
		inCycle[o.ID] = true
	}
	c.mu.Lock()
	busyAtBuild := make(map[string]string, len(c.busy))
	for k, v := range c.busy {
		busyAtBuild[k] = v
	}
	candidates := make([]model.Courier, 0, len(couriers))
	for _, cr := range couriers {
		if cr.State != model.CourierAvailable {
			continue
		}
		// A provisional busy flag blocks the courier unless its held
		// order is part of this cycle or the caller's authoritative
		// snapshot says the courier is free again (stale flag).
		if held, ok := c.busy[cr.ID]; ok && !inCycle[held] && prev[held] != cr.ID {
			continue
		}
		candidates = append(candidates, cr)
	}
	c.mu.Unlock()

	stats := c.fair.Snapshot(candidates, started)
	matrix := BuildMatrix(orders, pickups, candidates, c.eta, stats, started, cfg)

	result, err := c.solveWithBudget(ctx, matrix, cfg.SolveTimeout)
	if err != nil {
		c.setState(StateFailed)
		c.hist.Record(CycleRecord{
			CycleID: cycleID, StartedAt: started, Duration: time.Since(started),
			Orders: len(orders), Couriers: len(candidates), Outcome: "failed",
		})
		c.sink.Publish("cycle.failed", map[string]any{"cycleId": cycleID, "error": err.Error()})
		c.setState(StateIdle)
		return model.AssignResponse{}, err
	}

	c.setState(StateCommitting)
	rec := c.commit(cycleID, started, matrix, result, prev, busyAtBuild, cfg, &resp)
	c.setState(StateIdle)

	rec.Duration = time.Since(started)
	c.hist.Record(rec)
	if !cfg.DryRun {
		c.sink.Publish("cycle.completed", map[string]any{
			"cycleId": cycleID, "assigned": rec.Assigned, "unassigned": rec.Unassigned,
			"reassigned": rec.Reassigned, "totalCost": rec.TotalCost,
		})
	}
	return resp, nil
}

// solveWithBudget runs the solver under the cycle's time budget. There is
// no safe mid-solve cancellation; a timeout simply discards the attempt.
func (c *Controller) solveWithBudget(ctx context.Context, m Matrix, budget time.Duration) (SolveResult, error) {
	done := make(chan SolveResult, 1)
	go func() { done <- SolveMatrix(m) }()
	if budget <= 0 {
		budget = DefaultConfig().SolveTimeout
	}
	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case r := <-done:
		return r, nil
	case <-timer.C:
		return SolveResult{}, &SolverTimeoutError{Budget: budget}
	case <-ctx.Done():
		return SolveResult{}, ctx.Err()
	}
}

// commit diffs the solver output against the previously committed set
// under the single-writer lock. Unchanged pairs are left untouched;
// reassignment happens only when the new pairing beats the kept one by
// more than the hysteresis margin.
func (c *Controller) commit(cycleID string, now time.Time, m Matrix, result SolveResult, prev map[string]string, busyAtBuild map[string]string, cfg Config, resp *model.AssignResponse) CycleRecord {
	rec := CycleRecord{
		CycleID: cycleID, StartedAt: now,
		Orders: len(m.Orders), Couriers: len(m.Couriers),
		Outcome: "committed", DryRun: cfg.DryRun,
	}
	if cfg.DryRun {
		rec.Outcome = "dry_run"
	}

	courierIdx := make(map[string]int, len(m.Couriers))
	for j, cr := range m.Couriers {
		courierIdx[cr.ID] = j
	}

	type plan struct {
		pair      Pair
		courierID string
		kept      bool // previous courier retained by hysteresis
	}
	reserved := map[string]string{} // courierID -> orderID within this cycle
	plans := make([]plan, 0, len(result.Pairs))

	// First pass: pin unchanged pairs and hysteresis keeps so a
	// reassignment can never steal a courier from an order that is
	// entitled to keep it.
	deferred := make([]Pair, 0, len(result.Pairs))
	for _, p := range result.Pairs {
		o := m.Orders[p.Order]
		newID := m.Couriers[p.Courier].ID
		prevID := prev[o.ID]
		if prevID == newID {
			reserved[newID] = o.ID
			plans = append(plans, plan{pair: p, courierID: newID})
			continue
		}
		if prevID != "" {
			if pj, ok := courierIdx[prevID]; ok && m.Feasible(p.Order, pj) {
				if m.Cost[p.Order][pj]-p.Cost <= cfg.ChurnHysteresis {
					// Not enough improvement to justify churn.
					kept := p
					kept.Courier = pj
					kept.Cost = m.Cost[p.Order][pj]
					reserved[prevID] = o.ID
					plans = append(plans, plan{pair: kept, courierID: prevID, kept: true})
					continue
				}
			}
		}
		deferred = append(deferred, p)
	}
	// Second pass: a hysteresis keep may sit on the courier the solver
	// gave a deferred order, so a displaced order re-matches to its
	// cheapest feasible courier still unreserved rather than dropping.
	for _, p := range deferred {
		o := m.Orders[p.Order]
		newID := m.Couriers[p.Courier].ID
		if holder, taken := reserved[newID]; taken && holder != o.ID {
			best := -1
			for j, cr := range m.Couriers {
				if _, used := reserved[cr.ID]; used {
					continue
				}
				if !m.Feasible(p.Order, j) {
					continue
				}
				if best < 0 || m.Cost[p.Order][j] < m.Cost[p.Order][best] {
					best = j
				}
			}
			if best < 0 {
				resp.Unassigned = append(resp.Unassigned, model.UnassignedOrder{OrderID: o.ID, Reason: "no_courier_available"})
				rec.Unassigned++
				continue
			}
			p.Courier = best
			p.Cost = m.Cost[p.Order][best]
			newID = m.Couriers[best].ID
		}
		reserved[newID] = o.ID
		plans = append(plans, plan{pair: p, courierID: newID})
	}

	if cfg.DryRun {
		for _, pl := range plans {
			o := m.Orders[pl.pair.Order]
			resp.Assignments = append(resp.Assignments, model.Assignment{
				OrderID: o.ID, CourierID: pl.courierID, Cost: pl.pair.Cost, CycleID: cycleID, CommittedAt: now,
			})
			rec.Assigned++
			rec.TotalCost += pl.pair.Cost
		}
		c.reportUnassigned(m, result, resp, &rec, cycleID, true)
		return rec
	}

	c.mu.Lock()
	for _, pl := range plans {
		o := m.Orders[pl.pair.Order]
		if held, ok := c.busy[pl.courierID]; ok && held != o.ID {
			if busyAtBuild[pl.courierID] != held {
				// Concurrent-cycle conflict: the courier was taken between
				// our matrix build and this commit. Retry next cycle.
				resp.Unassigned = append(resp.Unassigned, model.UnassignedOrder{OrderID: o.ID, Reason: "courier_conflict"})
				rec.Unassigned++
				continue
			}
			// Stale hold: the caller's authoritative snapshot reports the
			// courier free, so its old assignment is superseded.
			delete(c.committed, held)
			c.sink.Publish("assignment.superseded", map[string]any{
				"orderId": held, "previousCourierId": pl.courierID, "courierId": "", "cycleId": cycleID,
			})
		}
		prevAssignment, hadPrev := c.committed[o.ID]
		a := model.Assignment{OrderID: o.ID, CourierID: pl.courierID, Cost: pl.pair.Cost, CycleID: cycleID, CommittedAt: now}
		if hadPrev && prevAssignment.CourierID == pl.courierID {
			// No churn: keep the original commit timestamp.
			a.CommittedAt = prevAssignment.CommittedAt
			a.CycleID = prevAssignment.CycleID
			c.committed[o.ID] = a
			c.busy[pl.courierID] = o.ID
			resp.Assignments = append(resp.Assignments, a)
			rec.Assigned++
			rec.TotalCost += a.Cost
			continue
		}
		c.committed[o.ID] = a
		c.busy[pl.courierID] = o.ID
		if hadPrev {
			if c.busy[prevAssignment.CourierID] == o.ID {
				delete(c.busy, prevAssignment.CourierID)
			}
			rec.Reassigned++
			c.fair.RecordReassignment(prevAssignment.CourierID, pl.courierID, now)
			c.sink.Publish("assignment.superseded", map[string]any{
				"orderId": o.ID, "previousCourierId": prevAssignment.CourierID, "courierId": pl.courierID, "cycleId": cycleID,
			})
		} else {
			c.fair.RecordAssignment(pl.courierID, now)
		}
		resp.Assignments = append(resp.Assignments, a)
		rec.Assigned++
		rec.TotalCost += a.Cost
		c.sink.Publish("assignment.committed", map[string]any{
			"orderId": o.ID, "courierId": pl.courierID, "cost": a.Cost, "cycleId": cycleID,
		})
	}
	c.mu.Unlock()

	c.reportUnassigned(m, result, resp, &rec, cycleID, false)
	return rec
}

func (c *Controller) reportUnassigned(m Matrix, result SolveResult, resp *model.AssignResponse, rec *CycleRecord, cycleID string, dry bool) {
	for _, i := range result.UnassignedOrders {
		o := m.Orders[i]
		reason := "no_courier_available"
		feasible := false
		for j := range m.Couriers {
			if m.Feasible(i, j) {
				feasible = true
				break
			}
		}
		if !feasible {
			reason = "no_eligible_courier"
		}
		resp.Unassigned = append(resp.Unassigned, model.UnassignedOrder{OrderID: o.ID, Reason: reason})
		rec.Unassigned++
		if !dry {
			c.sink.Publish("order.unassigned", map[string]any{"orderId": o.ID, "reason": reason, "cycleId": cycleID})
		}
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// normalizeOrders validates the batch and fills derivable fields: blank
// status becomes pending, a missing deadline is derived from the
// service-type target.
func (c *Controller) normalizeOrders(in []model.Order, cfg Config) ([]model.Order, error) {
	out := make([]model.Order, len(in))
	seen := map[string]bool{}
	for i, o := range in {
		if o.ID == "" {
			return nil, validationf("orders[%d]: missing id", i)
		}
		if seen[o.ID] {
			return nil, validationf("duplicate order id %q", o.ID)
		}
		seen[o.ID] = true
		if o.Pickup.Lat < -90 || o.Pickup.Lat > 90 || o.Pickup.Lng < -180 || o.Pickup.Lng > 180 {
			return nil, validationf("order %s: pickup out of range", o.ID)
		}
		if o.ServiceType == "" {
			o.ServiceType = model.ServiceStandard
		}
		if o.Status == "" {
			o.Status = model.OrderPending
		}
		if o.Status != model.OrderPending {
			return nil, validationf("order %s: status %q is not assignable", o.ID, o.Status)
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = time.Now()
		}
		if o.SLADeadline.IsZero() {
			target, ok := cfg.SLATargetMin[o.ServiceType]
			if !ok {
				target = cfg.SLATargetMin[model.ServiceStandard]
			}
			o.SLADeadline = o.CreatedAt.Add(time.Duration(target * float64(time.Minute)))
		}
		out[i] = o
	}
	return out, nil
}

func validateCouriers(in []model.Courier) error {
	seen := map[string]bool{}
	for i, cr := range in {
		if cr.ID == "" {
			return validationf("couriers[%d]: missing id", i)
		}
		if seen[cr.ID] {
			return validationf("duplicate courier id %q", cr.ID)
		}
		seen[cr.ID] = true
		if cr.State != "" && !model.ValidCourierState(cr.State) {
			return validationf("courier %s: unknown state %q", cr.ID, cr.State)
		}
	}
	return nil
}
