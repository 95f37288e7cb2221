package assign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dispatchd/internal/model"
)

type captureSink struct {
	mu     sync.Mutex
	events []string
}

func (s *captureSink) Publish(eventType string, _ map[string]any) {
	s.mu.Lock()
	s.events = append(s.events, eventType)
	s.mu.Unlock()
}

func (s *captureSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func pendingOrder(id string, deadline time.Duration) model.Order {
	now := time.Now()
	return model.Order{ID: id, Status: model.OrderPending, CreatedAt: now, SLADeadline: now.Add(deadline)}
}

func availableCourier(id string, lng float64) model.Courier {
	return model.Courier{ID: id, State: model.CourierAvailable, Location: model.GeoPoint{Lng: lng}}
}

func newTestController(sink EventSink) *Controller {
	return NewController(DefaultConfig(), lngETA{}, nil, nil, sink)
}

func TestAssignDynamicCommits(t *testing.T) {
	sink := &captureSink{}
	c := newTestController(sink)
	resp, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o1", time.Hour), pendingOrder("o2", time.Hour)},
		Couriers: []model.Courier{availableCourier("c1", 5), availableCourier("c2", 10)},
	})
	if err != nil {
		t.Fatalf("AssignDynamic: %v", err)
	}
	if len(resp.Assignments) != 2 || len(resp.Unassigned) != 0 {
		t.Fatalf("expected 2 assignments, got %+v", resp)
	}
	if resp.CycleID == "" {
		t.Fatal("missing cycle id")
	}
	if got := c.Assignments(); len(got) != 2 {
		t.Fatalf("committed set has %d entries, want 2", len(got))
	}
	if c.State() != StateIdle {
		t.Fatalf("state after cycle = %s, want idle", c.State())
	}
	if sink.count("assignment.committed") != 2 || sink.count("cycle.completed") != 1 {
		t.Fatalf("unexpected events: %v", sink.events)
	}
	recs := c.History().Recent(1)
	if len(recs) != 1 || recs[0].Assigned != 2 || recs[0].Outcome != "committed" {
		t.Fatalf("history record wrong: %+v", recs)
	}
}

func TestAssignDynamicNoEligibleCouriers(t *testing.T) {
	c := newTestController(nil)
	busy := availableCourier("c1", 5)
	busy.State = model.CourierBusy
	resp, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o1", time.Hour)},
		Couriers: []model.Courier{busy},
	})
	if err != nil {
		t.Fatalf("infeasibility must not be an error: %v", err)
	}
	if len(resp.Assignments) != 0 || len(resp.Unassigned) != 1 {
		t.Fatalf("expected one unassigned order, got %+v", resp)
	}
	if resp.Unassigned[0].Reason != "no_eligible_courier" {
		t.Fatalf("reason = %q", resp.Unassigned[0].Reason)
	}
}

func TestAssignDynamicValidation(t *testing.T) {
	c := newTestController(nil)
	cases := []model.AssignRequest{
		{Orders: []model.Order{{Status: model.OrderPending}}, Couriers: []model.Courier{availableCourier("c1", 5)}},
		{Orders: []model.Order{pendingOrder("dup", time.Hour), pendingOrder("dup", time.Hour)}, Couriers: []model.Courier{availableCourier("c1", 5)}},
		{Orders: []model.Order{{ID: "o1", Status: model.OrderDelivered}}, Couriers: []model.Courier{availableCourier("c1", 5)}},
		{Orders: []model.Order{pendingOrder("o1", time.Hour)}, Couriers: []model.Courier{{State: model.CourierAvailable}}},
		{Orders: []model.Order{pendingOrder("o1", time.Hour)}, Couriers: []model.Courier{{ID: "c1", State: "flying"}}},
	}
	for i, req := range cases {
		_, err := c.AssignDynamic(context.Background(), req)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("case %d: expected ValidationError, got %v", i, err)
		}
	}
	if len(c.Assignments()) != 0 {
		t.Fatal("validation failures must not commit anything")
	}
}

func TestAssignDynamicDryRun(t *testing.T) {
	c := newTestController(nil)
	dry := true
	resp, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o1", time.Hour)},
		Couriers: []model.Courier{availableCourier("c1", 5)},
		Options:  &model.Options{DryRun: &dry},
	})
	if err != nil {
		t.Fatalf("AssignDynamic: %v", err)
	}
	if !resp.DryRun || len(resp.Assignments) != 1 {
		t.Fatalf("dry run response wrong: %+v", resp)
	}
	if len(c.Assignments()) != 0 {
		t.Fatal("dry run must not mutate committed state")
	}
}

func TestHysteresisKeepsPreviousCourier(t *testing.T) {
	sink := &captureSink{}
	c := newTestController(sink)
	couriers := []model.Courier{availableCourier("c1", 10), availableCourier("c2", 9)}
	order := pendingOrder("o1", 2*time.Hour)

	if _, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders: []model.Order{order}, Couriers: couriers[:1],
	}); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	// c2 is marginally better; with a wide hysteresis band the order
	// must stay on c1.
	wide := 5.0
	resp, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders: []model.Order{order}, Couriers: couriers,
		Options: &model.Options{ChurnHysteresis: &wide},
	})
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(resp.Assignments) != 1 || resp.Assignments[0].CourierID != "c1" {
		t.Fatalf("expected o1 kept on c1, got %+v", resp.Assignments)
	}
	if sink.count("assignment.superseded") != 0 {
		t.Fatalf("no supersede expected: %v", sink.events)
	}

	// With hysteresis off, any strict improvement moves the order.
	zero := 0.0
	resp, err = c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders: []model.Order{order}, Couriers: couriers,
		Options: &model.Options{ChurnHysteresis: &zero},
	})
	if err != nil {
		t.Fatalf("third cycle: %v", err)
	}
	if len(resp.Assignments) != 1 || resp.Assignments[0].CourierID != "c2" {
		t.Fatalf("expected o1 moved to c2, got %+v", resp.Assignments)
	}
	if sink.count("assignment.superseded") != 1 {
		t.Fatalf("expected one supersede event: %v", sink.events)
	}
}

func TestReoptimizeUsesFreedCouriers(t *testing.T) {
	c := newTestController(nil)
	if _, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o1", time.Hour)},
		Couriers: []model.Courier{availableCourier("c1", 5)},
	}); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}
	current := c.Assignments()

	resp, err := c.Reoptimize(context.Background(), model.ReoptimizeRequest{
		CurrentAssignments: current,
		NewOrders:          []model.Order{pendingOrder("o2", time.Hour)},
		Couriers:           []model.Courier{availableCourier("c1", 5), availableCourier("c2", 10)},
	})
	if err != nil {
		t.Fatalf("Reoptimize: %v", err)
	}
	got := map[string]string{}
	for _, a := range resp.Assignments {
		got[a.OrderID] = a.CourierID
	}
	if got["o2"] != "c2" {
		t.Fatalf("new order should take the freed courier c2, got %v", got)
	}
	if got["o1"] != "c1" {
		t.Fatalf("held assignment must carry through untouched, got %v", got)
	}
}

func TestReoptimizeWidensWhenNothingFreed(t *testing.T) {
	c := newTestController(nil)
	if _, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o1", time.Hour)},
		Couriers: []model.Courier{availableCourier("c1", 5)},
	}); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}

	// Only c1 exists and the caller reports it available again, so the
	// pool widens and the new order still lands.
	resp, err := c.Reoptimize(context.Background(), model.ReoptimizeRequest{
		CurrentAssignments: c.Assignments(),
		NewOrders:          []model.Order{pendingOrder("o2", time.Hour)},
		Couriers:           []model.Courier{availableCourier("c1", 5)},
	})
	if err != nil {
		t.Fatalf("Reoptimize: %v", err)
	}
	assigned := false
	for _, a := range resp.Assignments {
		if a.OrderID == "o2" && a.CourierID == "c1" {
			assigned = true
		}
	}
	if !assigned {
		t.Fatalf("expected o2 on c1 via widened pool, got %+v", resp.Assignments)
	}
}

func TestReleaseCourierAndRetireOrder(t *testing.T) {
	c := newTestController(nil)
	if _, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o1", time.Hour)},
		Couriers: []model.Courier{availableCourier("c1", 5)},
	}); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}

	c.RetireOrder("o1", time.Now())
	if len(c.Assignments()) != 0 {
		t.Fatal("retired order still committed")
	}

	// Courier must be usable again by the next cycle.
	resp, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o2", time.Hour)},
		Couriers: []model.Courier{availableCourier("c1", 5)},
	})
	if err != nil || len(resp.Assignments) != 1 {
		t.Fatalf("courier not freed after retire: %+v err=%v", resp, err)
	}
}

func TestAssignDynamicPickupPointsMismatch(t *testing.T) {
	c := newTestController(nil)
	_, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:       []model.Order{pendingOrder("o1", time.Hour)},
		Couriers:     []model.Courier{availableCourier("c1", 5)},
		PickupPoints: []model.GeoPoint{{}, {}},
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestEmptyOrdersIsNoop(t *testing.T) {
	c := newTestController(nil)
	resp, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   nil,
		Couriers: []model.Courier{availableCourier("c1", 5)},
	})
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if len(resp.Assignments) != 0 || len(resp.Unassigned) != 0 {
		t.Fatalf("expected empty response, got %+v", resp)
	}
}

func TestReoptimizeRejectsConflictingSnapshot(t *testing.T) {
	c := newTestController(nil)
	if _, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o1", time.Hour)},
		Couriers: []model.Courier{availableCourier("c1", 5)},
	}); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}

	// The caller claims c1 holds a different order than the engine does.
	_, err := c.Reoptimize(context.Background(), model.ReoptimizeRequest{
		CurrentAssignments: []model.Assignment{{OrderID: "ghost", CourierID: "c1"}},
		NewOrders:          []model.Order{pendingOrder("o2", time.Hour)},
		Couriers:           []model.Courier{availableCourier("c2", 10)},
	})
	var ce *StateConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected StateConflictError, got %v", err)
	}
	if ce.CourierID != "c1" {
		t.Fatalf("conflict courier: %+v", ce)
	}
}

func TestHysteresisKeepDoesNotDropDisplacedOrder(t *testing.T) {
	c := newTestController(nil)
	if _, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o1", 5*time.Minute)},
		Couriers: []model.Courier{availableCourier("cSlow", 20)},
	}); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}

	// The fresh solve wants o1 on the faster cFast and o2 on cSlow, but a
	// wide hysteresis band keeps o1 where it is. o2 must then land on the
	// free cFast instead of being dropped.
	wide := 5.0
	resp, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   []model.Order{pendingOrder("o1", 5*time.Minute), pendingOrder("o2", 115*time.Minute)},
		Couriers: []model.Courier{availableCourier("cFast", 5), availableCourier("cSlow", 20)},
		Options:  &model.Options{ChurnHysteresis: &wide},
	})
	if err != nil {
		t.Fatalf("AssignDynamic: %v", err)
	}
	if len(resp.Unassigned) != 0 {
		t.Fatalf("displaced order must re-match, got unassigned %+v", resp.Unassigned)
	}
	got := map[string]string{}
	for _, a := range resp.Assignments {
		got[a.OrderID] = a.CourierID
	}
	if got["o1"] != "cSlow" {
		t.Fatalf("o1 should keep cSlow under hysteresis, got %v", got)
	}
	if got["o2"] != "cFast" {
		t.Fatalf("o2 should take the remaining courier cFast, got %v", got)
	}
}

func TestSolveBudgetExceededCommitsNothing(t *testing.T) {
	sink := &captureSink{}
	c := newTestController(sink)

	const n = 300
	orders := make([]model.Order, 0, n)
	couriers := make([]model.Courier, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, pendingOrder(fmt.Sprintf("o%03d", i), time.Hour))
		couriers = append(couriers, availableCourier(fmt.Sprintf("c%03d", i), float64(i%35)))
	}

	ms := 1
	_, err := c.AssignDynamic(context.Background(), model.AssignRequest{
		Orders:   orders,
		Couriers: couriers,
		Options:  &model.Options{SolveTimeoutMs: &ms},
	})
	var te *SolverTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("want SolverTimeoutError, got %v", err)
	}
	if te.Budget != time.Millisecond {
		t.Fatalf("budget = %s, want 1ms", te.Budget)
	}
	if got := c.Assignments(); len(got) != 0 {
		t.Fatalf("timed-out cycle committed %d assignments", len(got))
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle after discarded cycle", c.State())
	}
	if sink.count("cycle.failed") != 1 {
		t.Fatalf("want one cycle.failed event, got %d", sink.count("cycle.failed"))
	}
	if sink.count("assignment.committed") != 0 {
		t.Fatalf("no assignment events expected from a discarded cycle")
	}
}
