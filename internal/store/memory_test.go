package store

import (
	"context"
	"testing"
	"time"

	"dispatchd/internal/model"
)

func TestMemoryDrivers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.UpsertDrivers(ctx, []model.Courier{
		{ID: "d2", State: model.CourierAvailable},
		{ID: "d1", State: model.CourierBusy, Capabilities: []model.ServiceType{model.ServiceStandard}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	all, err := m.ListDrivers(ctx, "", "")
	if err != nil || len(all) != 2 {
		t.Fatalf("list all: %v %v", all, err)
	}
	if all[0].ID != "d1" {
		t.Fatalf("expected id-sorted output, got %v", all)
	}

	avail, _ := m.ListDrivers(ctx, model.CourierAvailable, "")
	if len(avail) != 1 || avail[0].ID != "d2" {
		t.Fatalf("state filter broken: %v", avail)
	}

	express, _ := m.ListDrivers(ctx, "", model.ServiceExpress)
	if len(express) != 1 || express[0].ID != "d2" {
		t.Fatalf("capability filter broken: %v", express)
	}

	if _, err := m.GetDriver(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	loc := &model.GeoPoint{Lat: 1, Lng: 2}
	d, err := m.UpdateDriverStatus(ctx, "d1", model.CourierAvailable, loc)
	if err != nil || d.State != model.CourierAvailable || d.Location.Lat != 1 {
		t.Fatalf("update status: %+v %v", d, err)
	}
}

func TestMemoryTargetsAndCounters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _ = m.UpsertDrivers(ctx, []model.Courier{{ID: "d1", State: model.CourierAvailable}})
	if err := m.SetDriverTargets(ctx, []model.DriverTarget{{DriverID: "d1", DailyTarget: 7}}); err != nil {
		t.Fatalf("set targets: %v", err)
	}
	if err := m.IncrementDeliveries(ctx, "d1"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	d, _ := m.GetDriver(ctx, "d1")
	if d.DailyTarget != 7 || d.DeliveriesToday != 1 {
		t.Fatalf("counters wrong: %+v", d)
	}
	if err := m.IncrementDeliveries(ctx, "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.ResetDailyCounters(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	d, _ = m.GetDriver(ctx, "d1")
	if d.DeliveriesToday != 0 || d.DailyTarget != 7 {
		t.Fatalf("reset must zero counts and keep targets: %+v", d)
	}
}

func TestMemoryOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	_, err := m.UpsertOrders(ctx, []model.Order{
		{ID: "late", SLADeadline: now.Add(2 * time.Hour), Status: model.OrderPending},
		{ID: "soon", SLADeadline: now.Add(10 * time.Minute), Status: model.OrderPending, ServiceType: model.ServiceExpress},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	pending, _ := m.ListPendingOrders(ctx, "", 0)
	if len(pending) != 2 || pending[0].ID != "soon" {
		t.Fatalf("pending orders must sort by deadline: %v", pending)
	}

	express, _ := m.ListPendingOrders(ctx, model.ServiceExpress, 0)
	if len(express) != 1 || express[0].ID != "soon" {
		t.Fatalf("service filter broken: %v", express)
	}

	o, err := m.UpdateOrderStatus(ctx, "soon", model.OrderAssigned, "d1")
	if err != nil || o.Status != model.OrderAssigned || o.CourierID != "d1" {
		t.Fatalf("update status: %+v %v", o, err)
	}
	pending, _ = m.ListPendingOrders(ctx, "", 0)
	if len(pending) != 1 {
		t.Fatalf("assigned order still pending: %v", pending)
	}
	if _, err := m.UpdateOrderStatus(ctx, "ghost", model.OrderCancelled, ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryAssignments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	_ = m.SaveAssignments(ctx, []model.Assignment{
		{OrderID: "o1", CourierID: "d1", CycleID: "cyc_a", CommittedAt: now},
		{OrderID: "o2", CourierID: "d2", CycleID: "cyc_b", CommittedAt: now},
	})
	byCycle, _ := m.ListAssignments(ctx, "cyc_a", 0)
	if len(byCycle) != 1 || byCycle[0].OrderID != "o1" {
		t.Fatalf("cycle filter broken: %v", byCycle)
	}
	all, _ := m.ListAssignments(ctx, "", 0)
	if len(all) != 2 {
		t.Fatalf("expected both assignments, got %v", all)
	}
}

func TestMemorySubscriptionsAndWebhooks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
		URL: "https://example.test/hook", Events: []string{"assignment.committed"}, Secret: "s",
	})
	if err != nil || sub.ID == "" {
		t.Fatalf("create sub: %+v %v", sub, err)
	}
	wild, _ := m.CreateSubscription(ctx, model.SubscriptionRequest{URL: "https://example.test/all", Events: []string{"*"}})

	match, _ := m.GetSubscriptionsForEvent(ctx, "assignment.committed")
	if len(match) != 2 {
		t.Fatalf("expected exact + wildcard match, got %v", match)
	}
	match, _ = m.GetSubscriptionsForEvent(ctx, "cycle.completed")
	if len(match) != 1 || match[0].ID != wild.ID {
		t.Fatalf("expected only wildcard match, got %v", match)
	}

	id, err := m.EnqueueWebhook(ctx, sub.ID, "assignment.committed", sub.URL, "s", []byte(`{}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue: %v", err)
	}
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("expected one due delivery, got %v", due)
	}

	// A scheduled retry in the future is not due.
	next := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &next, "boom", 500, 12); err != nil {
		t.Fatalf("mark: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("future retry should not be due: %v", due)
	}

	if err := m.FailWebhookDelivery(ctx, id, "gave up", 500, 9); err != nil {
		t.Fatalf("fail: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatalf("failed delivery should not be due: %v", due)
	}

	if err := m.DeleteSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("delete sub: %v", err)
	}
	if err := m.DeleteSubscription(ctx, sub.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryEngineConfig(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cfg, err := m.GetEngineConfig(ctx)
	if err != nil || cfg != nil {
		t.Fatalf("empty config expected, got %v %v", cfg, err)
	}
	if err := m.SaveEngineConfig(ctx, map[string]any{"churnHysteresis": 0.3}); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg, _ = m.GetEngineConfig(ctx)
	if cfg["churnHysteresis"] != 0.3 {
		t.Fatalf("roundtrip failed: %v", cfg)
	}
}
