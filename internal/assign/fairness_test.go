package assign

import (
	"testing"
	"time"

	"dispatchd/internal/model"
)

func TestTrackerCountsAndIdle(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.RecordAssignment("c1", now)
	tr.RecordAssignment("c1", now.Add(10*time.Minute))
	tr.RecordCompletion("c1", now.Add(30*time.Minute))

	snap := tr.Snapshot([]model.Courier{{ID: "c1"}}, now.Add(50*time.Minute))
	st := snap["c1"]
	if st.Deliveries != 2 {
		t.Fatalf("deliveries = %d, want 2", st.Deliveries)
	}
	if st.IdleMinutes < 19.9 || st.IdleMinutes > 20.1 {
		t.Fatalf("idle = %v, want ~20", st.IdleMinutes)
	}

	// A new assignment stops the idle clock.
	tr.RecordAssignment("c1", now.Add(55*time.Minute))
	st = tr.Snapshot([]model.Courier{{ID: "c1"}}, now.Add(60*time.Minute))["c1"]
	if st.IdleMinutes != 0 {
		t.Fatalf("idle after assignment = %v, want 0", st.IdleMinutes)
	}
}

func TestTrackerReassignment(t *testing.T) {
	now := time.Now()
	tr := NewTracker()
	tr.RecordAssignment("c1", now)
	tr.RecordReassignment("c1", "c2", now.Add(time.Minute))

	couriers := []model.Courier{{ID: "c1"}, {ID: "c2"}}
	snap := tr.Snapshot(couriers, now.Add(2*time.Minute))
	if snap["c1"].Deliveries != 0 {
		t.Fatalf("c1 deliveries = %d, want 0 after handoff", snap["c1"].Deliveries)
	}
	if snap["c2"].Deliveries != 1 {
		t.Fatalf("c2 deliveries = %d, want 1", snap["c2"].Deliveries)
	}
}

func TestTrackerSnapshotFallsBackToCourierFields(t *testing.T) {
	tr := NewTracker()
	c := model.Courier{ID: "new", DeliveriesToday: 4, DailyTarget: 8, IdleMinutes: 12}
	st := tr.Snapshot([]model.Courier{c}, time.Now())["new"]
	if st.Deliveries != 4 || st.DailyTarget != 8 || st.IdleMinutes != 12 {
		t.Fatalf("snapshot fallback wrong: %+v", st)
	}
}

func TestTargetStatuses(t *testing.T) {
	now := time.Now()
	tr := NewTracker()
	tr.SetTargets([]model.DriverTarget{
		{DriverID: "c_done", DailyTarget: 2},
		{DriverID: "c_half", DailyTarget: 4},
		{DriverID: "c_none", DailyTarget: 0},
	})
	tr.RecordAssignment("c_done", now)
	tr.RecordAssignment("c_done", now)
	tr.RecordAssignment("c_half", now)
	tr.RecordAssignment("c_half", now)

	statuses := tr.TargetStatuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 targeted couriers, got %+v", statuses)
	}
	// sorted by driver id
	if statuses[0].DriverID != "c_done" || !statuses[0].Achieved || statuses[0].GapRatio != 0 {
		t.Fatalf("c_done status wrong: %+v", statuses[0])
	}
	if statuses[1].DriverID != "c_half" || statuses[1].Achieved || statuses[1].GapRatio != 0.5 {
		t.Fatalf("c_half status wrong: %+v", statuses[1])
	}
}

func TestResetDailyKeepsTargets(t *testing.T) {
	now := time.Now()
	tr := NewTracker()
	tr.SetTargets([]model.DriverTarget{{DriverID: "c1", DailyTarget: 5}})
	tr.RecordAssignment("c1", now)
	tr.ResetDaily(now.Add(time.Hour))

	st := tr.Snapshot([]model.Courier{{ID: "c1"}}, now.Add(time.Hour))["c1"]
	if st.Deliveries != 0 {
		t.Fatalf("deliveries survived reset: %d", st.Deliveries)
	}
	if st.DailyTarget != 5 {
		t.Fatalf("target lost in reset: %d", st.DailyTarget)
	}
	statuses := tr.TargetStatuses()
	if len(statuses) != 1 || statuses[0].Delivered != 0 || statuses[0].Achieved {
		t.Fatalf("post-reset status wrong: %+v", statuses)
	}
}
