package assign

import (
	"sync"
	"time"
)

// CycleRecord summarizes one solver cycle for the admin surface.
type CycleRecord struct {
	CycleID    string        `json:"cycleId"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"durationNs"`
	Orders     int           `json:"orders"`
	Couriers   int           `json:"couriers"`
	Assigned   int           `json:"assigned"`
	Unassigned int           `json:"unassigned"`
	Reassigned int           `json:"reassigned"`
	TotalCost  float64       `json:"totalCost"`
	Outcome    string        `json:"outcome"` // committed, dry_run, failed
	DryRun     bool          `json:"dryRun,omitempty"`
}

// History is a bounded in-memory ring of recent cycle records.
type History struct {
	mu   sync.Mutex
	recs []CycleRecord
	max  int
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 100
	}
	return &History{max: max}
}

func (h *History) Record(r CycleRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, r)
	if len(h.recs) > h.max {
		h.recs = h.recs[len(h.recs)-h.max:]
	}
}

// Recent returns up to n records, newest first.
func (h *History) Recent(n int) []CycleRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.recs) {
		n = len(h.recs)
	}
	out := make([]CycleRecord, 0, n)
	for i := len(h.recs) - 1; i >= len(h.recs)-n; i-- {
		out = append(out, h.recs[i])
	}
	return out
}
