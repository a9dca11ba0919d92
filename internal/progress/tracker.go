// Package progress keeps the live counters of a harvesting run. Workers update
// them as tasks move through their lifecycle; the status API reads snapshots.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	RunID      string     `json:"runId"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Running    bool       `json:"running"`
	Admitted   int64      `json:"admitted"`
	Skipped    int64      `json:"skipped"`
	InFlight   int64      `json:"inFlight"`
	Attempts   int64      `json:"attempts"`
	Succeeded  int64      `json:"succeeded"`
	Blocked    int64      `json:"blocked"`
	Failed     int64      `json:"failed"`
	Records    int64      `json:"records"`
}

// Done returns the number of tasks in a terminal state.
func (s Snapshot) Done() int64 {
	return s.Succeeded + s.Blocked + s.Failed
}

// Tracker counts task outcomes for one run. The zero value is ready to use.
type Tracker struct {
	mu         sync.RWMutex
	runID      string
	startedAt  time.Time
	finishedAt *time.Time

	admitted  atomic.Int64
	skipped   atomic.Int64
	inFlight  atomic.Int64
	attempts  atomic.Int64
	succeeded atomic.Int64
	blocked   atomic.Int64
	failed    atomic.Int64
	records   atomic.Int64
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Start stamps the run identity and zeroes the counters.
func (t *Tracker) Start(runID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runID = runID
	t.startedAt = at
	t.finishedAt = nil
	for _, c := range []*atomic.Int64{
		&t.admitted, &t.skipped, &t.inFlight, &t.attempts,
		&t.succeeded, &t.blocked, &t.failed, &t.records,
	} {
		c.Store(0)
	}
}

// Finish marks the run complete.
func (t *Tracker) Finish(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishedAt = &at
}

// Admit counts an address accepted into a lane queue.
func (t *Tracker) Admit() { t.admitted.Add(1) }

// Skip counts an address that was never attempted.
func (t *Tracker) Skip() { t.skipped.Add(1) }

// Begin marks a task as picked up by a worker.
func (t *Tracker) Begin() { t.inFlight.Add(1) }

// Attempt counts one attempt, and one Record when the attempt emitted it.
func (t *Tracker) Attempt(emitted bool) {
	t.attempts.Add(1)
	if emitted {
		t.records.Add(1)
	}
}

// End records the terminal state of a task picked up with Begin.
func (t *Tracker) End(state harvest.TaskState) {
	t.inFlight.Add(-1)
	switch state {
	case harvest.TaskSucceeded:
		t.succeeded.Add(1)
	case harvest.TaskBlocked:
		t.blocked.Add(1)
	case harvest.TaskFailed:
		t.failed.Add(1)
	}
}

// Snapshot copies the counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := Snapshot{
		RunID:     t.runID,
		StartedAt: t.startedAt,
		Running:   !t.startedAt.IsZero() && t.finishedAt == nil,
	}
	if t.finishedAt != nil {
		at := *t.finishedAt
		s.FinishedAt = &at
	}
	t.mu.RUnlock()

	s.Admitted = t.admitted.Load()
	s.Skipped = t.skipped.Load()
	s.InFlight = t.inFlight.Load()
	s.Attempts = t.attempts.Load()
	s.Succeeded = t.succeeded.Load()
	s.Blocked = t.blocked.Load()
	s.Failed = t.failed.Load()
	s.Records = t.records.Load()
	return s
}
