package mirror

import (
	"sync"
	"time"
)

// Task is one unit of mirroring work: a single observed change to a single
// file.
type Task struct {
	ID      string
	Path    string // absolute local path
	RelPath string // root-relative, slash-normalized
	Kind    EventKind
	Queued  time.Time
}

// Outcome is the terminal state of a task.
type Outcome string

const (
	OutcomeUploaded  Outcome = "uploaded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeAbandoned Outcome = "abandoned"
)

// Result reports how a task ended. Failures travel in the result, never as a
// returned error: an exhausted upload is a recorded outcome, not a reason to
// unwind the caller.
type Result struct {
	Outcome  Outcome
	Reason   string // set for skips
	Attempts int
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Activity is the record of a finished task kept for the status API and the
// history journal.
type Activity struct {
	TaskID     string    `json:"task_id" db:"task_id"`
	RelPath    string    `json:"path" db:"path"`
	Kind       EventKind `json:"event" db:"event"`
	Outcome    Outcome   `json:"outcome" db:"outcome"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
	Attempts   int       `json:"attempts" db:"attempts"`
	Bytes      int64     `json:"bytes" db:"bytes"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
	Error      string    `json:"error,omitempty" db:"error"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
}

// Stats are the running outcome totals since startup.
type Stats struct {
	Uploaded  int64 `json:"uploaded"`
	Skipped   int64 `json:"skipped"`
	Exhausted int64 `json:"exhausted"`
	Abandoned int64 `json:"abandoned"`
	InFlight  int64 `json:"in_flight"`
}

// pathLocks hands out one mutex per relative path, created on first use.
// Concurrent tasks for distinct paths proceed in parallel; tasks for the
// same path serialize.
type pathLocks struct {
	locks sync.Map // relPath -> *sync.Mutex
}

// lock blocks until the path's mutex is held and returns the unlock func.
func (pl *pathLocks) lock(relPath string) func() {
	v, _ := pl.locks.LoadOrStore(relPath, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
