package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"

	"github.com/openferry/ferry/internal/transfer"
)

const (
	// defaultSettleDelay is how long a file gets to finish being written
	// before the first read. It is a fixed grace period, not part of the
	// retry schedule.
	defaultSettleDelay = 500 * time.Millisecond

	activityCacheSize = 128
	activityCacheTTL  = time.Hour
)

// Orchestrator drives one task from evaluation through upload, retries and
// the ledger update. Every failure cause is retried the same way: a fresh
// session per attempt, backoff between attempts, at most MaxRetries+1
// attempts in total.
type Orchestrator struct {
	dialer      transfer.Dialer
	ledger      *Ledger
	policy      RetryPolicy
	remoteDir   string
	settleDelay time.Duration
	slots       *semaphore.Weighted
	locks       pathLocks
	history     *History
	activity    *expirable.LRU[string, *Activity]

	uploaded  atomic.Int64
	skipped   atomic.Int64
	exhausted atomic.Int64
	abandoned atomic.Int64
	inflight  atomic.Int64
}

func NewOrchestrator(dialer transfer.Dialer, ledger *Ledger, policy RetryPolicy, maxConcurrent int64, remoteDir string) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		dialer:      dialer,
		ledger:      ledger,
		policy:      policy,
		remoteDir:   remoteDir,
		settleDelay: defaultSettleDelay,
		slots:       semaphore.NewWeighted(maxConcurrent),
		activity:    expirable.NewLRU[string, *Activity](activityCacheSize, nil, activityCacheTTL),
	}
}

// SetSettleDelay overrides the pre-read grace period.
func (o *Orchestrator) SetSettleDelay(d time.Duration) {
	o.settleDelay = d
}

// SetHistory attaches the journal that records terminal outcomes.
func (o *Orchestrator) SetHistory(h *History) {
	o.history = h
}

// Process runs the task to a terminal outcome. Tasks for the same relative
// path never run concurrently; distinct paths do.
func (o *Orchestrator) Process(ctx context.Context, task *Task) Result {
	o.inflight.Add(1)
	defer o.inflight.Add(-1)

	unlock := o.locks.lock(task.RelPath)
	defer unlock()

	start := time.Now()
	res := o.run(ctx, task)
	res.Duration = time.Since(start)

	o.finish(task, &res)
	return res
}

func (o *Orchestrator) run(ctx context.Context, task *Task) Result {
	// Evaluate against the live filesystem, not the event snapshot.
	if reason, skip := o.decide(task); skip {
		return Result{Outcome: OutcomeSkipped, Reason: reason}
	}

	// Let the writer finish before the file is read.
	if !sleepCtx(ctx, o.settleDelay) {
		return Result{Outcome: OutcomeAbandoned, Err: ctx.Err()}
	}

	remotePath := path.Join(o.remoteDir, task.RelPath)

	var lastErr error
	for attempt := 0; attempt <= o.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := o.policy.DelayForAttempt(attempt - 1)
			slog.Warn("mirror", "op", "RETRY",
				"path", task.RelPath,
				"attempt", attempt+1,
				"max", o.policy.MaxRetries+1,
				"delay", delay,
				"error", lastErr,
				"task", task.ID)
			if !sleepCtx(ctx, delay) {
				return Result{Outcome: OutcomeAbandoned, Attempts: attempt, Err: lastErr}
			}
		}

		bytes, err := o.attempt(ctx, task, remotePath)
		if err == nil {
			if lerr := o.ledger.Record(task.RelPath); lerr != nil {
				slog.Warn("ledger persist", "path", task.RelPath, "error", lerr)
			}
			return Result{Outcome: OutcomeUploaded, Attempts: attempt + 1, Bytes: bytes}
		}
		lastErr = err

		if ctx.Err() != nil {
			// Shutdown, not a verdict on the upload.
			return Result{Outcome: OutcomeAbandoned, Attempts: attempt + 1, Err: lastErr}
		}
	}

	return Result{Outcome: OutcomeExhausted, Attempts: o.policy.MaxRetries + 1, Err: lastErr}
}

// decide re-checks the task against the current state of the world. The
// event that queued it may be stale by now.
func (o *Orchestrator) decide(task *Task) (string, bool) {
	info, err := os.Stat(task.Path)
	if err != nil {
		return "vanished", true
	}
	if !info.Mode().IsRegular() {
		return "not a regular file", true
	}
	// A modified file is re-uploaded no matter what the ledger says; only
	// first sightings consult it.
	if task.Kind == EventAdded && o.ledger.Contains(task.RelPath) {
		return "already uploaded", true
	}
	return "", false
}

// attempt performs one complete upload try on its own fresh session.
func (o *Orchestrator) attempt(ctx context.Context, task *Task, remotePath string) (int64, error) {
	if err := o.slots.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("acquire transfer slot: %w", err)
	}
	defer o.slots.Release(1)

	// An attempt runs to completion once started; shutdown stops new
	// attempts, not transfers already on the wire.
	sctx := context.WithoutCancel(ctx)

	sess, err := o.dialer.Dial(sctx)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	slog.Debug("mirror", "op", "CONNECTED", "path", task.RelPath, "task", task.ID)

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sess.EnsureDir(dir); err != nil {
			// Commonly the directory already exists; the upload itself is
			// the real test.
			slog.Warn("mirror ensure dir", "dir", dir, "error", err, "task", task.ID)
		}
	}

	info, err := os.Stat(task.Path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", task.Path, err)
	}

	if err := sess.UploadFile(task.Path, remotePath); err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}

	return info.Size(), nil
}

// finish updates counters, logs the terminal state and records it.
func (o *Orchestrator) finish(task *Task, res *Result) {
	switch res.Outcome {
	case OutcomeUploaded:
		o.uploaded.Add(1)
		slog.Info("mirror", "op", "UPLOADED",
			"path", task.RelPath,
			"size", humanize.IBytes(uint64(res.Bytes)),
			"attempts", res.Attempts,
			"took", res.Duration.Round(time.Millisecond),
			"task", task.ID)
	case OutcomeSkipped:
		o.skipped.Add(1)
		slog.Info("mirror", "op", "SKIPPED", "reason", res.Reason, "path", task.RelPath, "task", task.ID)
	case OutcomeExhausted:
		o.exhausted.Add(1)
		slog.Error("mirror", "op", "FAILED",
			"path", task.RelPath,
			"attempts", res.Attempts,
			"error", res.Err,
			"task", task.ID)
	case OutcomeAbandoned:
		o.abandoned.Add(1)
		slog.Warn("mirror", "op", "ABANDONED", "path", task.RelPath, "attempts", res.Attempts, "task", task.ID)
	}

	a := &Activity{
		TaskID:     task.ID,
		RelPath:    task.RelPath,
		Kind:       task.Kind,
		Outcome:    res.Outcome,
		Reason:     res.Reason,
		Attempts:   res.Attempts,
		Bytes:      res.Bytes,
		DurationMs: res.Duration.Milliseconds(),
		FinishedAt: time.Now().UTC(),
	}
	if res.Err != nil {
		a.Error = res.Err.Error()
	}

	o.activity.Add(task.ID, a)
	if o.history != nil {
		if err := o.history.Append(a); err != nil {
			slog.Warn("history append", "path", task.RelPath, "error", err)
		}
	}
}

// Stats returns the outcome totals since startup.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Uploaded:  o.uploaded.Load(),
		Skipped:   o.skipped.Load(),
		Exhausted: o.exhausted.Load(),
		Abandoned: o.abandoned.Load(),
		InFlight:  o.inflight.Load(),
	}
}

// Activity returns recently finished tasks, newest first.
func (o *Orchestrator) Activity() []*Activity {
	values := o.activity.Values()
	out := make([]*Activity, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		out = append(out, values[i])
	}
	return out
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
