package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openferry/ferry/internal/workspace"
)

// Dispatcher drains watcher events and fans each one out as a task. The loop
// itself never blocks on uploads: waiting of any kind happens inside the
// per-task goroutines.
type Dispatcher struct {
	ws   *workspace.Workspace
	orch *Orchestrator
	wg   sync.WaitGroup
}

func NewDispatcher(ws *workspace.Workspace, orch *Orchestrator) *Dispatcher {
	return &Dispatcher{ws: ws, orch: orch}
}

// Run consumes events until the channel closes. Events arriving after the
// context ends are dropped rather than spawned as doomed tasks.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) {
	for ev := range events {
		if ctx.Err() != nil {
			slog.Debug("dispatch drop", "reason", "shutting down", "path", ev.Path)
			continue
		}

		relPath, err := d.ws.RelPath(ev.Path)
		if err != nil {
			slog.Warn("dispatch", "path", ev.Path, "error", err)
			continue
		}

		task := &Task{
			ID:      taskID(),
			Path:    ev.Path,
			RelPath: relPath,
			Kind:    ev.Kind,
			Queued:  time.Now(),
		}

		slog.Debug("mirror", "op", "DISPATCH", "event", ev.Kind, "path", relPath, "task", task.ID)

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.orch.Process(ctx, task)
		}()
	}
}

// WaitTasks blocks until every spawned task has finished or the context
// gives up on them.
func (d *Dispatcher) WaitTasks(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func taskID() string {
	return uuid.NewString()[:8]
}
