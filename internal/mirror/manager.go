package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openferry/ferry/internal/transfer"
	"github.com/openferry/ferry/internal/workspace"
)

// Config carries the mirroring knobs the daemon resolved.
type Config struct {
	Policy        RetryPolicy
	MaxConcurrent int64
	RemoteDir     string
	Include       []string
}

// Manager owns the mirroring pipeline: watcher, ignore rules, dispatcher,
// orchestrator, ledger and history. Start wires them up; Stop tears them
// down in an order that loses no recorded state.
type Manager struct {
	workspace  *workspace.Workspace
	watcher    *Watcher
	ignore     *IgnoreList
	ledger     *Ledger
	history    *History
	orch       *Orchestrator
	dispatcher *Dispatcher
	started    time.Time
	runDone    chan struct{}
}

func NewManager(ws *workspace.Workspace, dialer transfer.Dialer, cfg Config) *Manager {
	watcher := NewWatcher(ws.Root)
	ignore := NewIgnoreList(ws.Root, cfg.Include)
	ledger := LoadLedger(ws.LedgerPath)
	history := NewHistory(ws.HistoryPath)
	orch := NewOrchestrator(dialer, ledger, cfg.Policy, cfg.MaxConcurrent, cfg.RemoteDir)
	dispatcher := NewDispatcher(ws, orch)

	return &Manager{
		workspace:  ws,
		watcher:    watcher,
		ignore:     ignore,
		ledger:     ledger,
		history:    history,
		orch:       orch,
		dispatcher: dispatcher,
		runDone:    make(chan struct{}),
	}
}

func (m *Manager) Start(ctx context.Context) error {
	slog.Info("mirror manager start", "ledger", m.ledger.Size())
	m.started = time.Now()

	m.ignore.Load()
	m.watcher.FilterPaths(func(absPath string) bool {
		relPath, err := m.workspace.RelPath(absPath)
		if err != nil {
			return true
		}
		return m.ignore.ShouldIgnore(relPath)
	})

	if err := m.history.Open(); err != nil {
		// the daemon can mirror without its history journal
		slog.Warn("history unavailable", "error", err)
	} else {
		m.orch.SetHistory(m.history)
	}

	// The events channel exists only after Start, so the dispatcher comes up
	// second. The initial scan blocks on a full buffer until it drains.
	if err := m.watcher.Start(ctx); err != nil {
		close(m.runDone)
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	go func() {
		defer close(m.runDone)
		m.dispatcher.Run(ctx, m.watcher.Events())
	}()

	go func() {
		select {
		case <-m.watcher.Ready():
			slog.Info("mirror watching", "dir", m.workspace.Root)
		case <-ctx.Done():
		}
	}()

	return nil
}

// Stop drains the pipeline: no new events, then wait for in-flight tasks,
// then flush state. The context bounds how long the drain may take.
func (m *Manager) Stop(ctx context.Context) error {
	slog.Info("mirror manager stop")

	m.watcher.Stop()
	<-m.runDone

	if err := m.dispatcher.WaitTasks(ctx); err != nil {
		slog.Warn("tasks still running at shutdown", "error", err)
	}

	if err := m.ledger.Flush(); err != nil {
		slog.Warn("final ledger flush", "error", err)
	}

	if m.orch.history != nil {
		if err := m.history.Close(); err != nil {
			slog.Warn("history close", "error", err)
		}
	}

	slog.Info("mirror manager stopped")
	return nil
}

// Snapshot describes the manager's current state for the status API.
type Snapshot struct {
	WatchDir   string    `json:"watch_dir"`
	StartedAt  time.Time `json:"started_at"`
	LedgerSize int       `json:"ledger_size"`
	Stats      Stats     `json:"stats"`
}

func (m *Manager) Status() Snapshot {
	return Snapshot{
		WatchDir:   m.workspace.Root,
		StartedAt:  m.started,
		LedgerSize: m.ledger.Size(),
		Stats:      m.orch.Stats(),
	}
}

// RecentActivity lists recently finished tasks, newest first.
func (m *Manager) RecentActivity() []*Activity {
	return m.orch.Activity()
}

// HistoryEntries reads back persisted outcomes, newest first.
func (m *Manager) HistoryEntries(limit int) ([]*Activity, error) {
	if m.orch.history == nil {
		return []*Activity{}, nil
	}
	return m.history.Recent(limit)
}

// LedgerPaths lists every recorded upload.
func (m *Manager) LedgerPaths() []string {
	return m.ledger.Paths()
}
