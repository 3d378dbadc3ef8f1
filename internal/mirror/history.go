package mirror

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openferry/ferry/internal/db"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS upload_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id TEXT NOT NULL,
    path TEXT NOT NULL,
    event TEXT NOT NULL,
    outcome TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL,
    bytes INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    finished_at TEXT NOT NULL -- Store as RFC3339 string
);

CREATE INDEX IF NOT EXISTS idx_history_path ON upload_history(path);
CREATE INDEX IF NOT EXISTS idx_history_finished_at ON upload_history(finished_at);
`

// dbActivity is used for scanning where time is stored as TEXT.
type dbActivity struct {
	TaskID     string `db:"task_id"`
	Path       string `db:"path"`
	Event      string `db:"event"`
	Outcome    string `db:"outcome"`
	Reason     string `db:"reason"`
	Attempts   int    `db:"attempts"`
	Bytes      int64  `db:"bytes"`
	DurationMs int64  `db:"duration_ms"`
	Error      string `db:"error"`
	FinishedAt string `db:"finished_at"`
}

// History is the append-only journal of terminal task outcomes, backed by
// SQLite. It is observability, not control flow: upload decisions never read
// it, and append failures never fail a task.
type History struct {
	db     *sqlx.DB
	dbPath string
}

func NewHistory(dbPath string) *History {
	return &History{dbPath: dbPath}
}

// Open the history journal and the underlying database
func (h *History) Open() error {
	if h.db != nil {
		return fmt.Errorf("history already open")
	}

	database, err := db.NewSqliteDB(db.WithPath(h.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	// Create table if it doesn't exist
	if _, err := database.Exec(historySchema); err != nil {
		database.Close()
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}

	h.db = database
	return nil
}

// Close closes the underlying database connection.
func (h *History) Close() error {
	if h.db == nil {
		return fmt.Errorf("history not open")
	}
	if err := h.db.Close(); err != nil {
		slog.Error("failed to close history database", "error", err)
		return err
	}
	slog.Debug("history closed")
	return nil
}

// Append records one finished task using named parameters.
func (h *History) Append(a *Activity) error {
	if a == nil {
		return fmt.Errorf("cannot append nil activity")
	}

	data := dbActivity{
		TaskID:     a.TaskID,
		Path:       a.RelPath,
		Event:      string(a.Kind),
		Outcome:    string(a.Outcome),
		Reason:     a.Reason,
		Attempts:   a.Attempts,
		Bytes:      a.Bytes,
		DurationMs: a.DurationMs,
		Error:      a.Error,
		FinishedAt: a.FinishedAt.Format(time.RFC3339),
	}

	query := `INSERT INTO upload_history (task_id, path, event, outcome, reason, attempts, bytes, duration_ms, error, finished_at)
	          VALUES (:task_id, :path, :event, :outcome, :reason, :attempts, :bytes, :duration_ms, :error, :finished_at)`
	if _, err := h.db.NamedExec(query, data); err != nil {
		return fmt.Errorf("failed to append history for path %s: %w", a.RelPath, err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (h *History) Recent(limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []dbActivity
	err := h.db.Select(&rows, "SELECT task_id, path, event, outcome, reason, attempts, bytes, duration_ms, error, finished_at FROM upload_history ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	out := make([]*Activity, 0, len(rows))
	for _, row := range rows {
		finishedAt, err := time.Parse(time.RFC3339, row.FinishedAt)
		if err != nil {
			slog.Error("failed to parse finished_at timestamp", "path", row.Path, "value", row.FinishedAt, "error", err)
			continue // Skip this entry if timestamp is corrupt
		}
		out = append(out, &Activity{
			TaskID:     row.TaskID,
			RelPath:    row.Path,
			Kind:       EventKind(row.Event),
			Outcome:    Outcome(row.Outcome),
			Reason:     row.Reason,
			Attempts:   row.Attempts,
			Bytes:      row.Bytes,
			DurationMs: row.DurationMs,
			Error:      row.Error,
			FinishedAt: finishedAt,
		})
	}
	return out, nil
}

// Count returns the number of entries in the history.
func (h *History) Count() (int, error) {
	var count int
	if err := h.db.Get(&count, "SELECT COUNT(*) FROM upload_history"); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}
