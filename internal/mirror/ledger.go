package mirror

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/openferry/ferry/internal/utils"
)

// Ledger is the durable set of relative paths that have completed an upload.
// It is what keeps restarts from re-mirroring the whole tree. The in-memory
// set is authoritative; the file on disk trails it by at most one failed
// persist. Entries are never evicted, so the file grows with the number of
// distinct paths ever uploaded.
type Ledger struct {
	path  string
	paths mapset.Set[string]

	// persistMu serializes the snapshot+write pair; set mutation itself is
	// already thread safe.
	persistMu sync.Mutex
}

// LoadLedger reads the persisted ledger. It never fails: a missing file
// starts empty and a corrupt one is logged and discarded, trading duplicate
// uploads for availability.
func LoadLedger(path string) *Ledger {
	l := &Ledger{
		path:  path,
		paths: mapset.NewSet[string](),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("ledger unreadable, starting empty", "path", path, "error", err)
		}
		return l
	}

	var entries []string
	if err := jsonUnmarshal(data, &entries); err != nil {
		slog.Warn("ledger corrupt, starting empty", "path", path, "error", err)
		return l
	}

	l.paths.Append(entries...)
	return l
}

// Contains reports whether the relative path has a recorded upload.
func (l *Ledger) Contains(relPath string) bool {
	return l.paths.Contains(relPath)
}

// Record adds the relative path and persists the full set. A persist error
// leaves the in-memory entry in place; callers log it and carry on.
func (l *Ledger) Record(relPath string) error {
	l.paths.Add(relPath)
	return l.Flush()
}

// Flush writes the complete set to disk, replacing the previous file.
func (l *Ledger) Flush() error {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	data, err := jsonMarshalIndent(l.sorted(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	if err := utils.EnsureParent(l.path); err != nil {
		return fmt.Errorf("ensure ledger dir: %w", err)
	}

	// Write-then-rename so a crash mid-write never truncates the ledger.
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}

	return nil
}

// Size returns the number of recorded paths.
func (l *Ledger) Size() int {
	return l.paths.Cardinality()
}

// Paths returns a sorted snapshot of the recorded paths.
func (l *Ledger) Paths() []string {
	return l.sorted()
}

func (l *Ledger) sorted() []string {
	entries := l.paths.ToSlice()
	sort.Strings(entries)
	return entries
}
