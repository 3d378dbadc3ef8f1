package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/openferry/ferry/internal/utils"
)

const (
	stateDirName = ".ferry"
	lockFileName = "ferry.lock"
	ledgerFile   = "ledger.json"
	historyFile  = "history.db"
	logFileName  = "ferry.log"
)

// DefaultLogFilePath is where the daemon writes its log, relative to the
// working directory.
var DefaultLogFilePath = filepath.Join(stateDirName, logFileName)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace binds the watched directory to the daemon's state directory.
// The state directory lives under the process working directory, not under
// the watched tree, so mirrored files never include ferry's own state.
type Workspace struct {
	Root        string // absolute path of the watched directory
	StateDir    string // absolute path of the .ferry state directory
	LedgerPath  string
	HistoryPath string

	flock *flock.Flock
}

func NewWorkspace(watchDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(watchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", watchDir, err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	stateDir := filepath.Join(cwd, stateDirName)

	return &Workspace{
		Root:        root,
		StateDir:    stateDir,
		LedgerPath:  filepath.Join(stateDir, ledgerFile),
		HistoryPath: filepath.Join(stateDir, historyFile),
		flock:       flock.New(filepath.Join(stateDir, lockFileName)),
	}, nil
}

// Setup validates the watch root and takes the single-instance lock.
// The watch root must already exist; ferry never creates it.
func (w *Workspace) Setup() error {
	if !utils.DirExists(w.Root) {
		return fmt.Errorf("watch directory does not exist: %s", w.Root)
	}

	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root, "state", w.StateDir)
	return nil
}

func (w *Workspace) Lock() error {
	// create .ferry/ferry.lock so that other ferry instances cannot claim the same state dir
	if err := utils.EnsureDir(w.StateDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.StateDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// AbsPath returns the absolute path of a root-relative path.
func (w *Workspace) AbsPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}

// RelPath returns the root-relative, slash-normalized form of an absolute path.
func (w *Workspace) RelPath(absPath string) (string, error) {
	relPath, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside workspace: %s", absPath)
	}
	return NormPath(relPath), nil
}

// NormPath normalizes a path by cleaning it, replacing backslashes with slashes, and trimming leading slashes
func NormPath(path string) string {
	path = filepath.Clean(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimLeft(path, "/")
	return path
}
