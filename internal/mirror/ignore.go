package mirror

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/openferry/ferry/internal/utils"
)

const ignoreFileName = ".ferryignore"

var defaultIgnoreLines = []string{
	// in-progress writes
	"*.tmp",
	"*.part",
	"*.partial",
	"*.swp",
	"*.swx",
	"*.crdownload",
	"~*",
	"*~",
	// OS droppings
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	"Icon",
}

// IgnoreList decides which paths are never mirrored. Hidden entries are
// always skipped; junk patterns and optional .ferryignore lines are matched
// gitignore-style against the root-relative path; include globs, when set,
// whitelist what remains.
type IgnoreList struct {
	baseDir string
	include []string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string, include []string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir, include: include}
}

func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, ignoreFileName)
	ignoreLines := defaultIgnoreLines

	// read the .ferryignore file if it exists
	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			// Check for errors during the scan
			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore reports whether the root-relative path is excluded from
// mirroring.
func (s *IgnoreList) ShouldIgnore(relPath string) bool {
	if hasHiddenSegment(relPath) {
		return true
	}
	if s.ignore != nil && s.ignore.MatchesPath(relPath) {
		return true
	}
	return !s.included(relPath)
}

// included applies the include globs. No globs means everything is included.
// Directories always pass so the watcher descends into them.
func (s *IgnoreList) included(relPath string) bool {
	if len(s.include) == 0 {
		return true
	}
	if utils.DirExists(filepath.Join(s.baseDir, filepath.FromSlash(relPath))) {
		return true
	}
	for _, pattern := range s.include {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

func hasHiddenSegment(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
