package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// DiscoverStats tracks page discovery statistics.
type DiscoverStats struct {
	FilesDiscovered int // files matched by the include patterns
	FilesSelected   int // files kept after filtering
	FilesSkipped    int // files dropped by .gitignore or the hidden-file rule
}

// loadGitIgnore compiles <dir>/.gitignore. A missing file means nothing is ignored.
func loadGitIgnore(dir string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

// DiscoverPages expands the include patterns relative to dir and returns the
// matching files as paths relative to dir, deduplicated and in match order.
func DiscoverPages(dir string, includes []string) ([]string, DiscoverStats, error) {
	var stats DiscoverStats
	var files []string
	seen := make(map[string]bool)
	gi := loadGitIgnore(dir)
	fsys := os.DirFS(dir)

	for _, pattern := range includes {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, stats, fmt.Errorf("glob pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			seen[match] = true
			stats.FilesDiscovered++

			if isHidden(match) || (gi != nil && gi.MatchesPath(match)) {
				stats.FilesSkipped++
				continue
			}
			files = append(files, filepath.FromSlash(match))
			stats.FilesSelected++
		}
	}
	return files, stats, nil
}

func isHidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
