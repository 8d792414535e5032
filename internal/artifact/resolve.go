// Package artifact locates the files a parser needs inside a run directory.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/signalnine/matbench/internal/logging"
)

var (
	ErrUnresolved = errors.New("artifact not resolved")
	ErrAmbiguous  = errors.New("artifact resolved to several paths")
)

// Paths maps a symbolic artifact name to the run-directory-relative paths it
// resolved to. Every requested name is present; an unresolved name maps to
// nil, an ambiguous one to more than one path.
type Paths map[string][]string

// Get returns the single path of name. Absence and ambiguity are only
// errors for the caller that needs exactly one path.
func (p Paths) Get(name string) (string, error) {
	matches := p[name]
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s: %w", name, ErrUnresolved)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s: %w: %v", name, ErrAmbiguous, matches)
	}
}

// All returns every path name resolved to, sorted.
func (p Paths) All(name string) []string {
	return p[name]
}

func (p Paths) Resolved(name string) bool {
	return len(p[name]) > 0
}

type Resolver struct {
	Logger *slog.Logger
}

// Resolve is Resolver.Resolve with the default logger.
func Resolve(dirname string, patterns map[string]string) Paths {
	return (&Resolver{}).Resolve(dirname, patterns)
}

// Resolve maps each symbolic name to the paths its pattern designates under
// dirname. A pattern that exists as a literal path wins over its glob
// expansion.
func (r *Resolver) Resolve(dirname string, patterns map[string]string) Paths {
	logger := logging.OrDefault(r.Logger)
	fsys := os.DirFS(dirname)

	paths := make(Paths, len(patterns))
	for name, pattern := range patterns {
		paths[name] = nil

		if _, err := os.Stat(filepath.Join(dirname, pattern)); err == nil {
			paths[name] = []string{filepath.Clean(pattern)}
			continue
		}

		matches, err := fs.Glob(fsys, filepath.ToSlash(pattern))
		if err != nil {
			logger.Warn("invalid artifact pattern",
				"artifact", name, "pattern", filepath.Join(dirname, pattern), "error", err)
			continue
		}
		switch len(matches) {
		case 0:
			logger.Warn("cannot resolve artifact glob",
				"artifact", name, "pattern", filepath.Join(dirname, pattern))
		case 1:
			paths[name] = []string{filepath.FromSlash(matches[0])}
		default:
			resolved := make([]string, len(matches))
			for i, m := range matches {
				resolved[i] = filepath.FromSlash(m)
			}
			sort.Strings(resolved)
			logger.Info("found multiple resolutions for artifact glob",
				"artifact", name, "pattern", pattern, "dir", dirname, "matches", resolved)
			paths[name] = resolved
		}
	}
	return paths
}
