package artifact

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/signalnine/matbench/internal/logging"
)

// CacheFilename is the results cache written into every parsed run directory.
const CacheFilename = "cache.pickle"

// IsMandatory reports whether a run directory cannot be interpreted without
// the file.
func IsMandatory(filename string) bool {
	name := filepath.Base(filename)
	switch name {
	case "settings", "exit_code", "config.yaml":
		return true
	}
	return strings.HasPrefix(name, "settings.")
}

func IsCacheFile(filename string) bool {
	return filepath.Base(filename) == CacheFilename
}

// Registry holds the run-directory-relative patterns a parser expects to
// read. Patterns containing '*' are matched with path.Match.
type Registry struct {
	Important []string
	Logger    *slog.Logger
}

func (r *Registry) IsImportant(filename string) bool {
	name := filepath.ToSlash(filename)
	for _, important := range r.Important {
		if name == important {
			return true
		}
	}
	for _, important := range r.Important {
		if !strings.Contains(important, "*") {
			continue
		}
		if ok, _ := path.Match(important, name); ok {
			return true
		}
	}
	return false
}

// Register is called by parsers for every file they open. It returns the
// file's location under baseDir and warns about files nobody declared, since
// those would be dropped when a run directory is trimmed for archiving.
func (r *Registry) Register(baseDir, filename string) string {
	logger := logging.OrDefault(r.Logger)
	if !r.IsImportant(filename) {
		logger.Warn("file not part of the important file list", "file", filename)
		if filepath.IsAbs(filename) {
			logger.Warn("file is an absolute path, should be relative to the run directory",
				"file", filename, "dir", baseDir)
		}
	}
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(baseDir, filename)
}

// Copy copies the mandatory and important files of the run directory src to
// dst, preserving the layout. The cache file is never copied. It returns the
// number of files copied.
func (r *Registry) Copy(src, dst string) (int, error) {
	copied := 0
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if IsCacheFile(rel) || !(IsMandatory(rel) || r.IsImportant(rel)) {
			return nil
		}
		if err := copyFile(p, filepath.Join(dst, rel)); err != nil {
			return fmt.Errorf("copying %s: %w", rel, err)
		}
		copied++
		return nil
	})
	return copied, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
