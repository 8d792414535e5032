package result

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StartEndFilename = "test_start_end.json"

	// ISOLayout is the timestamp format of the summary file.
	ISOLayout = "2006-01-02T15:04:05.999999-07:00"
)

// FindRunDirs walks root and returns every directory holding a settings or
// exit_code file. Run directories are not searched further.
func FindRunDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		ok, err := IsRunDir(path)
		if err != nil {
			return err
		}
		if ok {
			dirs = append(dirs, path)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func IsRunDir(dirname string) (bool, error) {
	entries, err := os.ReadDir(dirname)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isSettingsFile(e.Name()) || e.Name() == "exit_code" {
			return true, nil
		}
	}
	return false, nil
}

func isSettingsFile(name string) bool {
	return name == "settings" || strings.HasPrefix(name, "settings.")
}

// ReadSettings merges the settings files of a run directory. The plain
// "settings" file is read first, then the "settings.*" files in name order,
// later keys overriding earlier ones. Files are YAML mappings or key=value
// lines.
func ReadSettings(dirname string) (ImportSettings, error) {
	entries, err := os.ReadDir(dirname)
	if err != nil {
		return nil, fmt.Errorf("reading run dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSettingsFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == "settings" || names[j] == "settings" {
			return names[i] == "settings"
		}
		return names[i] < names[j]
	})

	settings := ImportSettings{}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dirname, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if err := mergeSettings(settings, data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
	}
	return settings, nil
}

func mergeSettings(dst ImportSettings, data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err == nil {
		for k, v := range doc {
			dst[k] = fmt.Sprint(v)
		}
		return nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid settings line %q", line)
		}
		dst[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return scanner.Err()
}

type startEndFile struct {
	Start    string         `json:"start"`
	End      string         `json:"end"`
	Settings ImportSettings `json:"settings"`
}

// WriteStartEnd writes the human-readable summary of a parsed run.
func WriteStartEnd(dirname string, se *StartEnd, settings ImportSettings) error {
	if se == nil {
		return fmt.Errorf("writing %s: no start/end timestamps", StartEndFilename)
	}
	if settings == nil {
		settings = ImportSettings{}
	}
	data, err := json.MarshalIndent(startEndFile{
		Start:    se.Start.Format(ISOLayout),
		End:      se.End.Format(ISOLayout),
		Settings: settings,
	}, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", StartEndFilename, err)
	}
	data = append(data, '\n')
	return os.WriteFile(filepath.Join(dirname, StartEndFilename), data, 0o644)
}

// ReadStartEnd reads a summary written by WriteStartEnd.
func ReadStartEnd(dirname string) (*StartEnd, ImportSettings, error) {
	data, err := os.ReadFile(filepath.Join(dirname, StartEndFilename))
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", StartEndFilename, err)
	}
	var f startEndFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", StartEndFilename, err)
	}
	start, err := time.Parse(ISOLayout, f.Start)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing start: %w", err)
	}
	end, err := time.Parse(ISOLayout, f.End)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing end: %w", err)
	}
	return &StartEnd{Start: start, End: end}, f.Settings, nil
}
