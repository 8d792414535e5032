package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/matbench/internal/command"
	"github.com/signalnine/matbench/internal/config"
	"github.com/signalnine/matbench/internal/logging"
)

const baseConfig = `# benchmark configuration
tests:
  mode: scale
  list: [a, b]
  nested:
    deep: 1
ci_presets:
  names: []
count: 3
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func open(t *testing.T, path string, opts config.Options) *config.Store {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	s, err := config.Open(path, opts)
	require.NoError(t, err)
	return s
}

type countingDumper struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (d *countingDumper) DumpCommandArgs(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	return "rendered: true", nil
}

type fakeRunner struct {
	res  *command.Result
	err  error
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (*command.Result, error) {
	f.args = append([]string{name}, args...)
	return f.res, f.err
}

func TestOpenMissing(t *testing.T) {
	_, err := config.Open(filepath.Join(t.TempDir(), "nope.yaml"), config.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrNotFound))
}

func TestGet(t *testing.T) {
	s := open(t, writeConfig(t, baseConfig), config.Options{})

	tests := []struct {
		path string
		want any
	}{
		{"tests.mode", "scale"},
		{"$.tests.mode", "scale"},
		{`tests["mode"]`, "scale"},
		{`tests['nested'].deep`, 1},
		{"tests.list[1]", "b"},
		{"count", 3},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := s.Get(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	root, err := s.Get("$")
	require.NoError(t, err)
	assert.Contains(t, root, "tests")
}

func TestGetMissing(t *testing.T) {
	path := writeConfig(t, baseConfig)
	s := open(t, path, config.Options{})

	_, err := s.Get("tests.missing")
	var knf *config.KeyNotFoundError
	require.True(t, errors.As(err, &knf))
	assert.Equal(t, "tests.missing", knf.Path)
	assert.Equal(t, path, knf.File)

	assert.Equal(t, "fallback", s.GetDefault("tests.missing", "fallback", true))
	assert.Equal(t, "scale", s.GetDefault("tests.mode", "fallback", false))
}

func TestDecode(t *testing.T) {
	s := open(t, writeConfig(t, baseConfig), config.Options{})
	var list []string
	require.NoError(t, s.Decode("tests.list", &list))
	assert.Equal(t, []string{"a", "b"}, list)
}

func TestSetPersists(t *testing.T) {
	path := writeConfig(t, baseConfig)
	s := open(t, path, config.Options{})

	require.NoError(t, s.Set("tests.mode", "longevity"))
	require.NoError(t, s.Set("tests.list[0]", "z"))
	require.NoError(t, s.Set("tests.nested", map[string]int{"deep": 2}))

	reloaded := open(t, path, config.Options{})
	for path, want := range map[string]any{
		"tests.mode":        "longevity",
		"tests.list[0]":     "z",
		"tests.nested.deep": 2,
	} {
		got, err := reloaded.Get(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, path)
	}
}

func TestSetWritesBlockStyleInOrder(t *testing.T) {
	path := writeConfig(t, baseConfig)
	s := open(t, path, config.Options{})
	require.NoError(t, s.Set("count", 4))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "\n    mode: scale\n")
	assert.NotContains(t, out, "[a, b]")
	assert.Contains(t, out, "count: 4")
	assert.Less(t, strings.Index(out, "tests:"), strings.Index(out, "ci_presets:"))
	assert.Less(t, strings.Index(out, "ci_presets:"), strings.Index(out, "count:"))
}

func TestSetTopLevelCreatedNestedRejected(t *testing.T) {
	path := writeConfig(t, baseConfig)
	s := open(t, path, config.Options{})

	require.NoError(t, s.Set("brand_new_key", 5))
	got, err := s.Get("brand_new_key")
	require.NoError(t, err)
	assert.Equal(t, 5, got)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = s.Set("brand.new.nested", 5)
	var ipe *config.InvalidPathError
	require.True(t, errors.As(err, &ipe), "got %v", err)
	assert.Equal(t, "brand.new.nested", ipe.Path)

	err = s.Set("tests.unknown", 1)
	require.True(t, errors.As(err, &ipe))

	err = s.Set("tests.list[5]", "x")
	require.True(t, errors.As(err, &ipe))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "rejected sets must not touch the file")
}

func TestSetInvalidPathSyntax(t *testing.T) {
	s := open(t, writeConfig(t, baseConfig), config.Options{})
	// Set is owned by this goroutine, so no subtests here.
	for _, p := range []string{"", "a..b", "a.", ".a", `a["b`, "a[x]", "a[-1]", "a[0]b"} {
		var ipe *config.InvalidPathError
		assert.True(t, errors.As(s.Set(p, 1), &ipe), "path %q", p)
	}
}

func TestSetFromForeignGoroutineFails(t *testing.T) {
	path := writeConfig(t, baseConfig)
	artifacts := t.TempDir()
	s := open(t, path, config.Options{ArtifactDir: artifacts})

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- s.Set("count", 99) }()
	err = <-done

	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConcurrencyViolation))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoFileExists(t, filepath.Join(artifacts, config.ForeignWriterSentinel))

	got, err := s.Get("count")
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestSetFromForeignGoroutineTolerated(t *testing.T) {
	path := writeConfig(t, baseConfig)
	artifacts := t.TempDir()
	s := open(t, path, config.Options{ArtifactDir: artifacts, TolerateForeignWriters: true})

	done := make(chan error)
	go func() { done <- s.Set("count", 99) }()
	require.NoError(t, <-done)

	got, err := s.Get("count")
	require.NoError(t, err)
	assert.Equal(t, 99, got)

	sentinel, err := os.ReadFile(filepath.Join(artifacts, config.ForeignWriterSentinel))
	require.NoError(t, err)
	assert.Contains(t, string(sentinel), "set_config(count, 99)")
}

func TestSetQueueAppliedByOwner(t *testing.T) {
	path := writeConfig(t, baseConfig)
	s := open(t, path, config.Options{})

	var q config.SetQueue
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Set("count", 7)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, q.Len())

	require.NoError(t, s.Apply(&q))
	assert.Equal(t, 0, q.Len())

	reloaded := open(t, path, config.Options{})
	got, err := reloaded.Get("count")
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestSetMirrorsToSharedDir(t *testing.T) {
	path := writeConfig(t, baseConfig)
	shared := t.TempDir()
	s := open(t, path, config.Options{SharedDir: shared})

	require.NoError(t, s.Set("count", 10))

	local, err := os.ReadFile(path)
	require.NoError(t, err)
	mirrored, err := os.ReadFile(filepath.Join(shared, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, local, mirrored)
}

func TestSetSkipsMissingSharedDir(t *testing.T) {
	path := writeConfig(t, baseConfig)
	s := open(t, path, config.Options{SharedDir: filepath.Join(t.TempDir(), "absent")})
	require.NoError(t, s.Set("count", 10))
}

func TestSetDumpsCommandArgs(t *testing.T) {
	artifacts := t.TempDir()
	dumper := &countingDumper{}
	s := open(t, writeConfig(t, baseConfig), config.Options{ArtifactDir: artifacts, Dumper: dumper})

	require.NoError(t, s.Set("count", 1))
	require.NoError(t, s.Set("count", 2, config.WithoutDump()))
	assert.Equal(t, 1, dumper.calls)

	data, err := os.ReadFile(filepath.Join(artifacts, config.CommandArgsFilename))
	require.NoError(t, err)
	assert.Equal(t, "rendered: true\n", string(data))
}

func TestDumpFailureIsRecorded(t *testing.T) {
	artifacts := t.TempDir()
	dumper := &countingDumper{err: errors.New("template error")}
	s := open(t, writeConfig(t, baseConfig), config.Options{ArtifactDir: artifacts, Dumper: dumper})

	require.NoError(t, s.Set("count", 1))
	data, err := os.ReadFile(filepath.Join(artifacts, config.CommandArgsFilename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "template error")
}

func TestWithTempValueRestores(t *testing.T) {
	path := writeConfig(t, baseConfig)
	s := open(t, path, config.Options{})

	boom := errors.New("boom")
	err := s.WithTempValue("tests.mode", "temporary", func() error {
		got, err := s.Get("tests.mode")
		require.NoError(t, err)
		assert.Equal(t, "temporary", got)
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	got, err := s.Get("tests.mode")
	require.NoError(t, err)
	assert.Equal(t, "scale", got)

	reloaded := open(t, path, config.Options{})
	got, err = reloaded.Get("tests.mode")
	require.NoError(t, err)
	assert.Equal(t, "scale", got)
}

func TestTempValueMissingKey(t *testing.T) {
	s := open(t, writeConfig(t, baseConfig), config.Options{})
	_, err := s.TempValue("tests.absent", 1)
	var knf *config.KeyNotFoundError
	assert.True(t, errors.As(err, &knf))
}
