package store_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/signalnine/matbench/internal/artifact"
	"github.com/signalnine/matbench/internal/env"
	"github.com/signalnine/matbench/internal/logging"
	"github.com/signalnine/matbench/internal/metrics"
	"github.com/signalnine/matbench/internal/parsers"
	"github.com/signalnine/matbench/internal/result"
	"github.com/signalnine/matbench/internal/store"
)

// countingParser counts the full parses of the default parser.
type countingParser struct {
	*parsers.KServeLLM
	once atomic.Int32
}

func (p *countingParser) ParseOnce(ctx context.Context, r *result.Results, dirname string, paths artifact.Paths) error {
	p.once.Add(1)
	return p.KServeLLM.ParseOnce(ctx, r, dirname, paths)
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runDir(t *testing.T, dir string) string {
	t.Helper()
	write(t, dir, "settings", "users=4\n")
	write(t, dir, "config.yaml", "tests:\n  mode: smoke\nci_presets:\n  names: [light]\n")
	write(t, dir, "exit_code", "0\n")
	write(t, dir, "000__benchmark/test_start_end.yaml",
		"start: 2024-03-01T10:00:00+02:00\nend: 2024-03-01T10:05:00+02:00\n")
	write(t, dir, "000__benchmark/output/a.json",
		`{"results": [{"ttft": 10, "tpot": 2, "itl": 3, "response_time": 100, "output_tokens": 50}]}`)
	return dir
}

type fixture struct {
	parser  *countingParser
	metrics *metrics.Metrics
	sunk    atomic.Int32
	store   *store.Store
}

func newFixture(t *testing.T, opts store.Options) *fixture {
	t.Helper()
	f := &fixture{
		parser:  &countingParser{KServeLLM: parsers.New(logging.Discard())},
		metrics: metrics.New(),
	}
	opts.Parser = f.parser
	opts.Metrics = f.metrics
	opts.Logger = logging.Discard()
	opts.Sink = func(*result.Results) { f.sunk.Add(1) }
	s, err := store.New(opts)
	require.NoError(t, err)
	f.store = s
	return f
}

func (f *fixture) lookups(outcome string) float64 {
	return testutil.ToFloat64(f.metrics.CacheLookups().WithLabelValues(outcome))
}

func ltsJSON(t *testing.T, r *result.Results) string {
	t.Helper()
	require.NotNil(t, r.LTS)
	data, err := json.Marshal(r.LTS)
	require.NoError(t, err)
	return string(data)
}

func TestParseDirectoryCachesOncePhase(t *testing.T) {
	dir := runDir(t, t.TempDir())
	settings := result.ImportSettings{"users": "4"}
	f := newFixture(t, store.Options{})

	first, err := f.store.ParseDirectory(context.Background(), dir, settings)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.parser.once.Load())
	assert.FileExists(t, filepath.Join(dir, artifact.CacheFilename))

	se, gotSettings, err := result.ReadStartEnd(dir)
	require.NoError(t, err)
	assert.Equal(t, settings, gotSettings)
	assert.True(t, se.Start.Equal(first.Once.TestStartEnd.Start))

	second, err := f.store.ParseDirectory(context.Background(), dir, settings)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.parser.once.Load(), "cache hit skips the once phase")
	assert.Equal(t, int32(2), f.sunk.Load())
	assert.Equal(t, ltsJSON(t, first), ltsJSON(t, second))

	mode, err := second.Always.TestConfig.Get("tests.mode")
	require.NoError(t, err, "accessor restored on cache hit")
	assert.Equal(t, "smoke", mode)

	assert.Equal(t, 1.0, f.lookups(metrics.CacheMiss))
	assert.Equal(t, 1.0, f.lookups(metrics.CacheHit))
}

func TestParseDirectoryCacheHitRefreshesAlwaysPhase(t *testing.T) {
	dir := runDir(t, t.TempDir())
	f := newFixture(t, store.Options{})

	_, err := f.store.ParseDirectory(context.Background(), dir, result.ImportSettings{"users": "4"})
	require.NoError(t, err)
	write(t, dir, "exit_code", "3\n")

	r, err := f.store.ParseDirectory(context.Background(), dir, result.ImportSettings{"users": "4", "extra": "x"})
	require.NoError(t, err)
	require.NotNil(t, r.Always.ExitCode)
	assert.Equal(t, 3, *r.Always.ExitCode)
	assert.Equal(t, "x", r.Always.ImportSettings["extra"])
	assert.Equal(t, int32(1), f.parser.once.Load())
}

func TestParseDirectoryIgnoreCache(t *testing.T) {
	dir := runDir(t, t.TempDir())
	f := newFixture(t, store.Options{IgnoreCache: true})

	for i := 0; i < 2; i++ {
		_, err := f.store.ParseDirectory(context.Background(), dir, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), f.parser.once.Load())
	assert.Equal(t, 2.0, f.lookups(metrics.CacheBypass))
	assert.FileExists(t, filepath.Join(dir, artifact.CacheFilename), "the write side still runs")
}

func TestParseDirectoryIgnoreCacheFromEnvironment(t *testing.T) {
	dir := runDir(t, t.TempDir())
	f := newFixture(t, store.Options{})

	_, err := f.store.ParseDirectory(context.Background(), dir, nil)
	require.NoError(t, err)

	t.Setenv(env.IgnoreCacheVar, "y")
	_, err = f.store.ParseDirectory(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.parser.once.Load())

	t.Setenv(env.IgnoreCacheVar, "no")
	_, err = f.store.ParseDirectory(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.parser.once.Load(), "re-evaluated on every call")
}

func TestParseDirectoryCorruptCache(t *testing.T) {
	dir := runDir(t, t.TempDir())
	write(t, dir, artifact.CacheFilename, "\xc1")
	f := newFixture(t, store.Options{})

	_, err := f.store.ParseDirectory(context.Background(), dir, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, result.ErrNotFound)
	assert.Zero(t, f.parser.once.Load(), "no silent re-parse")
	assert.Zero(t, f.sunk.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ParseErrors()))
}

func TestParseDirectoryOnceFailureWritesNothing(t *testing.T) {
	dir := runDir(t, t.TempDir())
	require.NoError(t, os.Remove(filepath.Join(dir, "000__benchmark/test_start_end.yaml")))
	f := newFixture(t, store.Options{})

	_, err := f.store.ParseDirectory(context.Background(), dir, nil)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, artifact.CacheFilename))
	assert.NoFileExists(t, filepath.Join(dir, result.StartEndFilename))
	assert.Zero(t, f.sunk.Load())
}

func TestParseDirectorySpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	dir := runDir(t, t.TempDir())
	f := newFixture(t, store.Options{TracerProvider: tp})

	_, err := f.store.ParseDirectory(context.Background(), dir, nil)
	require.NoError(t, err)

	var names []string
	cache := ""
	for _, span := range rec.Ended() {
		names = append(names, span.Name())
		for _, kv := range span.Attributes() {
			if kv.Key == "matbench.cache" {
				cache = kv.Value.AsString()
			}
		}
	}
	assert.ElementsMatch(t, []string{"store.ParseOnce", "store.ParseDirectory"}, names)
	assert.Equal(t, metrics.CacheMiss, cache)
}

func TestParseTree(t *testing.T) {
	root := t.TempDir()
	runDir(t, filepath.Join(root, "b"))
	runDir(t, filepath.Join(root, "a", "run"))
	broken := runDir(t, filepath.Join(root, "c"))
	require.NoError(t, os.Remove(filepath.Join(broken, "000__benchmark/test_start_end.yaml")))

	var (
		mu   sync.Mutex
		seen []string
	)
	s, err := store.New(store.Options{
		Parser: parsers.New(logging.Discard()),
		Logger: logging.Discard(),
		Sink: func(r *result.Results) {
			mu.Lock()
			seen = append(seen, r.Always.Location)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	out, err := s.ParseTree(context.Background(), root, nil, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken)

	require.Len(t, out, 2)
	assert.Equal(t, filepath.Join(root, "a", "run"), out[0].Always.Location)
	assert.Equal(t, filepath.Join(root, "b"), out[1].Always.Location)
	assert.Equal(t, result.ImportSettings{"users": "4"}, out[0].Always.ImportSettings)
	assert.Len(t, seen, 2)
}

func TestNewRequiresParser(t *testing.T) {
	_, err := store.New(store.Options{})
	assert.Error(t, err)
}
