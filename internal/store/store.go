// Package store parses benchmark run directories into result.Results,
// reusing the per-directory cache when it is present.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalnine/matbench/internal/artifact"
	"github.com/signalnine/matbench/internal/env"
	"github.com/signalnine/matbench/internal/logging"
	"github.com/signalnine/matbench/internal/lts"
	"github.com/signalnine/matbench/internal/metrics"
	"github.com/signalnine/matbench/internal/models"
	"github.com/signalnine/matbench/internal/result"
	"github.com/signalnine/matbench/internal/runner"
	"github.com/signalnine/matbench/internal/telemetry"
)

// Parser extracts results from the artifacts of a run directory.
//
// ParseAlways fills the fields that depend on the current invocation (the
// import settings, the test config accessor) and runs on every parse,
// cached or not. ParseOnce fills everything expensive and only runs when no
// usable cache exists.
type Parser interface {
	ArtifactDirnames() map[string]string
	ParseAlways(ctx context.Context, r *result.Results, dirname string, paths artifact.Paths, settings result.ImportSettings) error
	ParseOnce(ctx context.Context, r *result.Results, dirname string, paths artifact.Paths) error
}

// Sink receives every successfully parsed Results. ParseTree calls it from
// several goroutines.
type Sink func(*result.Results)

// ProjectFunc builds the LTS payload of a freshly parsed run.
type ProjectFunc func(r *result.Results, settings result.ImportSettings, mustValidate bool) (*models.Payload, error)

type Options struct {
	Parser Parser
	// Project defaults to lts.Project.
	Project ProjectFunc
	Sink    Sink
	// IgnoreCache disables cache reads. MATBENCH_STORE_IGNORE_CACHE has the
	// same effect and is checked on every call.
	IgnoreCache bool
	// Cache defaults to the msgpack cache.
	Cache          *result.Cache
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	TracerProvider trace.TracerProvider
}

type Store struct {
	parser      Parser
	project     ProjectFunc
	sink        Sink
	ignoreCache bool
	cache       *result.Cache
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	resolver    *artifact.Resolver
}

const tracerScope = "github.com/signalnine/matbench/internal/store"

func New(opts Options) (*Store, error) {
	if opts.Parser == nil {
		return nil, errors.New("store: a parser is required")
	}
	s := &Store{
		parser:      opts.Parser,
		project:     opts.Project,
		sink:        opts.Sink,
		ignoreCache: opts.IgnoreCache,
		cache:       opts.Cache,
		logger:      logging.OrDefault(opts.Logger),
		metrics:     opts.Metrics,
	}
	if s.project == nil {
		s.project = lts.Project
	}
	if s.sink == nil {
		s.sink = func(*result.Results) {}
	}
	if s.cache == nil {
		s.cache = &result.Cache{Codec: result.MsgpackCodec{}}
	}
	if opts.TracerProvider != nil {
		s.tracer = opts.TracerProvider.Tracer(tracerScope)
	} else {
		s.tracer = telemetry.Tracer(tracerScope)
	}
	s.resolver = &artifact.Resolver{Logger: s.logger}
	return s, nil
}

func (s *Store) cacheDisabled() bool {
	return s.ignoreCache || env.IgnoreCache()
}

// ParseDirectory returns the Results of dirname. With a usable cache only
// the always phase runs and nothing is written. Otherwise the artifacts are
// fully parsed, the LTS payload is projected without validation, and the
// summary and cache files are written. A cache that exists but cannot be
// read fails the parse.
func (s *Store) ParseDirectory(ctx context.Context, dirname string, settings result.ImportSettings) (_ *result.Results, err error) {
	ctx, span := s.tracer.Start(ctx, "store.ParseDirectory",
		trace.WithAttributes(attribute.String("matbench.dir", dirname)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.ParseFailed()
		}
		span.End()
	}()

	paths := s.resolver.Resolve(dirname, s.parser.ArtifactDirnames())

	var cached *result.Results
	outcome := metrics.CacheMiss
	if s.cacheDisabled() {
		s.logger.Info(env.IgnoreCacheVar+" is set, not processing the cache file", "dir", dirname)
		outcome = metrics.CacheBypass
	} else {
		cached, err = s.cache.Load(dirname)
		switch {
		case err == nil:
			outcome = metrics.CacheHit
		case errors.Is(err, result.ErrNotFound):
			cached = nil
		default:
			return nil, fmt.Errorf("parsing %s: %w", dirname, err)
		}
	}
	s.metrics.CacheLookup(outcome)
	span.SetAttributes(attribute.String("matbench.cache", outcome))

	if cached != nil {
		if err := s.parser.ParseAlways(ctx, cached, dirname, paths, settings); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", dirname, err)
		}
		s.sink(cached)
		s.logger.Debug("loaded from cache", "dir", dirname)
		return cached, nil
	}

	r, err := s.parseFresh(ctx, dirname, paths, settings)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", dirname, err)
	}
	return r, nil
}

func (s *Store) parseFresh(ctx context.Context, dirname string, paths artifact.Paths, settings result.ImportSettings) (*result.Results, error) {
	r := &result.Results{}
	if err := s.parser.ParseAlways(ctx, r, dirname, paths, settings); err != nil {
		return nil, err
	}

	start := time.Now()
	_, onceSpan := s.tracer.Start(ctx, "store.ParseOnce")
	err := s.parser.ParseOnce(ctx, r, dirname, paths)
	onceSpan.End()
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveOncePhase(time.Since(start))

	payload, err := s.project(r, settings, false)
	if err != nil {
		return nil, fmt.Errorf("projecting LTS payload: %w", err)
	}
	r.LTS = payload

	s.sink(r)

	if r.Once.TestStartEnd != nil {
		if err := result.WriteStartEnd(dirname, r.Once.TestStartEnd, settings); err != nil {
			return nil, err
		}
	} else {
		s.logger.Warn("no test start/end, summary file not written", "dir", dirname)
	}

	if err := s.cache.Save(dirname, r); err != nil {
		return nil, err
	}
	s.logger.Info("parsing done", "dir", dirname)
	return r, nil
}

// SettingsFunc returns the import settings of a run directory.
type SettingsFunc func(dirname string) (result.ImportSettings, error)

// ParseTree finds every run directory under root and parses them with at
// most parallel concurrent parses. Results are sorted by location. Failing
// directories are reported in the joined error and do not stop the others.
func (s *Store) ParseTree(ctx context.Context, root string, settingsFn SettingsFunc, parallel int) ([]*result.Results, error) {
	if settingsFn == nil {
		settingsFn = result.ReadSettings
	}
	dirs, err := result.FindRunDirs(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		s.logger.Warn("no run directory found", "root", root)
	}

	var (
		mu  sync.Mutex
		out []*result.Results
	)
	jobs := make([]runner.Job, len(dirs))
	for i, dir := range dirs {
		dir := dir
		jobs[i] = func(ctx context.Context) error {
			settings, err := settingsFn(dir)
			if err != nil {
				return fmt.Errorf("reading settings of %s: %w", dir, err)
			}
			r, err := s.ParseDirectory(ctx, dir, settings)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, r)
			mu.Unlock()
			return nil
		}
	}
	errs := runner.RunPool(ctx, parallel, jobs)

	sort.Slice(out, func(i, j int) bool {
		return out[i].Always.Location < out[j].Always.Location
	})
	return out, errors.Join(errs...)
}
