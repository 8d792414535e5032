// Package config manages the CI configuration file: path-addressed reads
// and writes, presets, override files and the shared-directory mirror.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/matbench/internal/command"
	"github.com/signalnine/matbench/internal/env"
	"github.com/signalnine/matbench/internal/logging"
)

const (
	SharedConfigFilename     = "config.yaml"
	CommandArgsFilename      = "command_args.yml"
	ForeignWriterSentinel    = "SET_CONFIG_CALLED_FROM_THREAD"
	PresetsAppliedFilename   = "presets_applied"
	VariableOverrideFilename = "variable_overrides"
)

// Dumper renders the command arguments derived from the configuration.
type Dumper interface {
	DumpCommandArgs(ctx context.Context) (string, error)
}

type Options struct {
	// ArtifactDir receives the audit files (presets_applied,
	// command_args.yml, the foreign-writer sentinel).
	ArtifactDir string
	// SharedDir, when it exists, receives a copy of the document after
	// every mutation.
	SharedDir string
	// TolerateForeignWriters downgrades a Set from a non-owner goroutine
	// from an error to a logged and recorded violation. Meant for CI.
	TolerateForeignWriters bool

	Dumper Dumper
	Runner command.Runner
	Env    env.Env
	Logger *slog.Logger
}

// Store is a configuration file loaded in memory. Reads are safe from any
// goroutine; Set belongs to the goroutine that called Open.
type Store struct {
	path   string
	opts   Options
	owner  uint64
	logger *slog.Logger

	mu  sync.RWMutex
	doc *Document
}

// Open loads path and makes the calling goroutine the owner of the Store.
func Open(path string, opts Options) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if opts.Runner == nil {
		opts.Runner = command.Exec{}
	}
	return &Store{
		path:   path,
		opts:   opts,
		owner:  goid(),
		logger: logging.OrDefault(opts.Logger),
		doc:    doc,
	}, nil
}

func (s *Store) Path() string { return s.path }

// Get returns the value at path, or a *KeyNotFoundError.
func (s *Store) Get(path string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok, err := s.doc.Get(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		err := &KeyNotFoundError{Path: path, File: s.path}
		s.logger.Error("get_config: key not found", "path", path, "file", s.path)
		return nil, err
	}
	s.logger.Debug("get_config", "path", path, "value", v)
	return v, nil
}

// GetDefault returns def when path does not resolve, logging a warning
// when warn is set.
func (s *Store) GetDefault(path string, def any, warn bool) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok, err := s.doc.Get(path)
	if err != nil || !ok {
		if warn {
			s.logger.Warn("get_config: missing, returning the default value",
				"path", path, "default", def, "file", s.path)
		}
		return def
	}
	return v
}

// Decode decodes the value at path into out.
func (s *Store) Decode(path string, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.doc.Lookup(path)
	if err != nil {
		return err
	}
	if n == nil {
		return &KeyNotFoundError{Path: path, File: s.path}
	}
	if err := n.Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (s *Store) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Has(path)
}

// Keys returns the top-level keys in file order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Keys()
}

// node returns a copy of the node at path, or nil.
func (s *Store) node(path string) (*yaml.Node, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	return s.nodeAt(segs...), nil
}

func (s *Store) nodeAt(segs ...segment) *yaml.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyNode(s.doc.lookup(segs))
}

type setOptions struct {
	dump   bool
	create bool
}

type SetOption func(*setOptions)

// WithoutDump suppresses the command-arguments dump that normally follows
// a Set. Used while applying a batch of values.
func WithoutDump() SetOption {
	return func(o *setOptions) { o.dump = false }
}

// Set writes value at path and rewrites the file. Only the owning goroutine
// may call it. Existing keys are replaced; a missing key is only created at
// the top level.
func (s *Store) Set(path string, value any, opts ...SetOption) error {
	o := setOptions{dump: true}
	for _, opt := range opts {
		opt(&o)
	}
	return s.set(path, value, o)
}

func (s *Store) set(path string, value any, o setOptions) error {
	shown := display(value)
	if err := s.checkOwner(path, shown); err != nil {
		s.logger.Error("set_config failed", "path", path, "value", shown, "error", err)
		return err
	}
	data, err := s.update(path, value, o.create)
	if err != nil {
		s.logger.Error("set_config failed", "path", path, "value", shown, "file", s.path, "error", err)
		return err
	}
	s.logger.Info("set_config", "path", path, "value", shown)

	if o.dump {
		s.DumpCommandArgs(context.Background())
	}
	if err := s.mirror(data); err != nil {
		s.logger.Error("set_config: mirroring failed", "path", path, "error", err)
		return err
	}
	return nil
}

// update mutates the document and rewrites the file, returning its bytes.
func (s *Store) update(path string, value any, create bool) ([]byte, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.doc.set(path, segs, value, create); err != nil {
		return nil, err
	}
	data, err := s.doc.Marshal()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", s.path, err)
	}
	return data, nil
}

// display turns yaml nodes into plain values for log lines.
func display(value any) any {
	n, ok := value.(*yaml.Node)
	if !ok {
		return value
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return n.Value
	}
	return v
}

func (s *Store) mirror(data []byte) error {
	if s.opts.SharedDir == "" {
		return nil
	}
	if _, err := os.Stat(s.opts.SharedDir); err != nil {
		return nil
	}
	dst := filepath.Join(s.opts.SharedDir, SharedConfigFilename)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}

func (s *Store) checkOwner(path string, value any) error {
	if goid() == s.owner {
		return nil
	}
	msg := fmt.Sprintf("set_config(%s, %v) cannot be called outside the goroutine owning the configuration", path, value)
	if !s.opts.TolerateForeignWriters {
		return fmt.Errorf("%s: %w", msg, ErrConcurrencyViolation)
	}
	s.logger.Error(msg)
	if err := s.appendArtifact(ForeignWriterSentinel, msg); err != nil {
		s.logger.Warn("could not record the foreign writer", "error", err)
	}
	return nil
}

// Apply performs the mutations recorded in q, in order, followed by a
// single command-arguments dump.
func (s *Store) Apply(q *SetQueue) error {
	pending := q.drain()
	if len(pending) == 0 {
		return nil
	}
	for _, p := range pending {
		if err := s.set(p.path, p.value, setOptions{}); err != nil {
			return err
		}
	}
	s.DumpCommandArgs(context.Background())
	return nil
}

// DumpCommandArgs writes the rendered command arguments to
// command_args.yml in the artifact directory. Failures are written there
// instead, and only logged.
func (s *Store) DumpCommandArgs(ctx context.Context) {
	if s.opts.Dumper == nil || s.opts.ArtifactDir == "" {
		return
	}
	dst := filepath.Join(s.opts.ArtifactDir, CommandArgsFilename)
	out, err := s.opts.Dumper.DumpCommandArgs(ctx)
	if err != nil {
		os.WriteFile(dst, []byte(err.Error()+"\n"), 0o644)
		s.logger.Warn("could not dump the command_args template", "error", err)
		return
	}
	if err := os.WriteFile(dst, []byte(out+"\n"), 0o644); err != nil {
		s.logger.Warn("could not write command_args", "file", dst, "error", err)
	}
}

// appendArtifact appends line to a file of the artifact directory.
func (s *Store) appendArtifact(name, line string) error {
	if s.opts.ArtifactDir == "" {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(s.opts.ArtifactDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// TempValue sets path to value and returns a function restoring the
// previous value.
func (s *Store) TempValue(path string, value any) (restore func() error, err error) {
	prev, err := s.node(path)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, &KeyNotFoundError{Path: path, File: s.path}
	}
	if err := s.Set(path, value); err != nil {
		return nil, err
	}
	return func() error { return s.Set(path, prev) }, nil
}

// WithTempValue runs fn with path temporarily set to value. The previous
// value is restored whether fn fails or not.
func (s *Store) WithTempValue(path string, value any, fn func() error) (err error) {
	restore, err := s.TempValue(path, value)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := restore(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("restoring %s: %w", path, rerr))
		}
	}()
	return fn()
}
