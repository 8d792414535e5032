package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/matbench/internal/env"
)

type override struct {
	key   string
	value string
}

// parseOverrides reads key=value lines. Blank lines are skipped, lines
// without '=' are logged and ignored.
func parseOverrides(data []byte, logger *slog.Logger) []override {
	var overrides []override
	for _, line := range splitLines(data) {
		s := strings.TrimSpace(string(line))
		if s == "" {
			continue
		}
		key, value, found := strings.Cut(s, "=")
		if !found {
			logger.Warn("apply_config_overrides: invalid line, ignoring it", "line", s)
			continue
		}
		overrides = append(overrides, override{key: key, value: value})
	}
	return overrides
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// ApplyOverrides applies the variable_overrides file of the artifact
// directory. Values are parsed as YAML. Missing top-level keys are
// created; missing nested keys are an *InvalidPathError.
func (s *Store) ApplyOverrides() error {
	if s.opts.ArtifactDir == "" {
		s.logger.Info("apply_config_overrides: no artifact directory, nothing to override")
		return nil
	}
	path := filepath.Join(s.opts.ArtifactDir, VariableOverrideFilename)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("apply_config_overrides: file does not exist, nothing to override", "file", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading overrides: %w", err)
	}

	for _, o := range parseOverrides(data, s.logger) {
		var value any
		if err := yaml.Unmarshal([]byte(o.value), &value); err != nil {
			return fmt.Errorf("override %s: parsing value: %w", o.key, err)
		}
		if !s.Has(o.key) && strings.ContainsAny(o.key, ".[") {
			err := &InvalidPathError{Path: o.key, Reason: "key does not exist and cannot be created by an override"}
			s.logger.Error("apply_config_overrides failed", "file", path, "error", err)
			return err
		}
		if err := s.Set(o.key, value, WithoutDump()); err != nil {
			return err
		}
		actual, err := s.Get(o.key)
		if err != nil {
			return err
		}
		s.logger.Info("config override", "key", o.key, "value", actual)
	}
	return nil
}

// ApplyLocalOverrides stores the whitespace-separated TOPSAIL_PR_ARGS as
// PR_POSITIONAL_ARG_1..n. These emulate a PR comment when running outside
// CI, so finding both them and OPENSHIFT_CI is an error.
func (s *Store) ApplyLocalOverrides() error {
	prArgs := s.opts.Env.PRArgs
	if prArgs == "" {
		s.logger.Info("env var not set, no local config to override", "var", env.PRArgsVar)
		return nil
	}
	if ci := s.opts.Env.OpenShiftCI; ci != "" {
		return fmt.Errorf("found %s=%s and %s=%s defined at the same time",
			env.PRArgsVar, prArgs, env.OpenShiftCIVar, ci)
	}
	for idx, arg := range strings.Fields(prArgs) {
		key := fmt.Sprintf("%s%d", PRArgPrefix, idx+1)
		s.logger.Info("local override", "key", key, "value", arg)
		if err := s.Set(key, arg, WithoutDump()); err != nil {
			return err
		}
	}
	return nil
}
