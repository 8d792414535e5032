package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/matbench/internal/config"
	"github.com/signalnine/matbench/internal/env"
)

func writeOverrides(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.VariableOverrideFilename), []byte(content), 0o644))
}

func TestApplyOverrides(t *testing.T) {
	artifacts := t.TempDir()
	writeOverrides(t, artifacts, "count=5\n\nthis line is ignored\ntests.mode=longevity\nnew_key=[1, 2]\n")
	path := writeConfig(t, baseConfig)
	s := open(t, path, config.Options{ArtifactDir: artifacts})

	require.NoError(t, s.ApplyOverrides())

	reloaded := open(t, path, config.Options{})
	for key, want := range map[string]any{
		"count":      5,
		"tests.mode": "longevity",
		"new_key":    []any{1, 2},
	} {
		got, err := reloaded.Get(key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}
}

func TestApplyOverridesRejectsNewNestedKey(t *testing.T) {
	artifacts := t.TempDir()
	writeOverrides(t, artifacts, "tests.unknown.deep=1\n")
	s := open(t, writeConfig(t, baseConfig), config.Options{ArtifactDir: artifacts})

	var ipe *config.InvalidPathError
	assert.True(t, errors.As(s.ApplyOverrides(), &ipe))
}

func TestApplyOverridesWithoutFile(t *testing.T) {
	s := open(t, writeConfig(t, baseConfig), config.Options{ArtifactDir: t.TempDir()})
	assert.NoError(t, s.ApplyOverrides())
}

func TestApplyLocalOverrides(t *testing.T) {
	s := open(t, writeConfig(t, baseConfig), config.Options{
		Env: env.Env{PRArgs: "light  metal"},
	})
	require.NoError(t, s.ApplyLocalOverrides())

	first, err := s.Get("PR_POSITIONAL_ARG_1")
	require.NoError(t, err)
	assert.Equal(t, "light", first)
	second, err := s.Get("PR_POSITIONAL_ARG_2")
	require.NoError(t, err)
	assert.Equal(t, "metal", second)
}

func TestApplyLocalOverridesConflictsWithCI(t *testing.T) {
	s := open(t, writeConfig(t, baseConfig), config.Options{
		Env: env.Env{PRArgs: "light", OpenShiftCI: "true"},
	})
	err := s.ApplyLocalOverrides()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENSHIFT_CI")
	assert.False(t, s.Has("PR_POSITIONAL_ARG_1"))
}

func TestApplyLocalOverridesUnset(t *testing.T) {
	s := open(t, writeConfig(t, baseConfig), config.Options{})
	require.NoError(t, s.ApplyLocalOverrides())
	assert.False(t, s.Has("PR_POSITIONAL_ARG_1"))
}
