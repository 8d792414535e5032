package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/matbench/internal/command"
	"github.com/signalnine/matbench/internal/config"
	"github.com/signalnine/matbench/internal/env"
	"github.com/signalnine/matbench/internal/logging"
)

func TestLoaderInit(t *testing.T) {
	base := t.TempDir()
	artifacts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "config.yaml"), []byte(baseConfig), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(artifacts, "config.yaml"), []byte("stale: true\n"), 0o644))
	writeOverrides(t, artifacts, "count=8\n")

	exported := map[string]string{}
	opts := config.InitOptions{
		BaseDir: base,
		Env:     env.Env{ArtifactDir: artifacts, PRArgs: "light"},
		Logger:  logging.Discard(),
		Setenv: func(k, v string) error {
			exported[k] = v
			return nil
		},
	}

	var loader config.Loader
	s, err := loader.Init(opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(artifacts, "config.yaml"), s.Path())

	assert.False(t, s.Has("stale"), "artifact copy is replaced by the base config")
	count, err := s.Get("count")
	require.NoError(t, err)
	assert.Equal(t, 8, count)
	arg, err := s.Get("PR_POSITIONAL_ARG_1")
	require.NoError(t, err)
	assert.Equal(t, "light", arg)

	assert.Equal(t, s.Path(), exported[env.ConfigFileVar])
	assert.Equal(t, filepath.Join(base, config.CommandArgsTemplate), exported[env.CommandArgsFileVar])

	again, err := loader.Init(opts)
	require.NoError(t, err)
	assert.Same(t, s, again)

	base2, err := os.ReadFile(filepath.Join(base, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, baseConfig, string(base2), "the base config is never modified")
}

func TestLoaderInitReloadsSharedDir(t *testing.T) {
	base := t.TempDir()
	artifacts := t.TempDir()
	shared := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "config.yaml"), []byte(baseConfig), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(shared, "config.yaml"), []byte("count: 42\n"), 0o644))

	var loader config.Loader
	s, err := loader.Init(config.InitOptions{
		BaseDir: base,
		Env:     env.Env{ArtifactDir: artifacts, SharedDir: shared},
		Logger:  logging.Discard(),
		Setenv:  func(string, string) error { return nil },
	})
	require.NoError(t, err)

	count, err := s.Get("count")
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}

func TestLoaderInitRequiresArtifactDir(t *testing.T) {
	var loader config.Loader
	_, err := loader.Init(config.InitOptions{BaseDir: t.TempDir(), Logger: logging.Discard()})
	assert.Error(t, err)
}

func TestCommandDumper(t *testing.T) {
	runner := &fakeRunner{res: &command.Result{Stdout: "  args: 1\n"}}
	out, err := config.CommandDumper{Runner: runner, Argv: []string{"toolbox", "dump"}}.DumpCommandArgs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "args: 1", out)
	assert.Equal(t, []string{"toolbox", "dump"}, runner.args)

	_, err = config.CommandDumper{}.DumpCommandArgs(context.Background())
	assert.Error(t, err)
}
