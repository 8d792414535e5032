package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/signalnine/matbench/internal/command"
	"github.com/signalnine/matbench/internal/env"
	"github.com/signalnine/matbench/internal/logging"
)

const CommandArgsTemplate = "command_args.yml.j2"

// CommandDumper renders the command arguments by running an external
// command and capturing its standard output.
type CommandDumper struct {
	Runner command.Runner
	Argv   []string
}

func (d CommandDumper) DumpCommandArgs(ctx context.Context) (string, error) {
	if len(d.Argv) == 0 {
		return "", errors.New("no command-args dump command configured")
	}
	runner := d.Runner
	if runner == nil {
		runner = command.Exec{}
	}
	res, err := runner.Run(ctx, d.Argv[0], d.Argv[1:]...)
	if err != nil {
		return "", fmt.Errorf("dumping command args: %w", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

type InitOptions struct {
	// BaseDir holds the pristine config.yaml and the command_args template.
	BaseDir string
	Env     env.Env
	Dumper  Dumper
	Runner  command.Runner
	Logger  *slog.Logger
	// Setenv exports the config locations to child processes. Defaults to
	// os.Setenv.
	Setenv func(key, value string) error
}

// Loader builds the process configuration once. Later calls return the
// Store created by the first one.
type Loader struct {
	once  sync.Once
	store *Store
	err   error
}

func (l *Loader) Init(opts InitOptions) (*Store, error) {
	first := false
	l.once.Do(func() {
		first = true
		l.store, l.err = initStore(opts)
	})
	if !first {
		logging.OrDefault(opts.Logger).Info("config.init: already configured")
	}
	return l.store, l.err
}

func initStore(opts InitOptions) (*Store, error) {
	logger := logging.OrDefault(opts.Logger)
	artifactDir := opts.Env.ArtifactDir
	if artifactDir == "" {
		return nil, fmt.Errorf("config init: %s is not set", env.ArtifactDirVar)
	}
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}

	configPath, err := prepareConfigFile(opts.BaseDir, artifactDir, opts.Env.SharedDir, logger)
	if err != nil {
		return nil, err
	}

	setenv := opts.Setenv
	if setenv == nil {
		setenv = os.Setenv
	}
	if err := setenv(env.ConfigFileVar, configPath); err != nil {
		return nil, err
	}
	if err := setenv(env.CommandArgsFileVar, filepath.Join(opts.BaseDir, CommandArgsTemplate)); err != nil {
		return nil, err
	}

	store, err := Open(configPath, Options{
		ArtifactDir:            artifactDir,
		SharedDir:              opts.Env.SharedDir,
		TolerateForeignWriters: opts.Env.InCI(),
		Dumper:                 opts.Dumper,
		Runner:                 opts.Runner,
		Env:                    opts.Env,
		Logger:                 logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("config.init: applying the config overrides")
	if err := store.ApplyOverrides(); err != nil {
		return nil, err
	}
	if err := store.ApplyLocalOverrides(); err != nil {
		return nil, err
	}
	return store, nil
}

// prepareConfigFile picks the configuration used by this process: a
// shared-directory copy left by a previous stage wins over the pristine
// base configuration.
func prepareConfigFile(baseDir, artifactDir, sharedDir string, logger *slog.Logger) (string, error) {
	configPath := filepath.Join(artifactDir, SharedConfigFilename)

	if filepath.Clean(baseDir) != filepath.Clean(artifactDir) {
		if err := os.Remove(configPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("removing stale config: %w", err)
		}
	}

	if sharedDir != "" {
		shared := filepath.Join(sharedDir, SharedConfigFilename)
		if _, err := os.Stat(shared); err == nil && filepath.Clean(shared) != filepath.Clean(configPath) {
			logger.Info("reloading the config file from the shared directory", "file", shared)
			if err := copyFile(shared, configPath); err != nil {
				return "", err
			}
		}
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		if err := copyFile(filepath.Join(baseDir, SharedConfigFilename), configPath); err != nil {
			return "", err
		}
	}
	return configPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copying config: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copying config: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying config: %w", err)
	}
	return out.Close()
}
