package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/signalnine/matbench/internal/command"
	"github.com/signalnine/matbench/internal/config"
)

var (
	flagConfigFile   string
	flagLightProfile string
	flagLightSuffix  string
	flagMetalProfile string
	flagTemp         []string
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and modify the CI configuration file",
	}
	cmd.PersistentFlags().StringVar(&flagConfigFile, "file", "", "CI config file (default $ARTIFACT_DIR/config.yaml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "get PATH",
		Short: "Print the value at PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openConfig()
			if err != nil {
				return err
			}
			v, err := s.Get(args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(v)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set PATH VALUE",
		Short: "Set PATH to VALUE, parsed as YAML",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openConfig()
			if err != nil {
				return err
			}
			value, err := parseValue(args[1])
			if err != nil {
				return err
			}
			return s.Set(args[0], value)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "apply-preset NAME...",
		Short: "Apply named presets in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openConfig()
			if err != nil {
				return err
			}
			for _, name := range args {
				if err := s.ApplyPreset(name); err != nil {
					return err
				}
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "apply-pr-args",
		Short: "Apply the presets named by the PR_POSITIONAL_ARG_<n> keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openConfig()
			if err != nil {
				return err
			}
			return s.ApplyPresetsFromPRArgs()
		},
	})
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigExecCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init BASE_DIR",
		Short: "Prepare the artifact-directory config from BASE_DIR and apply overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var loader config.Loader
			s, err := loader.Init(config.InitOptions{
				BaseDir: args[0],
				Env:     app.env,
				Dumper:  dumper(),
				Runner:  command.Exec{},
				Logger:  app.logger,
			})
			if err != nil {
				return err
			}
			if flagLightProfile != "" {
				if err := s.DetectApplyLightProfile(flagLightProfile, flagLightSuffix); err != nil {
					return err
				}
			}
			if flagMetalProfile != "" {
				if err := s.DetectApplyMetalProfile(cmd.Context(), flagMetalProfile); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&flagLightProfile, "light-profile", "", "preset applied when JOB_NAME_SAFE names a light job")
	cmd.Flags().StringVar(&flagLightSuffix, "light-suffix", "light", "job name suffix identifying light jobs")
	cmd.Flags().StringVar(&flagMetalProfile, "metal-profile", "", "preset applied on bare-metal clusters")
	return cmd
}

func newConfigExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec --temp PATH=VALUE... -- COMMAND [ARG...]",
		Short: "Run a command with configuration values temporarily changed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openConfig()
			if err != nil {
				return err
			}
			type temp struct {
				path  string
				value any
			}
			var temps []temp
			for _, pair := range flagTemp {
				path, raw, ok := strings.Cut(pair, "=")
				if !ok || path == "" {
					return fmt.Errorf("invalid --temp %q: expected path=value", pair)
				}
				value, err := parseValue(raw)
				if err != nil {
					return err
				}
				temps = append(temps, temp{path, value})
			}

			run := func() error {
				res, err := command.Exec{}.Run(cmd.Context(), args[0], args[1:]...)
				if res != nil {
					fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
					fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
				}
				return err
			}
			// Innermost first, so restores unwind in reverse order.
			for i := len(temps) - 1; i >= 0; i-- {
				inner, t := run, temps[i]
				run = func() error { return s.WithTempValue(t.path, t.value, inner) }
			}
			return run()
		},
	}
	cmd.Flags().StringArrayVar(&flagTemp, "temp", nil, "temporary value (path=value, YAML), repeatable")
	return cmd
}

func configPath() (string, error) {
	if flagConfigFile != "" {
		return flagConfigFile, nil
	}
	if app.env.ArtifactDir == "" {
		return "", errors.New("no CI config file: pass --file or set ARTIFACT_DIR")
	}
	return filepath.Join(app.env.ArtifactDir, config.SharedConfigFilename), nil
}

func dumper() config.Dumper {
	line := app.settings.CommandArgs.DumpCommand
	if line == "" {
		return nil
	}
	return config.CommandDumper{Runner: command.Exec{}, Argv: command.Split(line)}
}

func openConfig() (*config.Store, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	artifactDir := app.env.ArtifactDir
	if artifactDir != "" {
		if err := os.MkdirAll(artifactDir, 0o755); err != nil {
			return nil, err
		}
	}
	return config.Open(path, config.Options{
		ArtifactDir:            artifactDir,
		SharedDir:              app.env.SharedDir,
		TolerateForeignWriters: app.env.InCI(),
		Dumper:                 dumper(),
		Runner:                 command.Exec{},
		Env:                    app.env,
		Logger:                 app.logger,
	})
}

// parseValue reads a command-line value as YAML, so that 3 is an int and
// [a, b] a list.
func parseValue(raw string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("parsing value %q: %w", raw, err)
	}
	return v, nil
}
