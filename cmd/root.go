package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/matbench/internal/config"
	"github.com/signalnine/matbench/internal/env"
	"github.com/signalnine/matbench/internal/logging"
	"github.com/signalnine/matbench/internal/metrics"
	"github.com/signalnine/matbench/internal/parsers"
	"github.com/signalnine/matbench/internal/result"
	"github.com/signalnine/matbench/internal/store"
	"github.com/signalnine/matbench/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile         string
	flagLogLevel    string
	flagLogFormat   string
	flagArtifactDir string
	flagMetricsFile string
	flagTraceFile   string
)

// app is the state shared by the subcommands, built before each of them
// runs.
var app struct {
	logger   *slog.Logger
	settings *config.Settings
	env      env.Env
	metrics  *metrics.Metrics
	shutdown func(context.Context) error
}

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "matbench",
		Short:             "Benchmark result store and CI configuration manager",
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return teardown(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "matbench.yaml", "matbench settings file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "log format (auto, text, json)")
	root.PersistentFlags().StringVar(&flagArtifactDir, "artifact-dir", "", "artifact directory (default $ARTIFACT_DIR)")
	root.PersistentFlags().StringVar(&flagMetricsFile, "metrics-file", "", "write prometheus metrics to this textfile on exit")
	root.PersistentFlags().StringVar(&flagTraceFile, "trace-file", "", "write OpenTelemetry spans to this file")

	root.AddCommand(newParseCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newArchiveCmd())
	root.AddCommand(newConfigCmd())
	return root
}

func setup(cmd *cobra.Command, args []string) error {
	app.logger = logging.New(flagLogLevel, flagLogFormat, os.Stderr)
	slog.SetDefault(app.logger)

	settings, err := config.LoadSettings(cfgFile, !cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	app.settings = settings

	app.env = env.FromEnviron()
	if flagArtifactDir != "" {
		app.env.ArtifactDir = flagArtifactDir
	}
	app.metrics = metrics.New()

	app.shutdown, err = telemetry.Init(cmd.Context(), flagTraceFile, Version)
	return err
}

func teardown(ctx context.Context) error {
	var errs []error
	if flagMetricsFile != "" && app.metrics != nil {
		if err := app.metrics.WriteTextfile(flagMetricsFile); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}
	if app.shutdown != nil {
		errs = append(errs, app.shutdown(ctx))
	}
	return errors.Join(errs...)
}

// newStore builds the result store with the default parser.
func newStore(ignoreCache bool, sink store.Sink) (*store.Store, error) {
	return store.New(store.Options{
		Parser:      parsers.New(app.logger),
		Sink:        sink,
		IgnoreCache: ignoreCache,
		Logger:      app.logger,
		Metrics:     app.metrics,
	})
}

// resultsDir returns the first argument, or the configured results
// directory.
func resultsDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return app.settings.Results.Dir
}

// parseTree parses every run directory under root. Directories that fail
// are logged and skipped.
func parseTree(ctx context.Context, root string, sink store.Sink) ([]*result.Results, error) {
	s, err := newStore(false, sink)
	if err != nil {
		return nil, err
	}
	entries, err := s.ParseTree(ctx, root, nil, app.settings.Parallel)
	if err != nil {
		app.logger.Warn("some run directories failed to parse", "error", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no parsable run directory under %s", root)
	}
	return entries, nil
}
