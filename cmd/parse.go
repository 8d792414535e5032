package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/matbench/internal/result"
)

var (
	flagIgnoreCache bool
	flagParallel    int
	flagSet         []string
)

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse RUN_DIR...",
		Short: "Parse run directories and refresh their cache",
		Long: "Parse every run directory found under the given paths. Cached runs only re-read " +
			"their settings, test config and exit code; others are fully parsed and cached.",
		Args: cobra.MinimumNArgs(1),
		RunE: runParse,
	}
	cmd.Flags().BoolVar(&flagIgnoreCache, "ignore-cache", false, "do not read existing cache files")
	cmd.Flags().IntVar(&flagParallel, "parallel", 0, "max concurrent parses (default from settings)")
	cmd.Flags().StringArrayVar(&flagSet, "set", nil, "override an import setting (key=value), repeatable")
	return cmd
}

// parseSetFlags turns key=value pairs into import settings overrides.
func parseSetFlags(pairs []string) (result.ImportSettings, error) {
	out := result.ImportSettings{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

func runParse(cmd *cobra.Command, args []string) error {
	overrides, err := parseSetFlags(flagSet)
	if err != nil {
		return err
	}
	parallel := flagParallel
	if parallel < 1 {
		parallel = app.settings.Parallel
	}

	s, err := newStore(flagIgnoreCache, nil)
	if err != nil {
		return err
	}
	settingsFn := func(dirname string) (result.ImportSettings, error) {
		settings, err := result.ReadSettings(dirname)
		if err != nil {
			return nil, err
		}
		for k, v := range overrides {
			settings[k] = v
		}
		return settings, nil
	}

	var errs []error
	for _, root := range args {
		entries, err := s.ParseTree(cmd.Context(), root, settingsFn, parallel)
		for _, r := range entries {
			runID := "-"
			if r.LTS != nil {
				runID = r.LTS.Metadata.RunID
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Always.Location, runID)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
