package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/matbench/internal/result"
	"github.com/signalnine/matbench/internal/watch"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [RESULTS_DIR]",
		Short: "Re-parse run directories whenever their artifacts change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := resultsDir(args)
			out := cmd.OutOrStdout()
			// A change makes the cache stale.
			s, err := newStore(true, func(r *result.Results) {
				fmt.Fprintf(out, "parsed %s\n", r.Always.Location)
			})
			if err != nil {
				return err
			}
			w, err := watch.New(root, reparse(s), watch.Options{Logger: app.logger})
			if err != nil {
				return err
			}
			app.logger.Info("watching results tree", "root", root)
			return w.Run(cmd.Context())
		},
	}
}
