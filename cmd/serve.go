package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signalnine/matbench/internal/result"
	"github.com/signalnine/matbench/internal/server"
	"github.com/signalnine/matbench/internal/store"
	"github.com/signalnine/matbench/internal/watch"
)

var (
	flagAddr  string
	flagWatch bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [RESULTS_DIR]",
		Short: "Serve the parsed runs over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := resultsDir(args)
			index := server.NewIndex()
			if _, err := parseTree(cmd.Context(), root, index.Add); err != nil {
				app.logger.Warn("serving without runs", "error", err)
			}

			addr := flagAddr
			if addr == "" {
				addr = app.settings.Server.Addr
			}
			srv := server.New(index, server.Options{Logger: app.logger, Metrics: app.metrics})

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.Run(ctx, addr) })
			if flagWatch {
				// A change makes the cache stale.
				s, err := newStore(true, index.Add)
				if err != nil {
					return err
				}
				w, err := watch.New(root, reparse(s), watch.Options{Logger: app.logger})
				if err != nil {
					return err
				}
				g.Go(func() error { return w.Run(ctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default from settings)")
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "re-parse run directories as they change")
	return cmd
}

// reparse returns a watch handler parsing a run directory with its current
// settings. The store's sink receives the result.
func reparse(s *store.Store) watch.Handler {
	return func(ctx context.Context, dirname string) error {
		settings, err := result.ReadSettings(dirname)
		if err != nil {
			return err
		}
		_, err = s.ParseDirectory(ctx, dirname, settings)
		return err
	}
}
