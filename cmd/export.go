package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signalnine/matbench/internal/lts"
	"github.com/signalnine/matbench/internal/models"
)

var (
	flagArchiveDir string
	flagInflux     bool
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [RESULTS_DIR]",
		Short: "Ship the validated LTS payloads of a results tree",
		Long: "Project and validate every run, then write the payloads to the local archive " +
			"and/or InfluxDB. Invalid payloads are reported and not exported.",
		Args: cobra.MaximumNArgs(1),
		RunE: runExport,
	}
	cmd.Flags().StringVar(&flagArchiveDir, "archive", "", "archive directory (default from settings)")
	cmd.Flags().BoolVar(&flagInflux, "influx", false, "write payloads to InfluxDB")
	return cmd
}

type namedExporter struct {
	name string
	lts.Exporter
}

func exporters() ([]namedExporter, func(), error) {
	var (
		out     []namedExporter
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	dir := flagArchiveDir
	if dir == "" {
		dir = app.settings.Archive.Dir
	}
	if dir != "" {
		a, err := lts.OpenArchive(dir, app.logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { a.Close() })
		out = append(out, namedExporter{"archive", a})
	}

	if flagInflux {
		url, org, bucket := app.settings.Influx.URL, app.settings.Influx.Org, app.settings.Influx.Bucket
		if app.env.InfluxURL != "" {
			url = app.env.InfluxURL
		}
		if app.env.InfluxOrg != "" {
			org = app.env.InfluxOrg
		}
		if app.env.InfluxBucket != "" {
			bucket = app.env.InfluxBucket
		}
		if url == "" || org == "" || bucket == "" {
			closeAll()
			return nil, nil, errors.New("influx export needs a url, org and bucket")
		}
		e := lts.NewInfluxExporter(url, app.env.InfluxToken, org, bucket)
		closers = append(closers, e.Close)
		out = append(out, namedExporter{"influx", e})
	}

	if len(out) == 0 {
		return nil, nil, errors.New("nothing to export to: pass --archive or --influx")
	}
	return out, closeAll, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	schema, err := lts.LookupSchema(app.settings.Schema)
	if err != nil {
		return err
	}
	targets, closeAll, err := exporters()
	if err != nil {
		return err
	}
	defer closeAll()

	entries, err := parseTree(cmd.Context(), resultsDir(args), nil)
	if err != nil {
		return err
	}
	payloads, projErr := schema.BuildPayloads(entries, true)
	if projErr != nil {
		app.logger.Warn("some payloads are invalid and are not exported", "error", projErr)
	}

	if err := exportAll(cmd.Context(), targets, payloads); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d payloads\n", len(payloads))
	return projErr
}

func exportAll(ctx context.Context, targets []namedExporter, payloads []*models.Payload) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			if err := t.Export(ctx, payloads); err != nil {
				return fmt.Errorf("%s export: %w", t.name, err)
			}
			app.metrics.Exported(t.name, len(payloads))
			app.logger.Info("exported LTS payloads", "exporter", t.name, "count", len(payloads))
			return nil
		})
	}
	return g.Wait()
}
