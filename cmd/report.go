package cmd

import (
	"github.com/spf13/cobra"

	"github.com/signalnine/matbench/internal/report"
)

var (
	flagFormat  string
	flagGroupBy string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [RESULTS_DIR]",
		Short: "Summarize the parsed runs of a results tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := parseTree(cmd.Context(), resultsDir(args), nil)
			if err != nil {
				return err
			}
			return report.Generate(entries, flagFormat, flagGroupBy, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().StringVar(&flagGroupBy, "group-by", "", "group runs by this setting (default: all settings)")
	return cmd
}
