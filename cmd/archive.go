package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/matbench/internal/lts"
	"github.com/signalnine/matbench/internal/parsers"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Trim run directories and inspect the LTS archive",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "copy RUN_DIR DEST",
		Short: "Copy only the files needed to re-parse a run directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parsers.New(app.logger).Registry.Copy(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "copied %d files to %s\n", n, args[1])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list ARCHIVE_DIR",
		Short: "List the archived LTS payloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := lts.OpenArchive(args[0], app.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			payloads, err := a.List()
			if err != nil {
				return err
			}
			for _, p := range payloads {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d requests\n",
					p.Metadata.RunID, p.Metadata.Start.Format("2006-01-02T15:04:05Z07:00"), p.Results.Requests)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get ARCHIVE_DIR RUN_ID",
		Short: "Print one archived LTS payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := lts.OpenArchive(args[0], app.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			p, err := a.Get(args[1])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	})
	return cmd
}
