package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/matbench/internal/lts"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [RESULTS_DIR]",
		Short: "Re-project every run and validate its LTS payload",
		Long: "Parse the results tree, project each run with the configured LTS schema and check " +
			"the payloads against the schema. Exits non-zero when any payload is invalid.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := lts.LookupSchema(app.settings.Schema)
			if err != nil {
				return err
			}
			entries, err := parseTree(cmd.Context(), resultsDir(args), nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			invalid := 0
			for _, r := range entries {
				_, err := schema.Project(r, r.Always.ImportSettings, true)
				var sve *lts.SchemaValidationError
				switch {
				case err == nil:
					fmt.Fprintf(out, "ok       %s\n", r.Always.Location)
				case errors.As(err, &sve):
					invalid++
					fmt.Fprintf(out, "invalid  %s: %s (%s)\n", r.Always.Location, sve.Field, sve.Tag)
				default:
					invalid++
					fmt.Fprintf(out, "error    %s: %v\n", r.Always.Location, err)
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d payloads do not match schema %s %s",
					invalid, len(entries), schema.Name, schema.Version)
			}
			fmt.Fprintf(out, "%d payloads match schema %s %s\n", len(entries), schema.Name, schema.Version)
			return nil
		},
	}
}
