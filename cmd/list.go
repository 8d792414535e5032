package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/matbench/internal/artifact"
	"github.com/signalnine/matbench/internal/parsers"
	"github.com/signalnine/matbench/internal/result"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [RESULTS_DIR]",
		Short: "List run directories and their resolved artifacts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := resultsDir(args)
			dirs, err := result.FindRunDirs(root)
			if err != nil {
				return err
			}
			patterns := parsers.New(app.logger).ArtifactDirnames()
			names := make([]string, 0, len(patterns))
			for name := range patterns {
				names = append(names, name)
			}
			sort.Strings(names)

			resolver := &artifact.Resolver{Logger: app.logger}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run directories under %s:\n", root)
			for _, dir := range dirs {
				paths := resolver.Resolve(dir, patterns)
				fmt.Fprintf(out, "  - %s\n", dir)
				for _, name := range names {
					resolved := paths.All(name)
					switch len(resolved) {
					case 0:
						fmt.Fprintf(out, "      %s: (unresolved)\n", name)
					case 1:
						fmt.Fprintf(out, "      %s: %s\n", name, resolved[0])
					default:
						fmt.Fprintf(out, "      %s: ambiguous [%s]\n", name, strings.Join(resolved, ", "))
					}
				}
			}
			return nil
		},
	}
}
