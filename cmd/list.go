package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/wikiprobe/internal/scenario"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the scenarios of both suites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			queries, err := scenario.LoadQueries(cfg.Run.QueriesFile)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range []scenario.Suite{scenario.WebSuite(queries), scenario.MobileSuite(queries)} {
				fmt.Fprintf(tw, "%s\t\n", s.Name)
				for _, c := range s.Cases {
					fmt.Fprintf(tw, "  %s\t%s\n", c.Name, c.Description)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("queries", "", "YAML file with web and mobile search queries")
	bindFlag(cmd, "queries", "run.queries_file")
	return cmd
}
