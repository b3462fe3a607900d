package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/reinkaoss/sifting-tool/internal/clients"
)

func newClientsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List the registered clients and their scoring layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := clients.Open(a.cfg.Storage.ClientsFile, a.logger)
			if err != nil {
				return withCode(exitCodeBadInput, err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tQUESTIONS\tLAYOUT\tMAX")
			for _, c := range reg.List() {
				layout := "numeric"
				if c.Mixed() {
					layout = "mixed"
				}
				shape := c.Shape()
				fmt.Fprintf(tw, "%s\t%d\t%s\t%d\n", c.Name, shape.DimensionCount, layout, shape.AggregateMax)
			}
			return tw.Flush()
		},
	}
}
