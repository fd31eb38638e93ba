package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helixir/keyword-hunter/internal/domain"
)

func newRegionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the supported market bases",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-4s %-6s %-7s %s\n", "KEY", "BASE", "REGION", "NAME")
			for _, r := range domain.Regions() {
				fmt.Fprintf(out, "%-4s %-6s %-7d %s\n", r.Key, r.Base, r.ID, r.Name)
			}
			fmt.Fprintf(out, "%-4s %-6s %-7s %s\n", "all", domain.MultiBase, "-", "All regions")
		},
	}
}
