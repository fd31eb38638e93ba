package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/keyword-hunter/internal/seeds"
)

func newSeedsCmd(app *App) *cobra.Command {
	var (
		targets string
		count   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "seeds [niche]",
		Short: "Generate seed phrases without calling the API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := app.Config.Research
			niche := rc.Niche
			if len(args) == 1 {
				niche = args[0]
			}
			if strings.TrimSpace(niche) == "" {
				return errors.New("niche is required")
			}
			seedTargets := rc.SeedTargets
			if cmd.Flags().Changed("targets") {
				seedTargets = splitList(targets)
			}
			if !cmd.Flags().Changed("count") {
				count = rc.SeedCount
			}

			list := seeds.NewGenerator(niche, seedTargets).Generate(count)
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(list, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal seeds: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			for _, s := range list {
				fmt.Fprintln(out, s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&targets, "targets", "", "comma separated seeds placed ahead of generated ones")
	cmd.Flags().IntVarP(&count, "count", "n", seeds.DefaultCount, "number of seeds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output seeds as a JSON array")
	return cmd
}
