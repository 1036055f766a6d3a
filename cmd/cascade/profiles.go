package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the built-in behavior profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range cascade.Behaviors() {
			p, err := cascade.ProfileFor(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-12s stages=%d include=%v remap=%v window=%d/%.2f\n",
				p.Behavior, p.Stages, p.Include, p.Remap, p.Statistics.Interval, p.Statistics.Threshold)
		}
		return nil
	},
}
