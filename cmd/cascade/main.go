// Command cascade runs a two-stage behavior detection pipeline over a
// video source and manages the confirmed-event store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/behavior-cascade/internal/version"
)

// Global flags
var (
	dbPath  string
	verbose bool
	traceLg bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Two-stage video behavior detection",
	Long: `cascade detects behaviors such as smoking or phone use in video.

A primary detector finds people, a tracker follows them across frames, a
secondary detector looks for behavior evidence inside each person's crop,
and a sliding-window vote turns per-frame evidence into confirmed events.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(os.Stderr, verbose, traceLg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite event database path (empty disables persistence)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable diagnostic logging")
	rootCmd.PersistentFlags().BoolVar(&traceLg, "trace", false, "Enable per-frame trace logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(profilesCmd)
}
