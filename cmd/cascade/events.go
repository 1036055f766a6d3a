package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/behavior-cascade/internal/storage/sqlite"
	"github.com/banshee-data/behavior-cascade/internal/timeutil"
)

// Events flags
var (
	eventsBehavior string
	eventsPipeline string
	eventsSince    time.Duration
	eventsLimit    int
	eventsJSON     bool
	eventsTZ       string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List confirmed events from the database",
	Long: `List confirmed events stored by "cascade run --db".

Examples:
  cascade events --db events.db
  cascade events --db events.db --behavior smoke --since 1h
  cascade events --db events.db --json --limit 10`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsBehavior, "behavior", "", "Only this behavior")
	eventsCmd.Flags().StringVar(&eventsPipeline, "pipeline", "", "Only this pipeline id")
	eventsCmd.Flags().DurationVar(&eventsSince, "since", 0, "Only events newer than this (e.g. 30m)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "Maximum events to print (0 = all)")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Print one JSON object per line")
	eventsCmd.Flags().StringVar(&eventsTZ, "tz", "UTC", "Display timezone (tz database name or Local)")
}

func runEvents(cmd *cobra.Command, args []string) error {
	if dbPath == "" {
		return errors.New("--db is required")
	}
	loc, err := timeutil.LoadLocation(eventsTZ)
	if err != nil {
		return err
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := sqlite.MigrateUp(db); err != nil {
		return err
	}

	q := sqlite.EventQuery{Behavior: eventsBehavior, PipelineID: eventsPipeline, Limit: eventsLimit}
	if eventsSince > 0 {
		q.Since = time.Now().Add(-eventsSince)
	}
	events, err := sqlite.NewEventStore(db).List(cmd.Context(), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if eventsJSON {
		enc := json.NewEncoder(out)
		for _, e := range events {
			e.ConfirmedAt = e.ConfirmedAt.In(loc)
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tBEHAVIOR\tPIPELINE\tFRAME\tTRACK\tLABEL\tSCORE\tRATIO")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%.2f\t%.2f\n",
			e.ConfirmedAt.In(loc).Format(time.RFC3339), e.Behavior, e.PipelineID,
			e.FrameID, e.TrackID, e.Label, e.Score, e.HitRatio)
	}
	return tw.Flush()
}
