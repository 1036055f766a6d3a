package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/behavior-cascade/internal/storage/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down|status|force N>",
	Short: "Manage the event database schema",
	Long: `Apply, roll back or inspect the embedded schema migrations.

Examples:
  cascade migrate up --db events.db
  cascade migrate status --db events.db
  cascade migrate force 1 --db events.db`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if dbPath == "" {
		return errors.New("--db is required")
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	switch args[0] {
	case "up":
		if err := sqlite.MigrateUp(db); err != nil {
			return err
		}
	case "down":
		if err := sqlite.MigrateDown(db); err != nil {
			return err
		}
	case "status":
	case "force":
		if len(args) < 2 {
			return errors.New("usage: cascade migrate force <version>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := sqlite.MigrateForce(db, v); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}

	version, dirty, err := sqlite.MigrateVersion(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
