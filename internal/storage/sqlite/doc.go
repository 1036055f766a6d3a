// Package sqlite persists confirmed behavior events in SQLite.
//
// The schema is owned by the embedded golang-migrate migrations; Open
// applies connection pragmas only, and callers run MigrateUp before first
// use. EventStore satisfies cascade.EventSink so a pipeline can write its
// events directly.
package sqlite
