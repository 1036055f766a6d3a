package main

import (
	"io"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
	"github.com/banshee-data/behavior-cascade/internal/storage/sqlite"
	"github.com/banshee-data/behavior-cascade/internal/tracking"
	"github.com/banshee-data/behavior-cascade/internal/watch"
)

// configureLogging routes every package's ops stream to w, and the diag
// and trace streams only when asked for.
func configureLogging(w io.Writer, diag, trace bool) {
	var diagW, traceW io.Writer
	if diag {
		diagW = w
	}
	if trace {
		traceW = w
	}
	cascade.SetLogWriters(cascade.LogWriters{Ops: w, Diag: diagW, Trace: traceW})
	tracking.SetLogWriters(tracking.LogWriters{Ops: w, Diag: diagW, Trace: traceW})
	watch.SetLogWriters(watch.LogWriters{Ops: w, Diag: diagW, Trace: traceW})
	sqlite.SetMigrateLogWriter(diagW)
}
