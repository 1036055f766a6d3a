package cascade

import (
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	logMu       sync.RWMutex
	opsLogger   *log.Logger
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	logMu.Lock()
	defer logMu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
	traceLogger = newLogger(w.Trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[cascade] ", log.LstdFlags|log.Lmicroseconds)
}

func logf(l **log.Logger, format string, args ...interface{}) {
	logMu.RLock()
	lg := *l
	logMu.RUnlock()
	if lg != nil {
		lg.Printf(format, args...)
	}
}

// opsf logs actionable warnings and errors.
func opsf(format string, args ...interface{}) { logf(&opsLogger, format, args...) }

// diagf logs pass diagnostics and model lifecycle.
func diagf(format string, args ...interface{}) { logf(&diagLogger, format, args...) }

// tracef logs per-pass telemetry.
func tracef(format string, args ...interface{}) { logf(&traceLogger, format, args...) }
