// Package trace registers a "sqlite-trace" database/sql driver that wraps
// modernc.org/sqlite and logs every statement through slog:
//
//	trace.Configure(logger, 100*time.Millisecond)
//	db, _ := dbopen.Open("app.db", dbopen.WithDriver(trace.DriverName))
//
// Statements log at debug, slow ones at warn and failures at error. The
// request trace ID set by shield is attached when the caller passes the
// request context down to the query.
package trace

import (
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// DefaultSlow is the threshold above which a statement logs at warn.
const DefaultSlow = 100 * time.Millisecond

var (
	mu     sync.RWMutex
	logger *slog.Logger
	slow   = DefaultSlow

	queries atomic.Int64
	failed  atomic.Int64
	slowN   atomic.Int64
)

// Configure sets the logger and slow threshold used by every connection
// opened with DriverName. A nil logger falls back to slog.Default and a
// non-positive threshold to DefaultSlow.
func Configure(l *slog.Logger, threshold time.Duration) {
	if threshold <= 0 {
		threshold = DefaultSlow
	}
	mu.Lock()
	logger, slow = l, threshold
	mu.Unlock()
}

func settings() (*slog.Logger, time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default(), slow
	}
	return logger, slow
}

// Stats counts traced statements since process start.
type Stats struct {
	Queries int64 `json:"queries"`
	Errors  int64 `json:"errors"`
	Slow    int64 `json:"slow"`
}

// Snapshot returns the current counters.
func Snapshot() Stats {
	return Stats{Queries: queries.Load(), Errors: failed.Load(), Slow: slowN.Load()}
}

func init() {
	sql.Register(DriverName, &Driver{Driver: &sqlite.Driver{}})
}
