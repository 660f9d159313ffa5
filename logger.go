package motion

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards all log records. Enabled returns false so callers
// skip message formatting entirely when logging is off.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the package-level logger. Stored atomically so
// SetLogger is safe against concurrent logging from worker goroutines.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the package-level logger, used by supervisors
// constructed with a nil logger. By default nothing is logged. Pass nil
// to restore the silent default.
//
// Levels used:
//   - slog.LevelDebug: per-frame and per-phase worker diagnostics
//   - slog.LevelInfo: lifecycle events (launch, decode, completion, release)
//   - slog.LevelWarn: recoverable failures (allocation, decode, stop timeout)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current package-level logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
