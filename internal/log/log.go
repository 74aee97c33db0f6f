// Package log provides the ambient structured logger shared by every
// runtime package, following the package-level log var +
// UseLogger(...) wiring pattern lnd-style projects use. Runtime
// packages call DebugS/InfoS/WarnS/ErrorS/TraceS directly; embedding
// applications decide where the records end up by calling UseLogger.
package log

import (
	"context"

	"github.com/btcsuite/btclog/v2"
)

// log is the package-wide logger. It defaults to Disabled so the
// runtime is silent until an embedding application wires a real
// handler in.
var log = btclog.Disabled

// UseLogger replaces the package-wide logger, typically called once at
// process start with a logger built from a btclog.Handler (console,
// rotating file, or both fanned out via a handler set).
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Logger returns the currently active logger, for packages that want
// to derive a subsystem-scoped logger via WithPrefix.
func Logger() btclog.Logger {
	return log
}

// DebugS logs at debug level with structured key-value pairs.
func DebugS(ctx context.Context, msg string, keyvals ...any) {
	log.DebugS(ctx, msg, keyvals...)
}

// InfoS logs at info level with structured key-value pairs.
func InfoS(ctx context.Context, msg string, keyvals ...any) {
	log.InfoS(ctx, msg, keyvals...)
}

// WarnS logs at warn level with structured key-value pairs.
func WarnS(ctx context.Context, msg string, keyvals ...any) {
	log.WarnS(ctx, msg, nil, keyvals...)
}

// ErrorS logs at error level with structured key-value pairs and an
// associated error.
func ErrorS(ctx context.Context, msg string, err error, keyvals ...any) {
	log.ErrorS(ctx, msg, err, keyvals...)
}

// TraceS logs at trace level with structured key-value pairs.
func TraceS(ctx context.Context, msg string, keyvals ...any) {
	log.TraceS(ctx, msg, keyvals...)
}
