// Package gasplog provides the structured-logging seam used by the scanner
// and stack machine to report recovered errors and diagnostics. It mirrors
// the teacher runtime's Logger-interface-plus-noop-default shape, minus the
// metrics/tracing half: a single-threaded, non-networked parser has no
// spans or counters worth emitting (see DESIGN.md).
package gasplog

import (
	"context"

	"goa.design/clue/log"
)

// Logger is the structured-logging interface implemented by gasp's default
// adapters. Callers may supply their own implementation via gasp.WithLogger.
type Logger interface {
	// Debug emits a debug-level message with structured key-value pairs.
	Debug(msg string, keyvals ...any)
	// Warn emits a warning-level message with structured key-value pairs.
	// scanner.Scanner.record and machine.Machine.record both call Warn
	// alongside recording the same event into their respective
	// gasperr.Recorder, covering malformed tokens, schema mismatches, and
	// primitive parse failures.
	Warn(msg string, keyvals ...any)
}

// NoopLogger discards every call. It is the default when no logger is
// configured, matching the parser's "no global state" design note.
type NoopLogger struct{}

// Debug implements Logger.
func (NoopLogger) Debug(string, ...any) {}

// Warn implements Logger.
func (NoopLogger) Warn(string, ...any) {}

// clueLogger delegates to goa.design/clue/log, the teacher's own structured
// logging dependency. Unlike the teacher's ClueLogger it takes no context
// parameter on its methods: gasp's parser has no request-scoped context to
// thread (Feed is a pure, synchronous call), so context.Background() is
// used for every call. Configure clue's global formatting/debug settings
// the same way the host application already does (log.Context,
// log.WithFormat, log.WithDebug) before constructing a gasp.Parser.
type clueLogger struct{}

// NewClueLogger constructs a Logger that delegates to goa.design/clue/log.
func NewClueLogger() Logger {
	return clueLogger{}
}

// Debug implements Logger.
func (clueLogger) Debug(msg string, keyvals ...any) {
	log.Debug(context.Background(), fielders(msg, keyvals)...)
}

// Warn implements Logger.
func (clueLogger) Warn(msg string, keyvals ...any) {
	fs := append(fielders(msg, keyvals), log.KV{K: "severity", V: "warning"})
	log.Warn(context.Background(), fs...)
}

func fielders(msg string, keyvals []any) []log.Fielder {
	out := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		out = append(out, log.KV{K: k, V: keyvals[i+1]})
	}
	return out
}
