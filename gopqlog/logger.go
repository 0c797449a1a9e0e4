// Package gopqlog defines the logging facade gopq's internals log
// through (§1.1 ambient stack), plus a zerolog-backed default
// implementation. Grounded on the teacher's logger.go Logger interface
// and log/zerologadapter's wiring of zerolog into it.
package gopqlog

import "github.com/rs/zerolog"

// Logger is the interface gopq's Connector and ConnectorPool log
// through. ctx is a flat list of alternating key/value pairs, matching
// the teacher's Logger contract.
type Logger interface {
	Debug(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

// Discard is a Logger that drops everything.
var Discard Logger = discardLogger{}

// Zerolog adapts a zerolog.Logger to the Logger interface.
type Zerolog struct {
	logger zerolog.Logger
}

func NewZerolog(logger zerolog.Logger) *Zerolog {
	return &Zerolog{logger: logger.With().Str("module", "gopq").Logger()}
}

func (z *Zerolog) Debug(msg string, ctx ...any) { z.log(zerolog.DebugLevel, msg, ctx) }
func (z *Zerolog) Warn(msg string, ctx ...any)  { z.log(zerolog.WarnLevel, msg, ctx) }
func (z *Zerolog) Error(msg string, ctx ...any) { z.log(zerolog.ErrorLevel, msg, ctx) }

func (z *Zerolog) log(level zerolog.Level, msg string, ctx []any) {
	event := z.logger.WithLevel(level)
	if !event.Enabled() {
		return
	}
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, ctx[i+1])
	}
	event.Msg(msg)
}

// WithConnector returns a Logger that annotates every line with the
// connector's backend process ID, mirroring the teacher's connLogger.
func WithConnector(l Logger, pid int32) Logger {
	return &connLogger{logger: l, pid: pid}
}

type connLogger struct {
	logger Logger
	pid    int32
}

func (l *connLogger) Debug(msg string, ctx ...any) { l.logger.Debug(msg, append(ctx, "pid", l.pid)...) }
func (l *connLogger) Warn(msg string, ctx ...any)  { l.logger.Warn(msg, append(ctx, "pid", l.pid)...) }
func (l *connLogger) Error(msg string, ctx ...any) { l.logger.Error(msg, append(ctx, "pid", l.pid)...) }
