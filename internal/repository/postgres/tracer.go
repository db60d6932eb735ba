package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// traceLogger sends pgx trace output to zerolog under component=pgx.
type traceLogger struct {
	log zerolog.Logger
}

func newTraceLogger(logger zerolog.Logger) *traceLogger {
	return &traceLogger{log: logger.With().Str("module", "repository").Str("component", "pgx").Logger()}
}

// traceLevel keeps pgx from building trace data the logger would drop anyway.
func traceLevel(l zerolog.Level) tracelog.LogLevel {
	switch {
	case l <= zerolog.TraceLevel:
		return tracelog.LogLevelTrace
	case l == zerolog.DebugLevel:
		return tracelog.LogLevelDebug
	case l == zerolog.InfoLevel:
		return tracelog.LogLevelInfo
	case l == zerolog.WarnLevel:
		return tracelog.LogLevelWarn
	default:
		return tracelog.LogLevelError
	}
}

func (t *traceLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var ev *zerolog.Event
	switch level {
	case tracelog.LogLevelNone:
		return
	case tracelog.LogLevelTrace:
		ev = t.log.Trace()
	case tracelog.LogLevelDebug:
		ev = t.log.Debug()
	case tracelog.LogLevelInfo:
		ev = t.log.Info()
	case tracelog.LogLevelWarn:
		ev = t.log.Warn()
	case tracelog.LogLevelError:
		ev = t.log.Error()
	default:
		ev = t.log.Info().Str("pgx_level", level.String())
	}
	// Query arguments can carry password hashes and tokens.
	if _, ok := data["args"]; ok {
		data = without(data, "args")
	}
	ev.Fields(data).Msg(msg)
}

func without(in map[string]any, drop string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k != drop {
			out[k] = v
		}
	}
	return out
}
