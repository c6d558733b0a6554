// Package obslog carries the runtime's ambient logging and tracing concern.
// go-crablet's own process entrypoints (internal/web-app/main.go,
// internal/grpc-app/server/main.go) configure the stdlib "log" package once
// at startup and log free-form strings; this runtime instead gives every
// error taxonomy Kind (§7) a fixed logrus field and propagation level, and
// wraps every transaction boundary in an OpenTelemetry span: command.Run
// (command execution), dispatch.Dispatch (dispatch), schedule.Tick (tick),
// and recheck.Drain (recheck drain) each start one via StartSpan, so a
// single entry/span shows up for each taxonomy member regardless of which
// component raised it.
package obslog

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// tracerName is the instrumentation scope registered with the global
// TracerProvider. cmd/runtimed installs an SDK TracerProvider (with no
// exporter configured); tests use the no-op provider otel installs by
// default.
const tracerName = "github.com/quietcore/runtime"

// Logger wraps a logrus.FieldLogger so call sites don't import logrus
// directly; tests can substitute a captured logger via NewWithLogger.
type Logger struct {
	l *logrus.Logger
}

// New returns a Logger writing structured JSON-free text fields to stderr
// at Info level (Trace level when testMode is set), matching go-crablet's
// "only show what matters" posture (its web-app init() sets log flags once
// and never touches them again).
func New(testMode bool) *Logger {
	l := logrus.New()
	if testMode {
		l.SetLevel(logrus.TraceLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &Logger{l: l}
}

// NewWithLogger wraps an existing *logrus.Logger, e.g. one tests attach a
// hook to for assertions.
func NewWithLogger(l *logrus.Logger) *Logger { return &Logger{l: l} }

// TaxonomyEntry logs err according to the §7 propagation policy: kinds
// Recoverable() log at Warn (the enclosing tick/batch continues); the rest
// log at Error (the transaction is about to roll back and the error is
// about to bubble).
func (lg *Logger) TaxonomyEntry(op string, kind runtimeerr.Kind, err error) {
	entry := lg.l.WithFields(logrus.Fields{
		"op":   op,
		"kind": string(kind),
	})
	if kind.Recoverable() {
		entry.Warn(err)
	} else {
		entry.Error(err)
	}
}

// Info logs at info level with the given fields — used for silent-at-info
// drops (§4.7: malformed transit traffic is expected).
func (lg *Logger) Info(msg string, fields logrus.Fields) {
	lg.l.WithFields(fields).Info(msg)
}

// Debug logs at debug/trace level, enabled only when TestMode is set.
func (lg *Logger) Debug(msg string, fields logrus.Fields) {
	lg.l.WithFields(fields).Debug(msg)
}

// StartSpan starts a span under the runtime's tracer, returning the
// context to propagate and a finish func that records the error (if any)
// and ends the span. Callers defer the returned func.
func StartSpan(ctx context.Context, name string) (context.Context, func(err *error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	return ctx, func(err *error) {
		if err != nil && *err != nil {
			span.RecordError(*err)
			span.SetStatus(codes.Error, (*err).Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// SpanFromContext exposes the active span for components that want to add
// attributes inline rather than via the finish callback (e.g. the
// scheduler tagging which job ran).
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
