package tracer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/telemetry/logger"
)

// Action status values logged in the action_status attribute.
const (
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const traceparentKey = "traceparent"

var traceContext = propagation.TraceContext{}

// Action is one span of a trace, mirrored in the structured log.
type Action struct {
	span   trace.Span
	parent trace.SpanContext
	base   *slog.Logger
	logger *slog.Logger
	start  time.Time
	once   sync.Once
}

// StartAction begins a child of the action carried by ctx, or the root
// span of a new trace when ctx carries none.
func StartAction(ctx context.Context, l *slog.Logger, actionType string) *Action {
	if parent := FromContext(ctx); parent != nil {
		if l == nil {
			l = parent.base
		}
		return start(trace.ContextWithSpan(context.Background(), parent.span), l, actionType)
	}
	return start(context.Background(), l, actionType, trace.WithNewRoot())
}

// Continue resumes a trace serialized by another process. The returned
// action is a child of the sender's span. A malformed serialized form
// yields an error matching domain.ErrTraceContextInvalid.
func Continue(l *slog.Logger, serialized, actionType string) (*Action, error) {
	ctx := traceContext.Extract(context.Background(), propagation.MapCarrier{traceparentKey: serialized})
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return nil, domain.ErrTraceContextInvalid.WithDetails(fmt.Sprintf("%q is not a traceparent", serialized))
	}
	return start(ctx, l, actionType, trace.WithSpanKind(trace.SpanKindServer)), nil
}

func start(ctx context.Context, l *slog.Logger, actionType string, opts ...trace.SpanStartOption) *Action {
	if l == nil {
		l = slog.Default()
	}
	parent := trace.SpanContextFromContext(ctx)
	_, span := tracer().Start(ctx, actionType, opts...)
	sc := span.SpanContext()

	attrs := []any{"trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String()}
	if parent.IsValid() {
		attrs = append(attrs, "parent_span_id", parent.SpanID().String())
	}
	attrs = append(attrs, "action_type", actionType)

	a := &Action{
		span:   span,
		parent: parent,
		base:   l,
		logger: l.With(attrs...),
		start:  time.Now(),
	}
	a.logger.Info("action "+StatusStarted, "action_status", StatusStarted)
	return a
}

// Child starts a sub-action below a.
func (a *Action) Child(actionType string) *Action {
	return start(trace.ContextWithSpan(context.Background(), a.span), a.base, actionType)
}

// Serialize returns a's span context as a W3C traceparent string.
func (a *Action) Serialize() string {
	carrier := propagation.MapCarrier{}
	traceContext.Inject(trace.ContextWithSpan(context.Background(), a.span), carrier)
	return carrier.Get(traceparentKey)
}

// Log writes an informational message inside the action and records it
// as a span event.
func (a *Action) Log(msg string, args ...any) {
	a.span.AddEvent(msg)
	a.logger.Info(msg, args...)
}

// Logger returns a logger whose entries carry the action attributes.
func (a *Action) Logger() *slog.Logger {
	return a.logger
}

// Finish ends the span and logs the outcome. A nil err means success.
// Only the first call has any effect.
func (a *Action) Finish(err error) {
	a.once.Do(func() {
		duration := time.Since(a.start)
		if err != nil {
			a.span.RecordError(err)
			a.span.SetStatus(codes.Error, err.Error())
			a.span.End()
			a.logger.Warn("action "+StatusFailed,
				"action_status", StatusFailed,
				"duration", duration,
				"error", err.Error(),
			)
			return
		}
		a.span.SetStatus(codes.Ok, "")
		a.span.End()
		a.logger.Info("action "+StatusSucceeded,
			"action_status", StatusSucceeded,
			"duration", duration,
		)
	})
}

// SpanContext returns the identity of a's span.
func (a *Action) SpanContext() trace.SpanContext { return a.span.SpanContext() }

// Parent returns the span context a was started under. It is invalid for
// the root of a trace.
func (a *Action) Parent() trace.SpanContext { return a.parent }

func (a *Action) TraceID() string { return a.span.SpanContext().TraceID().String() }

// ============================================================================
// Context
// ============================================================================

type contextKey struct{}

// WithAction returns a context carrying a and its span. The trace ID is
// also set as the logger trace ID so logger.L(ctx) entries can be
// correlated.
func WithAction(ctx context.Context, a *Action) context.Context {
	ctx = trace.ContextWithSpan(ctx, a.span)
	ctx = context.WithValue(ctx, contextKey{}, a)
	return logger.WithTraceID(ctx, a.TraceID())
}

// FromContext returns the action carried by ctx, or nil.
func FromContext(ctx context.Context) *Action {
	a, _ := ctx.Value(contextKey{}).(*Action)
	return a
}
