// Package tracer provides distributed tracing for converge.
//
// It uses OpenTelemetry for span creation and W3C Trace Context for
// propagation. An Action wraps one span and mirrors its lifecycle in the
// structured log: one "started" entry and one "succeeded" or "failed"
// entry, each carrying trace_id, span_id, parent_span_id (when the span
// has a parent), action_type and action_status.
//
// A sender serializes its action as a traceparent string and passes it
// to the peer, which continues the trace with Continue. The receiver's
// span is a child of the sender's span, so both processes' spans and log
// entries join into one trace.
package tracer
