package protocol

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/telemetry/tracer"
)

// ResumeTrace strips the trace_context argument, continues the sender's
// trace under actionType and runs the responder inside that action. The
// action is finished on every exit path, including argument decode
// errors and panics.
//
// A missing or malformed trace context fails the invocation with an
// error matching domain.ErrDecode.
func ResumeTrace(l *slog.Logger, actionType string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (result Args, err error) {
			raw, ok := req.Strip(ArgTraceContext)
			if !ok {
				return nil, &ArgumentError{Command: req.Command.Name, Argument: ArgTraceContext, Err: ErrMissingArgument}
			}
			v, err := Unicode.Decode(raw)
			if err != nil {
				return nil, &ArgumentError{Command: req.Command.Name, Argument: ArgTraceContext, Err: err}
			}

			action, err := tracer.Continue(l, v.(string), actionType)
			if err != nil {
				return nil, domain.ErrDecode.Wrap(err)
			}

			defer func() {
				if r := recover(); r != nil {
					action.Finish(fmt.Errorf("panic: %v", r))
					panic(r)
				}
				action.Finish(err)
			}()

			return next(tracer.WithAction(ctx, action), req)
		}
	}
}

// StartPush opens the sender-side action for a push and returns it with
// the serialized trace context to send. The caller finishes the action
// once the push is answered.
func StartPush(ctx context.Context, l *slog.Logger, actionType string) (*tracer.Action, string) {
	action := tracer.StartAction(ctx, l, actionType)
	return action, action.Serialize()
}
