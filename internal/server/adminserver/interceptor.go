package adminserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"

	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/telemetry/metric"
)

// LoggingInterceptor logs every admin request.
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor.
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingInterceptor{logger: logger}
}

// WrapUnary implements connect.Interceptor.
func (i *LoggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()

		resp, err := next(ctx, req)

		attrs := []any{
			"procedure", req.Spec().Procedure,
			"peer", req.Peer().Addr,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			i.logger.Warn("admin request failed", append(attrs, "code", connect.CodeOf(err).String(), "error", err)...)
		} else {
			i.logger.Info("admin request", attrs...)
		}
		return resp, err
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *LoggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor. The admin service
// has no streaming procedures.
func (i *LoggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

// RecoveryInterceptor turns a panicking handler into an internal error.
type RecoveryInterceptor struct {
	logger *slog.Logger
}

// NewRecoveryInterceptor creates a new recovery interceptor.
func NewRecoveryInterceptor(logger *slog.Logger) *RecoveryInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryInterceptor{logger: logger}
}

// WrapUnary implements connect.Interceptor.
func (i *RecoveryInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, err error) {
		defer func() {
			if r := recover(); r != nil {
				i.logger.Error("admin request panic recovered",
					"procedure", req.Spec().Procedure,
					"panic", r)

				err = connect.NewError(connect.CodeInternal,
					domain.ErrInternal.WithDetails(fmt.Sprint("panic recovered: ", r)))
			}
		}()

		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *RecoveryInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *RecoveryInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

// NewRateLimitInterceptor rejects requests beyond rps (with the given
// burst) across all callers. A non-positive rps disables the limit.
func NewRateLimitInterceptor(rps float64, burst int) connect.UnaryInterceptorFunc {
	if rps <= 0 {
		return func(next connect.UnaryFunc) connect.UnaryFunc { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !limiter.Allow() {
				return nil, connect.NewError(connect.CodeResourceExhausted, domain.ErrRateLimited)
			}
			return next(ctx, req)
		}
	}
}

// NewMetricsInterceptor counts requests by procedure and result code.
func NewMetricsInterceptor(metrics *metric.Registry) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			resp, err := next(ctx, req)
			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			metrics.ObserveAdminRequest(req.Spec().Procedure, code)
			return resp, err
		}
	}
}

// DefaultInterceptors returns the interceptor chain of the admin API.
// Recovery sits inside logging and metrics so a recovered panic is
// still logged and counted.
func DefaultInterceptors(logger *slog.Logger, metrics *metric.Registry, rps float64, burst int) []connect.Interceptor {
	return []connect.Interceptor{
		NewMetricsInterceptor(metrics),
		NewLoggingInterceptor(logger),
		NewRecoveryInterceptor(logger),
		NewRateLimitInterceptor(rps, burst),
	}
}
