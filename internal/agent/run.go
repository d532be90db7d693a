package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yndnr/converge/internal/core/domain"
)

// RunOptions configures Run.
type RunOptions struct {
	Options

	// InitialInterval is the first reconnect delay.
	InitialInterval time.Duration

	// MaxInterval caps the reconnect delay.
	MaxInterval time.Duration
}

var errSessionEnded = errors.New("agent: session ended")

// Run keeps a connected to the control service at address until ctx is
// done. Failed dials and lost connections are retried with exponential
// backoff; the delay resets after every session that passed the version
// check. A version mismatch is not retried.
func Run(ctx context.Context, address string, a Agent, opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	if opts.InitialInterval > 0 {
		b.InitialInterval = opts.InitialInterval
	}
	if opts.MaxInterval > 0 {
		b.MaxInterval = opts.MaxInterval
	}

	gated := &gateAgent{Agent: a}
	operation := func() error {
		client, err := Dial(ctx, address, gated, opts.Options)
		if err != nil {
			return err
		}

		gated.connected = false
		err = client.Serve(ctx)

		var mismatch *domain.VersionMismatchError
		switch {
		case errors.As(err, &mismatch):
			return backoff.Permanent(err)
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		}
		if gated.connected {
			b.Reset()
		}
		if err == nil {
			err = errSessionEnded
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		logger.Warn("control service unavailable, retrying", "error", err, "retry_in", next)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}

// gateAgent records whether the last session got past the version check.
type gateAgent struct {
	Agent
	connected bool
}

func (g *gateAgent) Connected(c *Client) {
	g.connected = true
	g.Agent.Connected(c)
}
