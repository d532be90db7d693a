package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/protocol"
	"github.com/yndnr/converge/internal/telemetry/metric"
	"github.com/yndnr/converge/internal/telemetry/tracer"
)

// Options configures a Client.
type Options struct {
	MaxFrameSize  int
	SendQueueSize int
	Logger        *slog.Logger
	Metrics       *metric.Registry
}

// update is a push received before the version check finished.
type update struct {
	ctx           context.Context
	configuration *domain.Deployment
	state         *domain.Deployment
}

// Client is one agent connection to the control service.
type Client struct {
	conn   *protocol.Conn
	agent  Agent
	logger *slog.Logger

	// deliverMu orders ClusterUpdated calls and guards the gate.
	deliverMu sync.Mutex
	open      bool
	stash     *update
}

// Dial connects to the control service at address.
func Dial(ctx context.Context, address string, a Agent, opts Options) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("agent: dial %s: %w", address, err)
	}
	return NewClient(nc, a, opts), nil
}

// NewClient wraps an established connection. Nothing happens until
// Serve runs.
func NewClient(nc net.Conn, a Agent, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{agent: a, logger: logger}

	loc := protocol.NewLocator()
	loc.Register(protocol.ClusterStatusCommand, protocol.Decoded(c.handleClusterStatus),
		protocol.ResumeTrace(logger, "agent:cluster_status"))

	c.conn = protocol.NewConn(nc, loc, protocol.Options{
		MaxFrameSize:  opts.MaxFrameSize,
		SendQueueSize: opts.SendQueueSize,
		Logger:        logger,
		Metrics:       opts.Metrics,
	})
	return c
}

// ID returns the connection id.
func (c *Client) ID() string { return c.conn.ID() }

// Close closes the connection; Serve returns.
func (c *Client) Close() error { return c.conn.Close() }

// Serve checks the protocol version, then delivers pushes to the agent
// until the connection closes or ctx is done.
//
// A major version mismatch tears the connection down and returns a
// *domain.VersionMismatchError; Connected is not called in that case.
func (c *Client) Serve(ctx context.Context) error {
	served := make(chan error, 1)
	go func() { served <- c.conn.Serve(ctx) }()

	if err := c.checkVersion(ctx); err != nil {
		c.conn.Close()
		<-served
		return err
	}

	c.logger.Info("connected to control service",
		"conn_id", c.conn.ID(),
		"remote_addr", c.conn.RemoteAddr().String(),
	)
	c.agent.Connected(c)
	c.openGate()

	err := <-served
	c.agent.Disconnected()
	return err
}

func (c *Client) checkVersion(ctx context.Context) error {
	resp, err := c.conn.CallRemote(ctx, protocol.VersionCommand, protocol.Args{})
	if err != nil {
		return fmt.Errorf("agent: version check: %w", err)
	}
	if remote := resp.Int32(protocol.ArgMajor); remote != protocol.ProtocolMajor {
		err := &domain.VersionMismatchError{Local: protocol.ProtocolMajor, Remote: remote}
		c.logger.Error("control service speaks another protocol", "error", err)
		return err
	}
	return nil
}

// openGate starts delivering pushes. The latest push received before
// the gate opened is delivered first.
func (c *Client) openGate() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.open = true
	if u := c.stash; u != nil {
		c.stash = nil
		// The action that received the push has finished; deliver it
		// under a new child in the same trace.
		action := tracer.StartAction(u.ctx, c.logger, "agent:deliver_held_cluster_status")
		c.agent.ClusterUpdated(tracer.WithAction(u.ctx, action), u.configuration, u.state)
		action.Finish(nil)
	}
}

// ReportNodeState sends the node's state and waits for the control
// service to acknowledge it.
func (c *Client) ReportNodeState(ctx context.Context, ns *domain.NodeState) error {
	action, trace := protocol.StartPush(ctx, c.logger, "agent:report_node_state")
	action.Log("reporting node state", "hostname", ns.Hostname)

	_, err := c.conn.CallRemote(ctx, protocol.NodeStateCommand, protocol.Args{
		protocol.ArgNodeState:    ns,
		protocol.ArgTraceContext: trace,
	})
	action.Finish(err)
	return err
}

func (c *Client) handleClusterStatus(ctx context.Context, args protocol.Args) (protocol.Args, error) {
	configuration := protocol.Value[domain.Deployment](args, protocol.ArgConfiguration)
	state := protocol.Value[domain.Deployment](args, protocol.ArgState)

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	if !c.open {
		if a := tracer.FromContext(ctx); a != nil {
			a.Log("holding cluster status until version check completes")
		}
		c.stash = &update{ctx: context.WithoutCancel(ctx), configuration: configuration, state: state}
		return protocol.Args{}, nil
	}
	c.agent.ClusterUpdated(ctx, configuration, state)
	return protocol.Args{}, nil
}
