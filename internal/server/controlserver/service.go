package controlserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/converge/internal/codec"
	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/infra/gather"
	"github.com/yndnr/converge/internal/protocol"
	"github.com/yndnr/converge/internal/telemetry/metric"
	"github.com/yndnr/converge/internal/telemetry/tracer"
)

// Broadcast triggers, used as the metric label and in logs.
const (
	TriggerConnect       = "connect"
	TriggerConfiguration = "configuration"
	TriggerNodeState     = "node_state"
)

// ConfigurationSource provides the desired configuration.
type ConfigurationSource interface {
	Get() *domain.Deployment
	Register(onChange func())
}

// ClusterState aggregates node states.
type ClusterState interface {
	UpdateNodeState(ns *domain.NodeState) error
	AsDeployment() *domain.Deployment
}

// Config holds the control service configuration.
type Config struct {
	// ListenAddress is the agent endpoint.
	ListenAddress string

	// MaxFrameSize bounds protocol frames.
	MaxFrameSize int

	// SendQueueSize bounds each session's outgoing queue. A push that
	// finds the queue full fails for that session only.
	SendQueueSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:4524",
		MaxFrameSize:  protocol.DefaultMaxFrameSize,
		SendQueueSize: protocol.DefaultSendQueueSize,
	}
}

// Service is the control service.
type Service struct {
	cfg     *Config
	configs ConfigurationSource
	state   ClusterState
	logger  *slog.Logger
	metrics *metric.Registry
	locator *protocol.Locator

	// ctx lives until Stop; pushes wait on it.
	ctx    context.Context
	cancel context.CancelFunc

	startMu  sync.Mutex
	ln       net.Listener
	running  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu   sync.Mutex
	live map[string]*Session

	// broadcastMu orders episodes: pushes of one episode are queued on
	// every session before the next episode reads its snapshot.
	broadcastMu sync.Mutex
}

// New creates the control service and subscribes it to configuration
// changes.
func New(cfg *Config, configs ConfigurationSource, state ClusterState, logger *slog.Logger, metrics *metric.Registry) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:     cfg,
		configs: configs,
		state:   state,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		live:    make(map[string]*Session),
	}

	s.locator = protocol.NewLocator()
	s.locator.Register(protocol.VersionCommand, protocol.Decoded(s.handleVersion))
	s.locator.Register(protocol.NodeStateCommand, s.handleNodeState,
		protocol.ResumeTrace(logger, "control:node_state"))

	configs.Register(s.configurationChanged)
	return s
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start binds the agent endpoint and accepts connections in the
// background.
func (s *Service) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("controlserver: listen %s: %w", s.cfg.ListenAddress, err)
	}
	if err := s.Serve(ln); err != nil {
		ln.Close()
		return err
	}
	return nil
}

// Serve accepts agent connections on ln in the background. The service
// owns ln from now on.
func (s *Service) Serve(ln net.Listener) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.stopped.Load() {
		return domain.ErrServiceNotRunning.WithDetails("service was stopped")
	}
	if s.running.Load() {
		return domain.ErrServiceAlreadyRunning
	}
	s.ln = ln
	s.running.Store(true)

	s.logger.Info("control service listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ln); err != nil {
			s.logger.Error("accept loop failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Service) Addr() net.Addr {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listener and force-closes every live session, then
// waits for connection loops to exit or ctx to end. It is idempotent.
func (s *Service) Stop(ctx context.Context) error {
	var firstErr error
	s.stopOnce.Do(func() {
		s.startMu.Lock()
		s.stopped.Store(true)
		s.running.Store(false)
		ln := s.ln
		s.startMu.Unlock()

		s.cancel()
		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				firstErr = err
			}
		}

		// Sessions may disconnect concurrently; closing twice is harmless.
		for _, sess := range s.Sessions() {
			sess.Close()
		}
		s.logger.Info("control service stopping")
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Service) acceptLoop(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(nc)
		}()
	}
}

func (s *Service) serveConn(nc net.Conn) {
	conn := protocol.NewConn(nc, s.locator, protocol.Options{
		MaxFrameSize:  s.cfg.MaxFrameSize,
		SendQueueSize: s.cfg.SendQueueSize,
		Logger:        s.logger,
		Metrics:       s.metrics,
	})
	sess := newSession(conn)

	if !s.Connected(sess) {
		conn.Close()
		return
	}
	err := conn.Serve(s.ctx)
	s.Disconnected(sess, err)
}

// ============================================================================
// Events
// ============================================================================

// Connected adds sess to the live set and pushes the current status to
// it alone. It reports false if the service is stopping.
func (s *Service) Connected(sess *Session) bool {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return false
	}
	s.live[sess.ID()] = sess
	s.mu.Unlock()

	s.metrics.IncConnections()
	s.logger.Info("agent connected", "session_id", sess.ID(), "remote_addr", sess.RemoteAddr().String())

	s.broadcast(s.ctx, TriggerConnect, []*Session{sess})
	return true
}

// Disconnected removes sess from the live set.
func (s *Service) Disconnected(sess *Session, cause error) {
	s.mu.Lock()
	_, ok := s.live[sess.ID()]
	delete(s.live, sess.ID())
	s.mu.Unlock()
	if !ok {
		return
	}

	s.metrics.DecConnections()
	if cause != nil {
		s.logger.Warn("agent disconnected", "session_id", sess.ID(), "hostname", sess.Hostname(), "error", cause)
		return
	}
	s.logger.Info("agent disconnected", "session_id", sess.ID(), "hostname", sess.Hostname())
}

// NodeChanged merges a node's reported state and pushes the new cluster
// status to every live session.
func (s *Service) NodeChanged(ctx context.Context, sess *Session, ns *domain.NodeState) error {
	if err := s.state.UpdateNodeState(ns); err != nil {
		return err
	}
	s.metrics.IncNodeState()
	if sess != nil {
		sess.reported(ns.Hostname)
	}
	s.broadcast(ctx, TriggerNodeState, s.Sessions())
	return nil
}

// Version returns the protocol major this service speaks.
func (s *Service) Version() int32 {
	return protocol.ProtocolMajor
}

// Sessions returns a snapshot of the live set ordered by connect time.
func (s *Service) Sessions() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.live))
	for _, sess := range s.live {
		out = append(out, sess)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt().Before(out[j].ConnectedAt())
	})
	return out
}

func (s *Service) session(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[id]
}

func (s *Service) configurationChanged() {
	if s.stopped.Load() {
		return
	}
	s.broadcast(s.ctx, TriggerConfiguration, s.Sessions())
}

// ============================================================================
// Responders
// ============================================================================

func (s *Service) handleVersion(ctx context.Context, _ protocol.Args) (protocol.Args, error) {
	return protocol.Args{protocol.ArgMajor: s.Version()}, nil
}

func (s *Service) handleNodeState(ctx context.Context, req *protocol.Request) (protocol.Args, error) {
	args, err := req.Decode()
	if err != nil {
		return nil, err
	}
	ns := protocol.Value[domain.NodeState](args, protocol.ArgNodeState)
	if err := s.NodeChanged(ctx, s.session(req.Conn.ID()), ns); err != nil {
		return nil, err
	}
	return protocol.Args{}, nil
}

// ============================================================================
// Broadcast
// ============================================================================

// broadcast pushes one consistent (configuration, state) snapshot to
// sessions without waiting for acknowledgments.
func (s *Service) broadcast(ctx context.Context, trigger string, sessions []*Session) {
	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	if len(sessions) == 0 {
		s.logger.Debug("no sessions to push to", "trigger", trigger)
		return
	}

	episode := tracer.StartAction(ctx, s.logger, "control:broadcast")

	configuration, err := codec.Deployment.Encode(s.configs.Get())
	if err != nil {
		episode.Finish(err)
		return
	}
	state, err := codec.Deployment.Encode(s.state.AsDeployment())
	if err != nil {
		episode.Finish(err)
		return
	}

	h := murmur3.New64()
	h.Write(configuration)
	h.Write(state)
	episode.Log("pushing cluster status",
		"trigger", trigger,
		"recipients", len(sessions),
		"fingerprint", fmt.Sprintf("%016x", h.Sum64()),
	)
	s.metrics.IncBroadcast(trigger)

	ops := make([]gather.Op[struct{}], 0, len(sessions))
	for _, sess := range sessions {
		ops = append(ops, s.push(episode, sess, configuration, state))
	}

	gather.Background(s.ctx, episode.Logger(), func(_ []struct{}, err error) {
		episode.Finish(err)
	}, ops...)
}

// push queues one ClusterStatus ask and returns the op that waits for
// its acknowledgment.
func (s *Service) push(episode *tracer.Action, sess *Session, configuration, state []byte) gather.Op[struct{}] {
	action := episode.Child("control:push")
	action.Log("pushing to agent", "session_id", sess.ID(), "hostname", sess.Hostname())

	call, sendErr := sess.conn.Send(protocol.ClusterStatusCommand, protocol.Args{
		protocol.ArgConfiguration: protocol.Raw(configuration),
		protocol.ArgState:         protocol.Raw(state),
		protocol.ArgTraceContext:  action.Serialize(),
	})

	return func(ctx context.Context) (struct{}, error) {
		err := sendErr
		if err == nil {
			_, err = call.Wait(ctx)
		}
		action.Finish(err)
		s.metrics.ObservePush(err)
		if err != nil {
			return struct{}{}, &domain.SendFailureError{
				SessionID: sess.ID(),
				Command:   protocol.ClusterStatusCommand.Name,
				Err:       err,
			}
		}
		return struct{}{}, nil
	}
}
