package agent

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/core/service"
	"github.com/yndnr/converge/internal/protocol"
	"github.com/yndnr/converge/internal/server/controlserver"
	"github.com/yndnr/converge/internal/telemetry/tracer"
)

type pushed struct {
	configuration *domain.Deployment
	state         *domain.Deployment
	action        *tracer.Action
}

// recordingAgent records every callback in order.
type recordingAgent struct {
	mu     sync.Mutex
	events []string

	connected    chan *Client
	disconnected chan struct{}
	updates      chan pushed
}

func newRecordingAgent() *recordingAgent {
	return &recordingAgent{
		connected:    make(chan *Client, 8),
		disconnected: make(chan struct{}, 8),
		updates:      make(chan pushed, 16),
	}
}

func (r *recordingAgent) record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recordingAgent) Connected(c *Client) {
	r.record("connected")
	r.connected <- c
}

func (r *recordingAgent) Disconnected() {
	r.record("disconnected")
	r.disconnected <- struct{}{}
}

func (r *recordingAgent) ClusterUpdated(ctx context.Context, configuration, state *domain.Deployment) {
	r.record("updated")
	r.updates <- pushed{configuration: configuration, state: state, action: tracer.FromContext(ctx)}
}

func (r *recordingAgent) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func startControl(t *testing.T) (*controlserver.Service, *service.ConfigurationService) {
	t.Helper()
	configs, err := service.NewConfigurationService(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := controlserver.DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	svc := controlserver.New(cfg, configs, service.NewClusterStateService(), nil, nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return svc, configs
}

// fakeControl serves a hand-written control side over net.Pipe.
func fakeControl(t *testing.T, loc *protocol.Locator) (*protocol.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	server := protocol.NewConn(a, loc, protocol.Options{ID: "control"})
	go server.Serve(context.Background())
	t.Cleanup(func() { server.Close() })
	return server, b
}

func versionAnswer(major int32, release <-chan struct{}) protocol.Handler {
	return func(ctx context.Context, req *protocol.Request) (protocol.Args, error) {
		if release != nil {
			<-release
		}
		return protocol.Args{protocol.ArgMajor: major}, nil
	}
}

// ============================================================================
// Client against the control service
// ============================================================================

func TestClient_ConnectAndReceive(t *testing.T) {
	svc, configs := startControl(t)
	rec := newRecordingAgent()

	client, err := Dial(context.Background(), svc.Addr().String(), rec, Options{})
	if err != nil {
		t.Fatal(err)
	}
	served := make(chan error, 1)
	go func() { served <- client.Serve(context.Background()) }()

	receive(t, rec.connected, "Connected")
	receive(t, rec.updates, "initial push")

	next := domain.NewDeployment()
	next.Nodes["node-a"] = &domain.Node{Hostname: "node-a"}
	if _, err := configs.Save(context.Background(), next); err != nil {
		t.Fatal(err)
	}
	u := receive(t, rec.updates, "configuration push")
	if _, ok := u.configuration.Nodes["node-a"]; !ok {
		t.Errorf("configuration = %+v", u.configuration)
	}

	if err := client.ReportNodeState(context.Background(), &domain.NodeState{Hostname: "node-a"}); err != nil {
		t.Fatal(err)
	}
	u = receive(t, rec.updates, "state push")
	if _, ok := u.state.Nodes["node-a"]; !ok {
		t.Errorf("state = %+v", u.state)
	}

	client.Close()
	receive(t, rec.disconnected, "Disconnected")
	if err := receive(t, served, "Serve return"); err != nil {
		t.Errorf("Serve = %v", err)
	}

	events := rec.Events()
	if events[0] != "connected" || events[len(events)-1] != "disconnected" {
		t.Errorf("events = %v", events)
	}
}

func TestClient_ReportRejected(t *testing.T) {
	svc, _ := startControl(t)
	rec := newRecordingAgent()
	client, err := Dial(context.Background(), svc.Addr().String(), rec, Options{})
	if err != nil {
		t.Fatal(err)
	}
	go client.Serve(context.Background())
	receive(t, rec.connected, "Connected")

	err = client.ReportNodeState(context.Background(), &domain.NodeState{})
	if !errors.Is(err, domain.ErrRemote) {
		t.Errorf("expected remote error for state without hostname, got %v", err)
	}
}

// ============================================================================
// Version gate
// ============================================================================

func TestClient_VersionMismatch(t *testing.T) {
	loc := protocol.NewLocator()
	loc.Register(protocol.VersionCommand, versionAnswer(2, nil))
	_, nc := fakeControl(t, loc)

	rec := newRecordingAgent()
	err := NewClient(nc, rec, Options{}).Serve(context.Background())

	var mismatch *domain.VersionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected VersionMismatchError, got %v", err)
	}
	if mismatch.Local != 1 || mismatch.Remote != 2 {
		t.Errorf("mismatch = %+v", mismatch)
	}
	if !errors.Is(err, domain.ErrVersionMismatch) {
		t.Error("error does not match ErrVersionMismatch")
	}
	if len(rec.Events()) != 0 {
		t.Errorf("agent saw %v on a rejected connection", rec.Events())
	}
}

func TestClient_PushBeforeGateIsHeld(t *testing.T) {
	release := make(chan struct{})
	loc := protocol.NewLocator()
	loc.Register(protocol.VersionCommand, versionAnswer(protocol.ProtocolMajor, release))
	server, nc := fakeControl(t, loc)

	rec := newRecordingAgent()
	go NewClient(nc, rec, Options{}).Serve(context.Background())

	var latest *tracer.Action
	for _, host := range []string{"old", "new"} {
		d := domain.NewDeployment()
		d.Nodes[host] = &domain.Node{Hostname: host}
		sender, trace := protocol.StartPush(context.Background(), nil, "control:push")
		latest = sender
		if _, err := server.Send(protocol.ClusterStatusCommand, protocol.Args{
			protocol.ArgConfiguration: d,
			protocol.ArgState:         domain.NewDeployment(),
			protocol.ArgTraceContext:  trace,
		}); err != nil {
			t.Fatal(err)
		}
	}

	// Let both pushes reach the client while Version is unanswered.
	time.Sleep(100 * time.Millisecond)
	if len(rec.Events()) != 0 {
		t.Fatalf("agent called before version check: %v", rec.Events())
	}
	close(release)

	receive(t, rec.connected, "Connected")
	u := receive(t, rec.updates, "held push")
	if _, ok := u.configuration.Nodes["new"]; !ok {
		t.Errorf("held push should be the latest, got %+v", u.configuration)
	}
	// Delivery runs in a fresh action of the sender's trace, below the
	// already finished receiving action rather than inside it.
	if u.action == nil {
		t.Fatal("held push delivered without a trace action")
	}
	if u.action.TraceID() != latest.TraceID() {
		t.Errorf("delivery trace = %s, want %s", u.action.TraceID(), latest.TraceID())
	}
	parent := u.action.Parent()
	if !parent.IsValid() || parent.SpanID() == latest.SpanContext().SpanID() {
		t.Errorf("delivery parent = %s, want the receiving span below %s", parent.SpanID(), latest.SpanContext().SpanID())
	}
	select {
	case u := <-rec.updates:
		t.Errorf("older push delivered too: %+v", u.configuration)
	case <-time.After(100 * time.Millisecond):
	}

	events := rec.Events()
	if len(events) != 2 || events[0] != "connected" || events[1] != "updated" {
		t.Errorf("events = %v", events)
	}
}
