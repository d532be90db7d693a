package protocol

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/converge/internal/core/domain"
)

// echoCommand is a test-only command carrying one integer both ways.
var echoCommand = &Command{
	Name:      "Echo",
	Arguments: []Argument{{Name: "n", Type: Integer}},
	Response:  []Argument{{Name: "n", Type: Integer}},
}

func versionLocator() *Locator {
	loc := NewLocator()
	loc.Register(VersionCommand, func(context.Context, *Request) (Args, error) {
		return Args{ArgMajor: ProtocolMajor}, nil
	})
	return loc
}

// newPair connects two Conns over net.Pipe and serves both.
func newPair(t *testing.T, serverLoc, clientLoc *Locator) (server, client *Conn) {
	t.Helper()
	a, b := net.Pipe()
	server = NewConn(a, serverLoc, Options{ID: "server"})
	client = NewConn(b, clientLoc, Options{ID: "client"})

	ctx, cancel := context.WithCancel(context.Background())
	go server.Serve(ctx)
	go client.Serve(ctx)

	t.Cleanup(func() {
		cancel()
		server.Close()
		client.Close()
	})
	return server, client
}

// rawPeer is the far end of a Conn driven by hand.
type rawPeer struct {
	t  *testing.T
	nc net.Conn
	r  *bufio.Reader
}

// newRawPair serves a Conn whose peer is driven by the test.
func newRawPair(t *testing.T, loc *Locator, opts Options) (*Conn, *rawPeer, <-chan error) {
	t.Helper()
	a, b := net.Pipe()
	conn := NewConn(a, loc, opts)

	served := make(chan error, 1)
	go func() { served <- conn.Serve(context.Background()) }()

	t.Cleanup(func() {
		conn.Close()
		b.Close()
	})
	return conn, &rawPeer{t: t, nc: b, r: bufio.NewReader(b)}, served
}

func (p *rawPeer) write(box *Box) {
	p.t.Helper()
	if err := WriteFrame(p.nc, box.Marshal()); err != nil {
		p.t.Fatalf("WriteFrame: %v", err)
	}
}

func (p *rawPeer) read() *Box {
	p.t.Helper()
	payload, err := ReadFrame(p.r, DefaultMaxFrameSize)
	if err != nil {
		p.t.Fatalf("ReadFrame: %v", err)
	}
	box, err := UnmarshalBox(payload)
	if err != nil {
		p.t.Fatalf("UnmarshalBox: %v", err)
	}
	return box
}

func withTimeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
// Calls
// ============================================================================

func TestConn_CallRemote(t *testing.T) {
	_, client := newPair(t, versionLocator(), nil)

	res, err := client.CallRemote(withTimeout(t), VersionCommand, nil)
	if err != nil {
		t.Fatalf("CallRemote: %v", err)
	}
	if got := res.Int32(ArgMajor); got != ProtocolMajor {
		t.Errorf("major = %d, want %d", got, ProtocolMajor)
	}
}

func TestConn_BothDirections(t *testing.T) {
	server, client := newPair(t, versionLocator(), versionLocator())
	ctx := withTimeout(t)

	if _, err := client.CallRemote(ctx, VersionCommand, nil); err != nil {
		t.Fatalf("client call: %v", err)
	}
	if _, err := server.CallRemote(ctx, VersionCommand, nil); err != nil {
		t.Fatalf("server call: %v", err)
	}
}

func TestConn_AnswersMatchedByTag(t *testing.T) {
	conn, peer, _ := newRawPair(t, nil, Options{})

	c1, err := conn.Send(echoCommand, Args{"n": int32(1)})
	if err != nil {
		t.Fatalf("Send 1: %v", err)
	}
	c2, err := conn.Send(echoCommand, Args{"n": int32(2)})
	if err != nil {
		t.Fatalf("Send 2: %v", err)
	}

	ask1, ask2 := peer.read(), peer.read()
	if ask1.Tag == ask2.Tag {
		t.Fatal("tags must be unique")
	}

	// Answer out of order with values that identify the ask.
	n2, _ := Integer.Encode(int32(20))
	n1, _ := Integer.Encode(int32(10))
	peer.write(&Box{Kind: KindAnswer, Tag: ask2.Tag, Fields: map[string][]byte{"n": n2}})
	peer.write(&Box{Kind: KindAnswer, Tag: ask1.Tag, Fields: map[string][]byte{"n": n1}})

	ctx := withTimeout(t)
	r1, err := c1.Wait(ctx)
	if err != nil || r1.Int32("n") != 10 {
		t.Errorf("call 1 = %v, %v", r1, err)
	}
	r2, err := c2.Wait(ctx)
	if err != nil || r2.Int32("n") != 20 {
		t.Errorf("call 2 = %v, %v", r2, err)
	}
}

func TestConn_DispatchOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int32
	)
	loc := NewLocator()
	loc.Register(echoCommand, Decoded(func(_ context.Context, args Args) (Args, error) {
		mu.Lock()
		seen = append(seen, args.Int32("n"))
		mu.Unlock()
		return args, nil
	}))
	_, client := newPair(t, loc, nil)

	var calls []*Call
	for i := int32(0); i < 50; i++ {
		call, err := client.Send(echoCommand, Args{"n": i})
		if err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		calls = append(calls, call)
	}
	for _, call := range calls {
		if _, err := call.Wait(withTimeout(t)); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		if n != int32(i) {
			t.Fatalf("ask %d dispatched out of order: %v", i, seen)
		}
	}
}

// ============================================================================
// Remote errors
// ============================================================================

func TestConn_RemoteErrors(t *testing.T) {
	loc := versionLocator()
	loc.Register(echoCommand, func(context.Context, *Request) (Args, error) {
		return nil, errors.New("handler exploded")
	})
	loc.Register(NodeStateCommand, func(context.Context, *Request) (Args, error) {
		panic("responder bug")
	})
	_, client := newPair(t, loc, nil)
	ctx := withTimeout(t)

	tests := []struct {
		name     string
		cmd      *Command
		args     Args
		wantCode string
		wantIs   error
	}{
		{
			name:     "unknown command",
			cmd:      &Command{Name: "Nope"},
			wantCode: CodeUnknownCommand,
			wantIs:   domain.ErrUnknownCommand,
		},
		{
			name:     "handler error",
			cmd:      echoCommand,
			args:     Args{"n": int32(1)},
			wantCode: CodeHandlerError,
			wantIs:   domain.ErrRemote,
		},
		{
			name:     "handler panic",
			cmd:      NodeStateCommand,
			args:     Args{ArgNodeState: &domain.NodeState{Hostname: "a"}, ArgTraceContext: "t@/1"},
			wantCode: CodeHandlerError,
			wantIs:   domain.ErrRemote,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CallRemote(ctx, tt.cmd, tt.args)

			var re *RemoteError
			if !errors.As(err, &re) {
				t.Fatalf("error = %v, want *RemoteError", err)
			}
			if re.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", re.Code, tt.wantCode)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("error should match %v", tt.wantIs)
			}
		})
	}

	// The connection survives all of the above.
	if _, err := client.CallRemote(ctx, VersionCommand, nil); err != nil {
		t.Fatalf("connection should stay usable: %v", err)
	}
}

func TestConn_DecodeErrorKeepsConnection(t *testing.T) {
	called := false
	loc := versionLocator()
	loc.Register(NodeStateCommand, Decoded(func(context.Context, Args) (Args, error) {
		called = true
		return Args{}, nil
	}))
	_, peer, _ := newRawPair(t, loc, Options{})

	peer.write(&Box{Kind: KindAsk, Tag: 1, Command: NodeStateCommand.Name, Fields: map[string][]byte{
		ArgNodeState:    []byte("definitely not a record"),
		ArgTraceContext: []byte("t@/1"),
	}})
	reply := peer.read()
	if reply.Kind != KindError || reply.Tag != 1 || reply.ErrorCode != CodeDecodeError {
		t.Fatalf("reply = %+v, want DECODE_ERROR for tag 1", reply)
	}
	if called {
		t.Error("responder must not run when an argument fails to decode")
	}

	peer.write(&Box{Kind: KindAsk, Tag: 2, Command: VersionCommand.Name})
	reply = peer.read()
	if reply.Kind != KindAnswer || reply.Tag != 2 {
		t.Fatalf("reply = %+v, want answer for tag 2", reply)
	}
}

// ============================================================================
// Closing and limits
// ============================================================================

func TestConn_CloseFailsPending(t *testing.T) {
	conn, peer, served := newRawPair(t, nil, Options{})

	call, err := conn.Send(VersionCommand, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	peer.read()
	conn.Close()
	conn.Close()

	if _, err := call.Wait(withTimeout(t)); !errors.Is(err, domain.ErrConnectionClosed) {
		t.Errorf("Wait() = %v, want ErrConnectionClosed", err)
	}
	if err := <-served; err != nil {
		t.Errorf("Serve() = %v, want nil after local close", err)
	}
	if _, err := conn.Send(VersionCommand, nil); !errors.Is(err, domain.ErrConnectionClosed) {
		t.Errorf("Send after close = %v, want ErrConnectionClosed", err)
	}
}

func TestConn_PeerHangup(t *testing.T) {
	conn, peer, served := newRawPair(t, nil, Options{})

	call, err := conn.Send(VersionCommand, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	peer.read()
	peer.nc.Close()

	if _, err := call.Wait(withTimeout(t)); !errors.Is(err, domain.ErrConnectionClosed) {
		t.Errorf("Wait() = %v, want ErrConnectionClosed", err)
	}
	<-served
	select {
	case <-conn.Done():
	default:
		t.Error("Done should be closed after hangup")
	}
}

func TestConn_MalformedFrameClosesConnection(t *testing.T) {
	conn, peer, served := newRawPair(t, nil, Options{})

	if err := WriteFrame(peer.nc, []byte{0xff, 0xff}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	if err := <-served; !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Serve() = %v, want ErrMalformedFrame", err)
	}
	if !errors.Is(conn.Err(), ErrMalformedFrame) {
		t.Errorf("Err() = %v", conn.Err())
	}
}

func TestConn_SendQueueFull(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	// Not served: nothing drains the queue.
	conn := NewConn(a, nil, Options{SendQueueSize: 1})

	if _, err := conn.Send(VersionCommand, nil); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if _, err := conn.Send(VersionCommand, nil); !errors.Is(err, domain.ErrSendQueueFull) {
		t.Fatalf("second Send = %v, want ErrSendQueueFull", err)
	}
}

func TestConn_FrameTooLarge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := NewConn(a, nil, Options{MaxFrameSize: 64})
	big := make([]byte, 128)

	_, err := conn.Send(NodeStateCommand, Args{ArgNodeState: Raw(big), ArgTraceContext: "t@/1"})
	if !errors.Is(err, domain.ErrFrameTooLarge) {
		t.Fatalf("Send = %v, want ErrFrameTooLarge", err)
	}
}

func TestConn_WaitContextCancel(t *testing.T) {
	conn, peer, _ := newRawPair(t, nil, Options{})

	call, err := conn.Send(VersionCommand, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	peer.read()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := call.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}
