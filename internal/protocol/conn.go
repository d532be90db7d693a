package protocol

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/telemetry/logger"
	"github.com/yndnr/converge/internal/telemetry/metric"
)

// DefaultSendQueueSize is the number of outgoing frames a connection
// buffers before Send fails with domain.ErrSendQueueFull.
const DefaultSendQueueSize = 256

// Error codes carried by error boxes.
const (
	CodeDecodeError    = "DECODE_ERROR"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeHandlerError   = "HANDLER_ERROR"
)

// errClosedLocally marks a connection closed by Close.
var errClosedLocally = errors.New("protocol: closed locally")

// RemoteError is the peer's report that an ask failed.
type RemoteError struct {
	Command     string
	Code        string
	Description string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("protocol: remote %s failed with %s: %s", e.Command, e.Code, e.Description)
}

// Unwrap matches domain.ErrRemote plus the sentinel for known codes.
func (e *RemoteError) Unwrap() []error {
	errs := []error{domain.ErrRemote}
	switch e.Code {
	case CodeDecodeError:
		errs = append(errs, domain.ErrDecode)
	case CodeUnknownCommand:
		errs = append(errs, domain.ErrUnknownCommand)
	}
	return errs
}

// Options configures a Conn.
type Options struct {
	// ID identifies the connection in logs. Defaults to a new ULID.
	ID string

	// MaxFrameSize bounds frames in both directions.
	MaxFrameSize int

	// SendQueueSize bounds the outgoing frame queue.
	SendQueueSize int

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Conn is one protocol connection. Both ends can issue calls and answer
// the peer's calls over it.
type Conn struct {
	id       string
	nc       net.Conn
	locator  *Locator
	logger   *slog.Logger
	metrics  *metric.Registry
	maxFrame int

	outbox chan []byte

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	nextTag uint64
	pending map[uint64]*Call
}

// NewConn wraps nc. Incoming asks are answered by the responders in
// locator, which may be nil for a connection that only issues calls.
// Nothing is read or written until Serve runs.
func NewConn(nc net.Conn, locator *Locator, opts Options) *Conn {
	if opts.ID == "" {
		opts.ID = ulid.Make().String()
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = DefaultMaxFrameSize
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = DefaultSendQueueSize
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}

	return &Conn{
		id:       opts.ID,
		nc:       nc,
		locator:  locator,
		logger:   l.With("conn_id", opts.ID, "remote_addr", remoteAddr(nc)),
		metrics:  opts.Metrics,
		maxFrame: opts.MaxFrameSize,
		outbox:   make(chan []byte, opts.SendQueueSize),
		done:     make(chan struct{}),
		pending:  make(map[uint64]*Call),
	}
}

func remoteAddr(nc net.Conn) string {
	if a := nc.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection closed, or nil while it is open.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}

// Serve runs the connection until it closes, the peer hangs up or ctx is
// cancelled. It returns nil for a clean close by either side.
func (c *Conn) Serve(ctx context.Context) error {
	go c.writeLoop()

	stop := context.AfterFunc(ctx, func() { c.closeWith(ctx.Err()) })
	defer stop()

	ctx = logger.WithSessionID(ctx, c.id)
	c.closeWith(c.readLoop(ctx))

	if errors.Is(c.closeErr, io.EOF) || errors.Is(c.closeErr, errClosedLocally) {
		return nil
	}
	return c.closeErr
}

// Close closes the connection. Pending calls fail with
// domain.ErrConnectionClosed. Close is idempotent.
func (c *Conn) Close() error {
	c.closeWith(errClosedLocally)
	return nil
}

func (c *Conn) closeWith(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		close(c.done)
		_ = c.nc.Close()

		c.mu.Lock()
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()

		for _, call := range pending {
			call.finish(nil, domain.ErrConnectionClosed.Wrap(cause))
		}
		c.logger.Debug("connection closed", "cause", cause, "failed_calls", len(pending))
	})
}

// ============================================================================
// Outgoing calls
// ============================================================================

// Call is an ask in flight.
type Call struct {
	Command *Command

	conn   *Conn
	tag    uint64
	done   chan struct{}
	once   sync.Once
	result Args
	err    error
}

func (call *Call) finish(result Args, err error) {
	call.once.Do(func() {
		call.result, call.err = result, err
		close(call.done)
	})
}

// Done is closed when the call has an answer or has failed.
func (call *Call) Done() <-chan struct{} { return call.done }

// Wait blocks until the call completes or ctx is done.
func (call *Call) Wait(ctx context.Context) (Args, error) {
	select {
	case <-call.done:
		return call.result, call.err
	case <-ctx.Done():
		call.conn.forget(call.tag)
		return nil, ctx.Err()
	}
}

// Send encodes and queues an ask without waiting for its answer. Calls
// made from one goroutine are written in the order Send was called.
func (c *Conn) Send(cmd *Command, args Args) (*Call, error) {
	fields, err := cmd.EncodeArguments(args)
	if err != nil {
		return nil, err
	}

	call := &Call{Command: cmd, conn: c, done: make(chan struct{})}

	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, domain.ErrConnectionClosed.Wrap(c.Err())
	}
	c.nextTag++
	call.tag = c.nextTag
	c.pending[call.tag] = call
	c.mu.Unlock()

	box := &Box{Kind: KindAsk, Tag: call.tag, Command: cmd.Name, Fields: fields}
	if err := c.enqueue(box, false); err != nil {
		c.forget(call.tag)
		return nil, err
	}
	return call, nil
}

// CallRemote sends an ask and waits for its answer.
func (c *Conn) CallRemote(ctx context.Context, cmd *Command, args Args) (Args, error) {
	call, err := c.Send(cmd, args)
	if err != nil {
		return nil, err
	}
	return call.Wait(ctx)
}

func (c *Conn) forget(tag uint64) {
	c.mu.Lock()
	if c.pending != nil {
		delete(c.pending, tag)
	}
	c.mu.Unlock()
}

// enqueue hands a box to the writer. Asks fail fast on a full queue;
// answers wait for room so the peer's call is never left hanging.
func (c *Conn) enqueue(box *Box, wait bool) error {
	payload := box.Marshal()
	if len(payload) > c.maxFrame {
		return domain.ErrFrameTooLarge.WithDetails(fmt.Sprintf("%s %s: %d bytes, limit %d",
			box.Kind, box.Command, len(payload), c.maxFrame))
	}
	frame := appendFrame(make([]byte, 0, len(payload)+binary.MaxVarintLen64), payload)

	if wait {
		select {
		case c.outbox <- frame:
			return nil
		case <-c.done:
			return domain.ErrConnectionClosed.Wrap(c.closeErr)
		}
	}

	select {
	case <-c.done:
		return domain.ErrConnectionClosed.Wrap(c.closeErr)
	default:
	}
	select {
	case c.outbox <- frame:
		return nil
	default:
		return domain.ErrSendQueueFull.WithDetails(fmt.Sprintf("%d frames queued", cap(c.outbox)))
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case frame := <-c.outbox:
			if _, err := c.nc.Write(frame); err != nil {
				c.closeWith(fmt.Errorf("write: %w", err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// ============================================================================
// Incoming frames
// ============================================================================

func (c *Conn) readLoop(ctx context.Context) error {
	r := bufio.NewReader(c.nc)
	for {
		payload, err := ReadFrame(r, c.maxFrame)
		if err != nil {
			return err
		}
		box, err := UnmarshalBox(payload)
		if err != nil {
			c.logger.Warn("dropping connection after malformed frame", "error", err)
			return err
		}

		switch box.Kind {
		case KindAsk:
			c.dispatch(ctx, box)
		case KindAnswer, KindError:
			c.resolve(box)
		}
	}
}

func (c *Conn) resolve(box *Box) {
	c.mu.Lock()
	call := c.pending[box.Tag]
	if call != nil {
		delete(c.pending, box.Tag)
	}
	c.mu.Unlock()

	if call == nil {
		c.logger.Debug("answer for unknown tag", "tag", box.Tag, "kind", box.Kind)
		return
	}

	if box.Kind == KindError {
		call.finish(nil, &RemoteError{
			Command:     call.Command.Name,
			Code:        box.ErrorCode,
			Description: box.ErrorDescription,
		})
		return
	}
	call.finish(call.Command.DecodeResponse(box.Fields))
}

func (c *Conn) dispatch(ctx context.Context, box *Box) {
	cmd, h, ok := c.locator.Lookup(box.Command)
	if !ok {
		c.logger.Warn("ask for unknown command", "command", box.Command)
		c.replyError(box, CodeUnknownCommand, fmt.Sprintf("unknown command %q", box.Command))
		return
	}

	start := time.Now()
	result, err := c.invoke(ctx, h, NewRequest(cmd, c, box.Fields))
	c.metrics.ObserveCommand(cmd.Name, time.Since(start))

	if err == nil {
		var fields map[string][]byte
		fields, err = cmd.EncodeResponse(result)
		if err == nil {
			c.reply(&Box{Kind: KindAnswer, Tag: box.Tag, Fields: fields})
			return
		}
	}

	code := CodeHandlerError
	if errors.Is(err, domain.ErrDecode) {
		code = CodeDecodeError
		c.metrics.IncDecodeError(cmd.Name)
	}
	c.logger.Warn("command failed", "command", cmd.Name, "code", code, "error", err)
	c.replyError(box, code, err.Error())
}

func (c *Conn) invoke(ctx context.Context, h Handler, req *Request) (result Args, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("responder panic",
				"command", req.Command.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = domain.ErrInternal.WithDetails(fmt.Sprintf("panic in %s responder", req.Command.Name))
		}
	}()
	return h(ctx, req)
}

func (c *Conn) reply(box *Box) {
	if err := c.enqueue(box, true); err != nil {
		c.logger.Debug("answer not sent", "tag", box.Tag, "error", err)
	}
}

func (c *Conn) replyError(ask *Box, code, description string) {
	c.reply(&Box{
		Kind:             KindError,
		Tag:              ask.Tag,
		ErrorCode:        code,
		ErrorDescription: description,
	})
}
