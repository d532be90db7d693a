package protocol

import (
	"context"
	"fmt"
	"sync"
)

// Request is one incoming ask as seen by a responder.
type Request struct {
	Command *Command
	Conn    *Conn

	fields   map[string][]byte
	stripped map[string]bool
}

// NewRequest wraps the raw argument fields of an ask.
func NewRequest(cmd *Command, conn *Conn, fields map[string][]byte) *Request {
	return &Request{Command: cmd, Conn: conn, fields: fields}
}

// Strip removes an argument from the request and returns its raw bytes.
// A stripped argument is not decoded by Decode and never reaches the
// responder.
func (r *Request) Strip(name string) ([]byte, bool) {
	if r.stripped == nil {
		r.stripped = make(map[string]bool)
	}
	r.stripped[name] = true
	b, ok := r.fields[name]
	delete(r.fields, name)
	return b, ok
}

// Decode decodes the remaining arguments.
func (r *Request) Decode() (Args, error) {
	return r.Command.DecodeArguments(r.fields, r.stripped)
}

// Handler answers one ask.
type Handler func(ctx context.Context, req *Request) (Args, error)

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain wraps h so that mws[0] is the outermost middleware.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Decoded adapts a function of decoded arguments into a Handler.
func Decoded(fn func(ctx context.Context, args Args) (Args, error)) Handler {
	return func(ctx context.Context, req *Request) (Args, error) {
		args, err := req.Decode()
		if err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
}

type route struct {
	command *Command
	handler Handler
}

// Locator maps command names to responders.
type Locator struct {
	mu     sync.RWMutex
	routes map[string]route
}

// NewLocator returns an empty locator.
func NewLocator() *Locator {
	return &Locator{routes: make(map[string]route)}
}

// Register installs the responder for cmd, wrapped in mws. Registering a
// command twice panics.
func (l *Locator) Register(cmd *Command, h Handler, mws ...Middleware) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.routes[cmd.Name]; exists {
		panic(fmt.Sprintf("protocol: responder for %s registered twice", cmd.Name))
	}
	l.routes[cmd.Name] = route{command: cmd, handler: Chain(h, mws...)}
}

// Lookup returns the command and responder registered under name.
func (l *Locator) Lookup(name string) (*Command, Handler, bool) {
	if l == nil {
		return nil, nil, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.routes[name]
	return r.command, r.handler, ok
}
