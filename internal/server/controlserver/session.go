package controlserver

import (
	"net"
	"sync"
	"time"

	"github.com/yndnr/converge/internal/protocol"
)

// Session is the control side of one agent connection.
type Session struct {
	conn        *protocol.Conn
	connectedAt time.Time

	mu         sync.RWMutex
	hostname   string
	lastReport time.Time
}

func newSession(conn *protocol.Conn) *Session {
	return &Session{conn: conn, connectedAt: time.Now()}
}

// ID returns the session id.
func (s *Session) ID() string { return s.conn.ID() }

// RemoteAddr returns the agent's address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// ConnectedAt returns when the agent connected.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Hostname returns the hostname of the agent's last node state report,
// or "" if it has not reported yet.
func (s *Session) Hostname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hostname
}

// LastReport returns when the agent last reported its node state.
func (s *Session) LastReport() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Close force-closes the transport. The session leaves the live set once
// its connection loop notices.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) reported(hostname string) {
	s.mu.Lock()
	s.hostname = hostname
	s.lastReport = time.Now()
	s.mu.Unlock()
}
