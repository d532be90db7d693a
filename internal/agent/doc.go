// Package agent is the convergence-agent side of the control protocol.
//
// A Client wraps one connection to the control service. It checks the
// protocol version before anything else, then turns ClusterStatus pushes
// into Agent.ClusterUpdated calls and the connection lifecycle into
// Agent.Connected / Agent.Disconnected. It holds no cluster state.
//
// Run adds reconnection with exponential backoff around Client. FileAgent
// is a small Agent that reports a node state read from a YAML file.
package agent
