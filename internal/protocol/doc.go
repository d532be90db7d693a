// Package protocol implements the control protocol between the control
// service and convergence agents.
//
// A connection carries length-prefixed frames in both directions. Each
// frame holds one box: an ask (a command invocation with a tag and named
// arguments), an answer (the response to the ask with the same tag) or
// an error (a failed ask). Several asks may be in flight at once and
// answers are matched to their asks by tag.
//
//   - frame.go: box encoding and framing
//   - argument.go: argument types (integer, string, structured value)
//   - command.go: command definitions and argument errors
//   - commands.go: Version, ClusterStatus and NodeState
//   - conn.go: Conn, the bidirectional call/dispatch machinery
//   - locator.go: responder registry and middleware
//   - trace.go: trace-context middleware
//
// Asks are dispatched on the connection's read goroutine one at a time,
// in arrival order. A responder must therefore not wait for the answer
// to a call it makes on the same connection; it may issue the call with
// Send and collect the answer elsewhere.
package protocol
