// Package controlserver implements the control service: it accepts
// convergence agents, keeps the live session set and pushes the desired
// configuration together with the aggregated cluster state to them.
//
// Pushes happen on three triggers:
//
//   - an agent connects (that agent only)
//   - the desired configuration changes (every live session)
//   - an agent reports its node state (every live session)
//
// Each push episode reads the configuration and the cluster state once
// and sends the same encoded pair to every recipient. Delivery is fire
// and forget; a failed push is logged and counted but never removes the
// session. Only a closed transport does.
package controlserver
