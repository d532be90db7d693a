// Package domain defines the core domain models for converge.
//
// Domain models are plain values without IO dependencies:
//
//   - Deployment: desired cluster configuration, also used as the shape
//     of aggregated cluster state
//   - NodeState: the state one convergence agent reports for its node
//   - Errors: coded domain errors and the protocol error taxonomy
//
// A Deployment handed to the configuration store is never mutated in
// place; a change is a new value.
package domain
