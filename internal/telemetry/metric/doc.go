// Package metric provides Prometheus metrics for converge.
//
// A Registry owns its own prometheus.Registry so tests and embedded
// services do not collide on the process-wide default registry.
// Registry methods are safe to call on a nil *Registry, which turns
// metrics off.
package metric
