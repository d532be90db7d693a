// Package adminserver serves the operator-facing admin API.
//
// The API is a Connect service (JSON codec) mounted next to /metrics and
// /healthz on one HTTP listener. It reads and replaces the desired
// configuration, shows the aggregated cluster state and lists the live
// agent sessions. It is separate from the control protocol listener that
// agents connect to.
package adminserver
