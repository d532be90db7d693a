// Package adminv1 defines the converge admin API: its messages, the
// Connect procedures that carry them and typed client/handler bindings.
//
// Messages are plain Go structs exchanged as JSON. Both ends must use
// Codec, which the constructors in this package install.
package adminv1
