// Package storage provides the embedded key-value store used to persist
// the desired configuration and its history.
//
// The only engine is Badger (badger.go). It can also run fully in memory,
// which the tests and ephemeral control services use.
package storage
