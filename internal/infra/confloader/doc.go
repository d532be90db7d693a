// Package confloader loads service configuration and watches files for
// changes.
//
// Sources, lowest priority first:
//
//  1. Defaults (a map, usually built from the typed Default() config)
//  2. A YAML configuration file
//  3. Environment variables with the CONVERGE_ prefix
//
// Environment keys use a double underscore for nesting, so
// CONVERGE_CONTROL__LISTEN_ADDRESS sets control.listen_address.
//
// Watcher notifies subscribers when a watched file is written, created
// or replaced by rename (the way most editors save).
package confloader
