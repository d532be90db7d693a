// Package config loads convergectl's optional profile file
// (~/.config/converge/cli.yaml) and CONVERGECTL_* environment
// variables. Command-line flags override both.
package config
