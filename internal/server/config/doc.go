// Package config defines the configuration of converge-control and
// converge-agent.
//
//   - spec.go: ServerConfig and AgentConfig
//   - default.go: default values
//   - verify.go: validation
//   - convert.go: mapping onto component configs
//   - load.go: loading through internal/infra/confloader
//
// Sources are merged as defaults, then the YAML file, then CONVERGE_*
// environment variables (CONVERGE_CONTROL__LISTEN_ADDRESS sets
// control.listen_address).
package config
