// Package buildinfo exposes version information injected at build time:
//
//	go build -ldflags "-X github.com/yndnr/converge/internal/infra/buildinfo.Version=v0.3.0 \
//	  -X github.com/yndnr/converge/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// The admin API and every binary's --version flag report it.
package buildinfo
