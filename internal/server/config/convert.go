package config

import (
	"log/slog"
	"os"

	"github.com/yndnr/converge/internal/agent"
	"github.com/yndnr/converge/internal/server/adminserver"
	"github.com/yndnr/converge/internal/server/controlserver"
	"github.com/yndnr/converge/internal/storage"
	"github.com/yndnr/converge/internal/telemetry/metric"
)

// ToControlConfig converts the control section.
func ToControlConfig(cfg *ServerConfig) *controlserver.Config {
	out := controlserver.DefaultConfig()
	out.ListenAddress = cfg.Control.ListenAddress
	if cfg.Control.MaxFrameSize > 0 {
		out.MaxFrameSize = cfg.Control.MaxFrameSize
	}
	if cfg.Control.SendQueueSize > 0 {
		out.SendQueueSize = cfg.Control.SendQueueSize
	}
	return out
}

// ToAdminConfig converts the admin section.
func ToAdminConfig(cfg *ServerConfig) *adminserver.Config {
	out := adminserver.DefaultConfig()
	out.ListenAddress = cfg.Admin.ListenAddress
	out.RateLimit = cfg.Admin.RateLimit
	out.RateBurst = cfg.Admin.RateBurst
	return out
}

// ToKVConfig converts the storage section.
func ToKVConfig(cfg *ServerConfig) storage.KVConfig {
	out := storage.DefaultKVConfig(cfg.Storage.DataDir)
	out.InMemory = cfg.Storage.InMemory
	out.Badger.SyncWrites = cfg.Storage.SyncWrites
	if cfg.Storage.GCInterval > 0 {
		out.Badger.GCInterval = cfg.Storage.GCInterval.String()
	}
	return out
}

// ToRunOptions converts the agent section. An empty hostname falls back
// to the machine's hostname.
func ToRunOptions(cfg *AgentConfig, logger *slog.Logger, metrics *metric.Registry) (agent.RunOptions, string) {
	hostname := cfg.Agent.Hostname
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		}
	}
	return agent.RunOptions{
		Options: agent.Options{
			MaxFrameSize: cfg.Agent.MaxFrameSize,
			Logger:       logger,
			Metrics:      metrics,
		},
		InitialInterval: cfg.Agent.InitialInterval,
		MaxInterval:     cfg.Agent.MaxInterval,
	}, hostname
}
