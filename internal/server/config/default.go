package config

import (
	"time"

	"github.com/yndnr/converge/internal/protocol"
)

// Default configuration values.
const (
	DefaultControlAddress = "127.0.0.1:4524"
	DefaultAdminAddress   = "127.0.0.1:4525"

	DefaultAdminRateLimit = 50
	DefaultAdminRateBurst = 100

	DefaultDataDir    = "/var/lib/converge/control"
	DefaultGCInterval = 10 * time.Minute

	DefaultReconnectInitial = 500 * time.Millisecond
	DefaultReconnectMax     = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Control: ControlSection{
			ListenAddress: DefaultControlAddress,
			MaxFrameSize:  protocol.DefaultMaxFrameSize,
			SendQueueSize: protocol.DefaultSendQueueSize,
		},
		Admin: AdminSection{
			ListenAddress: DefaultAdminAddress,
			RateLimit:     DefaultAdminRateLimit,
			RateBurst:     DefaultAdminRateBurst,
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
			SyncWrites: true,
		},
		Deployment: DeploymentSection{
			Watch: true,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// DefaultAgent returns the default agent configuration.
func DefaultAgent() *AgentConfig {
	return &AgentConfig{
		Agent: AgentSection{
			ControlAddress:  DefaultControlAddress,
			MaxFrameSize:    protocol.DefaultMaxFrameSize,
			InitialInterval: DefaultReconnectInitial,
			MaxInterval:     DefaultReconnectMax,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
