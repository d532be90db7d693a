package config

import "time"

// ServerConfig is the root configuration of converge-control.
type ServerConfig struct {
	Control    ControlSection    `koanf:"control"`
	Admin      AdminSection      `koanf:"admin"`
	Storage    StorageSection    `koanf:"storage"`
	Deployment DeploymentSection `koanf:"deployment"`
	Log        LogSection        `koanf:"log"`
}

// ControlSection configures the agent-facing protocol endpoint.
type ControlSection struct {
	ListenAddress string `koanf:"listen_address"`
	MaxFrameSize  int    `koanf:"max_frame_size"`
	SendQueueSize int    `koanf:"send_queue_size"`
}

// AdminSection configures the admin API, /metrics and /healthz.
type AdminSection struct {
	// ListenAddress of the admin HTTP server. Empty disables it.
	ListenAddress string  `koanf:"listen_address"`
	RateLimit     float64 `koanf:"rate_limit"`
	RateBurst     int     `koanf:"rate_burst"`
}

// StorageSection configures configuration persistence.
type StorageSection struct {
	// DataDir holds the Badger database.
	DataDir string `koanf:"data_dir"`

	// InMemory keeps the configuration history in memory only.
	InMemory bool `koanf:"in_memory"`

	GCInterval time.Duration `koanf:"gc_interval"`
	SyncWrites bool          `koanf:"sync_writes"`
}

// DeploymentSection names an optional YAML file holding the desired
// configuration. When set, the file is loaded at startup and re-saved
// on every change.
type DeploymentSection struct {
	File  string `koanf:"file"`
	Watch bool   `koanf:"watch"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AgentConfig is the root configuration of converge-agent.
type AgentConfig struct {
	Agent AgentSection `koanf:"agent"`
	Log   LogSection   `koanf:"log"`
}

// AgentSection configures the convergence agent.
type AgentSection struct {
	// ControlAddress is the control service endpoint.
	ControlAddress string `koanf:"control_address"`

	// Hostname reported when the node state file leaves it blank.
	// Defaults to os.Hostname().
	Hostname string `koanf:"hostname"`

	// NodeStateFile is the YAML node state reported to the control service.
	NodeStateFile string `koanf:"node_state_file"`

	MaxFrameSize    int           `koanf:"max_frame_size"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
}
