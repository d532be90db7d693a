package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/converge/internal/infra/confloader"
)

// EnvPrefix is the environment prefix of CLI settings.
const EnvPrefix = "CONVERGECTL_"

// CLIConfig is the configuration of convergectl.
type CLIConfig struct {
	// Addr is the admin API address of converge-control.
	Addr    string        `koanf:"addr"`
	Output  string        `koanf:"output"`
	Timeout time.Duration `koanf:"timeout"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Addr:    "127.0.0.1:4525",
		Output:  "table",
		Timeout: 30 * time.Second,
	}
}

// DefaultPath returns the default profile path, or "" when the user
// config directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "converge", "cli.yaml")
}

// Load reads the profile at path (DefaultPath when empty) and the
// environment. A missing profile is not an error.
func Load(path string) (*CLIConfig, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
			path = ""
		}
	}

	cfg := Default()
	loader := confloader.NewLoader(
		confloader.WithEnvPrefix(EnvPrefix),
		confloader.WithConfigFile(path),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
