package config

import (
	"fmt"

	"github.com/yndnr/converge/internal/infra/confloader"
)

// Load reads the server configuration from path (optional) and the
// environment on top of Default, then verifies it.
func Load(path string) (*ServerConfig, error) {
	cfg := Default()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadAgent reads the agent configuration the same way.
func LoadAgent(path string) (*AgentConfig, error) {
	cfg := DefaultAgent()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	if err := VerifyAgent(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func load(path string, target any) error {
	var opts []confloader.Option
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	return confloader.NewLoader(opts...).Load(target)
}
