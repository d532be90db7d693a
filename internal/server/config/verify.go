package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/yndnr/converge/internal/telemetry/logger"
)

// Verify validates the server configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyControl(&cfg.Control); err != nil {
		return err
	}
	if cfg.Admin.ListenAddress != "" {
		if err := verifyAddress("admin.listen_address", cfg.Admin.ListenAddress); err != nil {
			return err
		}
		if cfg.Admin.ListenAddress == cfg.Control.ListenAddress {
			return errors.New("admin.listen_address must differ from control.listen_address")
		}
		if cfg.Admin.RateLimit < 0 {
			return errors.New("admin.rate_limit must not be negative")
		}
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if cfg.Deployment.File != "" {
		if _, err := os.Stat(cfg.Deployment.File); err != nil {
			return fmt.Errorf("deployment.file: %w", err)
		}
	}
	return verifyLog(&cfg.Log)
}

// VerifyAgent validates the agent configuration.
func VerifyAgent(cfg *AgentConfig) error {
	if err := verifyAddress("agent.control_address", cfg.Agent.ControlAddress); err != nil {
		return err
	}
	if cfg.Agent.NodeStateFile == "" {
		return errors.New("agent.node_state_file is required")
	}
	if cfg.Agent.MaxFrameSize < 0 {
		return errors.New("agent.max_frame_size must not be negative")
	}
	if cfg.Agent.MaxInterval > 0 && cfg.Agent.InitialInterval > cfg.Agent.MaxInterval {
		return errors.New("agent.initial_interval must not exceed agent.max_interval")
	}
	return verifyLog(&cfg.Log)
}

func verifyControl(cfg *ControlSection) error {
	if err := verifyAddress("control.listen_address", cfg.ListenAddress); err != nil {
		return err
	}
	if cfg.MaxFrameSize < 0 {
		return errors.New("control.max_frame_size must not be negative")
	}
	if cfg.SendQueueSize < 0 {
		return errors.New("control.send_queue_size must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.InMemory {
		return nil
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required unless storage.in_memory is set")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("log.format: unsupported format %q", cfg.Format)
	}
}

func verifyAddress(key, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required", key)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
