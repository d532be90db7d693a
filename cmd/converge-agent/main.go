// Command converge-agent is a file-driven convergence agent. It reports
// the node state described by a YAML file to converge-control, re-reports
// it whenever the file changes and logs every cluster update it receives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/converge/internal/agent"
	"github.com/yndnr/converge/internal/infra/buildinfo"
	"github.com/yndnr/converge/internal/infra/shutdown"
	"github.com/yndnr/converge/internal/server/config"
	"github.com/yndnr/converge/internal/telemetry/logger"
	"github.com/yndnr/converge/internal/telemetry/tracer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("converge-agent", buildinfo.String())
		return nil
	}

	cfg, err := config.LoadAgent(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  os.Stderr,
		Service: "converge-agent",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	slogLogger := log.Slog()

	opts, hostname := config.ToRunOptions(cfg, slogLogger, nil)

	// Fail fast on a broken node state file.
	if _, err := agent.LoadNodeStateFile(cfg.Agent.NodeStateFile, hostname); err != nil {
		return err
	}

	log.Info("starting converge-agent",
		"version", buildinfo.Version,
		"hostname", hostname,
		"control", cfg.Agent.ControlAddress)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traces := tracer.New("converge-agent")
	fileAgent := agent.NewFileAgent(cfg.Agent.NodeStateFile, hostname, slogLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agent.Run(gctx, cfg.Agent.ControlAddress, fileAgent, opts)
	})
	g.Go(func() error {
		return fileAgent.Watch(gctx)
	})

	sh := shutdown.NewHandler(10*time.Second, slogLogger)
	sh.OnShutdown("tracer", traces.Shutdown)
	sh.OnShutdown("agent", func(context.Context) error {
		cancel()
		return nil
	})

	// Returns on a signal or when Run gives up (version mismatch).
	if err := sh.Wait(gctx); err != nil {
		return err
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("converge-agent stopped")
	return nil
}
