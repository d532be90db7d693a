// Command converge-control runs the control service: it holds the desired
// cluster configuration, aggregates node state reported by agents and
// pushes both to every connected agent whenever either changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yndnr/converge/internal/core/service"
	"github.com/yndnr/converge/internal/infra/buildinfo"
	"github.com/yndnr/converge/internal/infra/shutdown"
	"github.com/yndnr/converge/internal/server/adminserver"
	"github.com/yndnr/converge/internal/server/config"
	"github.com/yndnr/converge/internal/server/controlserver"
	"github.com/yndnr/converge/internal/storage"
	"github.com/yndnr/converge/internal/telemetry/logger"
	"github.com/yndnr/converge/internal/telemetry/metric"
	"github.com/yndnr/converge/internal/telemetry/tracer"
)

const shutdownTimeout = 30 * time.Second

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
		fmt.Println("converge-control", buildinfo.String())
		return nil
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting converge-control",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := metric.NewRegistry()
	traces := tracer.New("converge-control")

	// Storage
	kv, err := storage.NewBadgerEngine(config.ToKVConfig(cfg), slogLogger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if err := kv.RegisterMetrics(metrics.Registerer()); err != nil {
		log.Warn("storage metrics not registered", "error", err)
	}

	// Services
	configs, err := service.NewConfigurationService(ctx, storage.NewConfigStore(kv), slogLogger)
	if err != nil {
		kv.Close()
		return fmt.Errorf("init configuration: %w", err)
	}
	state := service.NewClusterStateService()

	if cfg.Deployment.File != "" {
		if err := initDeploymentFile(ctx, cfg.Deployment, configs, slogLogger); err != nil {
			kv.Close()
			return err
		}
	}

	// Endpoints
	control := controlserver.New(config.ToControlConfig(cfg), configs, state, slogLogger, metrics)
	if err := control.Start(ctx); err != nil {
		kv.Close()
		return fmt.Errorf("start control service: %w", err)
	}

	var admin *adminserver.Server
	if cfg.Admin.ListenAddress != "" {
		admin = adminserver.New(config.ToAdminConfig(cfg),
			adminserver.NewHandler(configs, state, control, slogLogger), metrics, slogLogger)
		if err := admin.Start(ctx); err != nil {
			control.Stop(ctx)
			kv.Close()
			return fmt.Errorf("start admin api: %w", err)
		}
	}

	// Hooks run in reverse order of registration.
	sh := shutdown.NewHandler(shutdownTimeout, slogLogger)
	sh.OnShutdown("tracer", traces.Shutdown)
	sh.OnShutdown("storage", func(context.Context) error { return kv.Close() })
	sh.OnShutdown("control service", control.Stop)
	if admin != nil {
		sh.OnShutdown("admin api", admin.Shutdown)
	}
	sh.OnShutdown("file watchers", func(context.Context) error {
		cancel()
		return nil
	})

	log.Info("converge-control started", "control", control.Addr().String())
	if err := sh.Wait(context.Background()); err != nil {
		return err
	}
	log.Info("converge-control stopped")
	return nil
}

func initLogger(cfg config.LogSection) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:   cfg.Level,
		Format:  cfg.Format,
		Output:  os.Stderr,
		Service: "converge-control",
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// initDeploymentFile applies the deployment file once and, if enabled,
// keeps watching it.
func initDeploymentFile(ctx context.Context, cfg config.DeploymentSection, configs *service.ConfigurationService, log *slog.Logger) error {
	file := service.NewDeploymentFile(cfg.File, configs, log)
	if _, err := file.Sync(ctx); err != nil {
		return fmt.Errorf("apply deployment file: %w", err)
	}
	if cfg.Watch {
		go func() {
			if err := file.Watch(ctx); err != nil {
				log.Error("deployment file watcher stopped", "error", err)
			}
		}()
	}
	return nil
}
