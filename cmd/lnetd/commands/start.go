package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lustre-net/lnetgo/internal/logger"
	"github.com/lustre-net/lnetgo/internal/telemetry"
	"github.com/lustre-net/lnetgo/pkg/config"
	"github.com/lustre-net/lnetgo/pkg/controlapi"
	"github.com/lustre-net/lnetgo/pkg/metrics"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the lnetgo fabric node daemon",
	Long: `Start runs one fabric node: it loads the node's configuration,
brings up every configured network interface and RPC service, and
serves the HTTP control surface until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("starting lnetd",
		"version", Version,
		"config_source", getConfigSource(GetConfigFile()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if stopWatch, err := config.Watch(GetConfigFile(), func(*config.Config) {
		logger.Warn("configuration file changed on disk; restart lnetd to apply it",
			"config_source", getConfigSource(GetConfigFile()))
	}); err == nil {
		defer stopWatch()
	}

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "lnetd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "lnetd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown failed", "error", err)
		}
	}()

	metricsShutdown := startMetricsServer(cfg.Metrics)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}()

	m := metrics.NewFabricMetrics()

	node, err := buildNode(&cfg.Fabric, m)
	if err != nil {
		return fmt.Errorf("failed to build node: %w", err)
	}

	for name, svc := range node.Services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start service %q: %w", name, err)
		}
		logger.Info("rpc service started", "service", name)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		for name, svc := range node.Services {
			if err := svc.Stop(shutdownCtx); err != nil {
				logger.Error("rpc service stop failed", "service", name, "error", err)
			}
			logger.Info("rpc service stopped", "service", name)
		}
	}()

	var controlSrv *http.Server
	controlDone := make(chan error, 1)
	if cfg.ControlAPI.Enabled {
		rt := controlapi.NewRuntime(node.Engine, node.Services, cfg.Fabric.PeerTimeout, cfg.Fabric.MaxPortals)
		controlSrv = &http.Server{
			Addr:    cfg.ControlAPI.Address,
			Handler: controlapi.NewRouter(rt),
		}
		go func() {
			logger.Info("control API listening", "addr", cfg.ControlAPI.Address)
			err := controlSrv.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				controlDone <- err
				return
			}
			controlDone <- nil
		}()
	}

	logger.Info("lnetd is ready",
		"nis", len(node.NIs),
		"services", len(node.Services),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-controlDone:
		if err != nil {
			logger.Error("control API server failed", "error", err)
		}
	}

	if controlSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := controlSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("control API shutdown failed", "error", err)
		}
	}

	logger.Info("lnetd stopped")
	return nil
}
