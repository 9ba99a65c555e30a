package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lustre-net/lnetgo/internal/logger"
	"github.com/lustre-net/lnetgo/pkg/config"
	"github.com/lustre-net/lnetgo/pkg/metrics"

	_ "github.com/lustre-net/lnetgo/pkg/metrics/prometheus"
)

// startMetricsServer installs the Prometheus registry and, if enabled,
// serves it on its own HTTP listener, mirroring the teacher's separate
// metrics port alongside the main API server. The blank import above
// pulls in the promauto-backed FabricMetrics constructor registration
// from pkg/metrics/prometheus.
func startMetricsServer(cfg config.MetricsConfig) (shutdown func(context.Context) error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }
	}

	reg := metrics.InitRegistry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
