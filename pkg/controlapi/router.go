package controlapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lustre-net/lnetgo/internal/logger"
)

// NewRouter builds the HTTP control surface of §6.5/§7: health probes
// plus add_route/del_route, set_portal_lazy/clear_portal_lazy, fail_nid
// and per-service stats, adapted from the teacher's
// pkg/controlplane/api/router.go middleware stack (RequestID, RealIP,
// a custom logger, panic recovery, request timeout). This control
// surface carries no authentication layer: §1 lists "client
// administrative tooling" as an external collaborator, and nothing in
// SPEC_FULL.md names an auth boundary for it.
func NewRouter(rt *Runtime) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := NewHealthHandler(rt)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	routes := NewRouteHandler(rt)
	r.Route("/api/v1/routes", func(r chi.Router) {
		r.Get("/", routes.List)
		r.Post("/", routes.Add)
		r.Delete("/", routes.Delete)
	})

	portals := NewPortalHandler(rt)
	r.Route("/api/v1/portals", func(r chi.Router) {
		r.Get("/", portals.List)
		r.Post("/{idx}/lazy", portals.SetLazy)
		r.Delete("/{idx}/lazy", portals.ClearLazy)
	})

	faults := NewFaultHandler(rt)
	r.Route("/api/v1/faults", func(r chi.Router) {
		r.Get("/", faults.List)
		r.Post("/", faults.Fail)
		r.Delete("/{nid}", faults.Clear)
	})

	stats := NewStatsHandler(rt)
	r.Route("/api/v1/stats", func(r chi.Router) {
		r.Get("/", stats.List)
		r.Get("/{name}", stats.Get)
	})

	return r
}

// requestLogger mirrors the teacher's custom chi middleware: DEBUG for
// start and for healthcheck traffic, INFO for everything else on
// completion.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("control API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if strings.HasPrefix(r.URL.Path, "/health") {
			logger.Debug("control API request completed", args...)
		} else {
			logger.Info("control API request completed", args...)
		}
	})
}
