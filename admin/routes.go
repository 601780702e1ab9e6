package admin

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/skygrid-io/gridmesh/cfg"
	"github.com/skygrid-io/gridmesh/telemetry"
)

// RegisterRoutes registers all admin API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *Handlers) {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeErrorResponse(w, http.StatusNotFound, "unknown admin endpoint")
	})

	r.Route("/cluster", func(r chi.Router) {
		r.Get("/members", handlers.handleClusterMembers)
		r.Get("/health", handlers.handleClusterHealth)
	})

	r.Route("/listeners", func(r chi.Router) {
		r.Get("/items", handlers.handleListenerItems)
		r.Get("/interests", handlers.handleListenerInterests)
	})

	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	if metricsHandler := telemetry.GetMetricsHandler(); metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}

// Serve starts the admin HTTP server on the configured address. Blocks until
// the listener fails; run it on its own goroutine.
func Serve(handlers *Handlers) error {
	mux := http.NewServeMux()
	RegisterRoutes(mux, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port)
	log.Info().Str("address", addr).Msg("Admin server listening")
	return http.ListenAndServe(addr, mux)
}
