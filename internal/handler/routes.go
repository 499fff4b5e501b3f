package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BuzzLyutic/task-tracker/internal/metrics"
)

// NewRouter собирает все маршруты API. /health и /metrics не требуют идентификации.
func NewRouter(h *TaskHandler, m *metrics.Metrics, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(Identity)

		r.Get("/stats", h.Stats)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", h.Create)
			r.Get("/", h.List)
			r.Get("/deleted", h.ListDeleted)
			r.Get("/deleted/my", h.ListMyDeleted)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", h.Update)
				r.Patch("/", h.Update)
				r.Delete("/", h.SoftDelete)
				r.Post("/restore", h.Restore)
				r.Delete("/hard", h.HardDelete)
				r.Get("/audits", h.Audits)
			})
		})
	})

	return r
}
