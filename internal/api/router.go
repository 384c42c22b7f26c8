package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the HTTP routes over the given handlers.
func NewRouter(jobs *JobHandler, targets *TargetHandler, healthz *HealthHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", healthz.Liveness)

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", jobs.StartScan)
		r.Post("/print", jobs.StartPrint)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobs.ListJobs)
			r.Get("/{id}", jobs.GetJob)
			r.Post("/{id}/cancel", jobs.CancelJob)
			r.Delete("/{id}", jobs.DeleteJob)
		})

		r.Route("/targets", func(r chi.Router) {
			r.Get("/", targets.ListTargets)
			r.Post("/validate", targets.ValidateTarget)
			r.Post("/{id}/test", targets.TestTarget)
		})

		r.Get("/health/devices", healthz.DeviceHealth)
	})

	return r
}
