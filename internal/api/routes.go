package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		RequestID(h.logger),
		Logging(h.logger),
	)

	mux.Handle("GET /api/v1/schedule", chain(http.HandlerFunc(h.GetSchedule)))

	mux.Handle("GET /api/v1/jobs", chain(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /api/v1/jobs/{name}", chain(http.HandlerFunc(h.GetJob)))
	mux.Handle("DELETE /api/v1/jobs/{name}", chain(http.HandlerFunc(h.RemoveJob)))
	mux.Handle("POST /api/v1/jobs/{name}/run", chain(http.HandlerFunc(h.RunJob)))
	mux.Handle("POST /api/v1/jobs/{name}/start", chain(http.HandlerFunc(h.StartJob)))
	mux.Handle("POST /api/v1/jobs/{name}/stop", chain(http.HandlerFunc(h.StopJob)))
}
