package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// GetSchedule возвращает состояние schedule.
// GET /api/v1/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	status, err := h.schedule.Status(r.Context())
	if HandleScheduleError(w, h.logger, err) {
		return
	}
	Success(w, ScheduleFromStatus(status))
}

// ListJobs возвращает все jobs schedule.
// GET /api/v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.schedule.List(r.Context())
	if HandleScheduleError(w, h.logger, err) {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i := range jobs {
		result[i] = JobFromDomain(jobs[i])
	}
	List(w, result, len(result))
}

// GetJob возвращает job по имени.
// GET /api/v1/jobs/{name}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	desc, err := h.schedule.Get(r.Context(), r.PathValue("name"))
	if HandleScheduleError(w, h.logger, err) {
		return
	}
	Success(w, JobFromDomain(*desc))
}

// RunJob запускает job вручную.
// POST /api/v1/jobs/{name}/run
//
// Без delay ответ приходит после завершения выполнения; с delay
// возвращается 202 сразу.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	var req RunJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	var delay time.Duration
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		if err != nil || d < 0 {
			BadRequest(w, "invalid delay")
			return
		}
		delay = d
	}

	result, err := h.schedule.Run(r.Context(), r.PathValue("name"), req.Parameters, delay)
	if HandleScheduleError(w, h.logger, err) {
		return
	}

	if delay > 0 {
		Accepted(w, RunJobResponse{Scheduled: true, Delay: delay.String()})
		return
	}
	Success(w, RunJobResponse{Status: result.Status, HandlerResult: result.HandlerResult})
}

// StartJob взводит таймер job.
// POST /api/v1/jobs/{name}/start
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	if HandleScheduleError(w, h.logger, h.schedule.StartJob(r.Context(), r.PathValue("name"))) {
		return
	}
	NoContent(w)
}

// StopJob снимает таймер job.
// POST /api/v1/jobs/{name}/stop
func (h *Handler) StopJob(w http.ResponseWriter, r *http.Request) {
	if HandleScheduleError(w, h.logger, h.schedule.StopJob(r.Context(), r.PathValue("name"))) {
		return
	}
	NoContent(w)
}

// RemoveJob отменяет job и удаляет его запись.
// DELETE /api/v1/jobs/{name}
func (h *Handler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	if HandleScheduleError(w, h.logger, h.schedule.RemoveJob(r.Context(), r.PathValue("name"))) {
		return
	}
	NoContent(w)
}
