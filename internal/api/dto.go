package api

import (
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/schedule"
	"github.com/TNG/momo-scheduler-sub000/internal/trigger"
)

// Schedule DTOs

// ScheduleResponse — состояние schedule на этом экземпляре.
type ScheduleResponse struct {
	Name             string     `json:"name"`
	InstanceID       string     `json:"instance_id"`
	Active           bool       `json:"active"`
	LeaseHolder      string     `json:"lease_holder,omitempty"`
	LastAlive        *time.Time `json:"last_alive,omitempty"`
	Executions       int        `json:"executions"`
	Jobs             int        `json:"jobs"`
	StartedJobs      int        `json:"started_jobs"`
	UnexpectedErrors int        `json:"unexpected_errors"`
}

// ScheduleFromStatus конвертирует schedule.Status в ScheduleResponse.
func ScheduleFromStatus(s *schedule.Status) ScheduleResponse {
	resp := ScheduleResponse{
		Name:             s.Name,
		InstanceID:       s.InstanceID,
		Active:           s.Active,
		Jobs:             s.Jobs,
		StartedJobs:      s.StartedJobs,
		UnexpectedErrors: s.UnexpectedErrors,
	}
	if s.Lease != nil {
		resp.LeaseHolder = s.Lease.InstanceID
		lastAlive := s.Lease.LastAlive
		resp.LastAlive = &lastAlive
		for _, n := range s.Lease.Executions {
			resp.Executions += n
		}
	}
	return resp
}

// Job DTOs

// upcomingRuns — сколько ближайших моментов cron показывать в описании job.
const upcomingRuns = 3

// JobResponse — ответ с job.
type JobResponse struct {
	Name          string            `json:"name"`
	Schedule      string            `json:"schedule"`
	Concurrency   int               `json:"concurrency"`
	MaxRunning    int               `json:"max_running"`
	Timeout       string            `json:"timeout,omitempty"`
	Parameters    map[string]any    `json:"parameters,omitempty"`
	Started       bool              `json:"started"`
	Running       int               `json:"running"`
	NextExecution *time.Time        `json:"next_execution,omitempty"`
	UpcomingRuns  []time.Time       `json:"upcoming_runs,omitempty"`
	LastStarted   *time.Time        `json:"last_started,omitempty"`
	LastFinished  *time.Time        `json:"last_finished,omitempty"`
	LastResult    *domain.JobResult `json:"last_result,omitempty"`
}

// JobFromDomain конвертирует domain.JobDescription в JobResponse.
func JobFromDomain(d domain.JobDescription) JobResponse {
	resp := JobResponse{
		Name:        d.Name,
		Schedule:    d.Schedule.String(),
		Concurrency: d.Concurrency,
		MaxRunning:  d.MaxRunning,
		Parameters:  d.Parameters,
	}
	if d.Timeout > 0 {
		resp.Timeout = d.Timeout.String()
	}
	if d.Schedule.Kind == domain.ScheduleKindCron {
		if runs, err := trigger.NextRuns(d.Schedule.CronSchedule, time.Now(), upcomingRuns); err == nil {
			resp.UpcomingRuns = runs
		}
	}
	if st := d.SchedulerStatus; st != nil {
		resp.Started = true
		resp.Running = st.Running
		resp.NextExecution = st.NextExecution
	}
	if info := d.ExecutionInfo; info != nil {
		started, finished, result := info.LastStarted, info.LastFinished, info.LastResult
		resp.LastStarted = &started
		resp.LastFinished = &finished
		resp.LastResult = &result
	}
	return resp
}

// RunJobRequest — запрос на ручной запуск job.
type RunJobRequest struct {
	// Parameters заменяют сохранённые параметры job; nil — использовать сохранённые.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Delay — Go duration ("30s"); пусто — запустить сразу и дождаться результата.
	Delay string `json:"delay,omitempty"`
}

// RunJobResponse — результат ручного запуска.
type RunJobResponse struct {
	Status        domain.ExecutionStatus `json:"status,omitempty"`
	HandlerResult string                 `json:"handler_result,omitempty"`
	Scheduled     bool                   `json:"scheduled,omitempty"`
	Delay         string                 `json:"delay,omitempty"`
}
