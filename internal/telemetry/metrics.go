package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики scheduler'а.
//
// Все методы безопасны для nil *Metrics: компоненты без метрик
// (тесты, CLI) просто передают nil.
type Metrics struct {
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	unexpectedErrors  *prometheus.CounterVec
	scheduleActive    *prometheus.GaugeVec
	leaseAcquisitions *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg (prometheus.DefaultRegisterer для /metrics).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "momo_job_executions_total",
			Help: "Job execution attempts by result status",
		}, []string{"job", "status"}),
		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "momo_job_execution_duration_seconds",
			Help:    "Duration of job handler invocations",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		unexpectedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "momo_unexpected_errors_total",
			Help: "Infrastructure errors observed by job schedulers",
		}, []string{"job"}),
		scheduleActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "momo_schedule_active",
			Help: "1 if this instance holds the schedule lease",
		}, []string{"schedule"}),
		leaseAcquisitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "momo_lease_acquisitions_total",
			Help: "Lease acquisition attempts by result (acquired, lost, error)",
		}, []string{"result"}),
	}
}

// ObserveExecution учитывает попытку выполнения job.
// duration учитывается, только если handler вызывался.
func (m *Metrics) ObserveExecution(job, status string, executed bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(job, status).Inc()
	if executed {
		m.executionDuration.WithLabelValues(job).Observe(duration.Seconds())
	}
}

// IncUnexpectedError учитывает неожиданную ошибку scheduler'а job.
func (m *Metrics) IncUnexpectedError(job string) {
	if m == nil {
		return
	}
	m.unexpectedErrors.WithLabelValues(job).Inc()
}

// SetScheduleActive отмечает, владеет ли экземпляр арендой schedule.
func (m *Metrics) SetScheduleActive(schedule string, active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	m.scheduleActive.WithLabelValues(schedule).Set(v)
}

// IncLeaseAcquisition учитывает попытку захвата аренды.
func (m *Metrics) IncLeaseAcquisition(result string) {
	if m == nil {
		return
	}
	m.leaseAcquisitions.WithLabelValues(result).Inc()
}
