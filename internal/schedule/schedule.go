package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TNG/momo-scheduler-sub000/internal/coordinator"
	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/executor"
	"github.com/TNG/momo-scheduler-sub000/internal/ledger"
	"github.com/TNG/momo-scheduler-sub000/internal/scheduler"
	"github.com/TNG/momo-scheduler-sub000/internal/telemetry"
)

var (
	// ErrJobNotDefined — job с таким именем не определён в этом schedule.
	ErrJobNotDefined = errors.New("job not defined")

	// ErrNotActive — этот экземпляр не держит аренду schedule.
	ErrNotActive = errors.New("schedule is not active on this instance")
)

// LeaseStore — аренда и счётчики выполнений (repo.LeaseRepo или memrepo.LeaseRepo).
type LeaseStore interface {
	coordinator.LeaseStore
	ledger.Store
}

// JobStore — записи job (repo.JobRepo или memrepo.JobRepo).
type JobStore interface {
	Define(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, name string) (*domain.Job, error)
	List(ctx context.Context) ([]domain.Job, error)
	UpdateExecutionInfo(ctx context.Context, name string, info domain.ExecutionInfo) error
	Delete(ctx context.Context, name string) error
}

// Schedule — именованная группа jobs одного процесса.
//
// Несколько процессов с одинаковым Name конкурируют за аренду; таймеры
// jobs взведены только на активном экземпляре.
type Schedule struct {
	name        string
	coordinator *coordinator.Coordinator
	heartbeat   *coordinator.Heartbeat
	ledger      *ledger.Ledger
	jobs        JobStore
	notifier    executor.Notifier
	metrics     *telemetry.Metrics
	logger      *slog.Logger

	mu         sync.Mutex
	schedulers map[string]*jobEntry
	delayed    map[*time.Timer]struct{}

	// retired — executor'ы заменённых и отменённых jobs; их выполнения
	// Stop тоже дожидается.
	retired []*executor.Executor
}

type jobEntry struct {
	scheduler *scheduler.JobScheduler
	executor  *executor.Executor
}

// Config — конфигурация Schedule.
type Config struct {
	// Name — имя schedule (default: "default").
	Name string

	// InstanceID — id экземпляра. Если пустой — генерируется UUID.
	InstanceID string

	// HeartbeatInterval — период heartbeat (default: 1m).
	HeartbeatInterval time.Duration

	// DeadThreshold — возраст аренды, после которого её можно перехватить
	// (default: 2 × HeartbeatInterval).
	DeadThreshold time.Duration

	Leases LeaseStore
	Jobs   JobStore

	// Notifier получает события о выполнениях. Опционально.
	Notifier executor.Notifier

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт Schedule. Таймеры не взводятся до Start.
func New(cfg Config) *Schedule {
	name := cfg.Name
	if name == "" {
		name = "default"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	coord := coordinator.New(coordinator.Config{
		Store:             cfg.Leases,
		Name:              name,
		InstanceID:        cfg.InstanceID,
		HeartbeatInterval: cfg.HeartbeatInterval,
		DeadThreshold:     cfg.DeadThreshold,
		Metrics:           cfg.Metrics,
		Logger:            logger,
	})

	s := &Schedule{
		name:        name,
		coordinator: coord,
		ledger:      ledger.New(cfg.Leases, name, coord.InstanceID()),
		jobs:        cfg.Jobs,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		logger:      telemetry.WithSchedule(logger, name, coord.InstanceID()),
		schedulers:  make(map[string]*jobEntry),
		delayed:     make(map[*time.Timer]struct{}),
	}

	s.heartbeat = coordinator.NewHeartbeat(coordinator.HeartbeatConfig{
		Coordinator: coord,
		Interval:    cfg.HeartbeatInterval,
		OnActive:    s.startAllJobs,
		OnInactive:  s.onLeaseLost,
		Metrics:     cfg.Metrics,
		Logger:      logger,
	})

	return s
}

// Name возвращает имя schedule.
func (s *Schedule) Name() string { return s.name }

// InstanceID возвращает id этого экземпляра.
func (s *Schedule) InstanceID() string { return s.coordinator.InstanceID() }

// Start запускает heartbeat. Если аренда свободна, все определённые
// jobs запускаются сразу.
func (s *Schedule) Start(ctx context.Context) {
	s.logger.Info("starting schedule")
	s.heartbeat.Start(ctx)
}

// Stop останавливает schedule штатно: снимает таймеры, ждёт выполняющиеся
// handler'ы (не дольше ctx) и освобождает аренду.
func (s *Schedule) Stop(ctx context.Context) error {
	s.logger.Info("stopping schedule")

	s.stopDelayed()
	stopErr := s.stopAllJobs(ctx)

	if err := s.waitInFlight(ctx); err != nil {
		s.logger.Warn("in-flight executions did not finish", "error", err)
	}

	if err := s.heartbeat.Stop(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(stopErr, err)
	}
	return stopErr
}

// IsActive возвращает true, если jobs запущены на этом экземпляре.
func (s *Schedule) IsActive() bool {
	return s.heartbeat.JobsStarted()
}

// Status — состояние schedule для API и CLI.
type Status struct {
	Name             string                `json:"name"`
	InstanceID       string                `json:"instance_id"`
	Active           bool                  `json:"active"`
	Lease            *domain.ScheduleLease `json:"lease,omitempty"`
	Jobs             int                   `json:"jobs"`
	StartedJobs      int                   `json:"started_jobs"`
	UnexpectedErrors int                   `json:"unexpected_errors"`
}

// Status возвращает текущее состояние schedule.
func (s *Schedule) Status(ctx context.Context) (*Status, error) {
	lease, err := s.coordinator.Lease(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Name:             s.name,
		InstanceID:       s.InstanceID(),
		Active:           s.IsActive(),
		Lease:            lease,
		Jobs:             s.Count(false),
		StartedJobs:      s.Count(true),
		UnexpectedErrors: s.UnexpectedErrorCount(""),
	}, nil
}

// Count возвращает число определённых jobs (startedOnly — только запущенных).
func (s *Schedule) Count(startedOnly bool) int {
	n := 0
	for _, e := range s.entries() {
		if !startedOnly || e.scheduler.IsStarted() {
			n++
		}
	}
	return n
}

// UnexpectedErrorCount возвращает число неожиданных ошибок job name
// или, для пустого name, сумму по всем jobs.
func (s *Schedule) UnexpectedErrorCount(name string) int {
	if name != "" {
		e, err := s.entry(name)
		if err != nil {
			return 0
		}
		return e.scheduler.UnexpectedErrorCount()
	}

	n := 0
	for _, e := range s.entries() {
		n += e.scheduler.UnexpectedErrorCount()
	}
	return n
}

// startAllJobs — OnActive heartbeat'а: параллельно запускает все jobs.
// Сбой одного job не отменяет запуск остальных; ошибки собираются.
func (s *Schedule) startAllJobs(ctx context.Context) error {
	entries := s.entries()
	s.logger.Info("starting all jobs", "count", len(entries))

	errs := make([]error, len(entries))
	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			if err := e.scheduler.Start(ctx); err != nil {
				s.logger.Warn("job did not start", "job", e.scheduler.Name(), "error", err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// stopAllJobs параллельно останавливает все jobs. Ошибка одного job не
// мешает остановке остальных.
func (s *Schedule) stopAllJobs(ctx context.Context) error {
	var g errgroup.Group
	for _, e := range s.entries() {
		g.Go(func() error {
			return e.scheduler.Stop(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("stop jobs: %w", err)
	}
	return nil
}

// onLeaseLost — OnInactive heartbeat'а.
func (s *Schedule) onLeaseLost(ctx context.Context) {
	if err := s.stopAllJobs(ctx); err != nil {
		telemetry.LogError(s.logger, "failed to stop jobs after losing the lease", telemetry.ErrorKindStopJob, err)
	}
}

func (s *Schedule) waitInFlight(ctx context.Context) error {
	s.mu.Lock()
	executors := slices.Clone(s.retired)
	s.mu.Unlock()
	for _, e := range s.entries() {
		executors = append(executors, e.executor)
	}

	done := make(chan struct{})
	go func() {
		for _, exec := range executors {
			exec.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Schedule) stopDelayed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.delayed {
		t.Stop()
		delete(s.delayed, t)
	}
}

func (s *Schedule) entry(name string) (*jobEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.schedulers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotDefined, name)
	}
	return e, nil
}

// entries возвращает снимок jobs, отсортированный по имени.
func (s *Schedule) entries() []*jobEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.schedulers))
	for name := range s.schedulers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*jobEntry, 0, len(names))
	for _, name := range names {
		out = append(out, s.schedulers[name])
	}
	return out
}
