package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/repo"
	"github.com/TNG/momo-scheduler-sub000/internal/telemetry"
	"github.com/TNG/momo-scheduler-sub000/internal/trigger"
)

// JobStore — чтение записи job.
type JobStore interface {
	Get(ctx context.Context, name string) (*domain.Job, error)
}

// Runner — выполнение одной попытки job (executor.Executor).
type Runner interface {
	Execute(ctx context.Context, job domain.Job, params map[string]any) (domain.JobResult, error)
}

// Counter — счётчики выполнений (ledger.Ledger).
type Counter interface {
	CountRunningExecutions(ctx context.Context, job string) (int, error)
	RemoveJob(ctx context.Context, job string) error
}

// JobScheduler — таймер одного job на активном экземпляре.
//
// Состояния: Stopped → Scheduled → Stopped. После неожиданной ошибки
// job с timeout > 0 останавливается и через timeout запускается снова
// (RestartPending).
type JobScheduler struct {
	name    string
	store   JobStore
	runner  Runner
	counter Counter
	metrics *telemetry.Metrics
	logger  *slog.Logger

	newExecutable func(domain.JobSchedule) (trigger.Executable, error)

	// ctx — фоновый контекст для тиков и перезапуска.
	ctx context.Context

	// lifecycle сериализует Start/Stop; mu защищает поля ниже.
	lifecycle sync.Mutex

	mu           sync.Mutex
	wanted       bool // true после Start, false после Stop; перезапуск только для wanted
	executable   trigger.Executable
	generation   uint64
	timeout      time.Duration
	restartTimer *time.Timer

	unexpectedErrors atomic.Int64
}

// Config — конфигурация JobScheduler.
type Config struct {
	// JobName — имя job (обязательно).
	JobName string

	Store    JobStore
	Executor Runner
	Ledger   Counter

	// Timeout — задержка перезапуска из определения job. Действует, пока
	// запись job ни разу не прочитана.
	Timeout time.Duration

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт остановленный JobScheduler.
func New(cfg Config) *JobScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithJob(logger, cfg.JobName)

	return &JobScheduler{
		name:    cfg.JobName,
		store:   cfg.Store,
		runner:  cfg.Executor,
		counter: cfg.Ledger,
		metrics: cfg.Metrics,
		logger:  logger,
		newExecutable: func(s domain.JobSchedule) (trigger.Executable, error) {
			return trigger.New(s, logger)
		},
		ctx:     telemetry.WithLogger(context.Background(), logger),
		timeout: cfg.Timeout,
	}
}

// Name возвращает имя job.
func (s *JobScheduler) Name() string { return s.name }

// Start (пере)запускает таймер job по расписанию из хранилища.
//
// Сначала выполняется Stop. Отсутствующий job и never-расписание
// не считаются ошибкой: scheduler просто остаётся остановленным.
// Сбой хранилища учитывается как неожиданная ошибка; при timeout > 0
// перезапуск взводится здесь же, ошибка всё равно возвращается.
func (s *JobScheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	s.wanted = true
	s.mu.Unlock()

	if err := s.stop(ctx); err != nil {
		s.unexpectedLocked(err)
		return err
	}

	job, err := s.store.Get(ctx, s.name)
	if errors.Is(err, repo.ErrNotFound) {
		telemetry.LogError(s.logger, "cannot schedule job", telemetry.ErrorKindScheduleJob, err)
		return nil
	}
	if err != nil {
		err = fmt.Errorf("get job %s: %w", s.name, err)
		s.unexpectedLocked(err)
		return err
	}

	s.mu.Lock()
	s.timeout = job.Timeout
	s.mu.Unlock()

	exec, err := s.newExecutable(job.Schedule)
	if errors.Is(err, trigger.ErrNeverSchedule) {
		s.logger.Debug("job has schedule never, not scheduling")
		return nil
	}
	if err != nil {
		telemetry.LogError(s.logger, "cannot schedule job", telemetry.ErrorKindScheduleJob, err)
		return fmt.Errorf("build schedule for %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.executable = exec
	s.mu.Unlock()

	plan, err := exec.Execute(func() { s.executeConcurrently(gen) }, job.ExecutionInfo)
	if err != nil {
		s.mu.Lock()
		if s.generation == gen {
			s.executable = nil
		}
		s.mu.Unlock()

		kind := telemetry.ErrorKindScheduleJob
		if errors.Is(err, trigger.ErrNonParsableCron) {
			kind = telemetry.ErrorKindNonParsableCron
		}
		telemetry.LogError(s.logger, "cannot schedule job", kind, err, "schedule", job.Schedule.String())
		return fmt.Errorf("schedule %s: %w", s.name, err)
	}

	s.logger.Debug("scheduled job", "schedule", job.Schedule.String(), "next_execution", plan.NextExecution)
	return nil
}

// Stop снимает таймер, отменяет отложенный перезапуск и удаляет счётчики
// job из ledger. Идемпотентен. Выполняющиеся handler'ы не прерываются,
// но тики остановленного таймера новых выполнений уже не начинают.
func (s *JobScheduler) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	s.wanted = false
	s.mu.Unlock()
	return s.stop(ctx)
}

func (s *JobScheduler) stop(ctx context.Context) error {
	s.mu.Lock()
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	exec := s.executable
	s.executable = nil
	s.generation++
	s.mu.Unlock()

	if exec == nil {
		return nil
	}
	exec.Stop()

	if err := s.counter.RemoveJob(ctx, s.name); err != nil {
		telemetry.LogError(s.logger, "failed to clean up executions of stopped job", telemetry.ErrorKindStopJob, err)
		return fmt.Errorf("stop %s: %w", s.name, err)
	}
	s.logger.Debug("stopped job")
	return nil
}

// IsStarted возвращает true, если таймер взведён.
func (s *JobScheduler) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executable != nil && s.executable.IsStarted()
}

// UnexpectedErrorCount — число неожиданных ошибок за время жизни scheduler'а.
func (s *JobScheduler) UnexpectedErrorCount() int {
	return int(s.unexpectedErrors.Load())
}

// ExecuteOnce выполняет job один раз вне расписания.
// Непустые params заменяют сохранённые параметры job.
func (s *JobScheduler) ExecuteOnce(ctx context.Context, params map[string]any) (domain.JobResult, error) {
	job, err := s.store.Get(ctx, s.name)
	if errors.Is(err, repo.ErrNotFound) {
		telemetry.LogError(s.logger, "job not found, skip execution", telemetry.ErrorKindExecuteJob, err)
		return domain.JobResult{Status: domain.ExecutionStatusNotFound}, nil
	}
	if err != nil {
		s.handleUnexpectedError(err)
		return domain.JobResult{}, fmt.Errorf("get job %s: %w", s.name, err)
	}

	if params == nil {
		params = job.Parameters
	}

	result, err := s.runner.Execute(ctx, *job, params)
	if err != nil {
		s.handleUnexpectedError(err)
		return result, err
	}
	return result, nil
}

// GetJobDescription возвращает запись job и, если таймер взведён,
// состояние scheduler'а.
func (s *JobScheduler) GetJobDescription(ctx context.Context) (*domain.JobDescription, error) {
	job, err := s.store.Get(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", s.name, err)
	}

	desc := &domain.JobDescription{Job: *job}

	s.mu.Lock()
	exec := s.executable
	s.mu.Unlock()
	if exec == nil || !exec.IsStarted() {
		return desc, nil
	}

	running, err := s.counter.CountRunningExecutions(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("count executions of %s: %w", s.name, err)
	}
	status := &domain.SchedulerStatus{Schedule: exec.Describe(), Running: running}
	if next, ok := exec.NextExecution(); ok {
		status.NextExecution = &next
	}
	desc.SchedulerStatus = status
	return desc, nil
}

// executeConcurrently — callback таймера: запускает до concurrency
// выполнений, не дожидаясь их завершения.
func (s *JobScheduler) executeConcurrently(gen uint64) {
	defer s.recoverPanic("tick")

	if !s.isCurrent(gen) {
		return
	}

	job, err := s.store.Get(s.ctx, s.name)
	if errors.Is(err, repo.ErrNotFound) {
		n := s.unexpectedErrors.Add(1)
		s.metrics.IncUnexpectedError(s.name)
		telemetry.LogError(s.logger, "job not found, skip execution", telemetry.ErrorKindExecuteJob, err, "count", n)
		return
	}
	if err != nil {
		s.handleUnexpectedError(err)
		return
	}

	num := job.Concurrency
	if job.MaxRunning > 0 {
		running, err := s.counter.CountRunningExecutions(s.ctx, s.name)
		if err != nil {
			s.handleUnexpectedError(err)
			return
		}
		num = min(job.Concurrency, job.MaxRunning-running)
	}
	if num <= 0 {
		s.logger.Debug("maxRunning reached, skip tick", "max_running", job.MaxRunning)
		return
	}

	for range num {
		go s.executeOne(gen, *job)
	}
}

func (s *JobScheduler) executeOne(gen uint64, job domain.Job) {
	defer s.recoverPanic("execution")

	if !s.isCurrent(gen) {
		return
	}
	if _, err := s.runner.Execute(s.ctx, job, job.Parameters); err != nil {
		s.handleUnexpectedError(err)
	}
}

// handleUnexpectedError учитывает инфраструктурную ошибку. Если у job
// задан timeout, scheduler останавливается и через timeout
// перезапускается.
func (s *JobScheduler) handleUnexpectedError(err error) {
	if s.countUnexpected(err) <= 0 {
		return
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.armRestartLocked()
}

// unexpectedLocked — handleUnexpectedError для вызова под lifecycle.
func (s *JobScheduler) unexpectedLocked(err error) {
	if s.countUnexpected(err) > 0 {
		s.armRestartLocked()
	}
}

// countUnexpected считает и логирует ошибку, возвращает текущий timeout.
func (s *JobScheduler) countUnexpected(err error) time.Duration {
	n := s.unexpectedErrors.Add(1)
	s.metrics.IncUnexpectedError(s.name)

	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	if timeout <= 0 {
		telemetry.LogError(s.logger, "an unexpected error occurred while running job",
			telemetry.ErrorKindInternal, err, "count", n)
		return 0
	}

	telemetry.LogError(s.logger, "an unexpected error occurred while running job, restarting after timeout",
		telemetry.ErrorKindInternal, err, "count", n, "timeout", timeout)
	return timeout
}

// armRestartLocked останавливает таймер и взводит перезапуск через
// timeout. Вызывается под lifecycle; для Stop'нутого job ничего не делает.
func (s *JobScheduler) armRestartLocked() {
	s.mu.Lock()
	wanted, timeout := s.wanted, s.timeout
	s.mu.Unlock()
	if !wanted || timeout <= 0 {
		return
	}

	if err := s.stop(s.ctx); err != nil {
		s.logger.Warn("stop before restart failed", "error", err)
	}

	s.mu.Lock()
	s.restartTimer = time.AfterFunc(timeout, s.restart)
	s.mu.Unlock()
}

// restart — отложенный Start. Сбои хранилища Start учитывает сам
// и при необходимости взводит следующий перезапуск.
func (s *JobScheduler) restart() {
	defer s.recoverPanic("restart")

	s.mu.Lock()
	wanted := s.wanted
	s.mu.Unlock()
	if !wanted {
		return
	}

	s.logger.Info("restarting job after unexpected error")
	if err := s.Start(s.ctx); err != nil {
		s.logger.Warn("restart failed", "error", err)
	}
}

func (s *JobScheduler) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen && s.executable != nil
}

func (s *JobScheduler) recoverPanic(where string) {
	if r := recover(); r != nil {
		s.logger.Error("panic in job scheduler", "where", where, "panic", r, "stack", string(debug.Stack()))
	}
}
