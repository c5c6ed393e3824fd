package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/executor"
	"github.com/TNG/momo-scheduler-sub000/internal/repo"
	"github.com/TNG/momo-scheduler-sub000/internal/scheduler"
	"github.com/TNG/momo-scheduler-sub000/internal/telemetry"
	"github.com/TNG/momo-scheduler-sub000/internal/trigger"
)

// JobDefinition — определение job, передаваемое в Define.
type JobDefinition struct {
	Name     string
	Schedule domain.JobSchedule

	// Concurrency — экземпляров за тик (default: 1).
	Concurrency int

	// MaxRunning — максимум одновременных выполнений по кластеру (0 — без ограничения).
	MaxRunning int

	// Timeout — задержка перезапуска после неожиданной ошибки (0 — без перезапуска).
	Timeout time.Duration

	Parameters map[string]any
}

func (d JobDefinition) job() domain.Job {
	concurrency := d.Concurrency
	if concurrency == 0 {
		concurrency = 1
	}
	return domain.Job{
		Name:        d.Name,
		Schedule:    d.Schedule,
		Concurrency: concurrency,
		MaxRunning:  d.MaxRunning,
		Timeout:     d.Timeout,
		Parameters:  d.Parameters,
	}
}

// Define проверяет и сохраняет определение job и регистрирует handler.
//
// Сохранённый ExecutionInfo не трогается, так что interval-job после
// перезапуска процесса продолжает свою каденцию. Если schedule активен,
// job (пере)запускается с новым определением.
func (s *Schedule) Define(ctx context.Context, def JobDefinition, handler executor.Handler) error {
	job := def.job()
	if err := validate(&job); err != nil {
		telemetry.LogError(s.logger, "job definition is invalid", telemetry.ErrorKindDefineJob, err, "job", def.Name)
		return err
	}
	if handler == nil {
		err := fmt.Errorf("%w: job %s: handler is required", domain.ErrInvalidJob, job.Name)
		telemetry.LogError(s.logger, "job definition is invalid", telemetry.ErrorKindDefineJob, err, "job", def.Name)
		return err
	}

	if old, err := s.entry(job.Name); err == nil {
		if err := old.scheduler.Stop(ctx); err != nil {
			return err
		}
	}

	if err := s.jobs.Define(ctx, &job); err != nil {
		telemetry.LogError(s.logger, "failed to save job definition", telemetry.ErrorKindDefineJob, err, "job", job.Name)
		return fmt.Errorf("define job %s: %w", job.Name, err)
	}

	exec := executor.New(executor.Config{
		Admission:  s.ledger,
		Store:      s.jobs,
		Handler:    handler,
		Notifier:   s.notifier,
		Schedule:   s.name,
		InstanceID: s.InstanceID(),
		Metrics:    s.metrics,
		Logger:     s.logger,
	})
	js := scheduler.New(scheduler.Config{
		JobName:  job.Name,
		Store:    s.jobs,
		Executor: exec,
		Ledger:   s.ledger,
		Timeout:  job.Timeout,
		Metrics:  s.metrics,
		Logger:   s.logger,
	})

	s.mu.Lock()
	if old, ok := s.schedulers[job.Name]; ok {
		s.retired = append(s.retired, old.executor)
	}
	s.schedulers[job.Name] = &jobEntry{scheduler: js, executor: exec}
	s.mu.Unlock()

	s.logger.Debug("job defined", "job", job.Name, "schedule", job.Schedule.String())

	if s.IsActive() {
		return js.Start(ctx)
	}
	return nil
}

func validate(job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.Schedule.Kind == domain.ScheduleKindCron {
		if err := trigger.ValidateCron(job.Schedule.CronSchedule); err != nil {
			return fmt.Errorf("%w: job %s: %v", domain.ErrInvalidJob, job.Name, err)
		}
	}
	return nil
}

// StartJob (пере)запускает таймер job. Только на активном экземпляре.
func (s *Schedule) StartJob(ctx context.Context, name string) error {
	e, err := s.entry(name)
	if err != nil {
		return err
	}
	if !s.IsActive() {
		return ErrNotActive
	}
	return e.scheduler.Start(ctx)
}

// StopJob снимает таймер job. Определение остаётся.
func (s *Schedule) StopJob(ctx context.Context, name string) error {
	e, err := s.entry(name)
	if err != nil {
		return err
	}
	return e.scheduler.Stop(ctx)
}

// CancelJob останавливает job и забывает его handler. Запись в
// хранилище остаётся.
func (s *Schedule) CancelJob(ctx context.Context, name string) error {
	e, err := s.entry(name)
	if err != nil {
		return err
	}
	if err := e.scheduler.Stop(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if cur, ok := s.schedulers[name]; ok && cur == e {
		delete(s.schedulers, name)
		s.retired = append(s.retired, e.executor)
	}
	s.mu.Unlock()

	if err := s.ledger.RemoveJob(ctx, name); err != nil {
		return fmt.Errorf("cancel job %s: %w", name, err)
	}
	s.logger.Debug("job cancelled", "job", name)
	return nil
}

// Cancel отменяет все jobs.
func (s *Schedule) Cancel(ctx context.Context) error {
	var errs []error
	for _, name := range s.jobNames() {
		if err := s.CancelJob(ctx, name); err != nil && !errors.Is(err, ErrJobNotDefined) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveJob отменяет job и удаляет его запись из хранилища.
func (s *Schedule) RemoveJob(ctx context.Context, name string) error {
	if err := s.CancelJob(ctx, name); err != nil {
		return err
	}
	if err := s.jobs.Delete(ctx, name); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("remove job %s: %w", name, err)
	}
	return nil
}

// Remove удаляет все jobs этого schedule.
func (s *Schedule) Remove(ctx context.Context) error {
	var errs []error
	for _, name := range s.jobNames() {
		if err := s.RemoveJob(ctx, name); err != nil && !errors.Is(err, ErrJobNotDefined) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run запускает job вручную. params == nil — сохранённые параметры.
//
// delay > 0: выполнение откладывается, возвращается нулевой результат.
// Допуск идёт через ledger, поэтому на неактивном экземпляре результат
// будет maxRunningReached.
func (s *Schedule) Run(ctx context.Context, name string, params map[string]any, delay time.Duration) (domain.JobResult, error) {
	e, err := s.entry(name)
	if err != nil {
		return domain.JobResult{}, err
	}

	if delay <= 0 {
		return e.scheduler.ExecuteOnce(ctx, params)
	}

	bg := context.WithoutCancel(ctx)
	s.mu.Lock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.delayed, timer)
		s.mu.Unlock()

		if _, err := e.scheduler.ExecuteOnce(bg, params); err != nil {
			s.logger.Warn("delayed run failed", "job", name, "error", err)
		}
	})
	s.delayed[timer] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("job run scheduled", "job", name, "delay", delay)
	return domain.JobResult{}, nil
}

// Get возвращает описание job.
func (s *Schedule) Get(ctx context.Context, name string) (*domain.JobDescription, error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	return e.scheduler.GetJobDescription(ctx)
}

// List возвращает описания всех jobs, отсортированные по имени.
// Jobs, чья запись пропала из хранилища, пропускаются.
func (s *Schedule) List(ctx context.Context) ([]domain.JobDescription, error) {
	entries := s.entries()
	out := make([]domain.JobDescription, 0, len(entries))
	for _, e := range entries {
		desc, err := e.scheduler.GetJobDescription(ctx)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *desc)
	}
	return out, nil
}

func (s *Schedule) jobNames() []string {
	entries := s.entries()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.scheduler.Name())
	}
	return names
}
