// Package executor выполняет одну попытку job: допуск через ledger,
// вызов handler'а, сохранение результата, освобождение слота.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/repo"
	"github.com/TNG/momo-scheduler-sub000/internal/telemetry"
)

// Handler — пользовательская функция job. Возвращённая строка
// сохраняется как результат выполнения.
type Handler func(ctx context.Context, params map[string]any) (string, error)

// Admission — допуск выполнений (ledger.Ledger).
type Admission interface {
	AddExecution(ctx context.Context, job string, maxRunning int) (bool, int, error)
	RemoveExecution(ctx context.Context, job string) error
}

// JobStore — запись результата выполнения.
type JobStore interface {
	UpdateExecutionInfo(ctx context.Context, name string, info domain.ExecutionInfo) error
}

// Notifier получает событие о каждом выполнении (mq.Publisher).
type Notifier interface {
	JobExecuted(ctx context.Context, event domain.ExecutionEvent) error
}

// Executor — выполнение job с учётом max_running.
type Executor struct {
	admission  Admission
	store      JobStore
	handler    Handler
	notifier   Notifier
	schedule   string
	instanceID string
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	now        func() time.Time

	inflight sync.WaitGroup
}

// Config — конфигурация Executor.
type Config struct {
	Admission Admission
	Store     JobStore
	Handler   Handler

	// Notifier — опционально.
	Notifier Notifier

	// Schedule и InstanceID попадают в события Notifier.
	Schedule   string
	InstanceID string

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт новый Executor.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		admission:  cfg.Admission,
		store:      cfg.Store,
		handler:    cfg.Handler,
		notifier:   cfg.Notifier,
		schedule:   cfg.Schedule,
		instanceID: cfg.InstanceID,
		metrics:    cfg.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Execute выполняет job один раз.
//
//  1. AddExecution — при отказе {maxRunningReached}, handler не вызывается
//  2. handler(ctx, params), паника = failed
//  3. UpdateExecutionInfo
//  4. RemoveExecution — на любом пути после допуска, после шага 3
//
// Ошибка handler'а — это результат failed, а не error. error возвращается
// только для сбоев хранилища.
func (e *Executor) Execute(ctx context.Context, job domain.Job, params map[string]any) (result domain.JobResult, err error) {
	e.inflight.Add(1)
	defer e.inflight.Done()

	logger := telemetry.WithJob(e.logger, job.Name)

	added, running, err := e.admission.AddExecution(ctx, job.Name, job.MaxRunning)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("add execution: %w", err)
	}
	if !added {
		logger.Debug("maxRunning reached, skip", "running", running, "max_running", job.MaxRunning)
		e.metrics.ObserveExecution(job.Name, string(domain.ExecutionStatusMaxRunningReached), false, 0)
		return domain.JobResult{Status: domain.ExecutionStatusMaxRunningReached}, nil
	}

	// Слот освобождается и при отменённом ctx.
	releaseCtx := context.WithoutCancel(ctx)
	defer func() {
		if rerr := e.admission.RemoveExecution(releaseCtx, job.Name); rerr != nil {
			err = errors.Join(err, fmt.Errorf("remove execution: %w", rerr))
		}
	}()

	started := e.now()
	logger.Debug("job started", "running", running)
	result = e.runHandler(telemetry.WithLogger(ctx, logger), logger, params)
	finished := e.now()

	e.metrics.ObserveExecution(job.Name, string(result.Status), true, finished.Sub(started))

	info := domain.ExecutionInfo{LastStarted: started, LastFinished: finished, LastResult: result}
	if uerr := e.store.UpdateExecutionInfo(releaseCtx, job.Name, info); uerr != nil {
		if !errors.Is(uerr, repo.ErrNotFound) {
			return result, fmt.Errorf("update execution info: %w", uerr)
		}
		logger.Warn("job removed while running, result not persisted")
	}

	logger.Debug("job finished", "status", result.Status, "duration", finished.Sub(started))
	e.notify(releaseCtx, logger, job.Name, result, started, finished)
	return result, nil
}

// Wait ждёт завершения всех начатых выполнений.
func (e *Executor) Wait() {
	e.inflight.Wait()
}

func (e *Executor) runHandler(ctx context.Context, logger *slog.Logger, params map[string]any) (result domain.JobResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in job handler", "panic", r, "stack", string(debug.Stack()))
			result = domain.JobResult{
				Status:        domain.ExecutionStatusFailed,
				HandlerResult: fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	out, err := e.handler(ctx, params)
	if err != nil {
		telemetry.LogError(logger, "job failed", telemetry.ErrorKindExecuteJob, err)
		return domain.JobResult{Status: domain.ExecutionStatusFailed, HandlerResult: err.Error()}
	}
	if out == "" {
		out = string(domain.ExecutionStatusFinished)
	}
	return domain.JobResult{Status: domain.ExecutionStatusFinished, HandlerResult: out}
}

func (e *Executor) notify(ctx context.Context, logger *slog.Logger, job string, result domain.JobResult, started, finished time.Time) {
	if e.notifier == nil {
		return
	}
	event := domain.ExecutionEvent{
		Schedule:   e.schedule,
		InstanceID: e.instanceID,
		Job:        job,
		Result:     result,
		Started:    started,
		Finished:   finished,
	}
	if err := e.notifier.JobExecuted(ctx, event); err != nil {
		logger.Warn("failed to publish job event", "error", err)
	}
}
