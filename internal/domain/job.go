package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job — запись о job в хранилище.
//
// Одна запись на имя. Определение (Schedule, Concurrency, MaxRunning,
// Timeout, Parameters) пишется при define, ExecutionInfo — только
// после выполнения handler'а.
type Job struct {
	// ID — суррогатный ключ записи. Имя не уникально на уровне БД:
	// дубли от гонок redefine разрешаются в JobRepo.Define.
	ID uuid.UUID `json:"id"`

	// Name — имя job, уникальное в пределах schedule.
	Name string `json:"name"`

	// Schedule — расписание запуска.
	Schedule JobSchedule `json:"schedule"`

	// Concurrency — сколько экземпляров handler'а запускать за один тик (>= 1).
	Concurrency int `json:"concurrency"`

	// MaxRunning — максимум одновременно выполняющихся экземпляров
	// по всему кластеру. 0 — без ограничения.
	MaxRunning int `json:"max_running"`

	// Timeout — задержка перезапуска scheduler'а после неожиданной ошибки.
	// 0 — без перезапуска.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Parameters — параметры, передаваемые handler'у.
	Parameters map[string]any `json:"parameters,omitempty"`

	// ExecutionInfo — результат последнего выполнения.
	ExecutionInfo *ExecutionInfo `json:"execution_info,omitempty"`
}

// Validate проверяет определение job.
//
// Cron-выражение здесь не разбирается, это делает trigger.ValidateCron.
func (j *Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidJob)
	}
	if j.Concurrency < 1 {
		return fmt.Errorf("%w: job %s: concurrency must be >= 1, got %d", ErrInvalidJob, j.Name, j.Concurrency)
	}
	if j.MaxRunning < 0 {
		return fmt.Errorf("%w: job %s: max_running must be >= 0, got %d", ErrInvalidJob, j.Name, j.MaxRunning)
	}
	if j.MaxRunning > 0 && j.Concurrency > j.MaxRunning {
		return fmt.Errorf("%w: job %s: concurrency (%d) must not exceed max_running (%d)",
			ErrInvalidJob, j.Name, j.Concurrency, j.MaxRunning)
	}
	if j.Timeout < 0 {
		return fmt.Errorf("%w: job %s: timeout must be >= 0", ErrInvalidJob, j.Name)
	}

	switch j.Schedule.Kind {
	case ScheduleKindInterval:
		if _, err := j.Schedule.ParsedInterval(); err != nil {
			return fmt.Errorf("%w: job %s: %v", ErrInvalidJob, j.Name, err)
		}
		if j.Schedule.FirstRunAfter < 0 {
			return fmt.Errorf("%w: job %s: first_run_after must be >= 0", ErrInvalidJob, j.Name)
		}
	case ScheduleKindCron:
		if j.Schedule.CronSchedule == "" {
			return fmt.Errorf("%w: job %s: cron_schedule is required", ErrInvalidJob, j.Name)
		}
	case ScheduleKindNever:
	default:
		return fmt.Errorf("%w: job %s: unknown schedule kind %q", ErrInvalidJob, j.Name, j.Schedule.Kind)
	}

	return nil
}

// LastFinished возвращает время последнего завершения или нулевое время.
func (j *Job) LastFinished() time.Time {
	if j.ExecutionInfo == nil {
		return time.Time{}
	}
	return j.ExecutionInfo.LastFinished
}

// JobDescription — описание job для API и CLI.
type JobDescription struct {
	Job

	// SchedulerStatus заполнен, только пока job запланирован на этом экземпляре.
	SchedulerStatus *SchedulerStatus `json:"scheduler_status,omitempty"`
}

// SchedulerStatus — состояние запущенного scheduler'а job.
type SchedulerStatus struct {
	// Schedule — расписание, с которым взведён таймер.
	Schedule JobSchedule `json:"schedule"`

	// Running — текущее число выполняющихся экземпляров по данным ledger.
	Running int `json:"running"`

	// NextExecution — ближайший запуск.
	NextExecution *time.Time `json:"next_execution,omitempty"`
}
