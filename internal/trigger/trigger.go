package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
)

var (
	// ErrNeverSchedule возвращается New для never-расписания: таймера нет.
	ErrNeverSchedule = errors.New("job is never scheduled")

	// ErrNonParsableCron — cron-выражение не разбирается.
	ErrNonParsableCron = errors.New("non-parsable cron schedule")
)

// Plan — результат взведения таймера.
type Plan struct {
	NextExecution time.Time
}

// Executable — расписание, которое умеет взводить таймер для callback.
type Executable interface {
	// Execute взводит таймер. info — последнее состояние выполнения job
	// (может быть nil).
	Execute(callback func(), info *domain.ExecutionInfo) (Plan, error)

	// Stop снимает таймер. Идемпотентен.
	Stop()

	IsStarted() bool

	// NextExecution — ближайший момент срабатывания, если таймер взведён.
	NextExecution() (time.Time, bool)

	Describe() domain.JobSchedule
}

// New строит Executable по расписанию.
func New(schedule domain.JobSchedule, logger *slog.Logger) (Executable, error) {
	switch schedule.Kind {
	case domain.ScheduleKindInterval:
		return NewInterval(schedule, logger)
	case domain.ScheduleKindCron:
		return NewCron(schedule, logger), nil
	case domain.ScheduleKindNever:
		return nil, ErrNeverSchedule
	default:
		return nil, fmt.Errorf("%w: unknown schedule kind %q", domain.ErrInvalidSchedule, schedule.Kind)
	}
}
