package trigger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
)

// cronParser — парсер cron-выражений: секунды опциональны, @hourly и т.п. разрешены.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCron проверяет валидность cron-выражения.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: invalid cron expression %q: %v", domain.ErrInvalidSchedule, expr, err)
	}
	return nil
}

// NextRuns возвращает n ближайших моментов срабатывания после from.
func NextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid cron expression %q: %v", domain.ErrInvalidSchedule, expr, err)
	}

	runs := make([]time.Time, 0, n)
	next := from
	for i := 0; i < n; i++ {
		next = sched.Next(next)
		if next.IsZero() {
			break
		}
		runs = append(runs, next)
	}
	return runs, nil
}

// Cron — Executable, срабатывающий в моменты cron-выражения.
// Время выполнения предыдущих запусков не учитывается.
type Cron struct {
	schedule domain.JobSchedule
	timer    *RepeatingTimer
	now      func() time.Time
}

// NewCron создаёт cron-Executable. Выражение разбирается в Execute,
// так что ошибка всплывает при взведении таймера.
func NewCron(schedule domain.JobSchedule, logger *slog.Logger) *Cron {
	return &Cron{
		schedule: schedule,
		timer:    NewRepeatingTimer(logger),
		now:      time.Now,
	}
}

// Execute взводит таймер на ближайший момент cron-выражения.
func (c *Cron) Execute(callback func(), _ *domain.ExecutionInfo) (Plan, error) {
	sched, err := cronParser.Parse(c.schedule.CronSchedule)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %q: %v", ErrNonParsableCron, c.schedule.CronSchedule, err)
	}

	first := sched.Next(c.now())
	if first.IsZero() {
		return Plan{}, fmt.Errorf("%w: %q never fires", ErrNonParsableCron, c.schedule.CronSchedule)
	}

	c.timer.Arm(first, sched.Next, callback)
	return Plan{NextExecution: first}, nil
}

func (c *Cron) Stop() { c.timer.Stop() }
func (c *Cron) IsStarted() bool { return c.timer.IsArmed() }
func (c *Cron) NextExecution() (time.Time, bool) { return c.timer.NextDue() }
func (c *Cron) Describe() domain.JobSchedule { return c.schedule }
