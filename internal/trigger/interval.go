package trigger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
)

// Interval — Executable с фиксированным интервалом.
type Interval struct {
	schedule      domain.JobSchedule
	interval      time.Duration
	firstRunAfter time.Duration
	timer         *RepeatingTimer
	now           func() time.Time
}

// NewInterval создаёт interval-Executable. Интервал должен быть положительным.
func NewInterval(schedule domain.JobSchedule, logger *slog.Logger) (*Interval, error) {
	interval, err := schedule.ParsedInterval()
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %s", domain.ErrInvalidSchedule, interval)
	}

	return &Interval{
		schedule:      schedule,
		interval:      interval,
		firstRunAfter: schedule.FirstRunAfter,
		timer:         NewRepeatingTimer(logger),
		now:           time.Now,
	}, nil
}

// Execute взводит таймер. Первая задержка считается от последнего
// запуска (IntervalDelay), дальше — строго каждые interval.
func (i *Interval) Execute(callback func(), info *domain.ExecutionInfo) (Plan, error) {
	var lastStarted time.Time
	if info != nil {
		lastStarted = info.LastStarted
	}

	now := i.now()
	first := now.Add(IntervalDelay(now, lastStarted, i.interval, i.firstRunAfter))

	i.timer.Arm(first, func(prev time.Time) time.Time { return prev.Add(i.interval) }, callback)
	return Plan{NextExecution: first}, nil
}

func (i *Interval) Stop() { i.timer.Stop() }
func (i *Interval) IsStarted() bool { return i.timer.IsArmed() }
func (i *Interval) NextExecution() (time.Time, bool) { return i.timer.NextDue() }
func (i *Interval) Describe() domain.JobSchedule { return i.schedule }

// IntervalDelay — задержка до первого запуска.
//
// Job ещё не запускался: firstRunAfter. Иначе: сколько осталось до
// lastStarted + interval, но не меньше нуля. Перезапуск процесса
// не сдвигает каденцию и не даёт лишнего немедленного запуска.
func IntervalDelay(now, lastStarted time.Time, interval, firstRunAfter time.Duration) time.Duration {
	if lastStarted.IsZero() {
		return max(firstRunAfter, 0)
	}
	return max(lastStarted.Add(interval).Sub(now), 0)
}
