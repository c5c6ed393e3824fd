package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ScheduleKind — вид расписания job.
//
// Закрытый набор: каждый потребитель JobSchedule обязан обработать
// все три варианта (см. Validate, trigger.New, описание job в API).
type ScheduleKind string

const (
	// ScheduleKindInterval — запуск с фиксированным интервалом.
	ScheduleKindInterval ScheduleKind = "interval"

	// ScheduleKindCron — запуск по cron-выражению.
	ScheduleKindCron ScheduleKind = "cron"

	// ScheduleKindNever — job никогда не запускается по таймеру,
	// только вручную (Schedule.Run).
	ScheduleKindNever ScheduleKind = "never"
)

// JobSchedule — расписание job (tagged variant).
//
// Для interval заполнены Interval и FirstRunAfter,
// для cron — CronSchedule, для never — ничего.
type JobSchedule struct {
	// Kind — вариант расписания.
	Kind ScheduleKind `json:"kind" yaml:"kind"`

	// Interval — интервал в исходном виде: "1m", "01:30", "5 minutes".
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`

	// FirstRunAfter — задержка первого запуска, если job ещё ни разу не запускался.
	FirstRunAfter time.Duration `json:"first_run_after,omitempty" yaml:"first_run_after,omitempty"`

	// CronSchedule — cron-выражение (секунды опциональны, поддерживаются @hourly и т.п.).
	CronSchedule string `json:"cron_schedule,omitempty" yaml:"cron_schedule,omitempty"`
}

// IntervalSchedule создаёт interval-расписание.
func IntervalSchedule(interval string, firstRunAfter time.Duration) JobSchedule {
	return JobSchedule{Kind: ScheduleKindInterval, Interval: interval, FirstRunAfter: firstRunAfter}
}

// CronSchedule создаёт cron-расписание.
func CronSchedule(expr string) JobSchedule {
	return JobSchedule{Kind: ScheduleKindCron, CronSchedule: expr}
}

// NeverSchedule создаёт расписание, которое никогда не срабатывает.
func NeverSchedule() JobSchedule {
	return JobSchedule{Kind: ScheduleKindNever}
}

// ParsedInterval возвращает интервал в виде time.Duration.
// Для не-interval расписаний возвращает ошибку.
func (s JobSchedule) ParsedInterval() (time.Duration, error) {
	if s.Kind != ScheduleKindInterval {
		return 0, fmt.Errorf("%w: schedule kind %q has no interval", ErrInvalidSchedule, s.Kind)
	}
	return ParseInterval(s.Interval)
}

// String возвращает краткое описание расписания для логов и CLI.
func (s JobSchedule) String() string {
	switch s.Kind {
	case ScheduleKindInterval:
		if s.FirstRunAfter > 0 {
			return fmt.Sprintf("every %s (first after %s)", s.Interval, s.FirstRunAfter)
		}
		return "every " + s.Interval
	case ScheduleKindCron:
		return "cron " + s.CronSchedule
	case ScheduleKindNever:
		return "never"
	default:
		return "unknown(" + string(s.Kind) + ")"
	}
}

var (
	reHHMM       = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	reHumanSpan  = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([a-zA-Z]+)\s*$`)
	humanSpanMap = map[string]time.Duration{
		"ms": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
		"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
		"min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
		"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
		"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
		"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
	}
)

// ParseInterval разбирает строку интервала.
//
// Поддерживаемые формы:
//   - Go duration: "55m", "2h30m", "1500ms"
//   - HH:MM: "00:50" (50 минут), "02:30"
//   - человекочитаемая: "1 minute", "5 seconds", "2 days"
//
// Интервал должен быть > 0.
func ParseInterval(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: interval required", ErrInvalidSchedule)
	}

	var d time.Duration
	switch {
	case reHHMM.MatchString(s):
		m := reHHMM.FindStringSubmatch(s)
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		if minutes >= 60 {
			return 0, fmt.Errorf("%w: invalid minutes in %q", ErrInvalidSchedule, raw)
		}
		d = time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	case reHumanSpan.MatchString(s) && strings.ContainsAny(s, " \t"):
		m := reHumanSpan.FindStringSubmatch(s)
		unit, ok := humanSpanMap[strings.ToLower(m[2])]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidSchedule, m[2])
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		d = time.Duration(n * float64(unit))
	default:
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid interval %q (use '55m', '02:30' or '5 minutes')", ErrInvalidSchedule, raw)
		}
		d = parsed
	}

	if d <= 0 {
		return 0, fmt.Errorf("%w: interval must be > 0", ErrInvalidSchedule)
	}
	return d, nil
}
