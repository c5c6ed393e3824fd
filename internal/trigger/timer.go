package trigger

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// RepeatingTimer — повторяющаяся задача с явным arm/stop/isArmed.
//
// После первого срабатывания в firstDue следующие моменты берутся из
// next(предыдущий момент), а не из времени окончания fn: каждый вызов fn
// идёт в своей горутине, поэтому медленный fn не сдвигает каденцию.
// Пропущенные моменты (процесс стоял) не догоняются.
type RepeatingTimer struct {
	logger *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	nextDue time.Time
}

// NewRepeatingTimer создаёт невзведённый таймер.
func NewRepeatingTimer(logger *slog.Logger) *RepeatingTimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepeatingTimer{logger: logger}
}

// Arm взводит таймер. Уже взведённый таймер сначала останавливается,
// так что активен всегда не больше одного цикла.
func (t *RepeatingTimer) Arm(firstDue time.Time, next func(prev time.Time) time.Time, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopCh != nil {
		close(t.stopCh)
	}
	stopCh := make(chan struct{})
	t.stopCh = stopCh
	t.nextDue = firstDue

	go t.run(stopCh, firstDue, next, fn)
}

// Stop останавливает таймер. Идемпотентен.
// Уже запущенные вызовы fn не прерываются.
func (t *RepeatingTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopCh == nil {
		return
	}
	close(t.stopCh)
	t.stopCh = nil
	t.nextDue = time.Time{}
}

// IsArmed возвращает true, если таймер взведён.
func (t *RepeatingTimer) IsArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCh != nil
}

// NextDue возвращает ближайший момент срабатывания.
func (t *RepeatingTimer) NextDue() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextDue, t.stopCh != nil
}

func (t *RepeatingTimer) run(stopCh chan struct{}, due time.Time, next func(time.Time) time.Time, fn func()) {
	timer := time.NewTimer(time.Until(due))
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}

		select {
		case <-stopCh:
			return
		default:
		}

		go t.fire(fn)

		now := time.Now()
		for {
			prev := due
			due = next(prev)
			if due.IsZero() || !due.After(prev) {
				t.logger.Warn("repeating timer has no further instants, disarming")
				t.disarm(stopCh)
				return
			}
			if due.After(now) {
				break
			}
		}
		t.setNextDue(stopCh, due)
		timer.Reset(time.Until(due))
	}
}

// fire вызывает fn с границей паник: паника не должна ронять процесс.
func (t *RepeatingTimer) fire(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in timer callback", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (t *RepeatingTimer) setNextDue(stopCh chan struct{}, due time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh == stopCh {
		t.nextDue = due
	}
}

func (t *RepeatingTimer) disarm(stopCh chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopCh == stopCh {
		t.stopCh = nil
		t.nextDue = time.Time{}
	}
}
