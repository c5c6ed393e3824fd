package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/telemetry"
)

// Heartbeat периодически подтверждает аренду и запускает jobs.
//
// Каждый тик: IsActiveSchedule → SetActiveSchedule. Первый успешный захват
// за срок владения вызывает OnActive ровно один раз. Если аренду забрал
// другой экземпляр, вызывается OnInactive, и следующий захват снова
// запустит jobs.
type Heartbeat struct {
	coordinator *Coordinator
	interval    time.Duration
	onActive    func(ctx context.Context) error
	onInactive  func(ctx context.Context)
	metrics     *telemetry.Metrics
	logger      *slog.Logger

	mu          sync.Mutex
	running     bool
	jobsStarted bool
	cancelFunc  context.CancelFunc
	wg          sync.WaitGroup
}

// HeartbeatConfig — конфигурация Heartbeat.
type HeartbeatConfig struct {
	Coordinator *Coordinator

	// Interval — период heartbeat (default: 1m).
	Interval time.Duration

	// OnActive вызывается при захвате аренды (запуск всех jobs).
	OnActive func(ctx context.Context) error

	// OnInactive вызывается при потере аренды (остановка всех jobs). Опционально.
	OnInactive func(ctx context.Context)

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewHeartbeat создаёт новый Heartbeat.
func NewHeartbeat(cfg HeartbeatConfig) *Heartbeat {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	onInactive := cfg.OnInactive
	if onInactive == nil {
		onInactive = func(context.Context) {}
	}

	return &Heartbeat{
		coordinator: cfg.Coordinator,
		interval:    interval,
		onActive:    cfg.OnActive,
		onInactive:  onInactive,
		metrics:     cfg.Metrics,
		logger:      telemetry.WithSchedule(logger, cfg.Coordinator.Name(), cfg.Coordinator.InstanceID()),
	}
}

// Start выполняет первую проверку сразу и запускает цикл heartbeat.
// Повторный вызов на работающем Heartbeat ничего не делает.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	ctx, cancel := context.WithCancel(ctx)
	h.cancelFunc = cancel
	h.mu.Unlock()

	h.check(ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.loop(ctx)
	}()

	h.logger.Info("heartbeat started", "interval", h.interval)
}

// Stop останавливает цикл и удаляет аренду этого экземпляра.
func (h *Heartbeat) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.jobsStarted = false
	cancel := h.cancelFunc
	h.mu.Unlock()

	cancel()
	h.wg.Wait()
	h.metrics.SetScheduleActive(h.coordinator.Name(), false)

	if err := h.coordinator.DeleteOne(ctx); err != nil {
		return fmt.Errorf("heartbeat stop: %w", err)
	}
	h.logger.Info("heartbeat stopped")
	return nil
}

// JobsStarted возвращает true, если jobs запущены в текущем сроке владения.
func (h *Heartbeat) JobsStarted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.jobsStarted
}

func (h *Heartbeat) loop(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

// check — один тик heartbeat.
func (h *Heartbeat) check(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in heartbeat", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	now := time.Now()
	active, err := h.coordinator.IsActiveSchedule(ctx, now)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.LogError(h.logger, "pinging or cleaning the schedule lease failed", telemetry.ErrorKindInternal, err)
		}
		return
	}

	if !active {
		h.logger.Debug("this schedule is not active")
		h.metrics.SetScheduleActive(h.coordinator.Name(), false)
		if h.markStopped() {
			h.logger.Warn("schedule lease taken over by another instance, stopping jobs")
			h.onInactive(ctx)
		}
		return
	}

	if !h.coordinator.SetActiveSchedule(ctx, now) {
		return
	}
	h.metrics.SetScheduleActive(h.coordinator.Name(), true)

	if h.markStarted() {
		h.logger.Info("schedule became active, starting jobs")
		if err := h.onActive(ctx); err != nil {
			telemetry.LogError(h.logger, "failed to start jobs", telemetry.ErrorKindScheduleJob, err)
		}
	}
}

// markStarted переводит jobsStarted в true. Возвращает true, если это первый вызов за срок.
func (h *Heartbeat) markStarted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.jobsStarted {
		return false
	}
	h.jobsStarted = true
	return true
}

// markStopped сбрасывает jobsStarted. Возвращает true, если jobs были запущены.
func (h *Heartbeat) markStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.jobsStarted {
		return false
	}
	h.jobsStarted = false
	return true
}
