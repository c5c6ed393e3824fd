package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/repo"
	"github.com/TNG/momo-scheduler-sub000/internal/telemetry"
)

// Default configuration values.
const (
	DefaultHeartbeatInterval = time.Minute
	deadThresholdFactor      = 2
)

// LeaseStore — хранилище аренды (repo.LeaseRepo или memrepo.LeaseRepo).
type LeaseStore interface {
	Get(ctx context.Context, name string) (*domain.ScheduleLease, error)
	Acquire(ctx context.Context, name, instanceID string, now, staleBefore time.Time) error
	Delete(ctx context.Context, name, instanceID string) error
}

// Coordinator выбирает единственный активный экземпляр для имени schedule.
//
// Активен тот, кто держит свежую аренду. Протухшую (старше dead threshold)
// аренду может перехватить любой экземпляр; из двух одновременных попыток
// проходит ровно одна благодаря уникальности имени.
type Coordinator struct {
	store         LeaseStore
	name          string
	instanceID    string
	deadThreshold time.Duration
	metrics       *telemetry.Metrics
	logger        *slog.Logger
}

// Config — конфигурация Coordinator.
type Config struct {
	// Store — хранилище аренды (обязательно).
	Store LeaseStore

	// Name — имя schedule, за которое конкурируют экземпляры (обязательно).
	Name string

	// InstanceID — id экземпляра. Если пустой — генерируется UUID.
	InstanceID string

	// HeartbeatInterval — период heartbeat (default: 1m).
	HeartbeatInterval time.Duration

	// DeadThreshold — возраст аренды, после которого её можно перехватить
	// (default: 2 × HeartbeatInterval).
	DeadThreshold time.Duration

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт новый Coordinator.
func New(cfg Config) *Coordinator {
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	deadThreshold := cfg.DeadThreshold
	if deadThreshold <= 0 {
		deadThreshold = deadThresholdFactor * interval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		store:         cfg.Store,
		name:          cfg.Name,
		instanceID:    instanceID,
		deadThreshold: deadThreshold,
		metrics:       cfg.Metrics,
		logger:        telemetry.WithSchedule(logger, cfg.Name, instanceID),
	}
}

// Name возвращает имя schedule.
func (c *Coordinator) Name() string { return c.name }

// InstanceID возвращает id этого экземпляра.
func (c *Coordinator) InstanceID() string { return c.instanceID }

// DeadThreshold возвращает порог протухания аренды.
func (c *Coordinator) DeadThreshold() time.Duration { return c.deadThreshold }

// IsActiveSchedule проверяет, может ли этот экземпляр быть активным:
// аренды нет, она наша или протухла. Это только подсказка: состояние
// меняет лишь SetActiveSchedule.
func (c *Coordinator) IsActiveSchedule(ctx context.Context, now time.Time) (bool, error) {
	lease, err := c.store.Get(ctx, c.name)
	if errors.Is(err, repo.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get lease: %w", err)
	}

	return lease.InstanceID == c.instanceID || lease.IsStale(now, c.deadThreshold), nil
}

// SetActiveSchedule захватывает или продлевает аренду.
//
// true — только если запись действительно прошла. Проигранная гонка
// (ErrAlreadyExists) — не ошибка, а false с debug-логом. Любая другая
// ошибка логируется как internal и тоже даёт false.
func (c *Coordinator) SetActiveSchedule(ctx context.Context, now time.Time) bool {
	err := c.store.Acquire(ctx, c.name, c.instanceID, now, now.Add(-c.deadThreshold))
	if errors.Is(err, repo.ErrAlreadyExists) {
		c.logger.Debug("lost the race for the schedule lease")
		c.metrics.IncLeaseAcquisition("lost")
		return false
	}
	if err != nil {
		telemetry.LogError(c.logger, "failed to set active schedule", telemetry.ErrorKindInternal, err)
		c.metrics.IncLeaseAcquisition("error")
		return false
	}

	c.logger.Debug("schedule lease acquired", "last_alive", now)
	c.metrics.IncLeaseAcquisition("acquired")
	return true
}

// DeleteOne удаляет аренду этого экземпляра, чтобы другой экземпляр
// не ждал dead threshold.
func (c *Coordinator) DeleteOne(ctx context.Context) error {
	if err := c.store.Delete(ctx, c.name, c.instanceID); err != nil {
		return fmt.Errorf("delete lease: %w", err)
	}
	c.logger.Debug("schedule lease released")
	return nil
}

// Lease возвращает текущую аренду schedule (nil, если её нет).
func (c *Coordinator) Lease(ctx context.Context) (*domain.ScheduleLease, error) {
	lease, err := c.store.Get(ctx, c.name)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lease: %w", err)
	}
	return lease, nil
}
