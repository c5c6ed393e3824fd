package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/schedule"
)

// Scheduler — операции schedule, доступные через API (*schedule.Schedule).
type Scheduler interface {
	Status(ctx context.Context) (*schedule.Status, error)
	List(ctx context.Context) ([]domain.JobDescription, error)
	Get(ctx context.Context, name string) (*domain.JobDescription, error)
	Run(ctx context.Context, name string, params map[string]any, delay time.Duration) (domain.JobResult, error)
	StartJob(ctx context.Context, name string) error
	StopJob(ctx context.Context, name string) error
	RemoveJob(ctx context.Context, name string) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	schedule Scheduler
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Schedule Scheduler
	Logger   *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		schedule: cfg.Schedule,
		logger:   logger.With("component", "api"),
	}
}
