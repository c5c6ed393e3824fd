// Package config загружает конфигурацию momo-scheduler:
// значения по умолчанию → YAML-файл → переменные окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
)

// DefaultPath — файл конфигурации по умолчанию.
const DefaultPath = "momo.yaml"

// Драйверы хранилища.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// ErrInvalidConfig — конфигурация некорректна.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
	Store    StoreConfig    `yaml:"store"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	API      APIConfig      `yaml:"api"`
	Jobs     []JobConfig    `yaml:"jobs"`
}

type ScheduleConfig struct {
	Name              string        `yaml:"name"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	DeadThreshold     time.Duration `yaml:"dead_threshold"` // 0 — 2 × heartbeat_interval
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // postgres, memory
	URL    string `yaml:"url"`
}

type RabbitMQConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type APIConfig struct {
	Port int `yaml:"port"`
}

// JobConfig — job из конфигурации. Задаётся не больше одного из
// interval и cron; ни одного — never (только ручной запуск).
type JobConfig struct {
	Name          string         `yaml:"name"`
	Interval      string         `yaml:"interval"`
	FirstRunAfter time.Duration  `yaml:"first_run_after"`
	Cron          string         `yaml:"cron"`
	Concurrency   int            `yaml:"concurrency"`
	MaxRunning    int            `yaml:"max_running"`
	Timeout       time.Duration  `yaml:"timeout"`
	Handler       string         `yaml:"handler"` // http, delay, log
	Parameters    map[string]any `yaml:"parameters"`
}

// Schedule возвращает расписание job.
func (j JobConfig) Schedule() (domain.JobSchedule, error) {
	switch {
	case j.Interval != "" && j.Cron != "":
		return domain.JobSchedule{}, fmt.Errorf("%w: job %s: interval and cron are mutually exclusive", ErrInvalidConfig, j.Name)
	case j.Interval != "":
		return domain.IntervalSchedule(j.Interval, j.FirstRunAfter), nil
	case j.Cron != "":
		return domain.CronSchedule(j.Cron), nil
	default:
		return domain.NeverSchedule(), nil
	}
}

// Load читает конфигурацию. Отсутствующий файл — не ошибка:
// используются значения по умолчанию и окружение.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			Name:              "default",
			HeartbeatInterval: time.Minute,
			ShutdownTimeout:   30 * time.Second,
		},
		Store: StoreConfig{
			Driver: StorePostgres,
		},
		RabbitMQ: RabbitMQConfig{
			Enabled: false,
		},
		API: APIConfig{
			Port: 8080,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if name := os.Getenv("MOMO_SCHEDULE"); name != "" {
		c.Schedule.Name = name
	}
	if driver := os.Getenv("MOMO_STORE"); driver != "" {
		c.Store.Driver = driver
	}
	if url := os.Getenv("DB_URL"); url != "" {
		c.Store.URL = url
	}
	if url := os.Getenv("RABBITMQ_URL"); url != "" {
		c.RabbitMQ.Enabled = true
		c.RabbitMQ.URL = url
	}
	if port := os.Getenv("API_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.API.Port = p
		}
	}
}

// Validate проверяет конфигурацию. Определения jobs проверяет
// Schedule.Define, здесь — только то, что нужно для их построения.
func (c *Config) Validate() error {
	if c.Schedule.Name == "" {
		return fmt.Errorf("%w: schedule.name is required", ErrInvalidConfig)
	}
	if c.Schedule.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: schedule.heartbeat_interval must be > 0", ErrInvalidConfig)
	}
	if c.Schedule.DeadThreshold != 0 && c.Schedule.DeadThreshold <= c.Schedule.HeartbeatInterval {
		return fmt.Errorf("%w: schedule.dead_threshold must exceed heartbeat_interval", ErrInvalidConfig)
	}

	switch c.Store.Driver {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: api.port out of range: %d", ErrInvalidConfig, c.API.Port)
	}

	seen := make(map[string]bool, len(c.Jobs))
	for _, j := range c.Jobs {
		if j.Name == "" {
			return fmt.Errorf("%w: job name is required", ErrInvalidConfig)
		}
		if seen[j.Name] {
			return fmt.Errorf("%w: duplicate job %s", ErrInvalidConfig, j.Name)
		}
		seen[j.Name] = true

		if j.Handler == "" {
			return fmt.Errorf("%w: job %s: handler is required", ErrInvalidConfig, j.Name)
		}
		if _, err := j.Schedule(); err != nil {
			return err
		}
	}
	return nil
}
