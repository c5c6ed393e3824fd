// momo-scheduler — процесс, исполняющий jobs одного schedule.
//
// Процесс:
//   - Загружает конфигурацию (momo.yaml + окружение)
//   - Подключается к PostgreSQL (или работает в памяти для разработки)
//   - Конкурирует за аренду schedule с другими экземплярами
//   - Запускает jobs из конфигурации на активном экземпляре
//   - Публикует события выполнений и принимает команды через RabbitMQ (опционально)
//   - Отдаёт HTTP API, /healthz и /metrics
//
// Экземпляры масштабируются горизонтально: jobs выполняет только держатель аренды.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TNG/momo-scheduler-sub000/internal/api"
	"github.com/TNG/momo-scheduler-sub000/internal/config"
	"github.com/TNG/momo-scheduler-sub000/internal/executor"
	"github.com/TNG/momo-scheduler-sub000/internal/handlers"
	"github.com/TNG/momo-scheduler-sub000/internal/mq"
	"github.com/TNG/momo-scheduler-sub000/internal/repo"
	"github.com/TNG/momo-scheduler-sub000/internal/repo/memrepo"
	"github.com/TNG/momo-scheduler-sub000/internal/schedule"
	"github.com/TNG/momo-scheduler-sub000/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting momo-scheduler")

	cfgPath := os.Getenv("MOMO_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Хранилище
	var (
		leases schedule.LeaseStore
		jobs   schedule.JobStore
		pool   *pgxpool.Pool
	)
	switch cfg.Store.Driver {
	case config.StoreMemory:
		logger.Warn("using in-memory store, leases are not shared between processes")
		leases, jobs = memrepo.NewLeaseRepo(), memrepo.NewJobRepo()
	default:
		pool, err = repo.NewPool(ctx, cfg.Store.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected")
		leases, jobs = repo.NewLeaseRepo(pool), repo.NewJobRepo(pool)
	}

	// RabbitMQ
	var (
		mqConn   *mq.Connection
		notifier executor.Notifier
	)
	if cfg.RabbitMQ.Enabled {
		mqConn, err = mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without events", "error", err)
		} else {
			defer mqConn.Close()
			if err := mq.SetupTopology(mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			logger.Info("RabbitMQ connected", "topology", mq.TopologyInfo())
			notifier = mq.NewPublisher(mqConn, logger)
		}
	}

	s := schedule.New(schedule.Config{
		Name:              cfg.Schedule.Name,
		HeartbeatInterval: cfg.Schedule.HeartbeatInterval,
		DeadThreshold:     cfg.Schedule.DeadThreshold,
		Leases:            leases,
		Jobs:              jobs,
		Notifier:          notifier,
		Metrics:           metrics,
		Logger:            logger,
	})

	if err := defineJobs(ctx, s, cfg.Jobs, handlers.NewRegistry(), logger); err != nil {
		logger.Error("failed to define jobs", "error", err)
		os.Exit(1)
	}

	s.Start(ctx)

	if mqConn != nil {
		consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue: mq.QueueJobsTrigger,
			Handler: mq.TriggerHandler(s, func(err error) bool {
				return errors.Is(err, schedule.ErrJobNotDefined)
			}, logger),
		})
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("trigger consumer stopped", "error", err)
			}
		}()
	}

	// HTTP: API + /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz(pool, mqConn))
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(api.Config{Schedule: s, Logger: logger}).RegisterRoutes(mux)

	addr := ":" + strconv.Itoa(cfg.API.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", "timeout", cfg.Schedule.ShutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Schedule.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if err := s.Stop(shutdownCtx); err != nil {
		logger.Error("schedule stop error", "error", err)
	}

	logger.Info("momo-scheduler stopped", "uptime", time.Since(startTime))
}

// defineJobs определяет jobs из конфигурации.
func defineJobs(ctx context.Context, s *schedule.Schedule, jobs []config.JobConfig, registry *handlers.Registry, logger *slog.Logger) error {
	for _, j := range jobs {
		sched, err := j.Schedule()
		if err != nil {
			return err
		}
		handler, err := registry.Get(j.Handler)
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}

		def := schedule.JobDefinition{
			Name:        j.Name,
			Schedule:    sched,
			Concurrency: j.Concurrency,
			MaxRunning:  j.MaxRunning,
			Timeout:     j.Timeout,
			Parameters:  j.Parameters,
		}
		if err := s.Define(ctx, def, handler); err != nil {
			return err
		}
		logger.Info("job defined", "job", j.Name, "schedule", sched.String(), "handler", j.Handler)
	}
	return nil
}

// healthz проверяет базу и RabbitMQ, если они используются.
func healthz(pool *pgxpool.Pool, conn *mq.Connection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				http.Error(w, "database: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		if conn != nil {
			if err := conn.Ping(ctx); err != nil {
				http.Error(w, "rabbitmq: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	}
}
