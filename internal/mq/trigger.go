package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
)

// JobRunner — ручной запуск job (schedule.Schedule).
type JobRunner interface {
	Run(ctx context.Context, name string, params map[string]any, delay time.Duration) (domain.JobResult, error)
}

// TriggerHandler возвращает Handler для очереди momo.jobs.trigger.
//
// Некорректная команда и job, для которого notDefined(err) == true,
// отклоняются без requeue; прочие ошибки запуска возвращают сообщение
// в очередь.
func TriggerHandler(runner JobRunner, notDefined func(error) bool, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, msg *Message) error {
		if msg.Type != MessageTypeJobTrigger {
			return fmt.Errorf("%w: unexpected message type %q", ErrPermanent, msg.Type)
		}

		payload, err := ParsePayload[TriggerPayload](msg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		if payload.Job == "" {
			return fmt.Errorf("%w: job is required", ErrPermanent)
		}

		var delay time.Duration
		if payload.Delay != "" {
			delay, err = time.ParseDuration(payload.Delay)
			if err != nil {
				return fmt.Errorf("%w: invalid delay %q: %v", ErrPermanent, payload.Delay, err)
			}
		}

		result, err := runner.Run(ctx, payload.Job, payload.Parameters, delay)
		if err != nil {
			if notDefined != nil && notDefined(err) {
				return fmt.Errorf("%w: %v", ErrPermanent, err)
			}
			return fmt.Errorf("run job %s: %w", payload.Job, err)
		}

		if result.Status == domain.ExecutionStatusMaxRunningReached {
			// Пассивный экземпляр или исчерпан max_running: команда не повторяется.
			logger.Warn("triggered job was not admitted",
				"job", payload.Job,
				"message_id", msg.ID,
			)
			return nil
		}

		logger.Info("job triggered via message",
			"job", payload.Job,
			"message_id", msg.ID,
			"status", result.Status,
			"delay", delay,
		)
		return nil
	}
}

// IsPermanent сообщает, что сообщение не стоит возвращать в очередь.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
