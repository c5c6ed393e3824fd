package domain

import "time"

// ExecutionStatus — итог одной попытки выполнения job.
//
//	maxRunningReached — ledger отказал в допуске, handler не вызывался
//	finished          — handler завершился успешно
//	failed            — handler вернул ошибку или запаниковал
//	notFound          — записи job нет в хранилище
type ExecutionStatus string

const (
	// ExecutionStatusFinished — handler завершился успешно.
	ExecutionStatusFinished ExecutionStatus = "finished"

	// ExecutionStatusMaxRunningReached — достигнут лимит max_running.
	ExecutionStatusMaxRunningReached ExecutionStatus = "maxRunningReached"

	// ExecutionStatusFailed — handler завершился с ошибкой.
	ExecutionStatusFailed ExecutionStatus = "failed"

	// ExecutionStatusNotFound — job не найден.
	ExecutionStatusNotFound ExecutionStatus = "notFound"
)

// IsExecuted возвращает true, если handler действительно вызывался.
func (s ExecutionStatus) IsExecuted() bool {
	switch s {
	case ExecutionStatusFinished, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// JobResult — результат выполнения.
type JobResult struct {
	Status ExecutionStatus `json:"status"`

	// HandlerResult — строка, которую вернул handler,
	// или текст ошибки при failed.
	HandlerResult string `json:"handler_result,omitempty"`
}

// ExecutionInfo — сведения о последнем выполнении job.
type ExecutionInfo struct {
	LastStarted  time.Time `json:"last_started"`
	LastFinished time.Time `json:"last_finished"`
	LastResult   JobResult `json:"last_result"`
}

// ExecutionEvent — уведомление о завершённом выполнении (публикуется в RabbitMQ).
type ExecutionEvent struct {
	Schedule   string    `json:"schedule"`
	InstanceID string    `json:"instance_id"`
	Job        string    `json:"job"`
	Result     JobResult `json:"result"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
}
