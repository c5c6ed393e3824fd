package telemetry

import (
	"log/slog"
)

// ErrorKind — категория ошибки в событии об ошибке.
type ErrorKind string

// Категории ошибок.
const (
	ErrorKindInternal        ErrorKind = "internal"
	ErrorKindDefineJob       ErrorKind = "defineJob"
	ErrorKindScheduleJob     ErrorKind = "scheduleJob"
	ErrorKindExecuteJob      ErrorKind = "executeJob"
	ErrorKindStopJob         ErrorKind = "stopJob"
	ErrorKindNonParsableCron ErrorKind = "nonParsableCronSchedule"
)

// LogError пишет событие об ошибке: {message, error_kind, данные, error}.
func LogError(logger *slog.Logger, msg string, kind ErrorKind, err error, args ...any) {
	attrs := make([]any, 0, len(args)+4)
	attrs = append(attrs, "error_kind", string(kind))
	attrs = append(attrs, args...)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	logger.Error(msg, attrs...)
}
