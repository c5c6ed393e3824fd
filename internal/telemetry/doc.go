// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - events.go  — события об ошибках с категорией (error_kind)
//   - metrics.go — Prometheus метрики
//
// Все компоненты используют единый формат логирования,
// scheduler экспортирует метрики на /metrics endpoint.
package telemetry
