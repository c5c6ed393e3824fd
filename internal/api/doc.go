// Package api содержит HTTP API управления schedule.
//
// Структура:
//   - handler.go     — Handler с DI (Scheduler, logger)
//   - routes.go      — регистрация маршрутов
//   - middleware.go  — middleware (recovery, request id, logging)
//   - response.go    — унифицированные JSON-ответы и маппинг ошибок
//   - dto.go         — Data Transfer Objects (request/response)
//   - job_handler.go — обработчики /schedule и /jobs
//
// Ошибки: job не определён → 404, экземпляр не активен → 409,
// некорректное определение → 400.
package api
