// Package mq связывает schedule с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с reconnect
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — события job.executed и команды job.trigger
//   - consumer.go   — потребление с ack/nack и DLQ
//   - trigger.go    — обработчик команд ручного запуска
//
// Типы сообщений:
//   - job.executed — job выполнен (momo.events)
//   - job.trigger  — запустить job вручную (momo.commands → momo.jobs.trigger)
package mq
