// Package cli реализует инструмент командной строки momo.
//
// # Обзор
//
// CLI — клиентская утилита для API процесса momo-scheduler.
// Работает через HTTP, не импортирует внутренние пакеты schedule.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для API. Инкапсулирует запросы, парсинг ответов
// (data/list/error) и превращает ответы с ошибкой в *APIError.
//
//	client := cli.NewClient("http://localhost:8080")
//	jobs, err := client.ListJobs()
//
// ## Output
//
// Форматирование вывода: таблицы через text/tabwriter по умолчанию,
// JSON с флагом --json. Данные идут в stdout, сообщения в stderr,
// поэтому работает pipe: momo job list --json | jq .
//
// ## Commands
//
//   - schedule: status
//   - job: list, show, run, start, stop, remove
//
// Каждая группа создаётся фабрикой (NewJobCmd, NewScheduleCmd),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
