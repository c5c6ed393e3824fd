// Package trigger превращает расписание job в работающий таймер.
//
// Структура:
//   - timer.go    — RepeatingTimer (arm/stop/isArmed, фиксированная каденция)
//   - interval.go — interval-расписание и расчёт первой задержки
//   - cron.go     — cron-расписание (robfig/cron)
//   - trigger.go  — интерфейс Executable и фабрика New
//
// Callback вызывается в отдельной горутине на каждое срабатывание, поэтому
// долгие выполнения не сдвигают следующие моменты.
package trigger
