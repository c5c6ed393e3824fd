// Package coordinator реализует выбор активного экземпляра schedule.
//
// Структура:
//   - coordinator.go — протокол аренды (IsActiveSchedule, SetActiveSchedule, DeleteOne)
//   - heartbeat.go   — периодическое продление аренды и запуск jobs при захвате
//
// Несколько одинаковых процессов разделяют одно имя schedule. Таймеры jobs
// срабатывают только на экземпляре, который держит свежую аренду. Если владелец
// умирает, его аренда протухает через dead threshold (по умолчанию 2 × интервал
// heartbeat) и её перехватывает другой экземпляр.
//
// Использование:
//
//	coord := coordinator.New(coordinator.Config{
//	    Store:             leaseRepo,
//	    Name:              "default",
//	    HeartbeatInterval: time.Minute,
//	})
//	hb := coordinator.NewHeartbeat(coordinator.HeartbeatConfig{
//	    Coordinator: coord,
//	    Interval:    time.Minute,
//	    OnActive:    schedule.StartAllJobs,
//	})
//	hb.Start(ctx)
//	defer hb.Stop(context.Background())
package coordinator
