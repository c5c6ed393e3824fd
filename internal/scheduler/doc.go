// Package scheduler реализует таймер одного job на активном экземпляре.
//
// JobScheduler читает определение job из хранилища, строит по нему
// trigger.Executable и на каждом срабатывании запускает до concurrency
// выполнений через executor. Допуск по max_running проверяет ledger.
//
// Неожиданные (инфраструктурные) ошибки считаются. Если у job задан
// timeout, scheduler останавливается и через timeout запускается снова.
//
// Использование:
//
//	js := scheduler.New(scheduler.Config{
//	    JobName:  "cleanup",
//	    Store:    jobRepo,
//	    Executor: exec,
//	    Ledger:   ledger,
//	    Logger:   logger,
//	})
//	if err := js.Start(ctx); err != nil {
//	    logger.Error("failed to start job", "error", err)
//	}
//	defer js.Stop(context.Background())
package scheduler
