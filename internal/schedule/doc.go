// Package schedule собирает всё вместе: аренду, heartbeat, ledger и
// по одному JobScheduler на каждый определённый job.
//
// Структура:
//   - schedule.go — Schedule, Start/Stop, статус
//   - jobs.go     — Define и операции над отдельными jobs
//
// Использование:
//
//	sched := schedule.New(schedule.Config{
//	    Name:   "default",
//	    Leases: leaseRepo,
//	    Jobs:   jobRepo,
//	    Logger: logger,
//	})
//	err := sched.Define(ctx, schedule.JobDefinition{
//	    Name:     "cleanup",
//	    Schedule: domain.IntervalSchedule("5 minutes", 0),
//	}, cleanup)
//	sched.Start(ctx)
//	defer sched.Stop(shutdownCtx)
package schedule
