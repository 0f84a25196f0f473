/*
Package scheduling groups the components that decide when tasks run.

  - scheduler: Priority tiers with demotion and an overflow backlog
  - workerpool: Fixed pool of workers draining a scheduler
  - recurring: Cron expressions that submit generated tasks

Typical wiring:

	sched, _ := scheduler.New(scheduler.Config{MaxQueueSize: 100})
	pool, _ := workerpool.New(workerpool.Config{WorkerCount: 4, TaskTimeout: 30 * time.Second},
		sched, registry, store)
	_ = pool.Start()

	gen := recurring.New(recurring.Config{Scheduler: sched})
	_ = gen.Add("nightly-compress", "0 0 2 * * *", factory)
	_ = gen.Start()

Shutdown is cooperative: Stop on either component returns a channel that
closes once in-flight work has finished. Tasks still queued stay in the
scheduler.
*/
package scheduling
