// Package recurring submits generated tasks to a scheduler on cron
// schedules.
//
// Expressions use the six-field form with seconds, or a descriptor:
//
//	gen := recurring.New(recurring.Config{Scheduler: sched, Logger: logger})
//	gen.Add("thumbnails", "*/5 * * * * *", func() (*task.Task, error) {
//		return task.New(task.TypeScale, params, 7), nil
//	})
//	gen.Start()
//	defer func() { <-gen.Stop() }()
//
// A factory error skips that firing; the job stays scheduled.
package recurring
