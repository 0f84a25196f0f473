/*
Package workerpool runs a fixed number of workers that drain a task source,
dispatch each task to its capability and store the outcome.

A pool is wired from three collaborators:

	Source      where tasks come from (a *scheduler.Scheduler)
	Dispatcher  resolves and validates a capability (a *dispatch.Registry)
	Sink        where results go (a *results.Store)

Basic usage:

	pool, err := workerpool.New(workerpool.Config{
		WorkerCount: 4,
		TaskTimeout: 30 * time.Second,
		Logger:      logger,
	}, sched, registry, store)
	if err != nil {
		return err
	}
	if err := pool.Start(); err != nil {
		return err
	}
	defer func() { <-pool.Stop() }()

Worker Loop:

Each worker blocks in Source.Next until work arrives, resolves the task's
capability on every task, and runs it under a recover guard. A task whose
parameters fail validation never reaches its capability and is stored as
FAILURE. A panicking capability is also stored as FAILURE and the worker
keeps running. Every result is stamped with the worker identity
("<Name>-<index>") and the completion time before it is stored.

Timeouts:

TaskTimeout is cooperative: it becomes the deadline of the context passed
to Process, and capabilities that observe it report TIMEOUT. Nothing
preempts a capability that ignores its context.

Shutdown:

Stop cancels the pool context. Idle workers wake and exit at once; a busy
worker finishes and stores its current task first. Tasks still queued in
the source stay there.

Lifecycle Hooks:

OnWorkerStart, OnWorkerStop, OnTaskStart, OnTaskComplete and PanicHandler
are optional and run on the worker goroutine.
*/
package workerpool
