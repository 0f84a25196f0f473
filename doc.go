/*
Package taskprocessor routes prioritised tasks through bounded tiers and
drains them with a fixed pool of workers.

Scheduling (pkg/scheduling):
  - scheduler: HIGH, NORMAL and LOW ring buffers plus an unbounded BACKLOG
  - workerpool: Workers that dispatch each task and store its result
  - recurring: Cron-driven task submission

Execution:
  - dispatch: Task type to capability registry with parameter schemas
  - processors: Built-in image and Lua script capabilities
  - results: Bounded result store with an optional Redis mirror
  - ratelimit: Token bucket pacing for task intake

Example usage:

	import (
		"github.com/vnykmshr/taskprocessor/pkg/processors"
		"github.com/vnykmshr/taskprocessor/pkg/results"
		"github.com/vnykmshr/taskprocessor/pkg/scheduling/scheduler"
		"github.com/vnykmshr/taskprocessor/pkg/scheduling/workerpool"
		"github.com/vnykmshr/taskprocessor/pkg/task"
	)

	sched, _ := scheduler.New(scheduler.DefaultConfig())
	store, _ := results.New(1000)
	pool, _ := workerpool.New(workerpool.Config{WorkerCount: 4}, sched, processors.Default(nil), store)
	_ = pool.Start()
	defer func() { <-pool.Stop() }()

	sched.Submit(task.New(task.TypeCustom, map[string]any{"script": "return 42"}, 7))
*/
package taskprocessor
