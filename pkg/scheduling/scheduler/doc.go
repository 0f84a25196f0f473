/*
Package scheduler provides a priority-tiered task queue with graceful overflow.

Tasks are classified by priority into three bounded FIFO tiers and one
unbounded backlog:

	HIGH     priority >= 10
	NORMAL   5 <= priority < 10
	LOW      0 <= priority < 5
	BACKLOG  priority < 0, or overflow from a full tier

Basic Usage:

	sched, err := scheduler.New(scheduler.Config{MaxQueueSize: 100})
	if err != nil {
		return err
	}

	tier := sched.Submit(task.New(task.TypeScale, params, 7)) // NORMAL

	if t, ok := sched.Dequeue(); ok {
		// process t
	}

Overflow:

Submit never blocks and never fails. When the home tier is full the task
may step down one tier if that tier has room and its occupancy minus the
task's priority is within the grace window (default 3). Otherwise the task
goes to the backlog, which hands out the highest priority first.

Blocking Consumers:

Workers call Next, which waits for work or context cancellation instead of
polling Dequeue:

	for {
		t, err := sched.Next(ctx)
		if err != nil {
			return // ctx done
		}
		handle(t)
	}

Each scheduler owns its queues; two schedulers never share tasks.
*/
package scheduler
