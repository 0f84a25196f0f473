// Package task defines the unit of work flowing through the scheduler and
// worker pool, and the result a worker records for it.
//
// A Task is created by a caller, submitted exactly once, dequeued by exactly
// one worker and then dropped; only its Result survives, in a bounded store.
//
//	t := task.New(task.TypeScale, map[string]any{
//		"data": pixels, "width": 640, "height": 480, "scale": 0.5,
//	}, 7)
//	tier := sched.Submit(t)
//
// Priority may be changed with SetPriority until the task is submitted.
// Every other field is fixed at construction.
package task
