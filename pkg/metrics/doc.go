// Package metrics provides Prometheus instrumentation for taskprocessor components.
//
// # Overview
//
// A Registry groups the collectors for:
//   - Scheduler admission (submissions by tier, demotions, dequeues, tier depth)
//   - Worker pools (executions by type and status, duration, pool size, active workers)
//   - The result store (stores, evictions, size, mirror failures)
//   - Recurring submissions (fired and failed jobs)
//
// # Quick Start
//
// Build a registry and hand it to the components through their Config:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//
//	sched, _ := scheduler.New(scheduler.Config{Metrics: m})
//	pool, _ := workerpool.New(workerpool.Config{WorkerCount: 4, Metrics: m}, sched, registry, store)
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// A nil *Registry is accepted everywhere and records nothing.
//
// # Available Metrics
//
//   - taskprocessor_scheduler_tasks_submitted_total{scheduler,tier}
//   - taskprocessor_scheduler_tasks_demoted_total{scheduler,from,to}
//   - taskprocessor_scheduler_tasks_dequeued_total{scheduler,tier}
//   - taskprocessor_scheduler_tier_depth{scheduler,tier}
//   - taskprocessor_workerpool_tasks_executed_total{pool,type,status}
//   - taskprocessor_workerpool_task_duration_seconds{pool,type}
//   - taskprocessor_workerpool_size{pool}
//   - taskprocessor_workerpool_active_workers{pool}
//   - taskprocessor_workerpool_panics_total{pool}
//   - taskprocessor_results_stored_total{status}
//   - taskprocessor_results_evicted_total
//   - taskprocessor_results_size
//   - taskprocessor_results_mirror_errors_total{mirror}
//   - taskprocessor_recurring_fired_total{job}
//   - taskprocessor_recurring_failed_total{job}
package metrics
