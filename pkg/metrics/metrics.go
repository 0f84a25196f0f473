package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for taskprocessor components.
// A nil *Registry is valid and records nothing.
type Registry struct {
	// Scheduler Metrics
	TasksSubmitted *prometheus.CounterVec
	TasksDemoted   *prometheus.CounterVec
	TasksDequeued  *prometheus.CounterVec
	TierDepth      *prometheus.GaugeVec

	// Worker Pool Metrics
	TasksExecuted         *prometheus.CounterVec
	TaskExecutionDuration *prometheus.HistogramVec
	WorkerPoolSize        *prometheus.GaugeVec
	WorkerPoolActive      *prometheus.GaugeVec
	WorkerPanics          *prometheus.CounterVec

	// Result Store Metrics
	ResultsStored  *prometheus.CounterVec
	ResultsEvicted *prometheus.CounterVec
	ResultStoreLen *prometheus.GaugeVec
	MirrorErrors   *prometheus.CounterVec

	// Recurring Metrics
	RecurringFired  *prometheus.CounterVec
	RecurringFailed *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns a Registry bound to prometheus.DefaultRegisterer. It is
// created on first use so importing this package registers nothing.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	cfg := DefaultConfig()
	cfg.Registry = reg
	return New(cfg)
}

// New creates a registry from cfg. It returns nil when metrics are disabled.
func New(cfg Config) *Registry {
	if !cfg.Enabled {
		return nil
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)
	labels := cfg.Labels

	return &Registry{
		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "tasks_submitted_total",
				Help:        "Total number of tasks submitted, by the tier they were routed to",
				ConstLabels: labels,
			},
			[]string{"scheduler", "tier"},
		),

		TasksDemoted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "tasks_demoted_total",
				Help:        "Total number of tasks that overflowed their home tier",
				ConstLabels: labels,
			},
			[]string{"scheduler", "from", "to"},
		),

		TasksDequeued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "tasks_dequeued_total",
				Help:        "Total number of tasks dequeued, by tier",
				ConstLabels: labels,
			},
			[]string{"scheduler", "tier"},
		),

		TierDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "scheduler",
				Name:        "tier_depth",
				Help:        "Number of tasks currently waiting in each tier",
				ConstLabels: labels,
			},
			[]string{"scheduler", "tier"},
		),

		TasksExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "tasks_executed_total",
				Help:        "Total number of tasks executed, by type and outcome",
				ConstLabels: labels,
			},
			[]string{"pool", "type", "status"},
		),

		TaskExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "task_duration_seconds",
				Help:        "Time spent executing tasks",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"pool", "type"},
		),

		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "size",
				Help:        "Current worker pool size",
				ConstLabels: labels,
			},
			[]string{"pool"},
		),

		WorkerPoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "active_workers",
				Help:        "Number of workers currently executing a task",
				ConstLabels: labels,
			},
			[]string{"pool"},
		),

		WorkerPanics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "workerpool",
				Name:        "panics_total",
				Help:        "Total number of panics recovered from capabilities",
				ConstLabels: labels,
			},
			[]string{"pool"},
		),

		ResultsStored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "results",
				Name:        "stored_total",
				Help:        "Total number of results stored",
				ConstLabels: labels,
			},
			[]string{"status"},
		),

		ResultsEvicted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "results",
				Name:        "evicted_total",
				Help:        "Total number of results evicted by the capacity policy",
				ConstLabels: labels,
			},
			[]string{},
		),

		ResultStoreLen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "results",
				Name:        "size",
				Help:        "Number of results currently held",
				ConstLabels: labels,
			},
			[]string{},
		),

		MirrorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "results",
				Name:        "mirror_errors_total",
				Help:        "Total number of results that could not be mirrored",
				ConstLabels: labels,
			},
			[]string{"mirror"},
		),

		RecurringFired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "recurring",
				Name:        "fired_total",
				Help:        "Total number of recurring submissions",
				ConstLabels: labels,
			},
			[]string{"job"},
		),

		RecurringFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "recurring",
				Name:        "failed_total",
				Help:        "Total number of recurring jobs whose factory failed",
				ConstLabels: labels,
			},
			[]string{"job"},
		),
	}
}

// The helpers below are nil-safe so components can hold an optional registry.

// ObserveSubmit records a submission routed to tier.
func (r *Registry) ObserveSubmit(scheduler, tier string) {
	if r == nil {
		return
	}
	r.TasksSubmitted.WithLabelValues(scheduler, tier).Inc()
}

// ObserveDemotion records an overflow from one tier into another.
func (r *Registry) ObserveDemotion(scheduler, from, to string) {
	if r == nil {
		return
	}
	r.TasksDemoted.WithLabelValues(scheduler, from, to).Inc()
}

// ObserveDequeue records a dequeue from tier.
func (r *Registry) ObserveDequeue(scheduler, tier string) {
	if r == nil {
		return
	}
	r.TasksDequeued.WithLabelValues(scheduler, tier).Inc()
}

// SetTierDepth records the current size of a tier.
func (r *Registry) SetTierDepth(scheduler, tier string, depth int) {
	if r == nil {
		return
	}
	r.TierDepth.WithLabelValues(scheduler, tier).Set(float64(depth))
}

// ObserveExecution records one finished task.
func (r *Registry) ObserveExecution(pool, taskType, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.TasksExecuted.WithLabelValues(pool, taskType, status).Inc()
	r.TaskExecutionDuration.WithLabelValues(pool, taskType).Observe(d.Seconds())
}

// SetPoolSize records the configured number of workers.
func (r *Registry) SetPoolSize(pool string, n int) {
	if r == nil {
		return
	}
	r.WorkerPoolSize.WithLabelValues(pool).Set(float64(n))
}

// AddActiveWorkers adjusts the active worker gauge by delta.
func (r *Registry) AddActiveWorkers(pool string, delta int) {
	if r == nil {
		return
	}
	r.WorkerPoolActive.WithLabelValues(pool).Add(float64(delta))
}

// ObservePanic records a recovered panic.
func (r *Registry) ObservePanic(pool string) {
	if r == nil {
		return
	}
	r.WorkerPanics.WithLabelValues(pool).Inc()
}

// ObserveStore records a stored result and the store size afterwards.
func (r *Registry) ObserveStore(status string, evicted, size int) {
	if r == nil {
		return
	}
	r.ResultsStored.WithLabelValues(status).Inc()
	if evicted > 0 {
		r.ResultsEvicted.WithLabelValues().Add(float64(evicted))
	}
	r.ResultStoreLen.WithLabelValues().Set(float64(size))
}

// ObserveMirrorError records a failed mirror write.
func (r *Registry) ObserveMirrorError(mirror string) {
	if r == nil {
		return
	}
	r.MirrorErrors.WithLabelValues(mirror).Inc()
}

// ObserveRecurring records a recurring job firing.
func (r *Registry) ObserveRecurring(job string, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.RecurringFailed.WithLabelValues(job).Inc()
		return
	}
	r.RecurringFired.WithLabelValues(job).Inc()
}
