// Package engine assembles the scheduler, worker pool, capability registry
// and result store described by a config.Config into one runnable unit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskprocessor/internal/config"
	"github.com/vnykmshr/taskprocessor/pkg/codec"
	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
	"github.com/vnykmshr/taskprocessor/pkg/dispatch"
	"github.com/vnykmshr/taskprocessor/pkg/metrics"
	"github.com/vnykmshr/taskprocessor/pkg/processors"
	"github.com/vnykmshr/taskprocessor/pkg/ratelimit"
	"github.com/vnykmshr/taskprocessor/pkg/results"
	"github.com/vnykmshr/taskprocessor/pkg/scheduling/recurring"
	"github.com/vnykmshr/taskprocessor/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskprocessor/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// Option customises New.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	redis      redis.UniversalClient
	observers  []results.Observer
	generator  *Generator
}

// WithRegisterer registers metrics on reg instead of the default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithRedisClient supplies the mirror's client instead of dialing
// cfg.Redis.Addr. The engine does not close a supplied client.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *options) { o.redis = c }
}

// WithObserver adds a result observer.
func WithObserver(obs results.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithGenerator sets the task generator used by recurring jobs.
func WithGenerator(g *Generator) Option {
	return func(o *options) { o.generator = g }
}

// Engine is a configured, startable task processor.
type Engine struct {
	Scheduler *scheduler.Scheduler
	Registry  *dispatch.Registry
	Store     *results.Store
	Pool      *workerpool.Pool
	Recurring *recurring.Generator
	Mirror    *results.RedisMirror
	Metrics   *metrics.Registry

	logger    *zap.Logger
	gatherer  prometheus.Gatherer
	redis     redis.UniversalClient
	ownsRedis bool
	closeOnce sync.Once
}

// New builds an engine from cfg. Nothing runs until Start.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.generator == nil {
		o.generator = NewGenerator(time.Now().UnixNano(), 64)
	}

	e := &Engine{logger: logger, gatherer: prometheus.DefaultGatherer}

	if cfg.Metrics.Enabled {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if g, ok := reg.(prometheus.Gatherer); ok {
			e.gatherer = g
		}
		e.Metrics = metrics.New(metrics.Config{
			Enabled:   true,
			Registry:  reg,
			Namespace: cfg.Metrics.Namespace,
		})
	}

	sched, err := scheduler.New(scheduler.Config{
		Name:            cfg.Scheduler.Name,
		HighThreshold:   cfg.Scheduler.HighThreshold,
		NormalThreshold: cfg.Scheduler.NormalThreshold,
		LowThreshold:    cfg.Scheduler.LowThreshold,
		MaxQueueSize:    cfg.Scheduler.MaxQueueSize,
		GraceWindow:     scheduler.Grace(cfg.Scheduler.GraceWindow),
		Logger:          logger.Named("scheduler"),
		Metrics:         e.Metrics,
	})
	if err != nil {
		return nil, err
	}
	e.Scheduler = sched
	e.Registry = processors.Default(logger.Named("processors"))

	storeOpts := []results.Option{
		results.WithLogger(logger.Named("results")),
		results.WithMetrics(e.Metrics),
	}
	if cfg.Redis.Enabled {
		if err := e.setupMirror(cfg.Redis, o.redis); err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, results.WithObserver(e.Mirror))
	}
	for _, obs := range o.observers {
		storeOpts = append(storeOpts, results.WithObserver(obs))
	}
	e.Store, err = results.New(cfg.Results.Capacity, storeOpts...)
	if err != nil {
		e.closeRedis()
		return nil, err
	}

	poolCfg := workerpool.Config{
		WorkerCount: cfg.Pool.Workers,
		Name:        cfg.Pool.Name,
		TaskTimeout: cfg.Pool.TaskTimeout,
		Logger:      logger.Named("workerpool"),
		Metrics:     e.Metrics,
	}
	if cfg.Pool.RateLimit > 0 {
		burst := cfg.Pool.Burst
		if burst == 0 {
			burst = cfg.Pool.Workers
		}
		throttle, err := ratelimit.New(cfg.Pool.RateLimit, burst)
		if err != nil {
			e.closeRedis()
			return nil, err
		}
		poolCfg.Throttle = throttle
	}
	e.Pool, err = workerpool.New(poolCfg, e.Scheduler, e.Registry, e.Store)
	if err != nil {
		e.closeRedis()
		return nil, err
	}

	e.Recurring = recurring.New(recurring.Config{
		Scheduler: e.Scheduler,
		Logger:    logger.Named("recurring"),
		Metrics:   e.Metrics,
	})
	for _, job := range cfg.Recurring {
		typ, err := task.ParseType(job.Type)
		if err != nil {
			e.closeRedis()
			return nil, err
		}
		gen := o.generator
		factory := func() (*task.Task, error) { return gen.Task(typ) }
		if err := e.Recurring.AddWithOptions(job.ID, job.Schedule, factory, recurring.Options{MaxRuns: job.MaxRuns}); err != nil {
			e.closeRedis()
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) setupMirror(rc config.RedisConfig, client redis.UniversalClient) error {
	codecs, err := codec.NewRegistry()
	if err != nil {
		return err
	}
	c, err := codecs.Lookup(rc.Codec)
	if err != nil {
		return err
	}
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		e.ownsRedis = true
	}
	e.redis = client
	e.Mirror, err = results.NewRedisMirror(results.MirrorConfig{
		Redis:   client,
		Prefix:  rc.Prefix,
		TTL:     rc.TTL,
		Codec:   c,
		Logger:  e.logger.Named("mirror"),
		Metrics: e.Metrics,
	})
	if err != nil {
		e.closeRedis()
	}
	return err
}

// Start launches the workers and the recurring jobs.
func (e *Engine) Start() error {
	if err := e.Pool.Start(); err != nil {
		return err
	}
	if err := e.Recurring.Start(); err != nil && !errors.Is(err, tperrors.ErrAlreadyRunning) {
		return err
	}
	e.logger.Info("engine started",
		zap.Int("workers", e.Pool.Size()),
		zap.Stringers("types", e.Registry.Types()),
		zap.Int("recurring_jobs", len(e.Recurring.Entries())))
	return nil
}

// Submit hands t to the scheduler.
func (e *Engine) Submit(t *task.Task) scheduler.Tier {
	return e.Scheduler.Submit(t)
}

// WaitProcessed blocks until the pool has finished at least n tasks or
// ctx is done.
func (e *Engine) WaitProcessed(ctx context.Context, n int64) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for e.Pool.TotalProcessed() < n {
		select {
		case <-ctx.Done():
			return fmt.Errorf("processed %d of %d tasks: %w", e.Pool.TotalProcessed(), n, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Shutdown stops recurring jobs, then the workers, waiting for in-flight
// tasks until ctx is done. Tasks still queued are left in the scheduler.
//
// The workers are always told to stop. If ctx ends first, Shutdown returns
// ctx.Err() and an owned Redis client stays open until the last in-flight
// result has been mirrored.
func (e *Engine) Shutdown(ctx context.Context) error {
	select {
	case <-e.Recurring.Stop():
	case <-ctx.Done():
	}

	poolDone := e.Pool.Stop()
	select {
	case <-poolDone:
	case <-ctx.Done():
		e.logger.Warn("shutdown deadline passed with tasks in flight",
			zap.Int("active", e.Pool.ActiveWorkers()))
		go func() {
			<-poolDone
			e.closeRedis()
		}()
		return ctx.Err()
	}

	e.closeRedis()
	e.logger.Info("engine stopped",
		zap.Int64("processed", e.Pool.TotalProcessed()),
		zap.Int("pending", e.Scheduler.Pending()),
		zap.Int("stored", e.Store.Len()))
	return nil
}

func (e *Engine) closeRedis() {
	e.closeOnce.Do(func() {
		if e.ownsRedis && e.redis != nil {
			if err := e.redis.Close(); err != nil {
				e.logger.Warn("closing redis client", zap.Error(err))
			}
		}
	})
}
