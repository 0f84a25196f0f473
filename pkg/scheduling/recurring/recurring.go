package recurring

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
	"github.com/vnykmshr/taskprocessor/pkg/common/validation"
	"github.com/vnykmshr/taskprocessor/pkg/metrics"
	"github.com/vnykmshr/taskprocessor/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// Submitter accepts generated tasks.
type Submitter interface {
	Submit(t *task.Task) scheduler.Tier
}

// Factory builds the task for one firing.
type Factory func() (*task.Task, error)

// Options tune a single job.
type Options struct {
	// MaxRuns removes the job after this many successful submissions
	// (0 = unlimited).
	MaxRuns int
}

// Config holds generator configuration.
type Config struct {
	Scheduler Submitter

	// Location for evaluating expressions (default: time.Local).
	Location *time.Location

	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// Entry describes a scheduled job.
type Entry struct {
	ID         string
	Expression string
	Next       time.Time
	Prev       time.Time
	Runs       int
}

type job struct {
	id      string
	expr    string
	factory Factory
	opts    Options
	entryID cron.EntryID
	runs    int
}

// Generator runs cron jobs that submit tasks.
type Generator struct {
	sched   Submitter
	cron    *cron.Cron
	parser  cron.Parser
	logger  *zap.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
}

// parser accepts an optional seconds field and descriptors such as @every 1m.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a generator. It panics if cfg.Scheduler is nil.
func New(cfg Config) *Generator {
	if err := validation.ValidateNotNil("recurring", "Scheduler", cfg.Scheduler); err != nil {
		panic(err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	g := &Generator{
		sched:   cfg.Scheduler,
		parser:  parser,
		logger:  logger,
		metrics: cfg.Metrics,
		jobs:    make(map[string]*job),
	}
	g.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(location),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger})),
	)
	return g
}

// Validate reports whether expr parses.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return tperrors.NewValidationError("recurring", "Expression", expr, err.Error()).
			WithHint("use six fields with seconds, five without, or a descriptor like @every 30s")
	}
	return nil
}

// Add schedules factory under id.
func (g *Generator) Add(id, expr string, factory Factory) error {
	return g.AddWithOptions(id, expr, factory, Options{})
}

// AddWithOptions schedules factory under id with per-job options.
func (g *Generator) AddWithOptions(id, expr string, factory Factory, opts Options) error {
	if err := validation.ValidateNotEmpty("recurring", "ID", id); err != nil {
		return err
	}
	if factory == nil {
		return tperrors.NewValidationError("recurring", "Factory", nil, "cannot be nil")
	}
	if err := validation.ValidateNonNegative("recurring", "MaxRuns", float64(opts.MaxRuns)); err != nil {
		return err
	}
	schedule, err := g.parser.Parse(expr)
	if err != nil {
		return Validate(expr)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.jobs[id]; exists {
		return tperrors.NewValidationError("recurring", "ID", id, "already scheduled")
	}
	j := &job{id: id, expr: expr, factory: factory, opts: opts}
	j.entryID = g.cron.Schedule(schedule, cron.FuncJob(func() { g.fire(j) }))
	g.jobs[id] = j

	g.logger.Info("scheduled recurring job",
		zap.String("job", id),
		zap.String("expression", expr))
	return nil
}

// fire builds and submits one task for j.
func (g *Generator) fire(j *job) {
	t, err := j.factory()
	if err == nil && t == nil {
		err = fmt.Errorf("factory returned nil task")
	}
	g.metrics.ObserveRecurring(j.id, err)
	if err != nil {
		g.logger.Warn("recurring job skipped",
			zap.String("job", j.id),
			zap.Error(err))
		return
	}

	tier := g.sched.Submit(t)
	g.logger.Debug("recurring job submitted task",
		zap.String("job", j.id),
		zap.String("task_id", t.ID),
		zap.Stringer("tier", tier))

	g.mu.Lock()
	j.runs++
	done := j.opts.MaxRuns > 0 && j.runs >= j.opts.MaxRuns
	g.mu.Unlock()
	if done {
		g.Remove(j.id)
	}
}

// Remove unschedules a job. It reports whether the job existed.
func (g *Generator) Remove(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[id]
	if !ok {
		return false
	}
	g.cron.Remove(j.entryID)
	delete(g.jobs, id)
	return true
}

// Entries lists scheduled jobs ordered by id.
func (g *Generator) Entries() []Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Entry, 0, len(g.jobs))
	for _, j := range g.jobs {
		e := g.cron.Entry(j.entryID)
		out = append(out, Entry{
			ID:         j.id,
			Expression: j.expr,
			Next:       e.Next,
			Prev:       e.Prev,
			Runs:       j.runs,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Start begins firing jobs.
func (g *Generator) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return tperrors.ErrAlreadyRunning
	}
	g.running = true
	g.cron.Start()
	return nil
}

// Stop halts the generator. The returned channel closes once any running
// job has finished.
func (g *Generator) Stop() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		done := make(chan struct{})
		close(done)
		return done
	}
	g.running = false
	return g.cron.Stop().Done()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
