package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vnykmshr/taskprocessor/pkg/common/validation"
	"github.com/vnykmshr/taskprocessor/pkg/metrics"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// Default configuration values.
const (
	DefaultHighThreshold   = 10
	DefaultNormalThreshold = 5
	DefaultLowThreshold    = 0
	DefaultMaxQueueSize    = 100
	DefaultGraceWindow     = 3
	DefaultName            = "default"
)

// Config holds scheduler configuration.
type Config struct {
	// Priority thresholds. A task goes to HIGH at HighThreshold and above,
	// NORMAL at NormalThreshold and above, LOW at LowThreshold and above.
	// Leaving all three at zero selects 10/5/0.
	HighThreshold   int
	NormalThreshold int
	LowThreshold    int

	// MaxQueueSize is the capacity of each bounded tier (default: 100).
	MaxQueueSize int

	// GraceWindow bounds how far an overflowing task may step down into the
	// next tier. Nil selects 3; use Grace to set any value, including 0.
	GraceWindow *int

	// Name labels logs and metrics (default: "default").
	Name string

	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// Grace returns a GraceWindow value for Config.
func Grace(n int) *int {
	return &n
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		HighThreshold:   DefaultHighThreshold,
		NormalThreshold: DefaultNormalThreshold,
		LowThreshold:    DefaultLowThreshold,
		MaxQueueSize:    DefaultMaxQueueSize,
		GraceWindow:     Grace(DefaultGraceWindow),
		Name:            DefaultName,
	}
}

func (c Config) withDefaults() Config {
	if c.HighThreshold == 0 && c.NormalThreshold == 0 && c.LowThreshold == 0 {
		c.HighThreshold = DefaultHighThreshold
		c.NormalThreshold = DefaultNormalThreshold
		c.LowThreshold = DefaultLowThreshold
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.GraceWindow == nil {
		c.GraceWindow = Grace(DefaultGraceWindow)
	} else {
		c.GraceWindow = Grace(*c.GraceWindow)
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if err := validation.ValidatePositive("scheduler", "MaxQueueSize", c.MaxQueueSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("scheduler", "GraceWindow", float64(*c.GraceWindow)); err != nil {
		return err
	}
	if err := validation.ValidateOrdered("scheduler", "NormalThreshold", c.LowThreshold, c.NormalThreshold); err != nil {
		return err
	}
	return validation.ValidateOrdered("scheduler", "HighThreshold", c.NormalThreshold, c.HighThreshold)
}

// Scheduler routes tasks into priority tiers and hands them out in strict
// tier precedence. HIGH, NORMAL and LOW are bounded FIFO queues; BACKLOG is
// an unbounded priority queue that absorbs everything else, so Submit
// always succeeds.
//
// Every tier has its own lock and no lock spans tiers, so Pending and
// Stats are eventually consistent while submitters and workers are active.
// All methods are safe for concurrent use.
type Scheduler struct {
	cfg     Config
	grace   int
	bounded [3]*ring
	backlog *backlog

	// signal carries at most one pending wakeup for blocked Next callers.
	signal chan struct{}

	logger  *zap.Logger
	metrics *metrics.Registry
}

// New creates a scheduler with its own set of tier queues.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	s := &Scheduler{
		cfg:     cfg,
		grace:   *cfg.GraceWindow,
		backlog: &backlog{},
		signal:  make(chan struct{}, 1),
		logger:  cfg.Logger.With(zap.String("scheduler", cfg.Name)),
		metrics: cfg.Metrics,
	}
	for _, t := range []Tier{High, Normal, Low} {
		s.bounded[t] = newRing(cfg.MaxQueueSize)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// homeTier classifies a non-negative priority.
func (s *Scheduler) homeTier(priority int) Tier {
	switch {
	case priority >= s.cfg.HighThreshold:
		return High
	case priority >= s.cfg.NormalThreshold:
		return Normal
	case priority >= s.cfg.LowThreshold:
		return Low
	default:
		return Backlog
	}
}

// Submit routes t and returns the tier it landed in. It never blocks and
// never fails: a task that cannot be placed in a bounded tier goes to
// BACKLOG.
//
// A full home tier triggers a demotion check against the next lower
// bounded tier. The task steps down when that tier has room and its
// occupancy minus the task's priority is within GraceWindow. The check
// applies the same way to HIGH and NORMAL overflow; LOW overflow always
// goes to BACKLOG.
//
// Submit panics if t is nil or was already submitted.
func (s *Scheduler) Submit(t *task.Task) Tier {
	if t == nil {
		panic("scheduler: Submit called with nil task")
	}
	if !t.MarkSubmitted() {
		panic(fmt.Sprintf("scheduler: task %s submitted twice", t.ID))
	}

	tier := s.route(t)
	if s.metrics != nil {
		s.metrics.ObserveSubmit(s.cfg.Name, tier.String())
		s.metrics.SetTierDepth(s.cfg.Name, tier.String(), s.Len(tier))
	}
	s.notify()
	return tier
}

func (s *Scheduler) route(t *task.Task) Tier {
	priority := t.Priority()
	if priority < 0 {
		s.backlog.push(t)
		s.logger.Debug("routed task",
			zap.String("task_id", t.ID),
			zap.Int("priority", priority),
			zap.Stringer("tier", Backlog))
		return Backlog
	}

	home := s.homeTier(priority)
	if home != Backlog && s.bounded[home].tryPush(t) {
		s.logger.Debug("routed task",
			zap.String("task_id", t.ID),
			zap.Int("priority", priority),
			zap.Stringer("tier", home))
		return home
	}

	target := home.below()
	if target.Bounded() && s.eligible(target, priority) && s.bounded[target].tryPush(t) {
		s.metrics.ObserveDemotion(s.cfg.Name, home.String(), target.String())
		s.logger.Warn("tier full, demoted task",
			zap.String("task_id", t.ID),
			zap.Int("priority", priority),
			zap.Stringer("from", home),
			zap.Stringer("tier", target))
		return target
	}

	s.backlog.push(t)
	if home != Backlog {
		s.metrics.ObserveDemotion(s.cfg.Name, home.String(), Backlog.String())
	}
	s.logger.Warn("tier full, task sent to backlog",
		zap.String("task_id", t.ID),
		zap.Int("priority", priority),
		zap.Stringer("from", home),
		zap.Stringer("tier", Backlog))
	return Backlog
}

// eligible is the demotion check for stepping a task down into target.
func (s *Scheduler) eligible(target Tier, priority int) bool {
	q := s.bounded[target]
	n := q.Len()
	return n < q.Cap() && n-priority <= s.grace
}

// Dequeue removes the next task in strict precedence: HIGH, NORMAL, LOW,
// then BACKLOG. Bounded tiers are FIFO; BACKLOG yields the highest
// priority first, earliest arrival among equals. It returns false at once
// when every tier is empty.
func (s *Scheduler) Dequeue() (*task.Task, bool) {
	for _, tier := range []Tier{High, Normal, Low} {
		if t, ok := s.bounded[tier].pop(); ok {
			s.observeDequeue(tier)
			return t, true
		}
	}
	if t, ok := s.backlog.pop(); ok {
		s.observeDequeue(Backlog)
		return t, true
	}
	return nil, false
}

func (s *Scheduler) observeDequeue(tier Tier) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDequeue(s.cfg.Name, tier.String())
	s.metrics.SetTierDepth(s.cfg.Name, tier.String(), s.Len(tier))
}

// Next blocks until a task is available or ctx is done. It returns the
// same task Dequeue would. Once ctx is done it returns ctx.Err() even if
// tasks remain.
func (s *Scheduler) Next(ctx context.Context) (*task.Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if t, ok := s.Dequeue(); ok {
			// Pass the wakeup on so another idle worker picks up the rest.
			if s.Pending() > 0 {
				s.notify()
			}
			return t, nil
		}
		select {
		case <-s.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Scheduler) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Len returns the number of tasks waiting in a tier.
func (s *Scheduler) Len(tier Tier) int {
	switch tier {
	case High, Normal, Low:
		return s.bounded[tier].Len()
	case Backlog:
		return s.backlog.Len()
	default:
		return 0
	}
}

// Pending returns the sum of all tier sizes.
func (s *Scheduler) Pending() int {
	total := 0
	for _, tier := range Tiers {
		total += s.Len(tier)
	}
	return total
}

// Stats is a snapshot of tier sizes.
type Stats struct {
	High     int
	Normal   int
	Low      int
	Backlog  int
	Capacity int
}

// Pending returns the total across tiers.
func (st Stats) Pending() int {
	return st.High + st.Normal + st.Low + st.Backlog
}

// Stats returns the current tier sizes. Sizes are read one tier at a time.
func (s *Scheduler) Stats() Stats {
	return Stats{
		High:     s.Len(High),
		Normal:   s.Len(Normal),
		Low:      s.Len(Low),
		Backlog:  s.Len(Backlog),
		Capacity: s.cfg.MaxQueueSize,
	}
}

// Status returns a one-line summary of all four tiers.
func (s *Scheduler) Status() string {
	st := s.Stats()
	return fmt.Sprintf("Scheduler[%s]: HIGH=%d/%d NORMAL=%d/%d LOW=%d/%d BACKLOG=%d pending=%d",
		s.cfg.Name,
		st.High, st.Capacity,
		st.Normal, st.Capacity,
		st.Low, st.Capacity,
		st.Backlog, st.Pending())
}

func (s *Scheduler) String() string {
	return s.Status()
}
