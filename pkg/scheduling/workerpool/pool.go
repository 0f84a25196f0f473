package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/taskprocessor/pkg/common/validation"
	"github.com/vnykmshr/taskprocessor/pkg/dispatch"
	"github.com/vnykmshr/taskprocessor/pkg/metrics"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// Source hands out tasks. Next blocks until a task is available or ctx is
// done, in which case it returns ctx.Err().
type Source interface {
	Next(ctx context.Context) (*task.Task, error)
}

// Dispatcher resolves the capability for a task, validating its parameters.
type Dispatcher interface {
	Resolve(t *task.Task) (dispatch.Capability, error)
}

// Throttle paces task intake. Wait blocks until the worker may take its
// next task or ctx is done.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Sink records results.
type Sink interface {
	Store(r task.Result)
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// Name prefixes worker identities: worker i stamps results with
	// "<Name>-<i>". Default "worker".
	Name string

	// TaskTimeout is the budget placed on the context passed to each
	// capability. Capabilities that notice the deadline report TIMEOUT.
	// Zero means no budget.
	TaskTimeout time.Duration

	// Throttle, if set, is waited on before each task is taken from the
	// Source. Tasks stay queued while the pool is throttled.
	Throttle Throttle

	// PanicHandler is called when a capability panics. The task still
	// produces a FAILURE result. If nil, panics are logged.
	PanicHandler func(t *task.Task, recovered interface{})

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task is dispatched.
	OnTaskStart func(workerID int, t *task.Task)

	// OnTaskComplete is called after the result has been stored.
	OnTaskComplete func(workerID int, r task.Result)

	// Now stamps CompletedAt. Default time.Now.
	Now func() time.Time

	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("workerpool", "WorkerCount", c.WorkerCount); err != nil {
		return err
	}
	return validation.ValidateNonNegative("workerpool", "TaskTimeout", c.TaskTimeout.Seconds())
}

// Pool runs a fixed number of workers that drain a Source, dispatch each
// task and store the outcome in a Sink.
type Pool struct {
	config Config
	source Source
	disp   Dispatcher
	sink   Sink

	logger  *zap.Logger
	metrics *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	running  bool
	stopped  bool
	stopOnce sync.Once
	done     chan struct{}
	workerWg sync.WaitGroup

	activeWorkers  int32
	totalProcessed int64
}

// worker represents a single worker in the pool.
type worker struct {
	id   int
	name string
	pool *Pool
}

// New creates a pool. Workers are not started until Start.
func New(cfg Config, src Source, disp Dispatcher, sink Sink) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("workerpool", "Source", src); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("workerpool", "Dispatcher", disp); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("workerpool", "Sink", sink); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "worker"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config:  cfg,
		source:  src,
		disp:    disp,
		sink:    sink,
		logger:  cfg.Logger.With(zap.String("pool", cfg.Name)),
		metrics: cfg.Metrics,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return p.config.WorkerCount
}

// Name returns the worker identity prefix.
func (p *Pool) Name() string {
	return p.config.Name
}

// ActiveWorkers returns the number of workers currently executing a task.
func (p *Pool) ActiveWorkers() int {
	return int(atomic.LoadInt32(&p.activeWorkers))
}

// TotalProcessed returns the number of results stored so far.
func (p *Pool) TotalProcessed() int64 {
	return atomic.LoadInt64(&p.totalProcessed)
}

// Running reports whether the pool has been started and not stopped.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
