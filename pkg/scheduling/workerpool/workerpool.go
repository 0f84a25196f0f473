package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	tpcontext "github.com/vnykmshr/taskprocessor/pkg/common/context"
	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// Error kinds recorded on results that never reached a capability.
const (
	KindInvalidParameter = "invalid_parameter"
	KindUnknownType      = "unknown_type"
	KindPanic            = "panic"
)

// Start spawns the workers. It fails if the pool is already running or has
// been stopped.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return tperrors.NewOperationError("workerpool", "Start", tperrors.ErrClosed)
	}
	if p.running {
		return tperrors.NewOperationError("workerpool", "Start", tperrors.ErrAlreadyRunning)
	}
	p.running = true

	p.metrics.SetPoolSize(p.config.Name, p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		w := &worker{
			id:   i,
			name: fmt.Sprintf("%s-%d", p.config.Name, i),
			pool: p,
		}
		p.workerWg.Add(1)
		go w.run()
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.config.WorkerCount))
	return nil
}

// Stop asks every worker to exit. Idle workers return at once; a worker in
// the middle of a task finishes and stores it first. The returned channel
// closes once all workers have exited. Stop is idempotent and may be
// called before Start.
func (p *Pool) Stop() <-chan struct{} {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		wasRunning := p.running
		p.running = false
		p.stopped = true
		p.mu.Unlock()

		p.cancel()

		go func() {
			p.workerWg.Wait()
			if wasRunning {
				p.metrics.SetPoolSize(p.config.Name, 0)
				p.logger.Info("worker pool stopped", zap.Int64("processed", p.TotalProcessed()))
			}
			close(p.done)
		}()
	})
	return p.done
}

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	defer p.workerWg.Done()

	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(w.id)
	}
	defer func() {
		if p.config.OnWorkerStop != nil {
			p.config.OnWorkerStop(w.id)
		}
	}()

	for {
		if p.config.Throttle != nil {
			if err := p.config.Throttle.Wait(p.ctx); err != nil {
				if p.ctx.Err() != nil {
					return
				}
				p.logger.Warn("throttle failed", zap.String("worker", w.name), zap.Error(err))
				continue
			}
		}
		t, err := p.source.Next(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn("task source failed", zap.String("worker", w.name), zap.Error(err))
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		w.execute(t)
	}
}

// execute dispatches one task and stores its result.
func (w *worker) execute(t *task.Task) {
	p := w.pool
	start := time.Now()

	atomic.AddInt32(&p.activeWorkers, 1)
	p.metrics.AddActiveWorkers(p.config.Name, 1)
	defer func() {
		atomic.AddInt32(&p.activeWorkers, -1)
		p.metrics.AddActiveWorkers(p.config.Name, -1)
	}()

	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(w.id, t)
	}

	res := w.process(t)
	res.TaskID = t.ID
	if res.Output == nil {
		res.Output = make(map[string]any)
	}
	res.ProcessorID = w.name
	res.CompletedAt = p.config.Now()

	p.sink.Store(res)
	atomic.AddInt64(&p.totalProcessed, 1)

	elapsed := time.Since(start)
	p.metrics.ObserveExecution(p.config.Name, t.Type.String(), string(res.Status), elapsed)
	p.logger.Debug("task processed",
		zap.String("task_id", t.ID),
		zap.Stringer("type", t.Type),
		zap.String("status", string(res.Status)),
		zap.String("processor", w.name),
		zap.Duration("duration", elapsed))

	if p.config.OnTaskComplete != nil {
		p.config.OnTaskComplete(w.id, res)
	}
}

// process resolves and runs the capability for t. Every failure, including
// a panic, becomes a result.
func (w *worker) process(t *task.Task) (res task.Result) {
	p := w.pool
	defer func() {
		if r := recover(); r != nil {
			p.metrics.ObservePanic(p.config.Name)
			if p.config.PanicHandler != nil {
				p.config.PanicHandler(t, r)
			} else {
				p.logger.Error("capability panicked",
					zap.String("task_id", t.ID),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
			}
			res = task.ClassifiedFailure(t.ID, KindPanic, fmt.Sprintf("capability panicked: %v", r))
		}
	}()

	capability, err := p.disp.Resolve(t)
	if err != nil {
		p.logger.Warn("task rejected",
			zap.String("task_id", t.ID),
			zap.Stringer("type", t.Type),
			zap.Error(err))
		return task.ClassifiedFailure(t.ID, rejectionKind(err), err.Error())
	}

	ctx, cancel := tpcontext.WithBudget(context.Background(), p.config.TaskTimeout)
	defer cancel()
	if budget, ok := tpcontext.Remaining(ctx); ok {
		p.logger.Debug("dispatching task",
			zap.String("task_id", t.ID),
			zap.Stringer("type", t.Type),
			zap.Duration("budget", budget))
	}
	return capability.Process(ctx, t)
}

func rejectionKind(err error) string {
	switch {
	case errors.Is(err, tperrors.ErrUnknownType):
		return KindUnknownType
	case errors.Is(err, tperrors.ErrInvalidParameter):
		return KindInvalidParameter
	default:
		return "rejected"
	}
}
