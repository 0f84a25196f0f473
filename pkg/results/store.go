package results

import (
	"runtime/debug"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/vnykmshr/taskprocessor/pkg/common/validation"
	"github.com/vnykmshr/taskprocessor/pkg/metrics"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// Observer is notified after each result is stored.
type Observer interface {
	OnStore(r task.Result)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(r task.Result)

// OnStore calls f(r).
func (f ObserverFunc) OnStore(r task.Result) { f(r) }

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for eviction messages.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Store) { s.metrics = m }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Store is a capacity-bounded map of results keyed by task id.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]task.Result
	capacity int

	observers []Observer
	logger    *zap.Logger
	metrics   *metrics.Registry
}

// New creates a store holding at most capacity results.
func New(capacity int, opts ...Option) (*Store, error) {
	if err := validation.ValidatePositive("results", "Capacity", capacity); err != nil {
		return nil, err
	}
	s := &Store{
		entries:  make(map[string]task.Result, capacity),
		capacity: capacity,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Store records r, first evicting the oldest results if the store is full.
func (s *Store) Store(r task.Result) {
	s.mu.Lock()
	evicted := 0
	if len(s.entries) >= s.capacity {
		evicted = s.evictLocked(len(s.entries) - s.capacity + 1)
	}
	s.entries[r.TaskID] = r
	size := len(s.entries)
	s.mu.Unlock()

	if evicted > 0 {
		s.logger.Debug("evicted results",
			zap.Int("count", evicted),
			zap.Int("capacity", s.capacity))
	}
	s.metrics.ObserveStore(string(r.Status), evicted, size)

	for _, o := range s.observers {
		s.notify(o, r)
	}
}

// notify runs one observer. A panicking observer is logged and skipped so
// it cannot take down the worker that stored r.
func (s *Store) notify(o Observer, r task.Result) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("result observer panicked",
				zap.String("task_id", r.TaskID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	o.OnStore(r)
}

// evictLocked removes the n entries with the oldest CompletedAt.
func (s *Store) evictLocked(n int) int {
	if n <= 0 {
		return 0
	}
	if n == 1 {
		var oldestID string
		var oldest task.Result
		first := true
		for id, r := range s.entries {
			if first || r.CompletedAt.Before(oldest.CompletedAt) {
				oldestID, oldest, first = id, r, false
			}
		}
		if !first {
			delete(s.entries, oldestID)
			return 1
		}
		return 0
	}

	ordered := s.sortedLocked(false)
	if n > len(ordered) {
		n = len(ordered)
	}
	for _, r := range ordered[:n] {
		delete(s.entries, r.TaskID)
	}
	return n
}

// sortedLocked returns every entry ordered by CompletedAt, newest first when
// desc is set.
func (s *Store) sortedLocked(desc bool) []task.Result {
	out := make([]task.Result, 0, len(s.entries))
	for _, r := range s.entries {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out
}

// Get returns the result for a task id.
func (s *Store) Get(taskID string) (task.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[taskID]
	return r, ok
}

// Recent returns up to limit results ordered by CompletedAt, newest first.
func (s *Store) Recent(limit int) []task.Result {
	if limit <= 0 {
		return []task.Result{}
	}
	s.mu.RLock()
	ordered := s.sortedLocked(true)
	s.mu.RUnlock()

	if limit < len(ordered) {
		ordered = ordered[:limit]
	}
	return ordered
}

// All returns a point-in-time copy of every retained result.
func (s *Store) All() map[string]task.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]task.Result, len(s.entries))
	for id, r := range s.entries {
		out[id] = r
	}
	return out
}

// Len returns the number of retained results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Cap returns the configured capacity.
func (s *Store) Cap() int {
	return s.capacity
}
