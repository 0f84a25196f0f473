package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskprocessor/pkg/codec"
	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
	"github.com/vnykmshr/taskprocessor/pkg/common/validation"
	"github.com/vnykmshr/taskprocessor/pkg/metrics"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// MirrorConfig configures a RedisMirror.
type MirrorConfig struct {
	// Redis client the mirror writes to.
	Redis redis.UniversalClient

	// Prefix namespaces the keys and channel. Default "taskprocessor".
	Prefix string

	// TTL bounds how long a mirrored result lives in Redis. Zero keeps it
	// until Redis evicts it.
	TTL time.Duration

	// Codec encodes results. Default JSON.
	Codec codec.Codec

	// Timeout bounds each write. Default 2s.
	Timeout time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// RedisMirror publishes stored results to Redis. Each result is written to
// <prefix>:result:<task id> and its id is published on <prefix>:results.
// Failures are logged and counted, never returned to the worker.
type RedisMirror struct {
	rdb     redis.UniversalClient
	prefix  string
	ttl     time.Duration
	codec   codec.Codec
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Registry
}

// NewRedisMirror creates a mirror from cfg.
func NewRedisMirror(cfg MirrorConfig) (*RedisMirror, error) {
	if err := validation.ValidateNotNil("results", "Redis", cfg.Redis); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("results", "TTL", cfg.TTL.Seconds()); err != nil {
		return nil, err
	}
	m := &RedisMirror{
		rdb:     cfg.Redis,
		prefix:  cfg.Prefix,
		ttl:     cfg.TTL,
		codec:   cfg.Codec,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if m.prefix == "" {
		m.prefix = "taskprocessor"
	}
	if m.codec == nil {
		m.codec = codec.JSON()
	}
	if m.timeout <= 0 {
		m.timeout = 2 * time.Second
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m, nil
}

// Key returns the Redis key holding a task's result.
func (m *RedisMirror) Key(taskID string) string {
	return m.prefix + ":result:" + taskID
}

// Channel returns the pub/sub channel result ids are announced on.
func (m *RedisMirror) Channel() string {
	return m.prefix + ":results"
}

// OnStore implements Observer. A write that runs out of time is retried
// once with a fresh budget.
func (m *RedisMirror) OnStore(r task.Result) {
	err := m.mirrorWithBudget(r)
	if tperrors.IsRetryable(err) {
		m.logger.Debug("retrying mirror write", zap.String("task_id", r.TaskID), zap.Error(err))
		err = m.mirrorWithBudget(r)
	}
	if err != nil {
		m.metrics.ObserveMirrorError("redis")
		m.logger.Warn("failed to mirror result",
			zap.String("task_id", r.TaskID),
			zap.Error(err))
	}
}

func (m *RedisMirror) mirrorWithBudget(r task.Result) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.Mirror(ctx, r)
}

// Mirror writes one result and announces it.
func (m *RedisMirror) Mirror(ctx context.Context, r task.Result) error {
	payload, err := m.codec.Marshal(r)
	if err != nil {
		return tperrors.NewOperationError("results", "Mirror", err).WithContext("encode " + r.TaskID)
	}

	_, err = m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, m.Key(r.TaskID), payload, m.ttl)
		pipe.Publish(ctx, m.Channel(), r.TaskID)
		return nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", tperrors.ErrTimeout, err)
	}
	if err != nil {
		return tperrors.NewOperationError("results", "Mirror", err).WithContext("task " + r.TaskID)
	}
	return nil
}

// Fetch reads a mirrored result back. The store never calls it; it serves
// readers outside the worker path.
func (m *RedisMirror) Fetch(ctx context.Context, taskID string) (task.Result, bool, error) {
	payload, err := m.rdb.Get(ctx, m.Key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return task.Result{}, false, nil
	}
	if err != nil {
		return task.Result{}, false, tperrors.NewOperationError("results", "Fetch", err)
	}
	var r task.Result
	if err := m.codec.Unmarshal(payload, &r); err != nil {
		return task.Result{}, false, tperrors.NewOperationError("results", "Fetch", err).WithContext("decode " + taskID)
	}
	return r, true, nil
}
