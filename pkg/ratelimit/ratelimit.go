// Package ratelimit paces how fast workers take tasks from the scheduler.
//
// A Bucket holds up to Burst tokens and refills at Rate tokens per second.
// Workers call Wait before pulling each task, so a throttled pool leaves
// work queued in its tier instead of holding it.
package ratelimit

import (
	"context"
	"sync"
	"time"

	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
	"github.com/vnykmshr/taskprocessor/pkg/common/validation"
)

// Bucket is a token bucket. It is safe for concurrent use.
type Bucket struct {
	mu     sync.Mutex
	rate   float64
	burst  int
	tokens float64
	last   time.Time
	now    func() time.Time
}

// New creates a full bucket allowing rate tasks per second with bursts of
// up to burst.
func New(rate float64, burst int) (*Bucket, error) {
	return NewWithClock(rate, burst, time.Now)
}

// NewWithClock is New with an injected time source.
func NewWithClock(rate float64, burst int, now func() time.Time) (*Bucket, error) {
	if rate <= 0 {
		return nil, invalidRate(rate)
	}
	if err := validation.ValidatePositive("ratelimit", "Burst", burst); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Bucket{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   now(),
		now:    now,
	}, nil
}

func invalidRate(rate float64) error {
	return tperrors.NewValidationError("ratelimit", "Rate", rate, "must be positive").
		WithHint("tasks per second, e.g. 50")
}

// refill adds the tokens earned since the last call. Caller holds mu.
func (b *Bucket) refill(now time.Time) {
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.rate
		if b.tokens > float64(b.burst) {
			b.tokens = float64(b.burst)
		}
	}
	b.last = now
}

// take consumes a token if one is available, otherwise it reports how long
// until one will be.
func (b *Bucket) take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.now())
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	missing := 1 - b.tokens
	return false, time.Duration(missing / b.rate * float64(time.Second))
}

// Allow consumes a token without blocking and reports whether one was
// available.
func (b *Bucket) Allow() bool {
	ok, _ := b.take()
	return ok
}

// Wait blocks until a token is available or ctx is done.
func (b *Bucket) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, delay := b.take()
		if ok {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens returns the tokens currently available.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.now())
	return b.tokens
}

// SetRate changes the refill rate, keeping tokens already earned.
func (b *Bucket) SetRate(rate float64) error {
	if rate <= 0 {
		return invalidRate(rate)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(b.now())
	b.rate = rate
	return nil
}

// Rate returns the refill rate in tokens per second.
func (b *Bucket) Rate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}

// Burst returns the bucket capacity.
func (b *Bucket) Burst() int {
	return b.burst
}
