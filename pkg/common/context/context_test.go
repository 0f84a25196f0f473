package context

import (
	"context"
	"testing"
	"time"
)

func TestWithBudget(t *testing.T) {
	t.Run("zero budget has no deadline", func(t *testing.T) {
		ctx, cancel := WithBudget(context.Background(), 0)
		defer cancel()

		if _, ok := Remaining(ctx); ok {
			t.Error("expected no deadline")
		}
		if IsCanceled(ctx) {
			t.Error("context should not be canceled")
		}
		cancel()
		if !IsCanceled(ctx) {
			t.Error("context should be canceled after cancel")
		}
		if IsTimedOut(ctx) {
			t.Error("explicit cancel is not a timeout")
		}
	})

	t.Run("positive budget expires", func(t *testing.T) {
		ctx, cancel := WithBudget(context.Background(), 10*time.Millisecond)
		defer cancel()

		if left, ok := Remaining(ctx); !ok || left > 10*time.Millisecond {
			t.Errorf("Remaining() = %v, %v", left, ok)
		}
		<-ctx.Done()
		if !IsTimedOut(ctx) {
			t.Error("expected timeout")
		}
	})
}
