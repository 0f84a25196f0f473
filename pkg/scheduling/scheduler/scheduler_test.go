package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vnykmshr/taskprocessor/internal/testutil"
	tperrors "github.com/vnykmshr/taskprocessor/pkg/common/errors"
	"github.com/vnykmshr/taskprocessor/pkg/metrics"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

func newScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(cfg)
	testutil.AssertNoError(t, err)
	return s
}

func withPriority(p int) *task.Task {
	return task.New(task.TypeCustom, nil, p)
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative queue size", Config{MaxQueueSize: -1}},
		{"negative grace window", Config{GraceWindow: Grace(-2)}},
		{"normal not above low", Config{HighThreshold: 10, NormalThreshold: 2, LowThreshold: 2}},
		{"high not above normal", Config{HighThreshold: 5, NormalThreshold: 5, LowThreshold: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !tperrors.IsValidationError(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	s := newScheduler(t, Config{})
	cfg := s.Config()

	testutil.AssertEqual(t, cfg.HighThreshold, 10)
	testutil.AssertEqual(t, cfg.NormalThreshold, 5)
	testutil.AssertEqual(t, cfg.LowThreshold, 0)
	testutil.AssertEqual(t, cfg.MaxQueueSize, 100)
	testutil.AssertEqual(t, *cfg.GraceWindow, 3)
	testutil.AssertEqual(t, cfg.Name, "default")
}

func TestTierRouting(t *testing.T) {
	tests := []struct {
		priority int
		want     Tier
	}{
		{15, High},
		{10, High},
		{9, Normal},
		{5, Normal},
		{4, Low},
		{0, Low},
		{-1, Backlog},
		{-100, Backlog},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("priority %d", tt.priority), func(t *testing.T) {
			s := newScheduler(t, Config{})
			testutil.AssertEqual(t, s.Submit(withPriority(tt.priority)), tt.want)
		})
	}
}

func TestHighBeforeNormal(t *testing.T) {
	s := newScheduler(t, Config{})
	high := withPriority(15)
	normal := withPriority(7)

	testutil.AssertEqual(t, s.Submit(high), High)
	testutil.AssertEqual(t, s.Submit(normal), Normal)

	first, ok := s.Dequeue()
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, first, high)
	second, ok := s.Dequeue()
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, second, normal)

	_, ok = s.Dequeue()
	testutil.AssertEqual(t, ok, false)
}

func TestNormalOverflowDemotesToLow(t *testing.T) {
	const n = 4
	s := newScheduler(t, Config{MaxQueueSize: n})

	for i := 0; i < n; i++ {
		testutil.AssertEqual(t, s.Submit(withPriority(7)), Normal)
	}
	testutil.AssertEqual(t, s.Submit(withPriority(7)), Low)
	testutil.AssertEqual(t, s.Len(Low), 1)
}

func TestNormalOverflowToBacklogWhenLowIsFull(t *testing.T) {
	const n = 3
	s := newScheduler(t, Config{MaxQueueSize: n})

	for i := 0; i < n; i++ {
		s.Submit(withPriority(1))
		s.Submit(withPriority(7))
	}
	for i := 0; i < 5; i++ {
		got := s.Submit(withPriority(7))
		if got == High || got == Normal {
			t.Fatalf("overflowing task routed to %s", got)
		}
		testutil.AssertEqual(t, got, Backlog)
	}
}

func TestDemotionRespectsGraceWindow(t *testing.T) {
	s := newScheduler(t, Config{MaxQueueSize: 10, GraceWindow: Grace(1)})

	// LOW holds 8 tasks, so a priority-5 task is 3 over the window.
	for i := 0; i < 8; i++ {
		s.Submit(withPriority(2))
	}
	for i := 0; i < 10; i++ {
		s.Submit(withPriority(5))
	}
	testutil.AssertEqual(t, s.Submit(withPriority(5)), Backlog)

	// A higher priority task is within the window.
	testutil.AssertEqual(t, s.Submit(withPriority(9)), Low)
}

func TestZeroGraceWindowIsKept(t *testing.T) {
	s := newScheduler(t, Config{MaxQueueSize: 10, GraceWindow: Grace(0)})
	testutil.AssertEqual(t, *s.Config().GraceWindow, 0)

	for i := 0; i < 7; i++ {
		s.Submit(withPriority(1))
	}
	for i := 0; i < 10; i++ {
		s.Submit(withPriority(5))
	}

	// LOW holds 7: a priority-5 task would fit a window of 3 but not 0.
	testutil.AssertEqual(t, s.Submit(withPriority(5)), Backlog)
	testutil.AssertEqual(t, s.Submit(withPriority(7)), Low)
}

func TestHighOverflowDemotesToNormal(t *testing.T) {
	s := newScheduler(t, Config{MaxQueueSize: 2})

	s.Submit(withPriority(12))
	s.Submit(withPriority(12))
	testutil.AssertEqual(t, s.Submit(withPriority(12)), Normal)

	s.Submit(withPriority(12))
	testutil.AssertEqual(t, s.Len(Normal), 2)
	testutil.AssertEqual(t, s.Submit(withPriority(12)), Backlog)
}

func TestLowOverflowGoesToBacklog(t *testing.T) {
	s := newScheduler(t, Config{MaxQueueSize: 1})

	testutil.AssertEqual(t, s.Submit(withPriority(3)), Low)
	testutil.AssertEqual(t, s.Submit(withPriority(3)), Backlog)
}

func TestNegativePriorityAlwaysBacklog(t *testing.T) {
	s := newScheduler(t, Config{MaxQueueSize: 5})
	testutil.AssertEqual(t, s.Submit(withPriority(-1)), Backlog)

	for i := 0; i < 15; i++ {
		s.Submit(withPriority(i))
	}
	testutil.AssertEqual(t, s.Submit(withPriority(-1)), Backlog)
}

func TestBacklogOrdering(t *testing.T) {
	s := newScheduler(t, Config{})
	a := withPriority(-5)
	b := withPriority(-1)
	c := withPriority(-1)
	d := withPriority(-3)
	for _, tk := range []*task.Task{a, b, c, d} {
		s.Submit(tk)
	}

	want := []*task.Task{b, c, d, a}
	for i, w := range want {
		got, ok := s.Dequeue()
		testutil.AssertEqual(t, ok, true)
		if got != w {
			t.Fatalf("dequeue %d: got priority %d (%s), want %s", i, got.Priority(), got.ID, w.ID)
		}
	}
}

func TestFIFOWithinTier(t *testing.T) {
	s := newScheduler(t, Config{})
	var submitted []*task.Task
	for i := 0; i < 20; i++ {
		tk := withPriority(6)
		submitted = append(submitted, tk)
		s.Submit(tk)
	}
	for i, want := range submitted {
		got, _ := s.Dequeue()
		if got != want {
			t.Fatalf("position %d out of order", i)
		}
	}
}

func TestNoLossNoDuplication(t *testing.T) {
	s := newScheduler(t, Config{MaxQueueSize: 7})

	const m = 200
	seen := make(map[string]bool, m)
	for i := 0; i < m; i++ {
		s.Submit(withPriority(i%25 - 5))
	}
	testutil.AssertEqual(t, s.Pending(), m)

	for i := 0; i < m; i++ {
		tk, ok := s.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d returned empty", i)
		}
		if seen[tk.ID] {
			t.Fatalf("task %s dequeued twice", tk.ID)
		}
		seen[tk.ID] = true
	}
	_, ok := s.Dequeue()
	testutil.AssertEqual(t, ok, false)
	testutil.AssertEqual(t, len(seen), m)
}

func TestConcurrentSubmitThenDrain(t *testing.T) {
	s := newScheduler(t, Config{MaxQueueSize: 16})

	const producers = 8
	const perProducer = 250
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				s.Submit(withPriority((p*perProducer+i)%30 - 10))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for {
		tk, ok := s.Dequeue()
		if !ok {
			break
		}
		if seen[tk.ID] {
			t.Fatalf("duplicate task %s", tk.ID)
		}
		seen[tk.ID] = true
	}
	testutil.AssertEqual(t, len(seen), producers*perProducer)
}

func TestBoundedTiersNeverExceedCapacity(t *testing.T) {
	s := newScheduler(t, Config{MaxQueueSize: 5})

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Submit(withPriority(i % 15))
				st := s.Stats()
				if st.High > 5 || st.Normal > 5 || st.Low > 5 {
					t.Errorf("tier over capacity: %+v", st)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestInstancesAreIsolated(t *testing.T) {
	a := newScheduler(t, Config{Name: "a"})
	b := newScheduler(t, Config{Name: "b"})

	a.Submit(withPriority(12))
	testutil.AssertEqual(t, a.Pending(), 1)
	testutil.AssertEqual(t, b.Pending(), 0)

	_, ok := b.Dequeue()
	testutil.AssertEqual(t, ok, false)
}

func TestSubmitFreezesPriority(t *testing.T) {
	s := newScheduler(t, Config{})
	tk := withPriority(3)
	s.Submit(tk)

	if err := tk.SetPriority(20); !errors.Is(err, tperrors.ErrClosed) {
		t.Fatalf("SetPriority after submit: %v", err)
	}
}

func TestSubmitPanicsOnMisuse(t *testing.T) {
	s := newScheduler(t, Config{})

	t.Run("nil task", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		s.Submit(nil)
	})

	t.Run("submitted twice", func(t *testing.T) {
		tk := withPriority(1)
		s.Submit(tk)
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		s.Submit(tk)
	})
}

func TestNextBlocksUntilSubmit(t *testing.T) {
	s := newScheduler(t, Config{})
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	got := make(chan *task.Task, 1)
	go func() {
		tk, err := s.Next(ctx)
		if err == nil {
			got <- tk
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before any submission")
	case <-time.After(30 * time.Millisecond):
	}

	want := withPriority(8)
	s.Submit(want)

	select {
	case tk := <-got:
		testutil.AssertEqual(t, tk, want)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake after Submit")
	}
}

func TestNextReturnsOnCancel(t *testing.T) {
	s := newScheduler(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		errc <- err
	}()

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancel")
	}
}

func TestNextWakesEveryIdleConsumer(t *testing.T) {
	s := newScheduler(t, Config{})
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	const consumers = 6
	var wg sync.WaitGroup
	received := make(chan string, consumers)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := s.Next(ctx)
			if err == nil {
				received <- tk.ID
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < consumers; i++ {
		s.Submit(withPriority(i))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		<-done
		t.Fatalf("only %d of %d consumers woke", len(received), consumers)
	}
	testutil.AssertEqual(t, len(received), consumers)
	testutil.AssertEqual(t, s.Pending(), 0)
}

func TestStatus(t *testing.T) {
	s := newScheduler(t, Config{Name: "img", MaxQueueSize: 10})
	s.Submit(withPriority(11))
	s.Submit(withPriority(-2))
	s.Submit(withPriority(-3))

	st := s.Stats()
	testutil.AssertEqual(t, st.High, 1)
	testutil.AssertEqual(t, st.Backlog, 2)
	testutil.AssertEqual(t, st.Pending(), 3)

	status := s.Status()
	for _, part := range []string{"img", "HIGH=1/10", "NORMAL=0/10", "LOW=0/10", "BACKLOG=2", "pending=3"} {
		if !strings.Contains(status, part) {
			t.Errorf("status %q missing %q", status, part)
		}
	}
	testutil.AssertEqual(t, s.String(), status)
}

func TestMetricsAndLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := metrics.NewRegistry(prometheus.NewRegistry())
	s := newScheduler(t, Config{Name: "m", MaxQueueSize: 1, Logger: zap.New(core), Metrics: m})

	s.Submit(withPriority(7))
	s.Submit(withPriority(7))
	s.Submit(withPriority(7))
	s.Dequeue()

	testutil.AssertEqual(t, promtestutil.ToFloat64(m.TasksSubmitted.WithLabelValues("m", "NORMAL")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.TasksDemoted.WithLabelValues("m", "NORMAL", "LOW")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.TasksDemoted.WithLabelValues("m", "NORMAL", "BACKLOG")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.TasksDequeued.WithLabelValues("m", "NORMAL")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.TierDepth.WithLabelValues("m", "NORMAL")), 0.0)

	testutil.AssertEqual(t, logs.FilterMessage("tier full, demoted task").Len(), 1)
	testutil.AssertEqual(t, logs.FilterMessage("tier full, task sent to backlog").Len(), 1)
}
