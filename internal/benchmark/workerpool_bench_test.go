package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vnykmshr/taskprocessor/pkg/dispatch"
	"github.com/vnykmshr/taskprocessor/pkg/processors"
	"github.com/vnykmshr/taskprocessor/pkg/processors/image"
	"github.com/vnykmshr/taskprocessor/pkg/results"
	"github.com/vnykmshr/taskprocessor/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

func workerLabel(n int) string {
	return fmt.Sprintf("workers_%d", n)
}

// BenchmarkWorkerPoolThroughput measures end-to-end submit, dispatch and
// store for a no-op capability.
func BenchmarkWorkerPoolThroughput(b *testing.B) {
	for _, workers := range []int{1, 4, 8} {
		b.Run(workerLabel(workers), func(b *testing.B) {
			s := newScheduler(b, 1024)
			reg := dispatch.NewRegistry()
			reg.MustRegister(task.TypeCustom, nil, func() dispatch.Capability {
				return dispatch.CapabilityFunc(func(_ context.Context, t *task.Task) task.Result {
					return task.Success(t.ID, nil)
				})
			})
			store, err := results.New(b.N + 1)
			if err != nil {
				b.Fatal(err)
			}
			pool, err := workerpool.New(workerpool.Config{WorkerCount: workers}, s, reg, store)
			if err != nil {
				b.Fatal(err)
			}
			if err := pool.Start(); err != nil {
				b.Fatal(err)
			}
			defer func() { <-pool.Stop() }()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s.Submit(task.New(task.TypeCustom, nil, i%16-2))
			}
			for pool.TotalProcessed() < int64(b.N) {
				time.Sleep(time.Millisecond)
			}
		})
	}
}

// BenchmarkCapabilities measures the built-in capabilities directly.
func BenchmarkCapabilities(b *testing.B) {
	reg := processors.Default(nil)
	data := make([]byte, 64*64*image.BytesPerPixel)
	cases := map[string]*task.Task{
		"scale":    task.New(task.TypeScale, map[string]any{"data": data, "width": 64, "height": 64, "scale": 0.5}, 5),
		"compress": task.New(task.TypeCompress, map[string]any{"data": data, "width": 64, "height": 64}, 5),
		"custom":   task.New(task.TypeCustom, map[string]any{"script": `return { v = 6 * 7 }`}, 5),
	}
	for name, tk := range cases {
		b.Run(name, func(b *testing.B) {
			c, err := reg.Resolve(tk)
			if err != nil {
				b.Fatal(err)
			}
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if r := c.Process(ctx, tk); r.Status != task.StatusSuccess {
					b.Fatalf("%s failed: %v", name, r.Err())
				}
			}
		})
	}
}
