package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/taskprocessor/internal/config"
	"github.com/vnykmshr/taskprocessor/internal/engine"
	"github.com/vnykmshr/taskprocessor/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

type demoOptions struct {
	count   int
	seed    int64
	maxDim  int
	timeout time.Duration
	types   []string
}

func newSubmitDemoCmd(flags *globalFlags) *cobra.Command {
	var opts demoOptions
	cmd := &cobra.Command{
		Use:   "submit-demo",
		Short: "Submit random tasks in-process, wait for them and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(flags)
			if err != nil {
				return err
			}
			// No endpoint to scrape in a one-shot run.
			cfg.Metrics.Enabled = false
			return submitDemo(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&opts.count, "count", "n", 50, "Number of tasks to submit")
	cmd.Flags().Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "Random seed")
	cmd.Flags().IntVar(&opts.maxDim, "max-dim", 64, "Largest generated image side in pixels")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "How long to wait for all results")
	cmd.Flags().StringSliceVar(&opts.types, "types", nil, "Task types to generate (default: all)")
	return cmd
}

func submitDemo(ctx context.Context, cfg *config.Config, opts demoOptions, out io.Writer) error {
	if opts.count <= 0 {
		return fmt.Errorf("--count must be positive")
	}
	types := task.Types()
	if len(opts.types) > 0 {
		types = nil
		for _, s := range opts.types {
			typ, err := task.ParseType(s)
			if err != nil {
				return err
			}
			types = append(types, typ)
		}
	}

	log, flush, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer flush()

	gen := engine.NewGenerator(opts.seed, opts.maxDim)
	e, err := engine.New(cfg, log, engine.WithGenerator(gen))
	if err != nil {
		return err
	}
	if err := e.Start(); err != nil {
		return err
	}

	routed := make(map[scheduler.Tier]int)
	for i := 0; i < opts.count; i++ {
		t, err := gen.Task(types[i%len(types)])
		if err != nil {
			return err
		}
		routed[e.Submit(t)]++
	}
	fmt.Fprintf(out, "submitted %d tasks: %s\n", opts.count, e.Scheduler.Status())

	if ctx == nil {
		ctx = context.Background()
	}
	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	waitErr := e.WaitProcessed(waitCtx, int64(opts.count))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}

	printSummary(out, e, routed)
	return waitErr
}

func printSummary(out io.Writer, e *engine.Engine, routed map[scheduler.Tier]int) {
	fmt.Fprintln(out, "routing:")
	for _, tier := range scheduler.Tiers {
		fmt.Fprintf(out, "  %-8s %d\n", tier, routed[tier])
	}

	byStatus := make(map[task.Status]int)
	byKind := make(map[string]int)
	for _, r := range e.Store.All() {
		byStatus[r.Status]++
		if kind, ok := r.Output[task.OutputErrorKind].(string); ok {
			byKind[kind]++
		}
	}
	fmt.Fprintln(out, "results:")
	for _, s := range []task.Status{task.StatusSuccess, task.StatusFailure, task.StatusTimeout} {
		fmt.Fprintf(out, "  %-8s %d\n", s, byStatus[s])
	}
	if len(byKind) > 0 {
		kinds := make([]string, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprintln(out, "failure kinds:")
		for _, k := range kinds {
			fmt.Fprintf(out, "  %-18s %d\n", k, byKind[k])
		}
	}
	fmt.Fprintf(out, "processed %d, stored %d, pending %d\n",
		e.Pool.TotalProcessed(), e.Store.Len(), e.Scheduler.Pending())
}
