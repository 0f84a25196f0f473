package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskprocessor/internal/engine"
	"github.com/vnykmshr/taskprocessor/internal/tui"
	"github.com/vnykmshr/taskprocessor/pkg/results"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

const tuiLogFile = "logs/taskprocessor.log"

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		withTUI      bool
		shutdownWait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler, workers and recurring jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags, withTUI, shutdownWait)
		},
	}
	cmd.Flags().BoolVar(&withTUI, "tui", false, "Show a live terminal monitor (logs go to "+tuiLogFile+")")
	cmd.Flags().DurationVar(&shutdownWait, "shutdown-timeout", 15*time.Second, "How long to wait for in-flight tasks on shutdown")
	return cmd
}

func run(parent context.Context, flags *globalFlags, withTUI bool, shutdownWait time.Duration) error {
	cfg, err := load(flags)
	if err != nil {
		return err
	}
	if withTUI {
		// The monitor owns the terminal.
		cfg.Log.Outputs = []string{tuiLogFile}
	}
	log, flush, err := setupLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer flush()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var monitor atomic.Pointer[tui.Monitor]
	e, err := engine.New(cfg, log, engine.WithObserver(results.ObserverFunc(func(r task.Result) {
		if m := monitor.Load(); m != nil {
			m.OnStore(r)
		}
	})))
	if err != nil {
		return err
	}
	if err := e.Start(); err != nil {
		return err
	}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           e.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("http listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", zap.Error(err))
			}
		}()
	}

	if withTUI {
		m := tui.NewMonitor("taskprocessor "+version, e.Scheduler, e.Store, e.Pool)
		monitor.Store(m)
		if err := m.Run(ctx); err != nil {
			log.Error("monitor exited", zap.Error(err))
		}
		monitor.Store(nil)
	} else {
		log.Info("running; press Ctrl+C to stop")
		<-ctx.Done()
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
