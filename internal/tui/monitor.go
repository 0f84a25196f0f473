// Package tui renders a live terminal view of the scheduler tiers, worker
// activity and recent results.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vnykmshr/taskprocessor/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// StatsSource reports tier sizes.
type StatsSource interface {
	Stats() scheduler.Stats
}

// ResultSource lists stored results, newest first.
type ResultSource interface {
	Recent(limit int) []task.Result
	Len() int
}

// WorkerSource reports pool activity.
type WorkerSource interface {
	Size() int
	ActiveWorkers() int
	TotalProcessed() int64
}

// Monitor owns the bubbletea program.
type Monitor struct {
	program *tea.Program
}

// NewMonitor builds a monitor over the running engine.
func NewMonitor(title string, sched StatsSource, results ResultSource, workers WorkerSource, opts ...tea.ProgramOption) *Monitor {
	poll := func() Snapshot {
		return Snapshot{
			Stats:         sched.Stats(),
			Recent:        results.Recent(maxResults),
			Stored:        results.Len(),
			ActiveWorkers: workers.ActiveWorkers(),
			Workers:       workers.Size(),
			Processed:     workers.TotalProcessed(),
		}
	}
	model := NewModel(title, 500*time.Millisecond, poll)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &Monitor{program: tea.NewProgram(model, opts...)}
}

// Run blocks until the user quits or ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.program.Quit()
		case <-done:
		}
	}()
	_, err := m.program.Run()
	return err
}

// Log appends a line to the log panel.
func (m *Monitor) Log(message string) {
	m.program.Send(LogMessage{Message: message})
}

// OnStore counts a completed task. It satisfies results.Observer.
func (m *Monitor) OnStore(r task.Result) {
	m.program.Send(ResultMessage{Result: r})
}
