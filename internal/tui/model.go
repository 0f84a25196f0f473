package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vnykmshr/taskprocessor/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

const (
	maxLogs    = 10
	maxResults = 8
)

// Snapshot is everything the monitor draws on one refresh.
type Snapshot struct {
	Stats         scheduler.Stats
	Recent        []task.Result
	Stored        int
	ActiveWorkers int
	Workers       int
	Processed     int64
}

// SnapshotMsg carries a fresh Snapshot into the model.
type SnapshotMsg Snapshot

// LogMessage appends a line to the log panel.
type LogMessage struct {
	Message string
}

// ResultMessage records a completed task.
type ResultMessage struct {
	Result task.Result
}

type tickMsg time.Time

// Model is the bubbletea model for the live monitor.
type Model struct {
	title    string
	snap     Snapshot
	counts   map[task.Status]int
	logs     []string
	spinner  spinner.Model
	progress progress.Model
	refresh  time.Duration
	poll     func() Snapshot
	width    int
	height   int
	quit     bool
}

// NewModel creates a model that calls poll every refresh interval.
func NewModel(title string, refresh time.Duration, poll func() Snapshot) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}
	return Model{
		title:    title,
		counts:   make(map[task.Status]int),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		refresh:  refresh,
		poll:     poll,
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(msg.Width-40, 10)

	case tickMsg:
		if m.poll != nil {
			m.snap = m.poll()
		}
		cmds = append(cmds, m.tick())

	case SnapshotMsg:
		m.snap = Snapshot(msg)

	case ResultMessage:
		m.counts[msg.Result.Status]++

	case LogMessage:
		m.logs = append(m.logs, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg.Message))
		if len(m.logs) > maxLogs {
			m.logs = m.logs[len(m.logs)-maxLogs:]
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginBottom(1)
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusColors = map[task.Status]lipgloss.Color{
		task.StatusSuccess: lipgloss.Color("82"),
		task.StatusFailure: lipgloss.Color("196"),
		task.StatusTimeout: lipgloss.Color("214"),
	}
)

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(headerStyle.Render(m.spinner.View() + " " + m.title))
	s.WriteString("\n\n")

	summary := fmt.Sprintf("Workers: %d/%d busy | Processed: %d | Stored: %d | OK: %d | Failed: %d | Timed out: %d",
		m.snap.ActiveWorkers, m.snap.Workers, m.snap.Processed, m.snap.Stored,
		m.counts[task.StatusSuccess], m.counts[task.StatusFailure], m.counts[task.StatusTimeout])
	s.WriteString(summaryStyle.Render(summary))
	s.WriteString("\n\n")

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Width(max(m.width-2, 20))

	var tiers strings.Builder
	tiers.WriteString("Tiers\n")
	st := m.snap.Stats
	for _, row := range []struct {
		tier scheduler.Tier
		n    int
	}{
		{scheduler.High, st.High},
		{scheduler.Normal, st.Normal},
		{scheduler.Low, st.Low},
	} {
		frac := 0.0
		if st.Capacity > 0 {
			frac = float64(row.n) / float64(st.Capacity)
		}
		tiers.WriteString(fmt.Sprintf("%-8s %s %4d/%d\n", row.tier, m.progress.ViewAs(frac), row.n, st.Capacity))
	}
	tiers.WriteString(fmt.Sprintf("%-8s %d pending overflow\n", scheduler.Backlog, st.Backlog))
	s.WriteString(box.Render(strings.TrimRight(tiers.String(), "\n")))
	s.WriteString("\n")

	var results strings.Builder
	results.WriteString("Recent results\n")
	for i, r := range m.snap.Recent {
		if i == maxResults {
			break
		}
		line := fmt.Sprintf("%-8s %-36s %s", r.Status, truncate(r.TaskID, 36), r.ProcessorID)
		if msg := r.Err(); msg != "" {
			line += "  " + truncate(msg, 40)
		}
		style := lipgloss.NewStyle().Foreground(statusColors[r.Status])
		results.WriteString(style.Render(line) + "\n")
	}
	s.WriteString(box.Render(strings.TrimRight(results.String(), "\n")))
	s.WriteString("\n")

	var logs strings.Builder
	logs.WriteString("Log\n")
	for _, l := range m.logs {
		logs.WriteString(l + "\n")
	}
	s.WriteString(box.BorderForeground(lipgloss.Color("240")).Render(strings.TrimRight(logs.String(), "\n")))
	s.WriteString("\n\n")

	s.WriteString(footerStyle.Render("Press 'q' to quit"))
	return s.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
