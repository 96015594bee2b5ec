// Package tui provides the terminal user interface for watching a pipeline
// run live: a stage list driven by progress events on top, the selected
// stage's output below.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"gantry-runner/src/contracts"
)

// EventMsg delivers one run progress event to the model.
type EventMsg contracts.RunEvent

// stageRow is the watch view's state for one pipeline stage.
type stageRow struct {
	name     string
	command  string
	outcome  contracts.Outcome // empty until the stage finishes
	running  bool
	duration int64
	output   string
}

// WatchModel is the Bubble Tea model for following a single run.
type WatchModel struct {
	runID    string
	events   <-chan contracts.RunEvent
	stages   []stageRow
	cursor   int
	status   contracts.Outcome
	finished bool

	spinner  spinner.Model
	viewport viewport.Model
	width    int
	height   int
	ready    bool
}

// NewWatchModel creates a watch model for runID. stageNames pre-seeds the
// stage list so pending stages are visible before their events arrive;
// events feeds progress updates until run_finished.
func NewWatchModel(runID string, stageNames []string, events <-chan contracts.RunEvent) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle

	rows := make([]stageRow, len(stageNames))
	for i, name := range stageNames {
		rows[i] = stageRow{name: name}
	}

	return WatchModel{
		runID:   runID,
		events:  events,
		stages:  rows,
		spinner: s,
	}
}

// waitForEvent reads the next progress event off the channel.
func waitForEvent(events <-chan contracts.RunEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return EventMsg(ev)
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Header, stage rows, divider, and help line take the rest.
		outputHeight := m.height - len(m.stages) - 4
		if outputHeight < 3 {
			outputHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, outputHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = outputHeight
		}
		m.refreshOutput()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.refreshOutput()
			}
		case "down", "j":
			if m.cursor < len(m.stages)-1 {
				m.cursor++
				m.refreshOutput()
			}
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case EventMsg:
		m.apply(contracts.RunEvent(msg))
		if m.finished {
			return m, nil
		}
		return m, waitForEvent(m.events)

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// apply folds one progress event into the stage list.
func (m *WatchModel) apply(ev contracts.RunEvent) {
	switch ev.Type {
	case contracts.RunEventStageStarted:
		if ev.Stage == nil {
			return
		}
		row := m.row(ev.Stage.Name)
		row.running = true
		row.command = ev.Stage.Command

	case contracts.RunEventStageFinished:
		if ev.Stage == nil {
			return
		}
		row := m.row(ev.Stage.Name)
		row.running = false
		row.command = ev.Stage.Command
		row.outcome = ev.Stage.Outcome
		row.duration = ev.Stage.DurationMs
		row.output = ev.Stage.Output
		if m.cursor == m.index(ev.Stage.Name) {
			m.refreshOutput()
		}

	case contracts.RunEventFinished:
		m.finished = true
		m.status = ev.Status
	}
}

// row returns the stage row for name, appending one for stages that were
// not pre-seeded.
func (m *WatchModel) row(name string) *stageRow {
	if i := m.index(name); i >= 0 {
		return &m.stages[i]
	}
	m.stages = append(m.stages, stageRow{name: name})
	return &m.stages[len(m.stages)-1]
}

func (m *WatchModel) index(name string) int {
	for i := range m.stages {
		if m.stages[i].name == name {
			return i
		}
	}
	return -1
}

func (m *WatchModel) refreshOutput() {
	if !m.ready || m.cursor >= len(m.stages) {
		return
	}
	row := m.stages[m.cursor]
	if row.output == "" {
		m.viewport.SetContent(pendingStyle.Render("(no output yet)"))
		return
	}
	m.viewport.SetContent(row.output)
}

func (m WatchModel) View() string {
	if m.height == 0 {
		return "Initializing..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("gantry run %s", m.runID)))
	if m.finished {
		b.WriteString("  ")
		b.WriteString(m.statusBadge())
	}
	b.WriteString("\n")

	nameWidth := m.width / 3
	if nameWidth < 12 {
		nameWidth = 12
	}
	for i, row := range m.stages {
		prefix := "  "
		if i == m.cursor {
			prefix = selectedStyle.Render("► ")
		}
		line := fmt.Sprintf("%s %s", m.stageIcon(row), TruncateAndPad(row.name, nameWidth))
		if row.outcome != "" && !row.running {
			line += pendingStyle.Render(fmt.Sprintf(" %dms", row.duration))
		}
		b.WriteString(prefix + line + "\n")
	}

	width := m.width
	if width <= 0 {
		width = 80
	}
	b.WriteString(dividerStyle.Render(strings.Repeat("─", width)))
	b.WriteString("\n")

	if m.ready {
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("↑/↓ select stage • q quit"))
	return b.String()
}

// stageIcon renders the outcome marker for a stage row.
func (m WatchModel) stageIcon(row stageRow) string {
	switch {
	case row.running:
		return m.spinner.View()
	case row.outcome == contracts.OutcomePassed:
		return passedStyle.Render("✓")
	case row.outcome == contracts.OutcomeFailed:
		return failedStyle.Render("✗")
	case row.outcome == contracts.OutcomeSkipped:
		return skippedStyle.Render("-")
	default:
		return pendingStyle.Render("·")
	}
}

func (m WatchModel) statusBadge() string {
	if m.status == contracts.OutcomePassed {
		return passedStyle.Render("PASSED")
	}
	return failedStyle.Render("FAILED")
}

// Finished reports whether the run's final event has been applied.
func (m WatchModel) Finished() bool {
	return m.finished
}
