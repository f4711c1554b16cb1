package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/nodemanager/internal/engine"
	"github.com/aristath/nodemanager/internal/events"
)

// ProgressPaneModel shows engine progress and the outcome of the last run.
type ProgressPaneModel struct {
	queued    int
	completed int
	fraction  float64
	finished  *events.RunFinishedEvent
	width     int
	height    int
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.ProgressEvent:
		m.queued = msg.Queued
		m.completed = msg.Completed
		m.fraction = msg.Fraction
		if msg.Completed < msg.Queued {
			m.finished = nil
		}

	case events.RunFinishedEvent:
		m.finished = &msg
	}

	return m, nil
}

// Fraction returns the last progress fraction.
func (m ProgressPaneModel) Fraction() float64 { return m.fraction }

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := styleHeading.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	barWidth := max(10, min(m.width-20, 60))
	done := int(m.fraction * float64(barWidth))
	bar := renderState(engine.StateCompleted, strings.Repeat("=", done)) +
		renderState(engine.StatePending, strings.Repeat(".", barWidth-done))
	b.WriteString(fmt.Sprintf("[%s] %3.0f%%  %d/%d\n", bar, m.fraction*100, m.completed, m.queued))

	if f := m.finished; f != nil {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("Completed: %s  ", renderState(engine.StateCompleted, fmt.Sprint(f.Completed))))
		b.WriteString(fmt.Sprintf("Failed: %s  ", renderState(engine.StateFailed, fmt.Sprint(f.Failed))))
		b.WriteString(fmt.Sprintf("Cancelled: %s\n", renderState(engine.StateCancelled, fmt.Sprint(f.Cancelled))))
	}

	return pane(false).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}
