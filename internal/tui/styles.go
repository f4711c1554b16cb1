package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/nodemanager/internal/engine"
)

var (
	colorAccent = lipgloss.Color("62")
	colorMuted  = lipgloss.Color("240")
)

// pane draws a bordered box, highlighted when it has the keyboard.
func pane(active bool) lipgloss.Style {
	border := colorMuted
	if active {
		border = colorAccent
	}
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border)
}

// stateLook is how an item state is drawn in the list and the totals.
type stateLook struct {
	icon  string
	style lipgloss.Style
}

var stateLooks = map[engine.State]stateLook{
	engine.StateOpen:       {icon: "○", style: lipgloss.NewStyle().Foreground(colorMuted)},
	engine.StatePending:    {icon: "◌", style: lipgloss.NewStyle().Foreground(colorMuted)},
	engine.StateInProgress: {icon: "●", style: lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")).Bold(true)},
	engine.StateCompleted:  {icon: "✓", style: lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)},
	engine.StateCancelled:  {icon: "⊘", style: lipgloss.NewStyle().Foreground(lipgloss.Color("208"))},
	engine.StateFailed:     {icon: "✗", style: lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)},
}

// renderState renders text in the color of state.
func renderState(state engine.State, text string) string {
	look, ok := stateLooks[state]
	if !ok {
		look = stateLooks[engine.StateOpen]
	}
	return look.style.Render(text)
}

// StatusIcon returns the styled indicator of an item state.
func StatusIcon(state engine.State) string {
	look, ok := stateLooks[state]
	if !ok {
		look = stateLooks[engine.StateOpen]
	}
	return look.style.Render(look.icon)
}

var (
	styleHeading  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleHint     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleSelected = lipgloss.NewStyle().Background(colorAccent).Foreground(lipgloss.Color("0"))
)
