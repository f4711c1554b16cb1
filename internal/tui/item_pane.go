package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/nodemanager/internal/engine"
	"github.com/aristath/nodemanager/internal/events"
)

const listWidth = 30

// ItemPaneModel is the item list and the log viewport of the selected item.
type ItemPaneModel struct {
	items       map[string]*ItemInfo
	order       []string
	selectedIdx int
	viewport    viewport.Model
	lines       func(id string) []string
	width       int
	height      int
	logFocused  bool
	updateTag   int // for debouncing
}

// NewItemPaneModel creates an item pane reading logs through lines.
func NewItemPaneModel(lines func(id string) []string) ItemPaneModel {
	return ItemPaneModel{
		items:    make(map[string]*ItemInfo),
		viewport: viewport.New(0, 0),
		lines:    lines,
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the item pane.
func (m ItemPaneModel) Update(msg tea.Msg) (ItemPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.logFocused {
			m.viewport, cmd = m.viewport.Update(msg)
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		}

	case events.ItemQueuedEvent:
		m.advance(m.upsert(msg.ID, msg.Name), msg.Run, engine.StatePending)
		if m.Selected() == msg.ID {
			m.updateViewportContent()
		}

	case events.ItemStartedEvent:
		m.advance(m.upsert(msg.ID, msg.Name), msg.Run, engine.StateInProgress)

	case events.ItemFinishedEvent:
		m.advance(m.upsert(msg.ID, msg.Name), msg.Run, parseState(msg.State))
		if m.Selected() == msg.ID {
			m.updateViewportContent()
		}

	case events.ItemOutputEvent:
		if m.Selected() == msg.ID {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// Load merges a snapshot into the list.
func (m *ItemPaneModel) Load(items []ItemInfo) {
	for _, info := range items {
		item := m.upsert(info.ID, info.Name)
		m.advance(item, info.Run, info.State)
		item.Display = info.Display
	}
	m.updateViewportContent()
}

// advance moves an item to state unless it already saw a later step. Events
// and snapshots arrive out of order, a row only ever moves forward.
func (m *ItemPaneModel) advance(item *ItemInfo, run int, state engine.State) {
	if run < item.Run || (run == item.Run && stateRank(state) < stateRank(item.State)) {
		return
	}
	item.Run = run
	item.State = state
}

func stateRank(s engine.State) int {
	switch {
	case s.Terminal():
		return 3
	case s == engine.StateInProgress:
		return 2
	case s == engine.StatePending:
		return 1
	default:
		return 0
	}
}

func (m *ItemPaneModel) upsert(id, name string) *ItemInfo {
	item, ok := m.items[id]
	if !ok {
		item = &ItemInfo{ID: id, Name: name, State: engine.StateOpen}
		m.items[id] = item
		m.order = append(m.order, id)
		if len(m.order) == 1 {
			m.selectedIdx = 0
		}
	}
	return item
}

// View renders the item pane.
func (m ItemPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - listWidth - 4
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	return pane(m.logFocused).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m ItemPaneModel) renderList() string {
	var b strings.Builder

	title := styleHeading.Render("Items")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(listWidth, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(renderState(engine.StatePending, "Waiting..."))
	}

	// Keep the selection visible in long lists.
	visible := max(1, m.height-6)
	start := 0
	if m.selectedIdx >= visible {
		start = m.selectedIdx - visible + 1
	}
	for i := start; i < len(m.order) && i < start+visible; i++ {
		item := m.items[m.order[i]]
		name := item.Name
		if len(name) > listWidth-4 {
			name = name[:listWidth-7] + "..."
		}

		line := fmt.Sprintf("%s %s", StatusIcon(item.State), name)
		if i == m.selectedIdx {
			line = styleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(listWidth).
		Height(m.height - 2).
		Render(b.String())
}

func parseState(s string) engine.State {
	for _, state := range []engine.State{engine.StateOpen, engine.StatePending, engine.StateInProgress, engine.StateCompleted, engine.StateCancelled, engine.StateFailed} {
		if state.String() == s {
			return state
		}
	}
	return engine.StateOpen
}

// Selected returns the ID of the selected item.
func (m ItemPaneModel) Selected() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// Item returns the list entry of an item.
func (m ItemPaneModel) Item(id string) (ItemInfo, bool) {
	item, ok := m.items[id]
	if !ok {
		return ItemInfo{}, false
	}
	return *item, true
}

// IDs returns the item IDs in list order.
func (m ItemPaneModel) IDs() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *ItemPaneModel) updateViewportContent() {
	id := m.Selected()
	if id == "" {
		m.viewport.SetContent("Waiting for items...")
		return
	}

	item := m.items[id]
	header := item.Display
	if header == "" {
		header = item.Name
	}
	content := header + "\n\n" + strings.Join(m.lines(id), "\n")
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m *ItemPaneModel) resizeViewport() {
	m.viewport.Width = max(10, m.width-listWidth-4)
	m.viewport.Height = max(5, m.height-4)
}

// SetSize updates the pane dimensions.
func (m *ItemPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
	m.updateViewportContent()
}

// SetLogFocused routes keys to the log viewport instead of the list.
func (m *ItemPaneModel) SetLogFocused(focused bool) {
	m.logFocused = focused
}
