// Package tui renders a running engine: the item list, the log of the
// selected item and overall progress.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/nodemanager/internal/engine"
	"github.com/aristath/nodemanager/internal/events"
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	ctrl         Controller
	ctx          context.Context
	itemPane     ItemPaneModel
	progressPane ProgressPaneModel
	itemSub      <-chan events.Event
	outputSub    <-chan events.Event
	engineSub    <-chan events.Event
	status       string
	width        int
	height       int
	quitting     bool
}

// New creates a new TUI model. It subscribes to the bus, so it must be
// created before items are started. Output lines get their own subscription
// so a chatty tool can't crowd out state changes.
func New(ctx context.Context, eventBus *events.EventBus, ctrl Controller) Model {
	return Model{
		ctrl:         ctrl,
		ctx:          ctx,
		itemPane:     NewItemPaneModel(ctrl.Lines),
		progressPane: NewProgressPaneModel(),
		itemSub:      eventBus.Subscribe(events.TopicItem, 1024),
		outputSub:    eventBus.Subscribe(events.TopicOutput, 1024),
		engineSub:    eventBus.Subscribe(events.TopicEngine, 256),
	}
}

// actionDoneMsg reports the end of a blocking engine action.
type actionDoneMsg struct {
	action string
	err    error
}

// Init loads the current items and starts listening for events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadItems, waitForEvent(m.itemSub), waitForEvent(m.outputSub), waitForEvent(m.engineSub))
}

type itemsMsg []ItemInfo

func (m Model) loadItems() tea.Msg {
	return itemsMsg(m.ctrl.Items())
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.itemPane.SetLogFocused(!m.itemPane.logFocused)

		case KeyStop:
			if id := m.itemPane.Selected(); id != "" {
				m.ctrl.Stop(id)
				m.status = "Stopping " + m.name(id)
			}

		case KeyRestart:
			if id := m.itemPane.Selected(); id != "" {
				m.status = "Restarting " + m.name(id)
				cmds = append(cmds, m.restart(id))
			}

		case KeyRestartAll:
			ids := m.unsuccessful()
			if len(ids) == 0 {
				m.status = "Nothing to restart"
				break
			}
			m.status = fmt.Sprintf("Restarting %d items", len(ids))
			cmds = append(cmds, m.restart(ids...))

		case KeyCancel:
			m.status = "Cancelling"
			cmds = append(cmds, m.cancel)

		default:
			var cmd tea.Cmd
			m.itemPane, cmd = m.itemPane.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case itemsMsg:
		m.itemPane.Load(msg)

	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = msg.action + " done"
		}

	case tickMsg:
		var cmd tea.Cmd
		m.itemPane, cmd = m.itemPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.ItemQueuedEvent, events.ItemStartedEvent, events.ItemFinishedEvent:
		var cmd tea.Cmd
		m.itemPane, cmd = m.itemPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.itemSub))

	case events.ItemOutputEvent:
		var cmd tea.Cmd
		m.itemPane, cmd = m.itemPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.outputSub))

	case events.ProgressEvent, events.RunFinishedEvent:
		// The bus drops events for slow readers, so rows are resynced from
		// the engine on every progress step.
		m.itemPane.Load(m.ctrl.Items())
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.engineSub))
	}

	return m, tea.Batch(cmds...)
}

func (m Model) restart(ids ...string) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: "Restart", err: ctrl.Restart(ctx, ids...)}
	}
}

func (m Model) cancel() tea.Msg {
	return actionDoneMsg{action: "Cancel", err: m.ctrl.Cancel()}
}

// unsuccessful returns the items that ended failed or cancelled.
func (m Model) unsuccessful() []string {
	var ids []string
	for _, id := range m.itemPane.IDs() {
		item, _ := m.itemPane.Item(id)
		if item.State == engine.StateFailed || item.State == engine.StateCancelled {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m Model) name(id string) string {
	item, _ := m.itemPane.Item(id)
	return item.Name
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	help := HelpView()
	if m.status != "" {
		help = lipgloss.JoinHorizontal(lipgloss.Top, styleHeading.Render(m.status), help)
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.itemPane.View(), m.progressPane.View(), help)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	availableHeight := m.height - 1 // help bar
	progressHeight := 8
	m.itemPane.SetSize(m.width, availableHeight-progressHeight)
	m.progressPane.SetSize(m.width, progressHeight)
}
