package tui

import (
	"context"

	"github.com/aristath/nodemanager/internal/engine"
)

// ItemInfo is what the list shows about an item.
type ItemInfo struct {
	ID      string
	Name    string
	Run     int
	State   engine.State
	Display string
}

// Controller is the part of the engine the TUI drives.
type Controller interface {
	Items() []ItemInfo
	Lines(id string) []string
	Stop(id string)
	Restart(ctx context.Context, ids ...string) error
	Cancel() error
}

// EngineController adapts an engine to Controller.
type EngineController struct {
	Engine *engine.Engine
}

func (c EngineController) Items() []ItemInfo {
	items := c.Engine.Items()
	out := make([]ItemInfo, 0, len(items))
	for _, item := range items {
		run, state := item.Status()
		out = append(out, ItemInfo{ID: item.ID(), Name: item.Name(), Run: run, State: state, Display: item.DisplayText()})
	}
	return out
}

func (c EngineController) Lines(id string) []string {
	if item := c.find(id); item != nil {
		return item.Lines()
	}
	return nil
}

func (c EngineController) Stop(id string) {
	if item := c.find(id); item != nil {
		c.Engine.Stop(item)
	}
}

func (c EngineController) Restart(ctx context.Context, ids ...string) error {
	var items []*engine.Item
	for _, id := range ids {
		if item := c.find(id); item != nil {
			items = append(items, item)
		}
	}
	return c.Engine.Restart(ctx, items...)
}

func (c EngineController) Cancel() error {
	return c.Engine.Cancel()
}

func (c EngineController) find(id string) *engine.Item {
	for _, item := range c.Engine.Items() {
		if item.ID() == id {
			return item
		}
	}
	return nil
}
