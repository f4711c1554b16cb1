package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	// ItemID is the id of the item the event is about, empty for engine events.
	ItemID() string
}

// Topic constants
const (
	TopicItem   = "item"
	TopicOutput = "output"
	TopicEngine = "engine"
)

// Event type constants
const (
	EventTypeItemQueued   = "item.queued"
	EventTypeItemStarted  = "item.started"
	EventTypeItemFinished = "item.finished"
	EventTypeItemOutput   = "item.output"
	EventTypeProgress     = "engine.progress"
	EventTypeRunFinished  = "engine.finished"
)

// ItemQueuedEvent is published when an item run is handed to the pool.
type ItemQueuedEvent struct {
	ID        string
	Name      string
	Run       int
	Timestamp time.Time
}

func (e ItemQueuedEvent) EventType() string { return EventTypeItemQueued }
func (e ItemQueuedEvent) ItemID() string    { return e.ID }

// ItemStartedEvent is published when a worker begins an item run.
type ItemStartedEvent struct {
	ID        string
	Name      string
	Run       int
	Timestamp time.Time
}

func (e ItemStartedEvent) EventType() string { return EventTypeItemStarted }
func (e ItemStartedEvent) ItemID() string    { return e.ID }

// ItemFinishedEvent is published once per run, when the item reaches a
// terminal state. State is the state name.
type ItemFinishedEvent struct {
	ID        string
	Name      string
	Run       int
	State     string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e ItemFinishedEvent) EventType() string { return EventTypeItemFinished }
func (e ItemFinishedEvent) ItemID() string    { return e.ID }

// ItemOutputEvent is published for every line appended to an item log.
type ItemOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e ItemOutputEvent) EventType() string { return EventTypeItemOutput }
func (e ItemOutputEvent) ItemID() string    { return e.ID }

// ProgressEvent is published whenever the finished or queued counts change.
type ProgressEvent struct {
	Queued    int
	Completed int
	Fraction  float64
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) ItemID() string    { return "" }

// RunFinishedEvent is published each time every queued run has finished.
type RunFinishedEvent struct {
	Items     int
	Completed int
	Failed    int
	Cancelled int
	// Success is true when no item failed or was cancelled.
	Success   bool
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) ItemID() string    { return "" }
