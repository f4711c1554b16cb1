package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/task"
)

type notificationKind int

const (
	notifyQueued notificationKind = iota
	notifyStarted
	notifyFinished
)

// notification is how an item reports a transition to the engine dispatcher.
type notification struct {
	kind     notificationKind
	item     *Item
	run      int
	state    State
	err      error
	duration time.Duration
	at       time.Time

	// Set on finish, so a restart can't swap them before they're recorded.
	display string
	log     string
}

// closedDone is returned by Done for items without a queued run.
var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Item pairs one target with the task processing it. All state changes go
// through Start, Restart, Stop and the worker run.
type Item struct {
	id      string
	target  host.Target
	factory task.Factory
	parent  context.Context
	notify  func(notification)

	// emitMu keeps every transition and its notification in order.
	emitMu sync.Mutex

	mu        sync.Mutex
	state     State
	task      task.Task
	buildErr  error
	run       int
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	startedAt time.Time

	buf  *logBuffer
	sink itemSink
}

func newItem(id string, target host.Target, factory task.Factory, parent context.Context, debug bool, notify func(notification), onLine func(id, line string)) *Item {
	it := &Item{
		id:      id,
		target:  target,
		factory: factory,
		parent:  parent,
		notify:  notify,
		state:   StateOpen,
	}
	it.buf = &logBuffer{onLine: func(line string) {
		if onLine != nil {
			onLine(id, line)
		}
	}}
	it.sink = newItemSink(it.buf, debug)
	return it
}

// ID returns the unique id of the item.
func (i *Item) ID() string { return i.id }

// Target returns the target the item processes.
func (i *Item) Target() host.Target { return i.target }

// Name returns the target name.
func (i *Item) Name() string { return i.target.Name() }

// State returns the current state.
func (i *Item) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Err returns the error of the last failed or cancelled run.
func (i *Item) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Run returns how many runs have been queued for the item.
func (i *Item) Run() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.run
}

// Status returns the current run and its state, read together.
func (i *Item) Status() (run int, state State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.run, i.state
}

// DisplayText describes the item with its current task.
func (i *Item) DisplayText() string {
	i.mu.Lock()
	tk := i.task
	i.mu.Unlock()

	if tk == nil {
		return i.target.Name()
	}
	return tk.DisplayText()
}

// Log returns a snapshot of the item log.
func (i *Item) Log() string { return i.buf.String() }

// Lines returns the item log split into lines.
func (i *Item) Lines() []string { return i.buf.Lines() }

// Done returns a channel closed when the current run reaches a terminal state.
func (i *Item) Done() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.done == nil {
		return closedDone
	}
	return i.done
}

// Start queues the first run. Only valid from Open.
func (i *Item) Start() error {
	i.emitMu.Lock()
	defer i.emitMu.Unlock()

	i.mu.Lock()
	if i.state != StateOpen {
		state := i.state
		i.mu.Unlock()
		return fmt.Errorf("start from %s: %w", state, ErrInvalidTransition)
	}
	n := i.queue()
	i.mu.Unlock()

	i.notify(n)
	return nil
}

// Restart clears the log and queues a new run with a fresh task. Only valid
// from a terminal state.
func (i *Item) Restart() error {
	i.emitMu.Lock()
	defer i.emitMu.Unlock()

	i.mu.Lock()
	if !i.state.Terminal() {
		state := i.state
		i.mu.Unlock()
		return fmt.Errorf("restart from %s: %w", state, ErrInvalidTransition)
	}
	i.buf.Reset()
	n := i.queue()
	i.mu.Unlock()

	i.notify(n)
	return nil
}

// queue builds a task for a new run and moves to Pending. Callers hold mu.
func (i *Item) queue() notification {
	i.sink.Infof("Process started")

	i.run++
	i.done = make(chan struct{})
	i.err = nil
	i.task, i.buildErr = i.factory(i.target, i.sink)
	if i.buildErr != nil {
		i.task = nil
		i.sink.Errorf("Could not create task: %v", i.buildErr)
	}
	i.state = StatePending

	return notification{kind: notifyQueued, item: i, run: i.run, state: i.state, at: time.Now()}
}

// Stop cancels the item. Open and Pending items are cancelled at once, a
// running task is asked to stop and its external tool is killed.
func (i *Item) Stop() {
	i.emitMu.Lock()
	defer i.emitMu.Unlock()

	i.mu.Lock()
	switch i.state {
	case StateOpen:
		i.state = StateCancelled
		i.mu.Unlock()
	case StatePending:
		i.state = StateCancelled
		i.err = context.Canceled
		i.sink.Warningf("Process cancelled")
		close(i.done)
		n := i.finished(i.run, 0)
		i.mu.Unlock()
		i.notify(n)
	case StateInProgress:
		i.sink.Infof("Stopping process")
		i.cancel()
		i.mu.Unlock()
	default:
		i.mu.Unlock()
	}
}

// execute runs the task of the given run on a worker. Submissions for an
// older run, or for a run that was stopped meanwhile, are dropped.
func (i *Item) execute(run int) {
	i.emitMu.Lock()
	i.mu.Lock()
	if i.run != run || i.state != StatePending {
		i.mu.Unlock()
		i.emitMu.Unlock()
		return
	}

	if i.buildErr != nil {
		i.finish(i.buildErr, StateFailed)
		n := i.finished(run, 0)
		i.mu.Unlock()
		i.notify(n)
		i.emitMu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(i.parent)
	i.cancel = cancel
	i.state = StateInProgress
	i.startedAt = time.Now()
	tk := i.task
	i.mu.Unlock()
	i.notify(notification{kind: notifyStarted, item: i, run: run, state: StateInProgress, at: i.startedAt})
	i.emitMu.Unlock()

	ok, err := i.process(ctx, tk)

	i.emitMu.Lock()
	defer i.emitMu.Unlock()
	i.mu.Lock()
	state := classify(ctx, ok, err)
	if state == StateCancelled && err == nil {
		err = context.Canceled
	}
	i.finish(err, state)
	cancel()
	i.cancel = nil
	n := i.finished(run, time.Since(i.startedAt))
	i.mu.Unlock()
	i.notify(n)
}

// process runs the task, turning a panic into an error.
func (i *Item) process(ctx context.Context, tk task.Task) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			i.sink.Errorf("Task panicked: %v\n%s", r, debug.Stack())
			ok, err = false, fmt.Errorf("task panicked: %v", r)
		}
	}()
	return tk.Process(ctx)
}

// classify maps a task result to a terminal state. Errors raised while the
// run was being cancelled count as a cancellation.
func classify(ctx context.Context, ok bool, err error) State {
	switch {
	case err != nil && ctx.Err() != nil:
		return StateCancelled
	case err != nil:
		return StateFailed
	case !ok:
		return StateCancelled
	default:
		return StateCompleted
	}
}

// finished builds the Finished notification of a run. Callers hold mu.
func (i *Item) finished(run int, duration time.Duration) notification {
	display := i.target.Name()
	if i.task != nil {
		display = i.task.DisplayText()
	}
	return notification{
		kind:     notifyFinished,
		item:     i,
		run:      run,
		state:    i.state,
		err:      i.err,
		duration: duration,
		at:       time.Now(),
		display:  display,
		log:      i.buf.String(),
	}
}

// finish records the end of a run. Callers hold mu.
func (i *Item) finish(err error, state State) {
	i.state = state
	i.err = err
	switch state {
	case StateCompleted:
		i.sink.Infof("Process completed")
	case StateCancelled:
		i.sink.Warningf("Process cancelled")
	default:
		i.sink.Errorf("Process failed: %v", err)
	}
	close(i.done)
}
