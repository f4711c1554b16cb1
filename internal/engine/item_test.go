package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/task"
)

func TestStateString(t *testing.T) {
	tests := map[State]struct {
		expName     string
		expTerminal bool
	}{
		StateOpen:       {expName: "Open"},
		StatePending:    {expName: "Pending"},
		StateInProgress: {expName: "In Progress"},
		StateCompleted:  {expName: "Completed", expTerminal: true},
		StateCancelled:  {expName: "Cancelled", expTerminal: true},
		StateFailed:     {expName: "Failed", expTerminal: true},
		State(42):       {expName: "Unknown"},
	}

	for state, test := range tests {
		assert.Equal(t, test.expName, state.String())
		assert.Equal(t, test.expTerminal, state.Terminal())
	}
}

// newLoneItem builds an item whose notifications are recorded instead of
// dispatched.
func newLoneItem(factory task.Factory) (*Item, *[]notification) {
	var notes []notification
	target := targets(1)[0]
	it := newItem("id-1", target, factory, context.Background(), false, func(n notification) {
		notes = append(notes, n)
	}, nil)
	return it, &notes
}

func TestItemTransitions(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	it, notes := newLoneItem(succeed())
	assert.Equal(StateOpen, it.State())
	assert.ErrorIs(it.Restart(), ErrInvalidTransition)

	require.NoError(it.Start())
	assert.Equal(StatePending, it.State())
	assert.Equal(1, it.Run())
	assert.Equal([]string{"INFO: Process started"}, it.Lines())
	assert.ErrorIs(it.Start(), ErrInvalidTransition)
	assert.ErrorIs(it.Restart(), ErrInvalidTransition)

	it.execute(1)
	assert.Equal(StateCompleted, it.State())
	assert.Equal([]string{"INFO: Process started", "INFO: Process completed"}, it.Lines())
	assert.Equal("Fake: node0", it.DisplayText())

	// Stopping a terminal item does nothing.
	it.Stop()
	assert.Equal(StateCompleted, it.State())

	kinds := []notificationKind{}
	for _, n := range *notes {
		kinds = append(kinds, n.kind)
	}
	assert.Equal([]notificationKind{notifyQueued, notifyStarted, notifyFinished}, kinds)
	assert.Equal(StateCompleted, (*notes)[2].state)
}

func TestItemStopFromOpenEmitsNothing(t *testing.T) {
	it, notes := newLoneItem(succeed())

	it.Stop()
	assert.Equal(t, StateCancelled, it.State())
	assert.Empty(t, *notes)

	select {
	case <-it.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestItemStopFromPendingDropsSubmission(t *testing.T) {
	ran := false
	it, notes := newLoneItem(factoryFunc(func(string, task.Sink, context.Context) (bool, error) {
		ran = true
		return true, nil
	}))

	require.NoError(t, it.Start())
	it.Stop()
	assert.Equal(t, StateCancelled, it.State())
	assert.ErrorIs(t, it.Err(), context.Canceled)

	it.execute(1)
	assert.False(t, ran)
	assert.Equal(t, StateCancelled, it.State())
	require.Len(t, *notes, 2)
	assert.Equal(t, notifyFinished, (*notes)[1].kind)
}

func TestItemStaleSubmissionIsDropped(t *testing.T) {
	runs := 0
	it, _ := newLoneItem(factoryFunc(func(string, task.Sink, context.Context) (bool, error) {
		runs++
		return true, nil
	}))

	require.NoError(t, it.Start())
	it.execute(1)
	require.NoError(t, it.Restart())
	assert.Equal(t, 2, it.Run())

	it.execute(1)
	assert.Equal(t, 1, runs)
	assert.Equal(t, StatePending, it.State())

	it.execute(2)
	assert.Equal(t, 2, runs)
	assert.Equal(t, StateCompleted, it.State())
}

func TestItemClassification(t *testing.T) {
	tests := map[string]struct {
		run      func(ctx context.Context, cancel context.CancelFunc) (bool, error)
		expState State
		expLog   string
	}{
		"Returning true should complete.": {
			run:      func(context.Context, context.CancelFunc) (bool, error) { return true, nil },
			expState: StateCompleted,
			expLog:   "INFO: Process completed",
		},
		"Returning false should cancel.": {
			run:      func(context.Context, context.CancelFunc) (bool, error) { return false, nil },
			expState: StateCancelled,
			expLog:   "WARNING: Process cancelled",
		},
		"An error should fail.": {
			run:      func(context.Context, context.CancelFunc) (bool, error) { return false, task.ErrNotFound },
			expState: StateFailed,
			expLog:   "ERROR: Process failed: no matching file found",
		},
		"An error while stopping should cancel.": {
			run: func(ctx context.Context, cancel context.CancelFunc) (bool, error) {
				cancel()
				return false, ctx.Err()
			},
			expState: StateCancelled,
			expLog:   "WARNING: Process cancelled",
		},
		"A panic should fail.": {
			run: func(context.Context, context.CancelFunc) (bool, error) {
				panic("boom")
			},
			expState: StateFailed,
			expLog:   "ERROR: Process failed: task panicked: boom",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var it *Item
			it, _ = newLoneItem(factoryFunc(func(_ string, _ task.Sink, ctx context.Context) (bool, error) {
				it.mu.Lock()
				cancel := it.cancel
				it.mu.Unlock()
				return test.run(ctx, cancel)
			}))

			require.NoError(t, it.Start())
			it.execute(1)

			assert.Equal(t, test.expState, it.State())
			lines := it.Lines()
			assert.Equal(t, test.expLog, lines[len(lines)-1])
		})
	}
}

func TestItemFactoryErrorFails(t *testing.T) {
	it, notes := newLoneItem(func(_ host.Target, _ task.Sink) (task.Task, error) {
		return nil, assert.AnError
	})

	require.NoError(t, it.Start())
	assert.Equal(t, StatePending, it.State())
	it.execute(1)

	assert.Equal(t, StateFailed, it.State())
	assert.ErrorIs(t, it.Err(), assert.AnError)
	assert.Contains(t, it.Log(), "ERROR: Could not create task")

	kinds := []notificationKind{}
	for _, n := range *notes {
		kinds = append(kinds, n.kind)
	}
	assert.Equal(t, []notificationKind{notifyQueued, notifyFinished}, kinds)
}

func TestItemLog(t *testing.T) {
	var outputs []string
	target := targets(1)[0]
	it := newItem("id-1", target, factoryFunc(func(_ string, sink task.Sink, _ context.Context) (bool, error) {
		sink.Debugf("hidden")
		sink.Infof("Converting %s", "a.png")
		sink.WithValues(map[string]any{"file": "a.png"}).Warningf("slow")
		sink.Raw("tool output line")
		return true, nil
	}), context.Background(), false, func(notification) {}, func(id, line string) {
		outputs = append(outputs, id+"|"+line)
	})

	require.NoError(t, it.Start())
	it.execute(1)

	exp := []string{
		"INFO: Process started",
		"INFO: Converting a.png",
		"WARNING: slow file=a.png",
		"tool output line",
		"INFO: Process completed",
	}
	assert.Equal(t, exp, it.Lines())
	assert.Len(t, outputs, len(exp))
	assert.Equal(t, "id-1|tool output line", outputs[3])
}

func TestItemFinishedCarriesItsOwnLog(t *testing.T) {
	runs := 0
	it, notes := newLoneItem(factoryFunc(func(_ string, sink task.Sink, _ context.Context) (bool, error) {
		runs++
		sink.Infof("run %d", runs)
		return true, nil
	}))

	require.NoError(t, it.Start())
	it.execute(1)
	require.NoError(t, it.Restart())

	// The first run's log is gone from the buffer but kept in its notification.
	finished := (*notes)[2]
	require.Equal(t, notifyFinished, finished.kind)
	assert.Equal(t, "INFO: Process started\nINFO: run 1\nINFO: Process completed\n", finished.log)
	assert.Equal(t, "Fake: node0", finished.display)
	assert.Equal(t, []string{"INFO: Process started"}, it.Lines())
}
