package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/nodemanager/internal/events"
	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/task"
)

type fakeTask struct {
	name string
	run  func(ctx context.Context) (bool, error)
}

func (f *fakeTask) Process(ctx context.Context) (bool, error) { return f.run(ctx) }
func (f *fakeTask) DisplayText() string                       { return "Fake: " + f.name }

// factoryFunc builds fake tasks running fn, keyed by target name.
func factoryFunc(fn func(name string, sink task.Sink, ctx context.Context) (bool, error)) task.Factory {
	return func(target host.Target, sink task.Sink) (task.Task, error) {
		name := target.Name()
		return &fakeTask{name: name, run: func(ctx context.Context) (bool, error) {
			return fn(name, sink, ctx)
		}}, nil
	}
}

func succeed() task.Factory {
	return factoryFunc(func(string, task.Sink, context.Context) (bool, error) { return true, nil })
}

// blockUntilCancelled returns a factory whose tasks wait for cancellation and
// a channel receiving the name of every task that started.
func blockUntilCancelled() (task.Factory, chan string) {
	started := make(chan string, 100)
	return factoryFunc(func(name string, _ task.Sink, ctx context.Context) (bool, error) {
		started <- name
		<-ctx.Done()
		return false, nil
	}), started
}

func targets(n int) []host.Target {
	out := make([]host.Target, 0, n)
	for i := range n {
		entity := host.NewMemoryEntity(fmt.Sprintf("node%d", i), map[string]host.Value{
			host.DefaultPathAttribute: fmt.Sprintf("/assets/tex%d.png", i),
		})
		out = append(out, host.NewTarget(entity, ""))
	}
	return out
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, <-chan events.Event) {
	t.Helper()
	bus := events.NewEventBus()
	sub := bus.SubscribeAll(10000)
	cfg.Bus = bus

	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = e.Close()
		bus.Close()
	})
	return e, sub
}

func drain(sub <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitStarted(t *testing.T, started <-chan string, n int) {
	t.Helper()
	for range n {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for task to start")
		}
	}
}

// nextStarted returns the name of the next task to start.
func nextStarted(t *testing.T, started <-chan string) string {
	t.Helper()
	select {
	case name := <-started:
		return name
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for task to start")
		return ""
	}
}

func itemNamed(t *testing.T, items []*Item, name string) *Item {
	t.Helper()
	for _, item := range items {
		if item.Name() == name {
			return item
		}
	}
	t.Fatalf("no item named %s", name)
	return nil
}

// itemEvents returns the lifecycle event types of one item, in order.
func itemEvents(evs []events.Event, id string) []string {
	var out []string
	for _, ev := range evs {
		if ev.ItemID() != id || ev.EventType() == events.EventTypeItemOutput {
			continue
		}
		out = append(out, ev.EventType())
	}
	return out
}

type fakeJournal struct {
	mu       sync.Mutex
	started  int
	records  []ItemRecord
	finished []Summary
	fail     bool
}

func (j *fakeJournal) StartRun(_ context.Context, operation string, items int) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started++
	return "run-1", nil
}

func (j *fakeJournal) RecordItem(_ context.Context, runID string, record ItemRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return fmt.Errorf("disk full")
	}
	j.records = append(j.records, record)
	return nil
}

func (j *fakeJournal) FinishRun(_ context.Context, runID string, summary Summary) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = append(j.finished, summary)
	return nil
}

func writeFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("data"), 0o644)
}
