// Package engine runs tasks for a set of targets on a small worker pool,
// tracks every item through its lifecycle and reports progress.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/nodemanager/internal/events"
	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/log"
	"github.com/aristath/nodemanager/internal/process"
	"github.com/aristath/nodemanager/internal/task"
)

// ErrShutdownTimeout means running items did not stop within the drain
// timeout. Tools still running have been killed; the process should restart.
var ErrShutdownTimeout = errors.New("items did not stop before the drain timeout")

const (
	DefaultPoolSize     = 2
	DefaultDrainTimeout = 30 * time.Second

	notificationBuffer = 1024
)

// ItemRecord is what the journal keeps about one finished run of an item.
type ItemRecord struct {
	ItemID   string
	Name     string
	Run      int
	State    State
	Err      string
	Display  string
	Duration time.Duration
	Log      string
	At       time.Time
}

// Journal persists runs. Journal errors are logged and otherwise ignored.
type Journal interface {
	StartRun(ctx context.Context, operation string, items int) (runID string, err error)
	RecordItem(ctx context.Context, runID string, record ItemRecord) error
	FinishRun(ctx context.Context, runID string, summary Summary) error
}

// Summary counts items by outcome.
type Summary struct {
	Items     int
	Completed int
	Failed    int
	Cancelled int
	// Success is true when no item failed or was cancelled.
	Success bool
}

// Config configures an Engine.
type Config struct {
	// PoolSize is the number of tasks running at once.
	PoolSize int
	// DrainTimeout bounds how long Cancel waits for running tasks.
	DrainTimeout time.Duration
	// Bus receives item and engine events. Optional.
	Bus *events.EventBus
	// Processes tracks external tools so they can be killed on shutdown.
	Processes *process.Manager
	Logger    log.Logger
	// Journal records runs. Optional.
	Journal Journal
	// Operation names the run in the journal.
	Operation string
	// NoShuffle keeps items in target order.
	NoShuffle bool
	// ItemDebug enables debug lines in item logs.
	ItemDebug bool
}

func (c *Config) defaults() error {
	if c.PoolSize < 0 {
		return fmt.Errorf("pool size can't be negative")
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain timeout can't be negative")
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.Processes == nil {
		c.Processes = process.NewManager()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "engine.Engine"})
	return nil
}

// Engine owns a set of items and the pool running their tasks.
type Engine struct {
	cfg    Config
	logger log.Logger
	pool   *pool
	ctx    context.Context
	cancel context.CancelFunc

	// gate is held while a batch of items is queued, so no task finishes
	// before the whole batch is counted.
	gate sync.RWMutex

	notes      chan notification
	quit       chan struct{}
	dispatched chan struct{}
	closeOnce  sync.Once
	// timedOut is set while the last Cancel failed to drain the pool.
	timedOut atomic.Bool

	mu                sync.Mutex
	items             []*Item
	outstanding       int
	idle              chan struct{}
	runID             string
	queuedSnapshot    int
	completedSnapshot int

	// Owned by the dispatcher goroutine.
	queued    int
	completed int
}

// New creates an Engine and starts its dispatcher.
func New(cfg Config) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	e := &Engine{
		cfg:        cfg,
		logger:     cfg.Logger,
		pool:       newPool(ctx, cfg.PoolSize),
		ctx:        ctx,
		cancel:     cancel,
		notes:      make(chan notification, notificationBuffer),
		quit:       make(chan struct{}),
		dispatched: make(chan struct{}),
		idle:       idle,
	}
	go e.dispatch()
	return e, nil
}

// Items returns the items in start order.
func (e *Engine) Items() []*Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Item, len(e.items))
	copy(out, e.items)
	return out
}

// Start creates one item per target, shuffles them and starts each one.
func (e *Engine) Start(targets []host.Target, factory task.Factory) []*Item {
	items := make([]*Item, 0, len(targets))
	for _, target := range targets {
		items = append(items, newItem(uuid.NewString(), target, factory, e.ctx, e.cfg.ItemDebug, e.send, e.publishOutput))
	}
	if !e.cfg.NoShuffle {
		rand.Shuffle(len(items), func(a, b int) { items[a], items[b] = items[b], items[a] })
	}

	e.mu.Lock()
	e.items = append(e.items, items...)
	startJournal := e.cfg.Journal != nil && e.runID == ""
	e.mu.Unlock()

	if startJournal {
		runID, err := e.cfg.Journal.StartRun(e.ctx, e.cfg.Operation, len(items))
		if err != nil {
			e.logger.Errorf("Could not record run start: %v", err)
		}
		e.mu.Lock()
		e.runID = runID
		e.mu.Unlock()
	}

	e.logger.Infof("Processing %d items with %d workers", len(items), e.cfg.PoolSize)

	e.gate.Lock()
	defer e.gate.Unlock()
	for _, item := range items {
		if err := item.Start(); err != nil {
			e.logger.Errorf("Could not start %s: %v", item.Name(), err)
		}
	}
	return items
}

// Wait blocks until every queued run has finished and been dispatched.
func (e *Engine) Wait(ctx context.Context) (Summary, error) {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()

	select {
	case <-idle:
		return e.Summary(), nil
	case <-ctx.Done():
		return e.Summary(), ctx.Err()
	}
}

// Run starts targets and waits for them. When ctx is cancelled every item is
// stopped and the context error is returned, or ErrShutdownTimeout if the
// items could not be stopped in time.
func (e *Engine) Run(ctx context.Context, targets []host.Target, factory task.Factory) (Summary, error) {
	e.Start(targets, factory)

	summary, err := e.Wait(ctx)
	if err == nil {
		return summary, nil
	}

	e.logger.Warningf("Run interrupted: %v", err)
	if cerr := e.Cancel(); cerr != nil {
		return e.Summary(), cerr
	}
	summary, _ = e.Wait(context.Background())
	return summary, err
}

// Stop cancels the given items.
func (e *Engine) Stop(items ...*Item) {
	for _, item := range items {
		item.Stop()
	}
}

// Restart stops the given items, waits for their current run to end and
// queues a new run for each.
func (e *Engine) Restart(ctx context.Context, items ...*Item) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		g.Go(func() error {
			item.Stop()
			select {
			case <-item.Done():
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("waiting for items to stop: %w", err)
	}

	e.gate.Lock()
	defer e.gate.Unlock()

	var errs []error
	for _, item := range items {
		if err := item.Restart(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Cancel stops every item and waits for the pool to drain. If it does not
// drain within the drain timeout every tracked tool is killed and
// ErrShutdownTimeout is returned.
func (e *Engine) Cancel() error {
	e.Stop(e.Items()...)

	if e.pool.Drain(e.cfg.DrainTimeout) {
		e.timedOut.Store(false)
		return nil
	}
	e.timedOut.Store(true)

	e.logger.Errorf("%d tasks still running after %s, killing external processes", e.pool.Active(), e.cfg.DrainTimeout)
	if err := e.cfg.Processes.KillAll(); err != nil {
		e.logger.Errorf("Could not kill processes: %v", err)
	}
	return ErrShutdownTimeout
}

// Close cancels everything and stops the dispatcher. The engine can't be
// used afterwards. After a Cancel that timed out, Close doesn't wait again:
// it stops what is left and returns at once, that error was already reported.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.timedOut.Load() {
			e.Stop(e.Items()...)
			if kerr := e.cfg.Processes.KillAll(); kerr != nil {
				e.logger.Errorf("Could not kill processes: %v", kerr)
			}
		} else {
			err = e.Cancel()
		}
		if err == nil && !e.timedOut.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DrainTimeout)
			_, _ = e.Wait(ctx)
			cancel()
		}
		e.cancel()
		close(e.quit)
		<-e.dispatched
	})
	return err
}

// Progress returns finished runs over queued runs, 0 when nothing was queued.
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fraction(e.completedSnapshot, e.queuedSnapshot)
}

// Summary counts the items by state.
func (e *Engine) Summary() Summary {
	s := Summary{}
	for _, item := range e.Items() {
		s.Items++
		switch item.State() {
		case StateCompleted:
			s.Completed++
		case StateFailed:
			s.Failed++
		case StateCancelled:
			s.Cancelled++
		}
	}
	s.Success = s.Failed == 0 && s.Cancelled == 0
	return s
}

// send hands a notification to the dispatcher. Queued runs are counted here,
// synchronously, so Wait never misses a run that was just queued.
func (e *Engine) send(n notification) {
	if n.kind == notifyQueued {
		e.mu.Lock()
		if e.outstanding == 0 {
			e.idle = make(chan struct{})
		}
		e.outstanding++
		e.mu.Unlock()
	}

	select {
	case e.notes <- n:
	case <-e.quit:
	}
}

func (e *Engine) publishOutput(id, line string) {
	e.publish(events.TopicOutput, events.ItemOutputEvent{ID: id, Line: line, Timestamp: time.Now()})
}

func (e *Engine) publish(topic string, event events.Event) {
	if e.cfg.Bus != nil {
		e.cfg.Bus.Publish(topic, event)
	}
}

// dispatch serializes item notifications: it owns the counters, submits
// queued runs to the pool and publishes events.
func (e *Engine) dispatch() {
	defer close(e.dispatched)

	for {
		select {
		case n := <-e.notes:
			e.handle(n)
		case <-e.quit:
			return
		}
	}
}

func (e *Engine) handle(n notification) {
	item := n.item

	switch n.kind {
	case notifyQueued:
		e.queued++
		e.storeProgress()
		e.publish(events.TopicItem, events.ItemQueuedEvent{ID: item.ID(), Name: item.Name(), Run: n.run, Timestamp: n.at})
		e.publishProgress()

		run := n.run
		e.pool.Submit(func() {
			// Wait for the batch being queued to be complete.
			e.gate.RLock()
			e.gate.RUnlock()
			item.execute(run)
		})

	case notifyStarted:
		e.publish(events.TopicItem, events.ItemStartedEvent{ID: item.ID(), Name: item.Name(), Run: n.run, Timestamp: n.at})

	case notifyFinished:
		e.completed++
		e.storeProgress()
		e.publish(events.TopicItem, events.ItemFinishedEvent{
			ID:        item.ID(),
			Name:      item.Name(),
			Run:       n.run,
			State:     n.state.String(),
			Err:       n.err,
			Duration:  n.duration,
			Timestamp: n.at,
		})
		e.publishProgress()
		e.record(n)
		e.finishRun()
	}
}

func (e *Engine) storeProgress() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queuedSnapshot = e.queued
	e.completedSnapshot = e.completed
}

func (e *Engine) publishProgress() {
	e.publish(events.TopicEngine, events.ProgressEvent{
		Queued:    e.queued,
		Completed: e.completed,
		Fraction:  fraction(e.completed, e.queued),
		Timestamp: time.Now(),
	})
}

func (e *Engine) record(n notification) {
	e.mu.Lock()
	runID := e.runID
	e.mu.Unlock()
	if e.cfg.Journal == nil || runID == "" {
		return
	}

	record := ItemRecord{
		ItemID:   n.item.ID(),
		Name:     n.item.Name(),
		Run:      n.run,
		State:    n.state,
		Display:  n.display,
		Duration: n.duration,
		Log:      n.log,
		At:       n.at,
	}
	if n.err != nil {
		record.Err = n.err.Error()
	}
	if err := e.cfg.Journal.RecordItem(e.ctx, runID, record); err != nil {
		e.logger.Errorf("Could not record %s: %v", n.item.Name(), err)
	}
}

// finishRun closes the idle channel once the last outstanding run finished.
func (e *Engine) finishRun() {
	e.mu.Lock()
	e.outstanding--
	if e.outstanding > 0 {
		e.mu.Unlock()
		return
	}
	runID := e.runID
	idle := e.idle
	e.mu.Unlock()

	summary := e.Summary()
	e.logger.Infof("All items finished: %d completed, %d failed, %d cancelled", summary.Completed, summary.Failed, summary.Cancelled)
	e.publish(events.TopicEngine, events.RunFinishedEvent{
		Items:     summary.Items,
		Completed: summary.Completed,
		Failed:    summary.Failed,
		Cancelled: summary.Cancelled,
		Success:   summary.Success,
		Timestamp: time.Now(),
	})
	if e.cfg.Journal != nil && runID != "" {
		if err := e.cfg.Journal.FinishRun(e.ctx, runID, summary); err != nil {
			e.logger.Errorf("Could not record run end: %v", err)
		}
	}

	// A run queued meanwhile got a new idle channel; this one is done.
	close(idle)
}

func fraction(completed, queued int) float64 {
	if queued == 0 {
		return 0
	}
	return float64(completed) / float64(queued)
}
