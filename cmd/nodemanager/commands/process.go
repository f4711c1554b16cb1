package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/aristath/nodemanager/internal/config"
	"github.com/aristath/nodemanager/internal/engine"
	"github.com/aristath/nodemanager/internal/events"
	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/log"
	"github.com/aristath/nodemanager/internal/persistence"
	"github.com/aristath/nodemanager/internal/process"
	"github.com/aristath/nodemanager/internal/scene"
	"github.com/aristath/nodemanager/internal/task"
	"github.com/aristath/nodemanager/internal/transfer"
	"github.com/aristath/nodemanager/internal/tui"
)

// factoryBuilder builds the task factory of an operation.
type factoryBuilder func(cfg *config.Config, env *task.Env) (task.Factory, error)

// processCommand is the part shared by every command running tasks over
// scene nodes.
type processCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	nodes []string
}

// init registers the command. The node names are bound in place, so c must
// be the field embedded in the final command.
func (c *processCommand) init(rootCmd *RootCommand, app *kingpin.Application, name, help string) {
	c.rootCmd = rootCmd
	c.Cmd = app.Command(name, help)
	c.Cmd.Arg("nodes", "Names of the nodes to process, all of them when empty.").StringsVar(&c.nodes)
}

func (c processCommand) Name() string { return c.Cmd.FullCommand() }

// run loads the scene, processes the selected nodes and saves the scene when
// any node changed.
func (c processCommand) run(ctx context.Context, build factoryBuilder) error {
	ctx = c.rootCmd.Logger.SetValuesOnCtx(ctx, log.Kv{"cmd": c.Name()})
	logger := c.rootCmd.Logger.WithCtxValues(ctx)

	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	if cfg.Host.Scene == "" {
		return fmt.Errorf("no scene given, use --scene or host.scene in the config")
	}

	sc, err := scene.Load(cfg.Host.Scene)
	if err != nil {
		return fmt.Errorf("could not load scene: %w", err)
	}
	entities := sc.Select(c.nodes...)
	if len(entities) == 0 {
		return fmt.Errorf("no nodes selected in %s", cfg.Host.Scene)
	}
	targets := make([]host.Target, 0, len(entities))
	for _, entity := range entities {
		targets = append(targets, host.NewTarget(entity, cfg.Host.PathAttribute))
	}

	processes := process.NewManager()
	env := task.NewEnv(processes)
	env.Breakers = task.NewBreakerRegistry(task.BreakerConfig{
		Failures: cfg.Tiling.Breaker.Failures,
		Timeout:  time.Duration(cfg.Tiling.Breaker.Timeout),
	}, logger)
	env.Transferer = transfer.New(transfer.RetryConfig{
		InitialInterval: time.Duration(cfg.Relocate.Retry.InitialInterval),
		MaxInterval:     time.Duration(cfg.Relocate.Retry.MaxInterval),
		MaxElapsedTime:  time.Duration(cfg.Relocate.Retry.MaxElapsedTime),
		Multiplier:      2,
	})

	factory, err := build(cfg, env)
	if err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	var journal engine.Journal
	if cfg.Engine.DBPath != "" {
		store, err := persistence.NewSQLiteStore(ctx, cfg.Engine.DBPath)
		if err != nil {
			return fmt.Errorf("could not open run history: %w", err)
		}
		defer store.Close()
		journal = store
	}

	bus := events.NewEventBus()
	defer bus.Close()

	eng, err := engine.New(engine.Config{
		PoolSize:     cfg.Engine.PoolSize,
		DrainTimeout: time.Duration(cfg.Engine.DrainTimeout),
		Bus:          bus,
		Processes:    processes,
		Logger:       logger,
		Journal:      journal,
		Operation:    c.Name(),
		NoShuffle:    cfg.Engine.NoShuffle,
		ItemDebug:    c.rootCmd.Debug,
	})
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	var summary engine.Summary
	if c.rootCmd.NoTUI {
		summary, err = c.runPlain(ctx, eng, bus, targets, factory)
	} else {
		summary, err = c.runTUI(ctx, eng, bus, targets, factory)
	}
	if cerr := eng.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("could not stop engine: %w", cerr))
	}

	if sc.Modified() {
		if serr := sc.Save(cfg.Host.Scene); serr != nil {
			return errors.Join(err, fmt.Errorf("could not save scene: %w", serr))
		}
		logger.Infof("Saved %s", cfg.Host.Scene)
	}
	if err != nil {
		return err
	}

	if !summary.Success {
		return fmt.Errorf("%d of %d items failed, %d cancelled", summary.Failed, summary.Items, summary.Cancelled)
	}
	return nil
}

// runTUI runs the items behind the interactive view until the user quits.
func (c processCommand) runTUI(ctx context.Context, eng *engine.Engine, bus *events.EventBus, targets []host.Target, factory task.Factory) (engine.Summary, error) {
	// The model subscribes to the bus, so it's created before anything starts.
	model := tui.New(ctx, bus, tui.EngineController{Engine: eng})
	eng.Start(targets, factory)

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(c.rootCmd.Stdin),
		tea.WithOutput(c.rootCmd.Stdout),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return eng.Summary(), fmt.Errorf("interactive view failed: %w", err)
	}

	if err := eng.Cancel(); err != nil {
		return eng.Summary(), err
	}
	summary, _ := eng.Wait(context.Background())
	c.printSummary(eng, summary)
	return summary, nil
}

// runPlain runs the items with a progress bar.
func (c processCommand) runPlain(ctx context.Context, eng *engine.Engine, bus *events.EventBus, targets []host.Target, factory task.Factory) (engine.Summary, error) {
	bar := progressbar.NewOptions(len(targets),
		progressbar.OptionSetDescription(c.Name()),
		progressbar.OptionSetWriter(c.rootCmd.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	sub := bus.Subscribe(events.TopicEngine, 1024)
	defer bus.Unsubscribe(sub)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub {
			switch ev := ev.(type) {
			case events.ProgressEvent:
				if ev.Queued > bar.GetMax() {
					bar.ChangeMax(ev.Queued)
				}
				_ = bar.Set(ev.Completed)
			case events.RunFinishedEvent:
				_ = bar.Finish()
				return
			}
		}
	}()

	summary, err := eng.Run(ctx, targets, factory)
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	c.printSummary(eng, summary)
	return summary, err
}

// printSummary prints the outcome and the logs of the items that didn't complete.
func (c processCommand) printSummary(eng *engine.Engine, summary engine.Summary) {
	color.NoColor = color.NoColor || c.rootCmd.NoColor
	out := c.rootCmd.Stdout

	for _, item := range eng.Items() {
		switch item.State() {
		case engine.StateFailed:
			fmt.Fprintf(out, "%s %s\n", color.RedString("✗"), item.DisplayText())
			fmt.Fprintln(out, indent(item.Log()))
		case engine.StateCancelled:
			fmt.Fprintf(out, "%s %s\n", color.YellowString("⊘"), item.DisplayText())
		}
	}

	fmt.Fprintf(out, "%s completed, %s failed, %s cancelled\n",
		color.GreenString("%d", summary.Completed),
		color.RedString("%d", summary.Failed),
		color.YellowString("%d", summary.Cancelled))
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n")
}
