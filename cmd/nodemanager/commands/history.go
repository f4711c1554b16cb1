package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/aristath/nodemanager/internal/engine"
	"github.com/aristath/nodemanager/internal/persistence"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	runID   string
	limit   int
	showLog bool
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "Show past runs.")
	c.Cmd.Flag("run", "Show the items of one run.").StringVar(&c.runID)
	c.Cmd.Flag("limit", "Number of runs listed.").Default("20").IntVar(&c.limit)
	c.Cmd.Flag("log", "Print item logs.").BoolVar(&c.showLog)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	if cfg.Engine.DBPath == "" {
		return fmt.Errorf("run history is disabled, set --db-path or engine.db_path")
	}

	store, err := persistence.NewSQLiteStore(ctx, cfg.Engine.DBPath)
	if err != nil {
		return fmt.Errorf("could not open run history: %w", err)
	}
	defer store.Close()

	color.NoColor = color.NoColor || c.rootCmd.NoColor
	if c.runID != "" {
		return c.printRun(ctx, store)
	}
	return c.printRuns(ctx, store)
}

func (c HistoryCommand) printRuns(ctx context.Context, store persistence.Store) error {
	runs, err := store.ListRuns(ctx, c.limit)
	if err != nil {
		return fmt.Errorf("could not list runs: %w", err)
	}

	tw := tabwriter.NewWriter(c.rootCmd.Stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tOPERATION\tSTARTED\tITEMS\tCOMPLETED\tFAILED\tCANCELLED\tRESULT")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			run.ID, run.Operation, run.StartedAt.Format(time.DateTime), run.Items,
			run.Summary.Completed, run.Summary.Failed, run.Summary.Cancelled, runResult(run))
	}
	return nil
}

func (c HistoryCommand) printRun(ctx context.Context, store persistence.Store) error {
	run, err := store.GetRun(ctx, c.runID)
	if err != nil {
		return err
	}
	items, err := store.ListItems(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("could not list items: %w", err)
	}

	out := c.rootCmd.Stdout
	fmt.Fprintf(out, "Run:        %s\n", run.ID)
	fmt.Fprintf(out, "Operation:  %s\n", run.Operation)
	fmt.Fprintf(out, "Started:    %s\n", run.StartedAt.Format(time.DateTime))
	fmt.Fprintf(out, "Result:     %s\n\n", runResult(*run))

	for _, item := range items {
		fmt.Fprintf(out, "%s %s (run %d, %s)\n", stateIcon(item.State), item.Display, item.Run, item.Duration.Round(time.Millisecond))
		if item.Err != "" {
			fmt.Fprintf(out, "    %s\n", item.Err)
		}
		if c.showLog && item.Log != "" {
			fmt.Fprintln(out, indent(item.Log))
		}
	}
	return nil
}

func runResult(run persistence.Run) string {
	switch {
	case !run.Finished():
		return color.HiBlackString("unfinished")
	case run.Summary.Success:
		return color.GreenString("success")
	default:
		return color.RedString("failed")
	}
}

func stateIcon(state engine.State) string {
	switch state {
	case engine.StateCompleted:
		return color.GreenString("✓")
	case engine.StateFailed:
		return color.RedString("✗")
	case engine.StateCancelled:
		return color.YellowString("⊘")
	default:
		return color.HiBlackString("-")
	}
}
