package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/nodemanager/internal/config"
	"github.com/aristath/nodemanager/internal/task"
)

type SetDirCommand struct {
	processCommand

	dir string
}

// NewSetDirCommand returns the set-dir command.
func NewSetDirCommand(rootCmd *RootCommand, app *kingpin.Application) *SetDirCommand {
	c := &SetDirCommand{}
	c.processCommand.init(rootCmd, app, "set-dir", "Point the nodes at another directory, keeping file names.")
	c.Cmd.Flag("dir", "New directory.").Required().StringVar(&c.dir)
	return c
}

func (c SetDirCommand) Run(ctx context.Context) error {
	return c.run(ctx, func(*config.Config, *task.Env) (task.Factory, error) {
		return task.NewSetDirectoryFactory(c.dir)
	})
}

type FindReplaceCommand struct {
	processCommand

	params task.FindReplaceParams
}

// NewFindReplaceCommand returns the find-replace command.
func NewFindReplaceCommand(rootCmd *RootCommand, app *kingpin.Application) *FindReplaceCommand {
	c := &FindReplaceCommand{}
	c.processCommand.init(rootCmd, app, "find-replace", "Rewrite the file paths of the nodes.")
	c.Cmd.Flag("find", "Text or expression to find.").Required().StringVar(&c.params.Find)
	c.Cmd.Flag("replace", "Replacement.").StringVar(&c.params.Replace)
	c.Cmd.Flag("regex", "Treat find as a regular expression.").BoolVar(&c.params.Regex)
	c.Cmd.Flag("ignore-case", "Match case-insensitively.").BoolVar(&c.params.IgnoreCase)
	return c
}

func (c FindReplaceCommand) Run(ctx context.Context) error {
	return c.run(ctx, func(*config.Config, *task.Env) (task.Factory, error) {
		return task.NewFindReplaceFactory(c.params)
	})
}

const (
	variantRaw   = "raw"
	variantTiled = "tiled"
)

type SwitchCommand struct {
	processCommand

	to string
}

// NewSwitchCommand returns the switch command.
func NewSwitchCommand(rootCmd *RootCommand, app *kingpin.Application) *SwitchCommand {
	c := &SwitchCommand{}
	c.processCommand.init(rootCmd, app, "switch", "Point the nodes at the raw or the tiled variant of their files.")
	c.Cmd.Flag("to", "Variant to switch to.").Required().EnumVar(&c.to, variantRaw, variantTiled)
	return c
}

func (c SwitchCommand) Run(ctx context.Context) error {
	return c.run(ctx, func(cfg *config.Config, _ *task.Env) (task.Factory, error) {
		return task.NewSwitchFactory(c.to == variantTiled, tilingParams(cfg))
	})
}
