package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/nodemanager/internal/config"
	"github.com/aristath/nodemanager/internal/task"
)

type LocateCommand struct {
	processCommand

	root   string
	ignore []string
}

// NewLocateCommand returns the locate command.
func NewLocateCommand(rootCmd *RootCommand, app *kingpin.Application) *LocateCommand {
	c := &LocateCommand{}
	c.processCommand.init(rootCmd, app, "locate", "Search a directory tree for missing files and repoint the nodes.")
	c.Cmd.Flag("root", "Directory searched recursively, defaults to locate.root from the config.").StringVar(&c.root)
	c.Cmd.Flag("ignore", "Directory pattern to skip (doublestar syntax), repeatable. Replaces the configured patterns.").StringsVar(&c.ignore)
	return c
}

func (c LocateCommand) Run(ctx context.Context) error {
	return c.run(ctx, func(cfg *config.Config, env *task.Env) (task.Factory, error) {
		params := task.LocateParams{Root: cfg.Locate.Root, Ignore: cfg.Locate.Ignore}
		if c.root != "" {
			params.Root = c.root
		}
		if len(c.ignore) > 0 {
			params.Ignore = c.ignore
		}
		return task.NewLocateFactory(params, env)
	})
}
