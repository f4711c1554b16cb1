package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/nodemanager/internal/config"
	"github.com/aristath/nodemanager/internal/task"
)

type RelocateCommand struct {
	processCommand

	destination string
	copy        bool
	parent      bool
	noUpdate    bool
}

// NewRelocateCommand returns the relocate command.
func NewRelocateCommand(rootCmd *RootCommand, app *kingpin.Application) *RelocateCommand {
	c := &RelocateCommand{}
	c.processCommand.init(rootCmd, app, "relocate", "Move or copy the files of the nodes to another directory.")
	c.Cmd.Flag("dest", "Destination directory.").StringVar(&c.destination)
	c.Cmd.Flag("copy", "Copy instead of moving.").BoolVar(&c.copy)
	c.Cmd.Flag("parent", "Keep the name of the current parent directory under the destination.").BoolVar(&c.parent)
	c.Cmd.Flag("no-update", "Don't point the nodes at the new location.").BoolVar(&c.noUpdate)
	return c
}

func (c RelocateCommand) Run(ctx context.Context) error {
	return c.run(ctx, func(cfg *config.Config, env *task.Env) (task.Factory, error) {
		params := task.RelocateParams{
			Destination:    cfg.Relocate.Destination,
			Copy:           cfg.Relocate.Copy || c.copy,
			PreserveParent: cfg.Relocate.PreserveParent || c.parent,
			UpdateTarget:   cfg.Relocate.UpdateTarget && !c.noUpdate,
		}
		if c.destination != "" {
			params.Destination = c.destination
		}
		return task.NewRelocateFactory(params, env)
	})
}
