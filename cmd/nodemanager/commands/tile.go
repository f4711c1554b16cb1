package commands

import (
	"context"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/nodemanager/internal/config"
	"github.com/aristath/nodemanager/internal/task"
)

type TileCommand struct {
	processCommand

	tool     string
	verbose  bool
	noUpdate bool
}

// NewTileCommand returns the tile command.
func NewTileCommand(rootCmd *RootCommand, app *kingpin.Application) *TileCommand {
	c := &TileCommand{}
	c.processCommand.init(rootCmd, app, "tile", "Generate tiled textures with an external tool.")
	c.Cmd.Flag("tool", "Conversion tool, defaults to tiling.tool from the config.").StringVar(&c.tool)
	c.Cmd.Flag("verbose", "Log the tool output as it runs.").BoolVar(&c.verbose)
	c.Cmd.Flag("no-update", "Don't point the nodes at the tiled files.").BoolVar(&c.noUpdate)
	return c
}

func (c TileCommand) Run(ctx context.Context) error {
	return c.run(ctx, func(cfg *config.Config, env *task.Env) (task.Factory, error) {
		params := tilingParams(cfg)
		if c.tool != "" {
			params.Tool = c.tool
		}
		params.Verbose = params.Verbose || c.verbose
		params.UpdateTarget = params.UpdateTarget && !c.noUpdate
		return task.NewTilingFactory(params, env)
	})
}

func tilingParams(cfg *config.Config) task.TilingParams {
	return task.TilingParams{
		Tool:         cfg.Tiling.Tool,
		Args:         cfg.Tiling.Args,
		Extension:    cfg.Tiling.Extension,
		RawSegment:   cfg.Tiling.RawSegment,
		TiledSegment: cfg.Tiling.TiledSegment,
		Verbose:      cfg.Tiling.Verbose,
		UpdateTarget: cfg.Tiling.UpdateTarget,
	}
}
