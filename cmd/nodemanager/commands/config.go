package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/nodemanager/internal/config"
)

type ConfigInitCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	global bool
	yaml   bool
	force  bool
}

// NewConfigInitCommand returns the config init command.
func NewConfigInitCommand(rootCmd *RootCommand, configCmd *kingpin.CmdClause) *ConfigInitCommand {
	c := &ConfigInitCommand{rootCmd: rootCmd}

	c.Cmd = configCmd.Command("init", "Write the default configuration.")
	c.Cmd.Flag("global", "Write the global config in the home directory instead of the project one.").BoolVar(&c.global)
	c.Cmd.Flag("yaml", "Write YAML instead of JSON.").BoolVar(&c.yaml)
	c.Cmd.Flag("force", "Overwrite an existing file.").BoolVar(&c.force)

	return c
}

func (c ConfigInitCommand) Name() string { return c.Cmd.FullCommand() }

func (c ConfigInitCommand) Run(_ context.Context) error {
	dir := config.Dir
	if c.global {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, config.Dir)
	}

	name := "config.json"
	if c.yaml {
		name = "config.yaml"
	}
	path := filepath.Join(dir, name)
	if c.rootCmd.ConfigPath != "" && !c.global {
		path = c.rootCmd.ConfigPath
	}

	if _, err := os.Stat(path); err == nil && !c.force {
		return fmt.Errorf("%s already exists, use --force to overwrite it", path)
	}

	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Fprintf(c.rootCmd.Stdout, "Wrote %s\n", path)
	return nil
}
