package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/nodemanager/internal/config"
	"github.com/aristath/nodemanager/internal/log"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	ConfigPath string
	DBPath     string
	ScenePath  string
	Attribute  string
	PoolSize   int
	NoTUI      bool

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("config", "Project config file, overrides the global one.").Envar("NODEMANAGER_CONFIG").StringVar(&c.ConfigPath)
	app.Flag("db-path", "Path to the SQLite run history, overrides the config.").Envar("NODEMANAGER_DB_PATH").StringVar(&c.DBPath)
	app.Flag("scene", "Scene file (JSON or YAML) holding the nodes.").Short('s').StringVar(&c.ScenePath)
	app.Flag("attribute", "Node attribute holding the file path.").StringVar(&c.Attribute)
	app.Flag("pool-size", "Number of items processed at once.").IntVar(&c.PoolSize)
	app.Flag("no-tui", "Print a progress bar instead of the interactive view.").BoolVar(&c.NoTUI)

	return c
}

// LoadConfig loads the layered configuration and applies the global flags on top.
func (c *RootCommand) LoadConfig() (*config.Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	projectPath := c.ConfigPath
	if projectPath == "" {
		projectPath = config.Find(config.Dir)
	}
	cfg, err := config.Load(config.Find(filepath.Join(homeDir, config.Dir)), projectPath)
	if err != nil {
		return nil, err
	}

	if c.DBPath != "" {
		cfg.Engine.DBPath = c.DBPath
	}
	if c.ScenePath != "" {
		cfg.Host.Scene = c.ScenePath
	}
	if c.Attribute != "" {
		cfg.Host.PathAttribute = c.Attribute
	}
	if c.PoolSize != 0 {
		cfg.Engine.PoolSize = c.PoolSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
