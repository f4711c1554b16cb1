package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/aristath/nodemanager/cmd/nodemanager/commands"
	"github.com/aristath/nodemanager/internal/log"
	loglogrus "github.com/aristath/nodemanager/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("nodemanager", "Batch file operations over the file nodes of a scene.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	locateCmd := commands.NewLocateCommand(rootCmd, app)
	relocateCmd := commands.NewRelocateCommand(rootCmd, app)
	tileCmd := commands.NewTileCommand(rootCmd, app)
	setDirCmd := commands.NewSetDirCommand(rootCmd, app)
	findReplaceCmd := commands.NewFindReplaceCommand(rootCmd, app)
	switchCmd := commands.NewSwitchCommand(rootCmd, app)
	historyCmd := commands.NewHistoryCommand(rootCmd, app)

	configCmd := app.Command("config", "Manage configuration.")
	configInitCmd := commands.NewConfigInitCommand(rootCmd, configCmd)

	cmds := map[string]commands.Command{
		locateCmd.Name():      locateCmd,
		relocateCmd.Name():    relocateCmd,
		tileCmd.Name():        tileCmd,
		setDirCmd.Name():      setDirCmd,
		findReplaceCmd.Name(): findReplaceCmd,
		switchCmd.Name():      switchCmd,
		historyCmd.Name():     historyCmd,
		configInitCmd.Name():  configInitCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// The interactive view owns the terminal, log lines would break it.
	interactive := map[string]bool{
		locateCmd.Name():      true,
		relocateCmd.Name():    true,
		tileCmd.Name():        true,
		setDirCmd.Name():      true,
		findReplaceCmd.Name(): true,
		switchCmd.Name():      true,
	}
	if interactive[cmdName] && !rootCmd.NoTUI {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(*rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Keep stdout for command output.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
