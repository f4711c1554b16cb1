// Package task implements the units of work the engine runs against a target:
// locating, relocating and tiling texture files, plus the path edits that go
// with them.
package task

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/log"
	"github.com/aristath/nodemanager/internal/sequence"
)

var (
	// ErrNotFound means no file matching the target could be found.
	ErrNotFound = errors.New("no matching file found")
	// ErrExternalToolFailure means the conversion tool failed or could not run.
	ErrExternalToolFailure = errors.New("external tool failed")
)

// Sink is the log of the item a task runs for.
type Sink interface {
	log.Logger
	// Raw appends a line verbatim, without level decoration.
	Raw(line string)
}

// Task is a one-shot unit of work.
//
// Process returns true when the work completed and false when ctx was
// cancelled before it could finish. Any error marks the run as failed.
type Task interface {
	Process(ctx context.Context) (bool, error)
	DisplayText() string
}

// Factory builds a fresh task for one run of one target.
type Factory func(target host.Target, sink Sink) (Task, error)

// base holds what every task needs.
type base struct {
	name   string
	target host.Target
	sink   Sink
}

func (b base) DisplayText() string {
	path, err := b.target.FilePath()
	if err != nil {
		path = b.target.Name()
	}
	return fmt.Sprintf("%s: %s", b.name, path)
}

// existingFiles resolves filename in directory and keeps the paths naming
// existing files. It returns false if ctx was cancelled along the way.
func existingFiles(ctx context.Context, directory, filename string) ([]string, bool) {
	var paths []string
	for path := range sequence.Resolve(directory, filename) {
		if ctx.Err() != nil {
			return nil, false
		}
		if isRegularFile(path) {
			paths = append(paths, path)
		}
	}
	return paths, ctx.Err() == nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
