package task

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/sequence"
)

// LocateParams configures Locate.
type LocateParams struct {
	// Root is the directory searched recursively.
	Root string
	// Ignore holds doublestar patterns of directories to skip, matched against
	// the path relative to Root and against the directory name.
	Ignore []string
}

// Locate finds the directory holding a target's missing file and points the
// target at it.
type Locate struct {
	base
	params LocateParams
	dirs   *DirCache
}

// NewLocateFactory returns a Factory building Locate tasks.
func NewLocateFactory(params LocateParams, env *Env) (Factory, error) {
	if params.Root == "" {
		return nil, errors.New("locate needs a search root")
	}
	for _, pattern := range params.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	return func(target host.Target, sink Sink) (Task, error) {
		return &Locate{
			base:   base{name: "Locate", target: target, sink: sink},
			params: params,
			dirs:   env.Dirs,
		}, nil
	}, nil
}

func (l *Locate) Process(ctx context.Context) (bool, error) {
	filename, err := l.target.Filename()
	if err != nil {
		return false, err
	}
	pattern := sequence.FromTemplate(filename)

	for _, dir := range l.dirs.Snapshot() {
		if ctx.Err() != nil {
			return false, nil
		}
		if sequence.FirstExisting(dir, filename) == "" {
			continue
		}
		l.sink.Infof("Found %s in cached directory %s", filename, dir)
		return l.found(dir)
	}

	l.sink.Infof("Searching %s for %s", l.params.Root, filename)
	var match string
	err = filepath.WalkDir(l.params.Root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == l.params.Root {
				return err
			}
			l.sink.Debugf("Skipping %s: %v", path, err)
			return nil
		}

		if d.IsDir() {
			if path != l.params.Root && l.ignored(path) {
				return fs.SkipDir
			}
			return nil
		}
		if pattern.Match(d.Name()) {
			match = filepath.Dir(path)
			return fs.SkipAll
		}
		return nil
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("searching %s: %w", l.params.Root, err)
	}

	if match == "" {
		return false, fmt.Errorf("%s in %s: %w", filename, l.params.Root, ErrNotFound)
	}

	l.dirs.Add(match)
	l.sink.Infof("Found %s in %s", filename, match)
	return l.found(match)
}

func (l *Locate) found(dir string) (bool, error) {
	if err := l.target.SetDirectory(dir); err != nil {
		return false, err
	}
	l.sink.Infof("Set directory to %s", dir)
	return true, nil
}

func (l *Locate) ignored(path string) bool {
	rel, err := filepath.Rel(l.params.Root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	name := filepath.Base(path)

	for _, pattern := range l.params.Ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
