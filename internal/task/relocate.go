package task

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/transfer"
)

// RelocateParams configures Relocate.
type RelocateParams struct {
	Destination string
	// Copy keeps the source files in place.
	Copy bool
	// PreserveParent nests the files under the name of their current directory.
	PreserveParent bool
	// UpdateTarget points the target at the new directory when done.
	UpdateTarget bool
}

// Relocate moves or copies every file of a target's sequence to a new directory.
type Relocate struct {
	base
	params     RelocateParams
	locks      *PathLocks
	transferer *transfer.Transferer
}

// NewRelocateFactory returns a Factory building Relocate tasks.
func NewRelocateFactory(params RelocateParams, env *Env) (Factory, error) {
	if params.Destination == "" {
		return nil, errors.New("relocate needs a destination")
	}

	return func(target host.Target, sink Sink) (Task, error) {
		return &Relocate{
			base:       base{name: "Relocate", target: target, sink: sink},
			params:     params,
			locks:      env.Locks,
			transferer: env.Transferer,
		}, nil
	}, nil
}

func (r *Relocate) Process(ctx context.Context) (bool, error) {
	dir, err := r.target.Directory()
	if err != nil {
		return false, err
	}
	filename, err := r.target.Filename()
	if err != nil {
		return false, err
	}

	sources, ok := existingFiles(ctx, dir, filename)
	if !ok {
		return false, nil
	}
	if len(sources) == 0 {
		return false, fmt.Errorf("%s: %w", filepath.Join(dir, filename), ErrNotFound)
	}

	destination := r.params.Destination
	if r.params.PreserveParent {
		destination = filepath.Join(destination, filepath.Base(dir))
	}

	mode := transfer.ModeMove
	if r.params.Copy {
		mode = transfer.ModeCopy
	}

	var transferred, skipped int
	for _, src := range sources {
		if ctx.Err() != nil {
			return false, nil
		}

		dst := filepath.Join(destination, filepath.Base(src))
		r.locks.Lock(dst)
		result, err := r.transferer.Transfer(ctx, src, dst, mode)
		r.locks.Unlock(dst)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}

		if result == transfer.ResultSkipped {
			skipped++
			r.sink.Infof("Skipped %s, %s is up to date", src, dst)
			continue
		}
		transferred++
		r.sink.Infof("%s -> %s (%s)", src, dst, result)
	}
	r.sink.Infof("%d file(s) transferred, %d skipped", transferred, skipped)

	if r.params.UpdateTarget {
		if err := r.target.SetDirectory(destination); err != nil {
			return false, err
		}
		r.sink.Infof("Set directory to %s", destination)
	}
	return true, nil
}
