package task

import (
	"path/filepath"
	"sync"
)

// PathLocks provides per-file mutual exclusion, so two items never write the
// same destination at once while different files proceed in parallel.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sync.Mutex
	refs int
}

// NewPathLocks creates a new PathLocks.
func NewPathLocks() *PathLocks {
	return &PathLocks{
		locks: make(map[string]*pathLock),
	}
}

// Lock acquires the mutex for path, creating it on first use.
func (p *PathLocks) Lock(path string) {
	path = filepath.Clean(path)

	p.mu.Lock()
	lock, ok := p.locks[path]
	if !ok {
		lock = &pathLock{}
		p.locks[path] = lock
	}
	lock.refs++
	p.mu.Unlock()

	// Acquired outside the map lock so other paths are not blocked.
	lock.Lock()
}

// Unlock releases the mutex for path. The entry is dropped once nobody holds
// or waits for it.
func (p *PathLocks) Unlock(path string) {
	path = filepath.Clean(path)

	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[path]
	if !ok {
		return
	}
	lock.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(p.locks, path)
	}
}

// Len returns the number of paths currently locked or waited on.
func (p *PathLocks) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
