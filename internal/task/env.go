package task

import (
	"slices"
	"sync"

	"github.com/aristath/nodemanager/internal/process"
	"github.com/aristath/nodemanager/internal/transfer"
)

// Env is the state shared by every task of a process.
type Env struct {
	Dirs       *DirCache
	InFlight   *InFlight
	Locks      *PathLocks
	Breakers   *BreakerRegistry
	Runner     *process.Runner
	Transferer *transfer.Transferer
}

// NewEnv creates an Env with fresh shared state. Tools started through it are
// tracked by processes, which may be nil.
func NewEnv(processes *process.Manager) *Env {
	return &Env{
		Dirs:       DefaultDirCache,
		InFlight:   NewInFlight(),
		Locks:      NewPathLocks(),
		Breakers:   NewBreakerRegistry(DefaultBreakerConfig(), nil),
		Runner:     process.NewRunner(processes),
		Transferer: transfer.Default,
	}
}

// DirCache remembers directories where Locate found a match. Entries are hints
// and are checked again before use.
type DirCache struct {
	mu   sync.Mutex
	dirs []string
}

// DefaultDirCache is shared by every Env created with NewEnv.
var DefaultDirCache = NewDirCache()

// NewDirCache creates an empty cache.
func NewDirCache() *DirCache {
	return &DirCache{}
}

// Add records dir. Adding a known directory does nothing.
func (c *DirCache) Add(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !slices.Contains(c.dirs, dir) {
		c.dirs = append(c.dirs, dir)
	}
}

// Snapshot returns the cached directories, oldest first.
func (c *DirCache) Snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.dirs)
}

// Contains reports whether dir is cached.
func (c *DirCache) Contains(dir string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.dirs, dir)
}

// InFlight is the set of input files currently being converted.
type InFlight struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewInFlight creates an empty set.
func NewInFlight() *InFlight {
	return &InFlight{paths: make(map[string]struct{})}
}

// TryAdd claims path. It returns false if another task already holds it.
func (f *InFlight) TryAdd(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.paths[path]; ok {
		return false
	}
	f.paths[path] = struct{}{}
	return true
}

// Remove releases path.
func (f *InFlight) Remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.paths, path)
}

// Len returns the number of claimed paths.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}
