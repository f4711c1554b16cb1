package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/nodemanager/internal/host"
	"github.com/aristath/nodemanager/internal/log"
	"github.com/aristath/nodemanager/internal/process"
	"github.com/aristath/nodemanager/internal/transfer"
)

type memorySink struct {
	mu    sync.Mutex
	lines []string
}

func (s *memorySink) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *memorySink) Infof(format string, args ...any) {
	s.add("INFO: " + fmt.Sprintf(format, args...))
}
func (s *memorySink) Warningf(format string, args ...any) {
	s.add("WARNING: " + fmt.Sprintf(format, args...))
}
func (s *memorySink) Errorf(format string, args ...any) {
	s.add("ERROR: " + fmt.Sprintf(format, args...))
}
func (s *memorySink) Debugf(format string, args ...any) {
	s.add("DEBUG: " + fmt.Sprintf(format, args...))
}
func (s *memorySink) WithValues(log.Kv) log.Logger { return s }
func (s *memorySink) WithCtxValues(context.Context) log.Logger {
	return s
}
func (s *memorySink) SetValuesOnCtx(parent context.Context, _ log.Kv) context.Context {
	return parent
}
func (s *memorySink) Raw(line string) { s.add(line) }

func (s *memorySink) Contains(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func newTestEnv() *Env {
	return &Env{
		Dirs:       NewDirCache(),
		InFlight:   NewInFlight(),
		Locks:      NewPathLocks(),
		Breakers:   NewBreakerRegistry(BreakerConfig{Failures: 2, Timeout: time.Minute}, nil),
		Runner:     process.NewRunner(nil),
		Transferer: transfer.New(transfer.RetryConfig{}),
	}
}

func newTarget(path string) (host.Target, *host.MemoryEntity) {
	entity := host.NewMemoryEntity("file1", map[string]host.Value{
		host.DefaultPathAttribute: filepath.ToSlash(path),
	})
	return host.NewTarget(entity, ""), entity
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func filePath(t *testing.T, target host.Target) string {
	t.Helper()
	path, err := target.FilePath()
	require.NoError(t, err)
	return filepath.FromSlash(path)
}

func build(t *testing.T, factory Factory, err error, target host.Target, sink Sink) Task {
	t.Helper()
	require.NoError(t, err)
	tk, err := factory(target, sink)
	require.NoError(t, err)
	return tk
}
