package process

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	raw    []string
	errors []string
}

func (s *recordingSink) Raw(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = append(s.raw, line)
}

func (s *recordingSink) Errorf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, fmt.Sprintf(format, args...))
}

func (s *recordingSink) Raws() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.raw...)
}

func TestRun(t *testing.T) {
	tests := map[string]struct {
		script    string
		verbose   bool
		expCode   int
		expErr    bool
		expRaw    []string
		expErrors int
	}{
		"A successful quiet run should not write anything.": {
			script:  "echo one; echo two",
			expCode: 0,
		},
		"A successful verbose run should forward every line.": {
			script:  "echo one; echo two",
			verbose: true,
			expRaw:  []string{"one", "two"},
		},
		"Stderr should be merged into the same stream.": {
			script:  "echo out; echo err 1>&2",
			verbose: true,
			expRaw:  []string{"out", "err"},
		},
		"A failing quiet run should dump the captured output.": {
			script:    "echo converting; echo bad input 1>&2; exit 3",
			expCode:   3,
			expErr:    true,
			expRaw:    []string{"converting", "bad input"},
			expErrors: 1,
		},
		"A failing verbose run should not repeat the output.": {
			script:    "echo converting; exit 2",
			verbose:   true,
			expCode:   2,
			expErr:    true,
			expRaw:    []string{"converting"},
			expErrors: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			sink := &recordingSink{}
			code, err := NewRunner(nil).Run(context.Background(), []string{"sh", "-c", test.script}, test.verbose, sink)

			assert.Equal(test.expCode, code)
			if test.expErr {
				var exitErr *ExitError
				if assert.ErrorAs(err, &exitErr) {
					assert.Equal(test.expCode, exitErr.Code)
				}
			} else {
				assert.NoError(err)
			}
			assert.Equal(test.expRaw, sink.Raws())
			assert.Len(sink.errors, test.expErrors)
		})
	}
}

func TestRunLargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink := &recordingSink{}
	code, err := NewRunner(nil).Run(ctx, []string{"sh", "-c", "seq 1 50000"}, true, sink)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	raw := sink.Raws()
	require.Len(t, raw, 50000)
	assert.Equal(t, "50000", raw[len(raw)-1])
}

func TestRunStreamsBeforeExit(t *testing.T) {
	sink := &recordingSink{}
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = NewRunner(nil).Run(context.Background(), []string{"sh", "-c", "echo first; sleep 1; echo second"}, true, sink)
	}()

	assert.Eventually(t, func() bool {
		return len(sink.Raws()) == 1
	}, 900*time.Millisecond, 10*time.Millisecond)

	<-done
	assert.Equal(t, []string{"first", "second"}, sink.Raws())
}

func TestRunCancelKillsProcessGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	manager := NewManager()

	errc := make(chan error, 1)
	go func() {
		_, err := NewRunner(manager).Run(ctx, []string{"sh", "-c", "sleep 30 & sleep 30; wait"}, false, &recordingSink{})
		errc <- err
	}()

	require.Eventually(t, func() bool { return manager.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 5*time.Second)
	case <-time.After(10 * time.Second):
		t.Fatal("process was not killed")
	}
	assert.Equal(t, 0, manager.Count())
}

func TestProcessStop(t *testing.T) {
	p, err := NewRunner(nil).Start(context.Background(), []string{"sleep", "30"})
	require.NoError(t, err)

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())

	_, err = p.Wait(false, &recordingSink{})
	assert.ErrorIs(t, err, ErrKilled)
}

func TestManagerKillAll(t *testing.T) {
	manager := NewManager()
	runner := NewRunner(manager)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = runner.Run(context.Background(), []string{"sleep", "30"}, false, &recordingSink{})
		}()
	}

	require.Eventually(t, func() bool { return manager.Count() == 3 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, manager.KillAll())
	wg.Wait()

	assert.Equal(t, 0, manager.Count())
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrKilled)
	}
}

func TestStartErrors(t *testing.T) {
	_, err := NewRunner(nil).Start(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewRunner(nil).Run(context.Background(), []string{"definitely-not-a-real-tool-xyz"}, false, &recordingSink{})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to start"))
}
