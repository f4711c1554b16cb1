// Package process runs external command line tools in their own process group,
// streaming their merged output line by line.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// maxLineSize bounds a single line of tool output.
const maxLineSize = 1024 * 1024

// Sink receives tool output and failures.
type Sink interface {
	// Raw appends a line verbatim, without level decoration.
	Raw(line string)
	Errorf(format string, args ...any)
}

// ErrKilled is returned by Wait when the process was killed through Stop.
var ErrKilled = errors.New("process killed")

// ExitError is returned when a tool exits with a non-zero status.
type ExitError struct {
	Args   []string
	Code   int
	Output []string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Args[0], e.Code)
}

// Runner starts tools and registers them with an optional Manager.
type Runner struct {
	manager *Manager
}

// NewRunner creates a Runner. A nil manager disables tracking.
func NewRunner(manager *Manager) *Runner {
	return &Runner{manager: manager}
}

// Process is a started tool.
type Process struct {
	cmd     *exec.Cmd
	ctx     context.Context
	output  *os.File
	manager *Manager

	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// Start launches args[0] with stdout and stderr merged into one pipe. The
// process group is killed when ctx is done.
func (r *Runner) Start(ctx context.Context, args []string) (*Process, error) {
	if len(args) == 0 {
		return nil, errors.New("no command given")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	// Passing the same *os.File for both streams lets the child write to the
	// pipe directly, keeping the interleaving of the two streams.
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("failed to start %s: %w", args[0], err)
	}
	// Only the child holds the write end now, so EOF means every writer in the
	// group is gone.
	writer.Close()

	p := &Process{
		cmd:     cmd,
		ctx:     ctx,
		output:  reader,
		manager: r.manager,
	}
	if r.manager != nil {
		r.manager.Track(p)
	}
	return p, nil
}

// Run starts the tool, streams its output and waits for it to exit.
func (r *Runner) Run(ctx context.Context, args []string, verbose bool, sink Sink) (int, error) {
	p, err := r.Start(ctx, args)
	if err != nil {
		return -1, err
	}
	return p.Wait(verbose, sink)
}

// Pid returns the operating system process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Wait reads the merged output until EOF, then waits for the exit status.
//
// In verbose mode every line goes to sink.Raw as soon as it is read. Otherwise
// lines are kept and only written to the sink if the tool fails.
func (p *Process) Wait(verbose bool, sink Sink) (int, error) {
	defer func() {
		if p.manager != nil {
			p.manager.Untrack(p)
		}
	}()

	var captured []string
	scanner := bufio.NewScanner(p.output)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if verbose {
			sink.Raw(line)
		} else {
			captured = append(captured, line)
		}
	}
	scanErr := scanner.Err()
	p.output.Close()

	waitErr := p.cmd.Wait()

	if waitErr != nil {
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			return -1, fmt.Errorf("%s interrupted: %w", p.cmd.Args[0], ctxErr)
		}
		if p.stopped.Load() {
			return -1, fmt.Errorf("%s: %w", p.cmd.Args[0], ErrKilled)
		}

		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return -1, fmt.Errorf("waiting for %s: %w", p.cmd.Args[0], waitErr)
		}

		code := exitErr.ExitCode()
		sink.Errorf("%s exited with code %d", p.cmd.Args[0], code)
		for _, line := range captured {
			sink.Raw(line)
		}
		return code, &ExitError{Args: p.cmd.Args, Code: code, Output: captured}
	}

	if scanErr != nil {
		return 0, fmt.Errorf("reading output of %s: %w", p.cmd.Args[0], scanErr)
	}
	return 0, nil
}

// Stop kills the whole process group. Calling it more than once is safe.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		p.stopErr = killProcessGroup(p.cmd)
	})
	return p.stopErr
}

// Manager tracks every running tool so they can be killed on shutdown.
type Manager struct {
	mu    sync.Mutex
	procs map[int]*Process
}

// NewManager creates a new Manager.
func NewManager() *Manager {
	return &Manager{
		procs: make(map[int]*Process),
	}
}

// Track registers a started process.
func (m *Manager) Track(p *Process) {
	if p.cmd.Process == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.procs[p.Pid()] = p
}

// Untrack removes a process once it has exited.
func (m *Manager) Untrack(p *Process) {
	if p.cmd.Process == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.procs, p.Pid())
}

// KillAll terminates every tracked process group.
func (m *Manager) KillAll() error {
	m.mu.Lock()
	procs := make([]*Process, 0, len(m.procs))
	for _, p := range m.procs {
		procs = append(procs, p)
	}
	m.mu.Unlock()

	var errs []error
	for _, p := range procs {
		if err := p.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", p.Pid(), err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of tracked processes.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs)
}
