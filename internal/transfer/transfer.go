// Package transfer moves and copies single files with skip-if-newer conflict
// resolution.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Mode selects between copying and moving.
type Mode int

const (
	ModeMove Mode = iota
	ModeCopy
)

func (m Mode) String() string {
	if m == ModeCopy {
		return "copy"
	}
	return "move"
}

// Result describes what a transfer did.
type Result int

const (
	ResultSkipped Result = iota // destination exists and is not older than the source
	ResultCopied
	ResultMoved
)

func (r Result) String() string {
	switch r {
	case ResultCopied:
		return "copied"
	case ResultMoved:
		return "moved"
	default:
		return "skipped"
	}
}

// RetryConfig configures exponential backoff for transient I/O errors.
type RetryConfig struct {
	InitialInterval time.Duration // default 50ms
	MaxInterval     time.Duration // default 1s
	MaxElapsedTime  time.Duration // default 5s, zero disables retries
	Multiplier      float64       // default 2.0
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		MaxElapsedTime:  5 * time.Second,
		Multiplier:      2.0,
	}
}

// Transferer performs file transfers.
type Transferer struct {
	retry RetryConfig
}

// New creates a Transferer with the given retry policy.
func New(retry RetryConfig) *Transferer {
	return &Transferer{retry: retry}
}

// Default is a Transferer using DefaultRetryConfig.
var Default = New(DefaultRetryConfig())

// UpToDate reports whether dst exists and its modification time is not older
// than src's.
func UpToDate(src, dst string) (bool, error) {
	dstInfo, err := os.Stat(dst)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", dst, err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", src, err)
	}

	return !dstInfo.ModTime().Before(srcInfo.ModTime()), nil
}

// Transfer copies or moves src to dst, creating the destination directory.
// When dst is already up to date nothing happens and ResultSkipped is returned.
func (t *Transferer) Transfer(ctx context.Context, src, dst string, mode Mode) (Result, error) {
	upToDate, err := UpToDate(src, dst)
	if err != nil {
		return ResultSkipped, err
	}
	if upToDate {
		return ResultSkipped, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ResultSkipped, fmt.Errorf("creating destination directory: %w", err)
	}

	var result Result
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		var err error
		if mode == ModeCopy {
			err = copyFile(src, dst)
			result = ResultCopied
		} else {
			err = moveFile(src, dst)
			result = ResultMoved
		}
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(operation, t.policy(ctx)); err != nil {
		return ResultSkipped, fmt.Errorf("%s %s to %s: %w", mode, src, dst, err)
	}
	return result, nil
}

// Transfer runs Default.Transfer.
func Transfer(ctx context.Context, src, dst string, mode Mode) (Result, error) {
	return Default.Transfer(ctx, src, dst, mode)
}

func (t *Transferer) policy(ctx context.Context) backoff.BackOffContext {
	if t.retry.MaxElapsedTime <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = t.retry.InitialInterval
	policy.MaxInterval = t.retry.MaxInterval
	policy.MaxElapsedTime = t.retry.MaxElapsedTime
	policy.Multiplier = t.retry.Multiplier
	return backoff.WithContext(policy, ctx)
}

// isTransient reports whether err is worth retrying (locked or busy files).
func isTransient(err error) bool {
	return errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.ETXTBSY)
}

// copyFile writes src to a temporary file next to dst and renames it into
// place, keeping src's permissions and modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

// moveFile renames src to dst, falling back to copy and delete across devices.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
