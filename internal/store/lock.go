package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	ragerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

const lockPollInterval = 50 * time.Millisecond

// FileLock is an advisory lock on <data_dir>/.lock that serialises writers
// across processes. Readers never take it.
type FileLock struct {
	path string
	fl   *flock.Flock

	mu   sync.Mutex
	held bool
}

// NewFileLock prepares a lock on path. Nothing is touched until Lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, fl: flock.New(path)}
}

// Lock waits for the lock until ctx ends, creating the lock file and its
// directory on first use.
func (l *FileLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ok, err := l.fl.TryLockContext(ctx, lockPollInterval)
	switch {
	case err != nil:
		return ragerrors.New(ragerrors.ErrCodeLockFailed, "failed to acquire data directory lock", err).
			WithDetail("path", l.path)
	case !ok:
		return ragerrors.New(ragerrors.ErrCodeLockFailed, "data directory lock is held by another process", nil).
			WithDetail("path", l.path)
	}

	l.mu.Lock()
	l.held = true
	l.mu.Unlock()
	return nil
}

// Unlock is a no-op when the lock is not held.
func (l *FileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// With runs fn while holding the lock.
func (l *FileLock) With(ctx context.Context, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer func() { _ = l.Unlock() }()
	return fn()
}

// IsLocked reports whether this FileLock, not another process, holds the
// lock.
func (l *FileLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
