// Package lockmgr implements the Lock Manager: the store-wide read/write
// lock, a directory lock for persistence, and queue-backed capacity
// limiting for lazy-scan cursors that must hold a read lock open across
// many Next() calls.
//
// Grounded on other_examples/hupe1980-vecgo__tx.go's lock-stratification
// shape (separate mutexes per concern, explicit stop/backpressure
// channels) and design notes §9 "lock-held iteration": a cursor owns
// both its iterator state and a scoped lock guard, and releases both on
// Close.
package lockmgr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Manager is the store-wide lock. Go's sync.RWMutex already gives
// pending writers priority over new readers once Lock() has been
// called, which is exactly §4.5's "reader-preference fairness inverted
// under a pending writer" — no separate fairness bookkeeping is needed
// on top of it.
type Manager struct {
	rw sync.RWMutex

	// cursorSlots bounds how many lazy-scan cursors may simultaneously
	// hold a read lock open (§4.5 "queue-backed cursor lock-hold", §5
	// "a put into a bounded cursor queue blocks when full"). Acquiring a
	// cursor slot blocks like a bounded queue put; releasing is a take.
	cursorSlots *semaphore.Weighted

	dirMu    sync.Mutex
	dirLocks map[string]*dirLock
}

// DefaultCursorCapacity is the number of lazy cursors that may hold a
// read lock open concurrently before new cursor acquisitions block.
const DefaultCursorCapacity = 64

// New creates a lock manager with the given cursor queue capacity. A
// capacity of 0 selects DefaultCursorCapacity.
func New(cursorCapacity int64) *Manager {
	if cursorCapacity <= 0 {
		cursorCapacity = DefaultCursorCapacity
	}
	return &Manager{
		cursorSlots: semaphore.NewWeighted(cursorCapacity),
		dirLocks:    make(map[string]*dirLock),
	}
}

// ReadLocked runs fn while holding the read lock, guaranteeing release
// on every exit path including panics.
func (m *Manager) ReadLocked(fn func() error) error {
	m.rw.RLock()
	defer m.rw.RUnlock()
	return fn()
}

// WriteLocked runs fn while holding the write lock, guaranteeing release
// on every exit path including panics.
func (m *Manager) WriteLocked(fn func() error) error {
	m.rw.Lock()
	defer m.rw.Unlock()
	return fn()
}

// WriteGuard is a scoped write-lock guard meant to outlive the call
// that acquired it, for callers (serializable sinks) that must hold the
// store-wide write lock across a prepare/flush/close span rather than
// for a single closure's duration.
type WriteGuard struct {
	m        *Manager
	mu       sync.Mutex
	released bool
}

// AcquireWrite blocks until the write lock is available and returns a
// guard owning it. The caller must call Close exactly once.
func (m *Manager) AcquireWrite() *WriteGuard {
	m.rw.Lock()
	return &WriteGuard{m: m}
}

// Close releases the write lock. Safe to call more than once; only the
// first call has an effect.
func (g *WriteGuard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.m.rw.Unlock()
}

// Cursor is a scoped read-lock guard with an associated bounded queue
// slot, meant to outlive the call that created it — exactly the
// "cursor struct holding both iterator state and a scoped lock guard"
// design note. The caller must call Close exactly once.
type Cursor struct {
	m        *Manager
	released bool
	mu       sync.Mutex
}

// AcquireCursor blocks until a cursor slot is available (like a bounded
// queue put), then takes the read lock and returns a Cursor owning both.
// ctx cancellation while waiting for a slot surfaces as a context error,
// which callers map to Interrupted.
func (m *Manager) AcquireCursor(ctx context.Context) (*Cursor, error) {
	if err := m.cursorSlots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire cursor slot: %w", err)
	}
	m.rw.RLock()
	return &Cursor{m: m}, nil
}

// Close releases the cursor's read lock and queue slot. Safe to call
// more than once; only the first call has an effect, so Close on an
// already-drained or explicitly closed cursor is always safe.
func (c *Cursor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.m.rw.RUnlock()
	c.m.cursorSlots.Release(1)
}

// dirLock is the filesystem-level lock taken when a store opens its data
// directory for persistence (§4.5, §6): a zero-byte LOCK file created
// with O_EXCL. No OS advisory lock (flock/fcntl) is taken on it.
type dirLock struct {
	path string
	file *os.File
}

// LockHeldError is returned by LockDirectory when another process (or an
// earlier, unreleased open in this process) already holds the lock.
type LockHeldError struct {
	Path string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("lock file %s is already held", e.Path)
}

// LockDirectory creates the LOCK file in dataDir with O_EXCL; the lock
// is held while that file exists. A second lock of the same directory
// fails whether it comes from this process (checked first, in memory)
// or from another process (the file already exists). No OS advisory
// lock is taken, so a LOCK file left behind by a process that exited
// without calling the release function keeps the directory locked until
// the file is removed. dataDir must already exist.
func (m *Manager) LockDirectory(dataDir string) (func() error, error) {
	m.dirMu.Lock()
	defer m.dirMu.Unlock()

	path := filepath.Join(dataDir, "LOCK")
	if _, held := m.dirLocks[path]; held {
		return nil, &LockHeldError{Path: path}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, &LockHeldError{Path: path}
		}
		return nil, fmt.Errorf("create lock file %s: %w", path, err)
	}

	lock := &dirLock{path: path, file: f}
	m.dirLocks[path] = lock

	release := func() error {
		m.dirMu.Lock()
		defer m.dirMu.Unlock()
		delete(m.dirLocks, path)
		_ = lock.file.Close()
		return os.Remove(path)
	}
	return release, nil
}
