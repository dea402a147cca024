// Package vault owns the open store for the life of the process.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/coffer/internal/common"
	"github.com/Veraticus/coffer/internal/storage"
)

// Handle holds the single open store and serializes every operation on it.
// It starts empty; Unlock installs a store and later successful calls replace
// it. Callers borrow the store only inside With.
type Handle struct {
	store *storage.SQLiteStorage
	opts  storage.Options
	path  string
	mu    sync.Mutex
}

// New returns an empty handle for the store file at dbPath.
func New(dbPath string, opts storage.Options) *Handle {
	return &Handle{path: dbPath, opts: opts}
}

// Path returns the store file path.
func (h *Handle) Path() string {
	return h.path
}

// IsInitialized reports whether a store file exists. It does not decrypt.
func (h *Handle) IsInitialized() bool {
	return storage.Exists(h.path)
}

// Ready reports whether a store is installed.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store != nil
}

// Unlock opens (or creates) the store with passphrase and installs it. The
// new store is opened before the lock is taken, so a failure leaves any
// installed store untouched. On success the lock is acquired, which waits for
// the in-flight operation on the previous store, and the previous store is
// closed after the swap.
func (h *Handle) Unlock(ctx context.Context, passphrase string) error {
	store, err := storage.Open(ctx, h.path, passphrase, h.opts)
	if err != nil {
		common.LogError(err, "failed to unlock store", common.Fields{"path": h.path})
		return err
	}

	h.mu.Lock()
	prev := h.store
	h.store = store
	h.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			slog.Warn("failed to close replaced store", "error", err)
		}
		common.LogDebug("replaced open store", common.Fields{"path": h.path})
	}
	return nil
}

// With runs fn with the installed store while holding the lock for the whole
// call. It returns common.ErrNotReady if no store is installed.
func (h *Handle) With(ctx context.Context, fn func(context.Context, *storage.SQLiteStorage) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.store == nil {
		return fmt.Errorf("%w: unlock the store first", common.ErrNotReady)
	}
	return fn(ctx, h.store)
}

// Close closes the installed store, if any, and leaves the handle empty.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.store == nil {
		return nil
	}
	err := h.store.Close()
	h.store = nil
	return err
}
