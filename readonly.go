package convkit

import (
	"context"
	"errors"
	"io"
)

// ErrReadOnly is returned when a conversion tries to write to a read-only store.
var ErrReadOnly = errors.New("store is read-only")

// ReadOnlyStore wraps a Store to prevent writes. Open and List are delegated;
// Create fails with a PathError wrapping ErrReadOnly. Mount inputs through it
// to make sure a misdirected conversion never overwrites a source.
//
//	mounts.Mount("in", convkit.ReadOnly(sources))
type ReadOnlyStore struct {
	store          Store
	onWriteAttempt func(path string)
}

// ReadOnlyOption configures a ReadOnlyStore.
type ReadOnlyOption func(*ReadOnlyStore)

// WithWriteAttemptHandler sets a function called with the path of every
// refused Create, e.g. for logging.
func WithWriteAttemptHandler(handler func(path string)) ReadOnlyOption {
	return func(r *ReadOnlyStore) {
		r.onWriteAttempt = handler
	}
}

// ReadOnly creates a read-only wrapper around store.
func ReadOnly(store Store, opts ...ReadOnlyOption) *ReadOnlyStore {
	r := &ReadOnlyStore{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Unwrap returns the underlying Store.
func (r *ReadOnlyStore) Unwrap() Store {
	return r.store
}

// Open delegates to the underlying store.
func (r *ReadOnlyStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.store.Open(ctx, path)
}

// List delegates to the underlying store.
func (r *ReadOnlyStore) List(ctx context.Context, pattern string) ([]FileInfo, error) {
	return r.store.List(ctx, pattern)
}

// Create returns ErrReadOnly.
func (r *ReadOnlyStore) Create(_ context.Context, path string) (Sink, error) {
	if r.onWriteAttempt != nil {
		r.onWriteAttempt(path)
	}
	return nil, &PathError{Op: "create", Path: path, Err: ErrReadOnly}
}

// Watch delegates to the underlying store if it can watch.
func (r *ReadOnlyStore) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	watcher, ok := r.store.(CanWatch)
	if !ok {
		return nil, &PathError{Op: "watch", Path: pattern, Err: ErrNotAllowed}
	}
	return watcher.Watch(ctx, pattern)
}

// IsReadOnly reports whether store refuses writes.
func IsReadOnly(store Store) bool {
	_, ok := store.(*ReadOnlyStore)
	return ok
}

var (
	_ Store    = (*ReadOnlyStore)(nil)
	_ CanWatch = (*ReadOnlyStore)(nil)
)
