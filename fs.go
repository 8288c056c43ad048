package convkit

import (
	"context"
	"io"
	"time"
)

// FileInfo describes a stored file.
type FileInfo struct {
	// Path is slash-separated and relative to the store root.
	Path    string
	Size    int64
	ModTime time.Time
}

// Sink receives the bytes of one conversion. Nothing is visible at the
// destination until Commit succeeds; Abort discards everything written.
// Exactly one of Commit or Abort takes effect; later calls return
// ErrSinkClosed.
type Sink interface {
	io.Writer
	Commit() error
	Abort() error
}

// Store is a source of input files and a destination for converted ones.
type Store interface {
	// Open returns a stream over the file at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Create returns a sink that publishes path on Commit.
	Create(ctx context.Context, path string) (Sink, error)

	// List returns the files matching a glob pattern, sorted by path. "*"
	// stays within one directory, "**" crosses directories and the empty
	// pattern matches everything.
	List(ctx context.Context, pattern string) ([]FileInfo, error)
}

// ============================================================================
// File Watching Interface (ChangeToken Pattern)
// ============================================================================

// ChangeToken represents a change notification token.
//
// Consumers can either poll HasChanged or register a callback. Once
// HasChanged is true it stays true; watch again for the next change.
type ChangeToken interface {
	HasChanged() bool

	// ActiveChangeCallbacks indicates if the token proactively raises callbacks.
	ActiveChangeCallbacks() bool

	// RegisterChangeCallback registers a callback to be invoked when change occurs.
	// Returns a function to unregister the callback.
	RegisterChangeCallback(callback func()) (unregister func())
}

// CanWatch indicates the store supports change notifications.
//
//	if watcher, ok := store.(convkit.CanWatch); ok {
//	    token, err := watcher.Watch(ctx, "incoming/*.csv")
//	    ...
//	    token.RegisterChangeCallback(func() { reconvert() })
//	}
type CanWatch interface {
	// Watch creates a change token for files matching pattern. The token
	// signals when a matching file is created, modified or removed.
	Watch(ctx context.Context, pattern string) (ChangeToken, error)
}
