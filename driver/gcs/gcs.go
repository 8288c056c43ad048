package gcs

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/gobeaver/convkit"
)

// Bucket is what the store needs from a GCS bucket.
type Bucket interface {
	// NewReader opens the object name.
	NewReader(ctx context.Context, name string) (io.ReadCloser, error)

	// NewWriter returns a writer that creates name when closed. Cancelling
	// ctx before Close discards the object.
	NewWriter(ctx context.Context, name string) io.WriteCloser

	// Objects calls fn for every object whose name starts with prefix.
	Objects(ctx context.Context, prefix string, fn func(name string, size int64, updated time.Time)) error
}

// Adapter provides a Google Cloud Storage implementation of convkit.Store
type Adapter struct {
	bucket       Bucket
	prefix       string
	pollInterval time.Duration
}

// AdapterOption is a function that configures GCS Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for GCS objects
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		// Ensure prefix ends with a slash if it's not empty
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithPollInterval sets how often Watch lists the bucket.
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

// New creates a store on the named bucket.
func New(client *storage.Client, bucket string, options ...AdapterOption) *Adapter {
	return NewWithBucket(&bucketHandle{h: client.Bucket(bucket)}, options...)
}

// NewWithBucket creates a store on any Bucket implementation.
func NewWithBucket(bucket Bucket, options ...AdapterOption) *Adapter {
	adapter := &Adapter{bucket: bucket}

	// Apply options
	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// key maps a store path to an object name.
func (a *Adapter) key(op, p string) (string, error) {
	clean := path.Clean("/" + p)[1:]
	if clean == "" || clean != strings.TrimPrefix(p, "/") {
		return "", &convkit.PathError{Op: op, Path: p, Err: convkit.ErrNotAllowed}
	}
	return a.prefix + clean, nil
}

// Open implements convkit.Store
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	key, err := a.key("open", p)
	if err != nil {
		return nil, err
	}

	r, err := a.bucket.NewReader(ctx, key)
	if err != nil {
		return nil, mapGCSError("open", p, err)
	}
	return r, nil
}

// Create implements convkit.Store. GCS creates the object when the writer is
// closed, so the sink streams to it and closes it on Commit.
func (a *Adapter) Create(ctx context.Context, p string) (convkit.Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := a.key("create", p)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	return &writerSink{
		w:      a.bucket.NewWriter(ctx, key),
		cancel: cancel,
		path:   p,
	}, nil
}

// List implements convkit.Store
func (a *Adapter) List(ctx context.Context, pattern string) ([]convkit.FileInfo, error) {
	sel, err := convkit.Glob(pattern)
	if err != nil {
		return nil, err
	}

	// Only list below the literal part of the pattern
	listPrefix := a.prefix
	if idx := strings.IndexAny(pattern, "*?[{"); idx != 0 {
		static := pattern
		if idx > 0 {
			static = pattern[:idx]
		}
		if lastSlash := strings.LastIndex(static, "/"); lastSlash > 0 {
			listPrefix += static[:lastSlash+1]
		}
	}

	var files []convkit.FileInfo
	err = a.bucket.Objects(ctx, listPrefix, func(name string, size int64, updated time.Time) {
		// Skip directory placeholders
		if strings.HasSuffix(name, "/") {
			return
		}
		file := convkit.FileInfo{
			Path:    strings.TrimPrefix(name, a.prefix),
			Size:    size,
			ModTime: updated,
		}
		if sel.Match(&file) {
			files = append(files, file)
		}
	})
	if err != nil {
		return nil, mapGCSError("list", pattern, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// mapGCSError maps GCS errors to convkit errors
func mapGCSError(op, p string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return &convkit.PathError{Op: op, Path: p, Err: convkit.ErrNotExist}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &convkit.PathError{Op: op, Path: p, Err: err}
}

// writerSink commits by closing the object writer and aborts by cancelling
// its context.
type writerSink struct {
	mu     sync.Mutex
	w      io.WriteCloser
	cancel context.CancelFunc
	path   string
	done   bool
}

func (s *writerSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, convkit.ErrSinkClosed
	}
	n, err := s.w.Write(p)
	if err != nil {
		return n, mapGCSError("write", s.path, err)
	}
	return n, nil
}

func (s *writerSink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true
	defer s.cancel()

	if err := s.w.Close(); err != nil {
		return mapGCSError("commit", s.path, err)
	}
	return nil
}

func (s *writerSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true

	// Close reports the cancellation; the object is not created.
	s.cancel()
	s.w.Close()
	return nil
}

// bucketHandle adapts *storage.BucketHandle to Bucket.
type bucketHandle struct {
	h *storage.BucketHandle
}

func (b *bucketHandle) NewReader(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := b.h.Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (b *bucketHandle) NewWriter(ctx context.Context, name string) io.WriteCloser {
	return b.h.Object(name).NewWriter(ctx)
}

func (b *bucketHandle) Objects(ctx context.Context, prefix string, fn func(string, int64, time.Time)) error {
	it := b.h.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(attrs.Name, attrs.Size, attrs.Updated)
	}
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Watch implements convkit.CanWatch by polling.
func (a *Adapter) Watch(ctx context.Context, pattern string) (convkit.ChangeToken, error) {
	token, err := convkit.PollingWatch(ctx, a, pattern, a.pollInterval)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Ensure Adapter implements interfaces
var (
	_ convkit.Store    = (*Adapter)(nil)
	_ convkit.CanWatch = (*Adapter)(nil)
	_ convkit.Sink     = (*writerSink)(nil)
	_ Bucket           = (*bucketHandle)(nil)
)
