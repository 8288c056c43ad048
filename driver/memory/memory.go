package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/convkit"
)

// ErrCapacity is returned by Commit when the store would exceed its MaxSize.
var ErrCapacity = errors.New("memory store capacity exceeded")

// memoryFile represents a file stored in memory
type memoryFile struct {
	content []byte
	modTime time.Time
}

// watchEntry represents a single watch subscription
type watchEntry struct {
	sel   convkit.Selector
	token *convkit.CallbackChangeToken
}

// Adapter provides an in-memory implementation of convkit.Store
// Useful for testing and caching scenarios
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size

	// Watch support
	watchMu sync.Mutex
	watches []*watchEntry
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory store
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	return &Adapter{
		files:   make(map[string]*memoryFile),
		maxSize: maxSize,
	}
}

// Open implements convkit.Store
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p = normalizePath(p)

	a.mu.RLock()
	file, exists := a.files[p]
	a.mu.RUnlock()

	if !exists {
		return nil, &convkit.PathError{
			Op:   "open",
			Path: p,
			Err:  convkit.ErrNotExist,
		}
	}

	// Files are replaced, never mutated, so the slice can be shared
	return io.NopCloser(bytes.NewReader(file.content)), nil
}

// Create implements convkit.Store. Written bytes are buffered and become
// visible atomically on Commit.
func (a *Adapter) Create(ctx context.Context, p string) (convkit.Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p = normalizePath(p)
	if !isValidPath(p) {
		return nil, &convkit.PathError{
			Op:   "create",
			Path: p,
			Err:  convkit.ErrNotAllowed,
		}
	}

	return &memorySink{a: a, path: p}, nil
}

// List implements convkit.Store
func (a *Adapter) List(ctx context.Context, pattern string) ([]convkit.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sel, err := convkit.Glob(pattern)
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	files := make([]convkit.FileInfo, 0, len(a.files))
	for p, f := range a.files {
		info := convkit.FileInfo{
			Path:    p,
			Size:    int64(len(f.content)),
			ModTime: f.modTime,
		}
		if sel.Match(&info) {
			files = append(files, info)
		}
	}
	a.mu.RUnlock()

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// Put stores data at p, replacing any existing file.
func (a *Adapter) Put(p string, data []byte) error {
	p = normalizePath(p)
	if !isValidPath(p) {
		return &convkit.PathError{
			Op:   "put",
			Path: p,
			Err:  convkit.ErrNotAllowed,
		}
	}
	return a.publish("put", p, bytes.Clone(data))
}

// Get returns a copy of the file at p.
func (a *Adapter) Get(p string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[normalizePath(p)]
	if !exists {
		return nil, false
	}
	return bytes.Clone(file.content), true
}

// Delete removes the file at p.
func (a *Adapter) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p = normalizePath(p)

	a.mu.Lock()
	file, exists := a.files[p]
	if exists {
		a.size -= int64(len(file.content))
		delete(a.files, p)
	}
	a.mu.Unlock()

	if !exists {
		return &convkit.PathError{
			Op:   "delete",
			Path: p,
			Err:  convkit.ErrNotExist,
		}
	}

	a.notifyWatchers(p)
	return nil
}

// Clear removes all files
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.files = make(map[string]*memoryFile)
	a.size = 0
}

// Size returns the current total size of all files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// publish swaps data in at p.
func (a *Adapter) publish(op, p string, data []byte) error {
	a.mu.Lock()
	newSize := a.size + int64(len(data))
	if existing, exists := a.files[p]; exists {
		newSize -= int64(len(existing.content))
	}
	if a.maxSize > 0 && newSize > a.maxSize {
		a.mu.Unlock()
		return &convkit.PathError{
			Op:   op,
			Path: p,
			Err:  ErrCapacity,
		}
	}
	a.files[p] = &memoryFile{content: data, modTime: time.Now()}
	a.size = newSize
	a.mu.Unlock()

	a.notifyWatchers(p)
	return nil
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

func isValidPath(p string) bool {
	return p != "" && p != "."
}

// memorySink buffers a file until Commit.
type memorySink struct {
	mu   sync.Mutex
	a    *Adapter
	path string
	buf  bytes.Buffer
	done bool
}

func (s *memorySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, convkit.ErrSinkClosed
	}
	return s.buf.Write(p)
}

func (s *memorySink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true
	return s.a.publish("commit", s.path, s.buf.Bytes())
}

func (s *memorySink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true
	s.buf = bytes.Buffer{}
	return nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Watch implements convkit.CanWatch. The token fires when a file matching
// pattern is committed, put or deleted.
func (a *Adapter) Watch(ctx context.Context, pattern string) (convkit.ChangeToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sel, err := convkit.Glob(pattern)
	if err != nil {
		return nil, &convkit.PathError{
			Op:   "watch",
			Path: pattern,
			Err:  err,
		}
	}

	token := convkit.NewCallbackChangeToken()

	a.watchMu.Lock()
	a.watches = append(a.watches, &watchEntry{
		sel:   sel,
		token: token,
	})
	a.watchMu.Unlock()

	// Clean up when context is cancelled
	go func() {
		select {
		case <-ctx.Done():
		case <-token.Done():
		}
		a.removeWatch(token)
	}()

	return token, nil
}

// notifyWatchers signals all watchers whose pattern matches the given path
func (a *Adapter) notifyWatchers(p string) {
	info := &convkit.FileInfo{Path: p}
	var matched []*convkit.CallbackChangeToken

	a.watchMu.Lock()
	for _, entry := range a.watches {
		if entry.sel.Match(info) {
			matched = append(matched, entry.token)
		}
	}
	a.watchMu.Unlock()

	// Callbacks may write to the store
	for _, token := range matched {
		token.SignalChange()
	}
}

// removeWatch removes a watch entry by token
func (a *Adapter) removeWatch(token *convkit.CallbackChangeToken) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for i, entry := range a.watches {
		if entry.token == token {
			// Remove by swapping with last element
			a.watches[i] = a.watches[len(a.watches)-1]
			a.watches = a.watches[:len(a.watches)-1]
			return
		}
	}
}

// Ensure Adapter implements interfaces
var (
	_ convkit.Store    = (*Adapter)(nil)
	_ convkit.CanWatch = (*Adapter)(nil)
	_ convkit.Sink     = (*memorySink)(nil)
)
