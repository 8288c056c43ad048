package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gobeaver/convkit"
)

// tempPrefix marks the files of sinks that have not been committed yet. List
// and Watch ignore them.
const tempPrefix = ".convkit-"

// Adapter provides a local filesystem implementation of convkit.Store
type Adapter struct {
	root string
}

// New creates a new local store rooted at root, creating the directory if
// needed.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	// Ensure the root directory exists
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	return &Adapter{
		root: absRoot,
	}, nil
}

// Root returns the absolute root directory.
func (a *Adapter) Root() string { return a.root }

// resolve maps a store path to a file under the root.
func (a *Adapter) resolve(op, path string) (string, error) {
	fullPath := filepath.Join(a.root, filepath.FromSlash(path))
	if !isPathUnderRoot(a.root, fullPath) || fullPath == a.root {
		return "", &convkit.PathError{
			Op:   op,
			Path: path,
			Err:  convkit.ErrNotAllowed,
		}
	}
	return fullPath, nil
}

// Open implements convkit.Store
func (a *Adapter) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := a.resolve("open", path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &convkit.PathError{
				Op:   "open",
				Path: path,
				Err:  convkit.ErrNotExist,
			}
		}
		return nil, &convkit.PathError{
			Op:   "open",
			Path: path,
			Err:  err,
		}
	}

	return f, nil
}

// Create implements convkit.Store. The sink writes a hidden temporary file
// next to path and renames it over path on Commit.
func (a *Adapter) Create(ctx context.Context, path string) (convkit.Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := a.resolve("create", path)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &convkit.PathError{Op: "create", Path: path, Err: err}
	}

	f, err := os.CreateTemp(dir, tempPrefix+filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return nil, &convkit.PathError{Op: "create", Path: path, Err: err}
	}

	return &fileSink{f: f, target: fullPath, path: path}, nil
}

// List implements convkit.Store
func (a *Adapter) List(ctx context.Context, pattern string) ([]convkit.FileInfo, error) {
	sel, err := convkit.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var files []convkit.FileInfo
	err = filepath.WalkDir(a.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			// Removed since the directory was read.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		file := convkit.FileInfo{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if sel.Match(&file) {
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &convkit.PathError{Op: "list", Path: pattern, Err: err}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// fileSink publishes its temporary file by renaming it.
type fileSink struct {
	mu     sync.Mutex
	f      *os.File
	target string
	path   string
	done   bool
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, convkit.ErrSinkClosed
	}
	n, err := s.f.Write(p)
	if err != nil {
		return n, &convkit.PathError{Op: "write", Path: s.path, Err: err}
	}
	return n, nil
}

func (s *fileSink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true

	tmp := s.f.Name()
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		os.Remove(tmp)
		return &convkit.PathError{Op: "commit", Path: s.path, Err: err}
	}
	if err := s.f.Close(); err != nil {
		os.Remove(tmp)
		return &convkit.PathError{Op: "commit", Path: s.path, Err: err}
	}
	if err := os.Rename(tmp, s.target); err != nil {
		os.Remove(tmp)
		return &convkit.PathError{Op: "commit", Path: s.path, Err: err}
	}
	return nil
}

func (s *fileSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true

	tmp := s.f.Name()
	if err := errors.Join(s.f.Close(), os.Remove(tmp)); err != nil {
		return &convkit.PathError{Op: "abort", Path: s.path, Err: err}
	}
	return nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Watch implements convkit.CanWatch using fsnotify for native file system
// events. The token fires on the first create, write, remove or rename of a
// file matching pattern and the watch then ends; watch again for the next
// change.
func (a *Adapter) Watch(ctx context.Context, pattern string) (convkit.ChangeToken, error) {
	sel, err := convkit.Glob(pattern)
	if err != nil {
		return nil, err
	}

	// Watch the deepest directory before the first glob character.
	watchPath := a.root
	if idx := strings.IndexAny(pattern, "*?[{"); idx != 0 {
		static := pattern
		if idx > 0 {
			static = pattern[:idx]
		}
		if lastSlash := strings.LastIndex(static, "/"); lastSlash > 0 {
			watchPath, err = a.resolve("watch", static[:lastSlash])
			if err != nil {
				return nil, err
			}
		}
	}
	recursive := strings.Contains(pattern, "**")

	watcher, err := newFSWatcher()
	if err != nil {
		return nil, &convkit.PathError{Op: "watch", Path: pattern, Err: err}
	}
	if err := watcher.Add(watchPath); err != nil {
		watcher.Close()
		return nil, &convkit.PathError{Op: "watch", Path: pattern, Err: err}
	}

	// fsnotify is not recursive; add all subdirectories
	if recursive {
		filepath.WalkDir(watchPath, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() && p != watchPath {
				watcher.Add(p)
			}
			return nil
		})
	}

	token := convkit.NewCallbackChangeToken()

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events():
				if !ok {
					return
				}
				if strings.HasPrefix(filepath.Base(event.Name), tempPrefix) {
					continue
				}
				if recursive && event.Created() {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						watcher.Add(event.Name)
						continue
					}
				}

				rel, err := filepath.Rel(a.root, event.Name)
				if err != nil {
					continue
				}
				if sel.Match(&convkit.FileInfo{Path: filepath.ToSlash(rel)}) {
					token.SignalChange()
					return // Token is spent after first change
				}
			case _, ok := <-watcher.Errors():
				if !ok {
					return
				}
				// Overflows and transient errors do not end the watch
			}
		}
	}()

	return token, nil
}

var (
	_ convkit.Store    = (*Adapter)(nil)
	_ convkit.CanWatch = (*Adapter)(nil)
	_ convkit.Sink     = (*fileSink)(nil)
)
