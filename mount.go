package convkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrMountNotFound is returned when no mount point matches the path
	ErrMountNotFound = errors.New("no mount point found for path")
	// ErrMountExists is returned when trying to mount at an existing path
	ErrMountExists = errors.New("mount point already exists")
	// ErrEmptyMountPath is returned when the mount path is empty
	ErrEmptyMountPath = errors.New("mount path cannot be empty")
	// ErrNilStore is returned when trying to mount a nil store
	ErrNilStore = errors.New("store cannot be nil")
)

// MountManager combines stores under virtual directories. It is itself a
// Store, so ConvertFile can read from one backend and write to another:
//
//	mounts := convkit.NewMountManager()
//	mounts.Mount("in", convkit.ReadOnly(localStore))
//	mounts.Mount("out", memoryStore)
//	conv.ConvertFile(ctx, mounts, "in/orders.csv", "out/orders.json")
type MountManager struct {
	mu     sync.RWMutex
	mounts map[string]Store
	// sorted mount paths for longest-prefix matching
	sortedPaths []string
}

// NewMountManager creates a new mount manager instance.
func NewMountManager() *MountManager {
	return &MountManager{
		mounts: make(map[string]Store),
	}
}

// Mount attaches a store at the specified virtual directory. Nested mounts
// are allowed; the longest matching mount wins.
func (m *MountManager) Mount(mountPath string, store Store) error {
	if store == nil {
		return ErrNilStore
	}

	mountPath = normalizeMountPath(mountPath)
	if mountPath == "" {
		return ErrEmptyMountPath
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mountPath]; exists {
		return fmt.Errorf("%w: %s", ErrMountExists, mountPath)
	}

	m.mounts[mountPath] = store
	m.updateSortedPaths()

	return nil
}

// Unmount removes the store at the specified path.
func (m *MountManager) Unmount(mountPath string) error {
	mountPath = normalizeMountPath(mountPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mountPath]; !exists {
		return fmt.Errorf("%w: %s", ErrMountNotFound, mountPath)
	}

	delete(m.mounts, mountPath)
	m.updateSortedPaths()

	return nil
}

// MountPaths returns all mount paths, longest first.
func (m *MountManager) MountPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, len(m.sortedPaths))
	copy(result, m.sortedPaths)
	return result
}

// resolve finds the mount and the path within it.
func (m *MountManager) resolve(p string) (Store, string, error) {
	p = normalizeMountPath(p)
	if p == "" {
		return nil, "", ErrEmptyMountPath
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	mountPath, ok := m.match(p)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrMountNotFound, p)
	}
	return m.mounts[mountPath], strings.TrimPrefix(p[len(mountPath):], "/"), nil
}

// match returns the longest mount path containing p. The caller holds mu.
func (m *MountManager) match(p string) (string, bool) {
	for _, mountPath := range m.sortedPaths {
		if mountPath == "/" || p == mountPath || strings.HasPrefix(p, mountPath+"/") {
			return mountPath, true
		}
	}
	return "", false
}

func (m *MountManager) updateSortedPaths() {
	paths := make([]string, 0, len(m.mounts))
	for p := range m.mounts {
		paths = append(paths, p)
	}
	// Sort by length descending for longest-prefix matching
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) > len(paths[j])
		}
		return paths[i] < paths[j]
	})
	m.sortedPaths = paths
}

func normalizeMountPath(p string) string {
	if p == "" {
		return ""
	}
	// Ensure leading slash
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Open implements Store.
func (m *MountManager) Open(ctx context.Context, filePath string) (io.ReadCloser, error) {
	store, rel, err := m.resolve(filePath)
	if err != nil {
		return nil, &PathError{Op: "open", Path: filePath, Err: err}
	}
	return store.Open(ctx, rel)
}

// Create implements Store.
func (m *MountManager) Create(ctx context.Context, filePath string) (Sink, error) {
	store, rel, err := m.resolve(filePath)
	if err != nil {
		return nil, &PathError{Op: "create", Path: filePath, Err: err}
	}
	return store.Create(ctx, rel)
}

// List implements Store. Every mount is listed and its files are matched
// against pattern by their full virtual path. A file shadowed by a nested
// mount is reported once, from the nested mount.
func (m *MountManager) List(ctx context.Context, pattern string) ([]FileInfo, error) {
	sel, err := Glob(pattern)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	mounts := make(map[string]Store, len(m.mounts))
	for p, s := range m.mounts {
		mounts[p] = s
	}
	m.mu.RUnlock()

	var files []FileInfo
	for mountPath, store := range mounts {
		listed, err := store.List(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list mount %s: %w", mountPath, err)
		}
		prefix := strings.TrimPrefix(mountPath, "/")
		for _, f := range listed {
			if prefix != "" {
				f.Path = prefix + "/" + f.Path
			}
			m.mu.RLock()
			owner, _ := m.match("/" + f.Path)
			m.mu.RUnlock()
			if owner != mountPath {
				continue
			}
			if sel.Match(&f) {
				files = append(files, f)
			}
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// Watch implements CanWatch for patterns that fall inside one mount whose
// store can watch, e.g. "in/*.csv" with a watchable store mounted at "in".
func (m *MountManager) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	p := "/" + strings.TrimPrefix(pattern, "/")

	m.mu.RLock()
	mountPath, ok := m.match(p)
	store := m.mounts[mountPath]
	m.mu.RUnlock()

	// A pattern naming the mount directory itself watches nothing inside it.
	if !ok || p == mountPath {
		return nil, &PathError{Op: "watch", Path: pattern, Err: ErrMountNotFound}
	}
	watcher, ok := store.(CanWatch)
	if !ok {
		return nil, &PathError{Op: "watch", Path: pattern, Err: ErrNotAllowed}
	}
	return watcher.Watch(ctx, strings.TrimPrefix(p[len(mountPath):], "/"))
}

var (
	_ Store    = (*MountManager)(nil)
	_ CanWatch = (*MountManager)(nil)
)
