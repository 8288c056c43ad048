package convkit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CallbackChangeToken is a ChangeToken signalled by a store with native
// change events.
type CallbackChangeToken struct {
	mu        sync.RWMutex
	changed   atomic.Bool
	callbacks []func()
}

// NewCallbackChangeToken creates a new ChangeToken that supports active callbacks.
func NewCallbackChangeToken() *CallbackChangeToken {
	return &CallbackChangeToken{}
}

func (t *CallbackChangeToken) HasChanged() bool {
	return t.changed.Load()
}

func (t *CallbackChangeToken) ActiveChangeCallbacks() bool {
	return true
}

// RegisterChangeCallback registers callback. A callback registered after the
// change runs immediately.
func (t *CallbackChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	t.mu.Lock()
	if t.changed.Load() {
		t.mu.Unlock()
		callback()
		return func() {}
	}
	t.callbacks = append(t.callbacks, callback)
	index := len(t.callbacks) - 1
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if index < len(t.callbacks) {
			// Set to nil instead of removing to avoid index shifting
			t.callbacks[index] = nil
		}
	}
}

// SignalChange marks the token as changed and invokes all callbacks once.
func (t *CallbackChangeToken) SignalChange() {
	t.mu.Lock()
	if t.changed.Swap(true) {
		t.mu.Unlock()
		return
	}
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb()
		}
	}
}

// Done returns a channel closed when the token changes.
func (t *CallbackChangeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	t.RegisterChangeCallback(func() { close(ch) })
	return ch
}

// ============================================================================
// Polling ChangeToken
// ============================================================================

// DefaultPollInterval is used by PollingWatch when interval is zero.
const DefaultPollInterval = 30 * time.Second

// PollingWatch watches a store without native change events. It lists pattern
// now and again every interval, and the token fires on the first listing that
// adds, removes or resizes a file or changes its modification time.
//
// Polling stops when the token fires or ctx is cancelled; cancel ctx to
// release the goroutine of a token that never fires.
func PollingWatch(ctx context.Context, s Store, pattern string, interval time.Duration) (*CallbackChangeToken, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	initial, err := s.List(ctx, pattern)
	if err != nil {
		return nil, err
	}
	before := snapshot(initial)

	token := NewCallbackChangeToken()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				files, err := s.List(ctx, pattern)
				if err != nil {
					// Can't determine change, try again next tick
					continue
				}
				if !snapshotEqual(before, snapshot(files)) {
					token.SignalChange()
					return // Token is spent after first change
				}
			}
		}
	}()

	return token, nil
}

type fileState struct {
	size    int64
	modTime time.Time
}

func snapshot(files []FileInfo) map[string]fileState {
	state := make(map[string]fileState, len(files))
	for _, f := range files {
		state[f.Path] = fileState{size: f.Size, modTime: f.ModTime}
	}
	return state
}

func snapshotEqual(a, b map[string]fileState) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false // File was deleted
		}
		if v.size != bv.size || !v.modTime.Equal(bv.modTime) {
			return false // File was modified
		}
	}
	return true
}

var _ ChangeToken = (*CallbackChangeToken)(nil)
