package format

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Adapter is the capability pair registered for one format.
type Adapter struct {
	// Name is the canonical lowercase name, e.g. "csv".
	Name string

	NewReader func() Reader
	NewWriter func() Writer

	// Extensions lists file extensions without the dot, e.g. "yaml", "yml".
	Extensions []string

	// Aliases are extra names Lookup accepts.
	Aliases []string

	// Tabular marks formats whose reader produces a streaming Table and whose
	// writer needs table-shaped input.
	Tabular bool

	// Magic is the fixed prefix of binary formats. Text formats leave it
	// empty; the orchestrator neither sniffs compression containers nor applies
	// a charset to input that starts with it.
	Magic []byte
}

// Binary reports whether the format is a binary container.
func (a Adapter) Binary() bool { return len(a.Magic) > 0 }

var (
	adapters   = make(map[string]Adapter)
	names      = make(map[string]string)
	extensions = make(map[string]string)
	registryMu sync.RWMutex
)

// Register makes an adapter available by name, aliases and extensions. It is meant
// to be called from init and panics on a duplicate name.
func Register(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := strings.ToLower(a.Name)
	if name == "" || a.NewReader == nil || a.NewWriter == nil {
		panic("format: Register requires a name, a reader and a writer")
	}
	if _, dup := names[name]; dup {
		panic("format: Register called twice for " + name)
	}
	a.Name = name
	adapters[name] = a
	names[name] = name
	for _, alias := range a.Aliases {
		names[strings.ToLower(alias)] = name
	}
	for _, ext := range a.Extensions {
		extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = name
	}
}

// Lookup returns the adapter registered under name or one of its aliases. Names
// are case-insensitive.
func Lookup(name string) (Adapter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	canonical, ok := names[strings.ToLower(name)]
	if !ok {
		return Adapter{}, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return adapters[canonical], nil
}

// ByExtension returns the adapter for a file extension, with or without the
// leading dot.
func ByExtension(ext string) (Adapter, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	name, ok := extensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
	if !ok {
		return Adapter{}, false
	}
	return adapters[name], true
}

// Names lists the canonical names of every registered adapter, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]string, 0, len(adapters))
	for n := range adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
