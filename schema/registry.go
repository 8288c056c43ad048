package schema

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/gobeaver/convkit/format"
	jsonfmt "github.com/gobeaver/convkit/format/json"
	yamlfmt "github.com/gobeaver/convkit/format/yaml"
)

// Registry holds named schemas and memoises schemas compiled from bytes.
// Named schemas are registered during initialisation; lookups are safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	named map[string]*Schema
	memo  map[uint64][]memoEntry
}

type memoEntry struct {
	data   []byte
	schema *Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		named: make(map[string]*Schema),
		memo:  make(map[uint64][]memoEntry),
	}
}

// Register adds a named schema. Names are unique.
func (r *Registry) Register(name string, s *Schema) error {
	if name == "" || s == nil {
		return fmt.Errorf("schema: register needs a name and a schema")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.named[name]; dup {
		return fmt.Errorf("schema: %q already registered", name)
	}
	r.named[name] = s
	return nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.named[name]
	return s, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.named))
	for name := range r.named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompileBytes parses a JSON or YAML schema document and compiles it. Results
// are keyed by the xxhash digest of data, so repeated calls with the same
// bytes return the same *Schema.
func (r *Registry) CompileBytes(data []byte) (*Schema, error) {
	key := xxhash.Sum64(data)

	r.mu.RLock()
	for _, e := range r.memo[key] {
		if bytes.Equal(e.data, data) {
			r.mu.RUnlock()
			return e.schema, nil
		}
	}
	r.mu.RUnlock()

	s, err := parse(data)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.memo[key] {
		if bytes.Equal(e.data, data) {
			return e.schema, nil
		}
	}
	r.memo[key] = append(r.memo[key], memoEntry{data: bytes.Clone(data), schema: s})
	return s, nil
}

// parse reads data as JSON when it starts with an object, otherwise as YAML.
func parse(data []byte) (*Schema, error) {
	var reader format.Reader = yamlfmt.NewReader()
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		reader = jsonfmt.NewReader()
	}
	doc, err := reader.Read(context.Background(), bytes.NewReader(data), format.ReadOptions{})
	if err != nil {
		return nil, err
	}
	return Compile(doc.Root)
}

var defaultRegistry = NewRegistry()

// Register adds a named schema to the default registry.
func Register(name string, s *Schema) error { return defaultRegistry.Register(name, s) }

// MustRegister is Register that panics on error, for use from init functions.
func MustRegister(name string, s *Schema) {
	if err := Register(name, s); err != nil {
		panic(err)
	}
}

// Lookup returns a schema from the default registry.
func Lookup(name string) (*Schema, bool) { return defaultRegistry.Lookup(name) }

// CompileBytes compiles data through the default registry's memo.
func CompileBytes(data []byte) (*Schema, error) { return defaultRegistry.CompileBytes(data) }
