package ir

import (
	"github.com/gobeaver/convkit/errs"
)

// Node is the single document-model type. The zero Node is the null scalar.
type Node struct {
	kind    Kind
	value   string
	hint    Hint
	items   []Node
	entries []Entry
	index   map[string]int
	table   *Table
}

// Entry is one key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value Node
}

// E is shorthand for building an Entry.
func E(key string, value Node) Entry { return Entry{Key: key, Value: value} }

// NewSequence builds a Sequence holding a copy of items.
func NewSequence(items ...Node) Node {
	cp := make([]Node, len(items))
	copy(cp, items)
	return Node{kind: SequenceKind, items: cp}
}

// NewMapping builds a Mapping. Keys must be unique.
func NewMapping(entries ...Entry) (Node, error) {
	cp := make([]Entry, len(entries))
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		if _, dup := index[e.Key]; dup {
			return Node{}, errs.Structuref(JoinKey("", e.Key), "duplicate mapping key %q", e.Key)
		}
		index[e.Key] = i
		cp[i] = e
	}
	return Node{kind: MappingKind, entries: cp, index: index}, nil
}

// MustMapping is NewMapping that panics on a duplicate key.
func MustMapping(entries ...Entry) Node {
	n, err := NewMapping(entries...)
	if err != nil {
		panic(err)
	}
	return n
}

// Kind returns the node's shape.
func (n Node) Kind() Kind { return n.kind }

// IsScalar reports whether n is a Scalar.
func (n Node) IsScalar() bool { return n.kind == ScalarKind }

// IsNull reports whether n is the null scalar.
func (n Node) IsNull() bool { return n.kind == ScalarKind && n.hint == HintNull }

// Value returns a scalar's literal text; empty for other kinds.
func (n Node) Value() string { return n.value }

// Hint returns a scalar's hint; HintNull for other kinds.
func (n Node) Hint() Hint { return n.hint }

// Len returns the number of items, entries or materialized rows.
func (n Node) Len() int {
	switch n.kind {
	case SequenceKind:
		return len(n.items)
	case MappingKind:
		return len(n.entries)
	case TableKind:
		return len(n.table.rows)
	default:
		return 0
	}
}

// Items returns a copy of a sequence's items.
func (n Node) Items() []Node {
	if n.kind != SequenceKind {
		return nil
	}
	cp := make([]Node, len(n.items))
	copy(cp, n.items)
	return cp
}

// Item returns the i-th item of a sequence.
func (n Node) Item(i int) Node {
	return n.items[i]
}

// Entries returns a copy of a mapping's entries in order.
func (n Node) Entries() []Entry {
	if n.kind != MappingKind {
		return nil
	}
	cp := make([]Entry, len(n.entries))
	copy(cp, n.entries)
	return cp
}

// Keys returns a mapping's keys in order.
func (n Node) Keys() []string {
	if n.kind != MappingKind {
		return nil
	}
	keys := make([]string, len(n.entries))
	for i, e := range n.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get looks up a mapping entry by key.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != MappingKind {
		return Node{}, false
	}
	i, ok := n.index[key]
	if !ok {
		return Node{}, false
	}
	return n.entries[i].Value, true
}

// Table returns the table of a Table node, nil for other kinds.
func (n Node) Table() *Table {
	if n.kind != TableKind {
		return nil
	}
	return n.table
}

// Document is a root node plus the name of the format it was read from. A
// Document lives for a single conversion.
type Document struct {
	Root Node
	// Source names the originating format; diagnostics only.
	Source string
}

// NewDocument wraps root in a Document.
func NewDocument(root Node, source string) *Document {
	return &Document{Root: root, Source: source}
}
