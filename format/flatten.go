package format

import (
	"strconv"

	"github.com/gobeaver/convkit/ir"
)

// Flattener turns one record into flat scalar entries for tabular writers.
type Flattener interface {
	Flatten(record ir.Node) ([]ir.Entry, error)
}

// FlattenerFunc adapts a function to Flattener.
type FlattenerFunc func(record ir.Node) ([]ir.Entry, error)

func (f FlattenerFunc) Flatten(record ir.Node) ([]ir.Entry, error) { return f(record) }

// DottedFlattener joins nested mapping keys with Separator and suffixes sequence
// elements with their index:
//
//	{"a": {"b": 1}, "tags": ["x", "y"]} -> a.b=1, tags.0=x, tags.1=y
//
// An empty nested mapping or sequence becomes a single null cell under its own
// key. A scalar record becomes a single cell named "value". Tables nested inside
// a record are materialized row by row as sequences of mappings.
type DottedFlattener struct {
	// Separator defaults to ".".
	Separator string
}

func (f DottedFlattener) sep() string {
	if f.Separator == "" {
		return "."
	}
	return f.Separator
}

func (f DottedFlattener) Flatten(record ir.Node) ([]ir.Entry, error) {
	var out []ir.Entry
	if record.IsScalar() {
		return []ir.Entry{ir.E("value", record)}, nil
	}
	if err := f.flatten("", record, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (f DottedFlattener) join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + f.sep() + key
}

func (f DottedFlattener) flatten(prefix string, n ir.Node, out *[]ir.Entry) error {
	switch n.Kind() {
	case ir.ScalarKind:
		*out = append(*out, ir.E(prefix, n))
	case ir.MappingKind:
		if n.Len() == 0 && prefix != "" {
			*out = append(*out, ir.E(prefix, ir.Null()))
			return nil
		}
		for _, e := range n.Entries() {
			if err := f.flatten(f.join(prefix, e.Key), e.Value, out); err != nil {
				return err
			}
		}
	case ir.SequenceKind:
		if n.Len() == 0 && prefix != "" {
			*out = append(*out, ir.E(prefix, ir.Null()))
			return nil
		}
		for i, item := range n.Items() {
			if err := f.flatten(f.join(prefix, strconv.Itoa(i)), item, out); err != nil {
				return err
			}
		}
	case ir.TableKind:
		seq, err := ir.TableToSequence(n)
		if err != nil {
			return err
		}
		return f.flatten(prefix, seq, out)
	}
	return nil
}
