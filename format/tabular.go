package format

import (
	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/ir"
)

// Tabular shapes root for a tabular writer named formatName. It accepts a Table,
// or a Sequence of Mappings whose values are all scalars. With opts.Flatten set it
// also accepts nested records and a single Mapping root, flattening each record
// with the configured Flattener. A Scalar root always fails.
//
// The returned iterator must be closed by the caller.
func Tabular(formatName string, root ir.Node, opts WriteOptions) ([]string, ir.RowIterator, error) {
	var records []ir.Node
	switch root.Kind() {
	case ir.TableKind:
		t := root.Table()
		return t.Columns(), t.Rows(), nil
	case ir.ScalarKind:
		return nil, nil, &errs.ShapeMismatchError{Format: formatName, Shape: "scalar", Reason: "a scalar document has no rows"}
	case ir.MappingKind:
		if !opts.Flatten {
			return nil, nil, &errs.ShapeMismatchError{Format: formatName, Shape: "mapping", Reason: "enable flattening to write a mapping as one row"}
		}
		records = []ir.Node{root}
	case ir.SequenceKind:
		records = root.Items()
	}

	flattener := opts.GetFlattener()
	var columns []string
	seen := map[string]int{}
	flat := make([][]ir.Entry, len(records))
	for i, rec := range records {
		entries, err := recordEntries(formatName, rec, i, opts.Flatten, flattener)
		if err != nil {
			return nil, nil, err
		}
		keys := make(map[string]bool, len(entries))
		for _, e := range entries {
			if keys[e.Key] {
				return nil, nil, &errs.ShapeMismatchError{
					Format: formatName,
					Shape:  rec.Kind().String(),
					Path:   ir.JoinIndex("", i),
					Reason: "flattened column " + e.Key + " occurs twice",
				}
			}
			keys[e.Key] = true
			if _, ok := seen[e.Key]; !ok {
				seen[e.Key] = len(columns)
				columns = append(columns, e.Key)
			}
		}
		flat[i] = entries
	}

	rows := make([]ir.Row, len(flat))
	for i, entries := range flat {
		row := make(ir.Row, len(columns))
		for _, e := range entries {
			row[seen[e.Key]] = e.Value
		}
		rows[i] = row
	}
	table, err := ir.NewTable(columns, rows)
	if err != nil {
		return nil, nil, &errs.ShapeMismatchError{Format: formatName, Shape: root.Kind().String(), Reason: err.Error()}
	}
	return columns, table.Table().Rows(), nil
}

func recordEntries(formatName string, rec ir.Node, i int, flatten bool, flattener Flattener) ([]ir.Entry, error) {
	path := ir.JoinIndex("", i)
	if rec.Kind() == ir.MappingKind {
		entries := rec.Entries()
		nested := ""
		for _, e := range entries {
			if !e.Value.IsScalar() {
				nested = ir.JoinKey(path, e.Key)
				break
			}
		}
		if nested == "" {
			return entries, nil
		}
		if !flatten {
			return nil, &errs.ShapeMismatchError{Format: formatName, Shape: "nested mapping", Path: nested, Reason: "enable flattening to write nested values"}
		}
	} else if !flatten {
		return nil, &errs.ShapeMismatchError{Format: formatName, Shape: "sequence of " + rec.Kind().String(), Path: path, Reason: "records must be mappings"}
	}
	entries, err := flattener.Flatten(rec)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if !e.Value.IsScalar() {
			return nil, &errs.ShapeMismatchError{Format: formatName, Shape: "nested value", Path: ir.JoinKey(path, e.Key), Reason: "flattener returned a non-scalar cell"}
		}
	}
	return entries, nil
}
