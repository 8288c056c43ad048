package ir

import "github.com/gobeaver/convkit/errs"

// TableToSequence converts a Table into a Sequence of Mappings, one per row, keyed
// by column name. A streaming table is consumed.
func TableToSequence(n Node) (Node, error) {
	if n.kind != TableKind {
		return Node{}, errs.Structuref("", "expected a table, got %s", n.kind)
	}
	cols := n.table.columns
	it := n.table.Rows()
	defer it.Close()
	var items []Node
	for it.Next() {
		items = append(items, RowMapping(cols, it.Row()))
	}
	if err := it.Err(); err != nil {
		return Node{}, err
	}
	return Node{kind: SequenceKind, items: items}, nil
}

// RowMapping pairs columns with the cells of row. columns must be unique and as
// long as row.
func RowMapping(columns []string, row Row) Node {
	entries := make([]Entry, len(columns))
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		entries[i] = Entry{Key: c, Value: row[i]}
		index[c] = i
	}
	return Node{kind: MappingKind, entries: entries, index: index}
}

// SequenceToTable converts a Sequence of Mappings with scalar values into a Table.
// Columns appear in first-seen order; keys missing from a record become null cells.
func SequenceToTable(n Node) (Node, error) {
	if n.kind != SequenceKind {
		return Node{}, errs.Structuref("", "expected a sequence, got %s", n.kind)
	}
	var columns []string
	seen := map[string]bool{}
	for i, item := range n.items {
		if item.kind != MappingKind {
			return Node{}, errs.Structuref(JoinIndex("", i), "expected a mapping, got %s", item.kind)
		}
		for _, e := range item.entries {
			if e.Value.kind != ScalarKind {
				return Node{}, errs.Structuref(JoinKey(JoinIndex("", i), e.Key), "expected a scalar, got %s", e.Value.kind)
			}
			if !seen[e.Key] {
				seen[e.Key] = true
				columns = append(columns, e.Key)
			}
		}
	}
	rows := make([]Row, len(n.items))
	for i, item := range n.items {
		row := make(Row, len(columns))
		for j, c := range columns {
			v, _ := item.Get(c)
			row[j] = v
		}
		rows[i] = row
	}
	return NewTable(columns, rows)
}
