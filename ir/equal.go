package ir

// Equal reports whether a and b are structurally identical: same kind, same hint
// and literal for scalars, same order for sequences, mapping entries and rows.
// Comparing a streaming table consumes its rows.
func Equal(a, b Node) bool {
	ok, _ := equal(a, b)
	return ok
}

func equal(a, b Node) (bool, error) {
	if a.kind != b.kind {
		return false, nil
	}
	switch a.kind {
	case ScalarKind:
		return a.hint == b.hint && a.value == b.value, nil
	case SequenceKind:
		if len(a.items) != len(b.items) {
			return false, nil
		}
		for i := range a.items {
			if ok, err := equal(a.items[i], b.items[i]); !ok || err != nil {
				return false, err
			}
		}
		return true, nil
	case MappingKind:
		if len(a.entries) != len(b.entries) {
			return false, nil
		}
		for i := range a.entries {
			if a.entries[i].Key != b.entries[i].Key {
				return false, nil
			}
			if ok, err := equal(a.entries[i].Value, b.entries[i].Value); !ok || err != nil {
				return false, err
			}
		}
		return true, nil
	case TableKind:
		return equalTables(a.table, b.table)
	}
	return false, nil
}

func equalTables(a, b *Table) (bool, error) {
	if len(a.columns) != len(b.columns) {
		return false, nil
	}
	for i := range a.columns {
		if a.columns[i] != b.columns[i] {
			return false, nil
		}
	}
	ai, bi := a.Rows(), b.Rows()
	defer ai.Close()
	defer bi.Close()
	for {
		an, bn := ai.Next(), bi.Next()
		if an != bn {
			return false, nil
		}
		if !an {
			break
		}
		ar, br := ai.Row(), bi.Row()
		for j := range ar {
			if ar[j].hint != br[j].hint || ar[j].value != br[j].value {
				return false, nil
			}
		}
	}
	if err := ai.Err(); err != nil {
		return false, err
	}
	if err := bi.Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Materialize returns n with every streaming table replaced by an in-memory
// table. Nodes without streaming tables are returned unchanged.
func Materialize(n Node) (Node, error) {
	switch n.kind {
	case TableKind:
		if !n.table.Streaming() {
			return n, nil
		}
		it := n.table.Rows()
		defer it.Close()
		var rows []Row
		for it.Next() {
			rows = append(rows, it.Row())
		}
		if err := it.Err(); err != nil {
			return Node{}, err
		}
		return Node{kind: TableKind, table: &Table{columns: n.table.columns, rows: rows}}, nil
	case SequenceKind:
		items := make([]Node, len(n.items))
		for i, item := range n.items {
			m, err := Materialize(item)
			if err != nil {
				return Node{}, err
			}
			items[i] = m
		}
		return Node{kind: SequenceKind, items: items}, nil
	case MappingKind:
		entries := make([]Entry, len(n.entries))
		for i, e := range n.entries {
			m, err := Materialize(e.Value)
			if err != nil {
				return Node{}, err
			}
			entries[i] = Entry{Key: e.Key, Value: m}
		}
		return Node{kind: MappingKind, entries: entries, index: n.index}, nil
	default:
		return n, nil
	}
}
