package ir

import (
	"errors"
	"io"
	"sync"

	"github.com/gobeaver/convkit/errs"
)

// ErrConsumed is returned by the row iterator of a streaming table whose rows have
// already been handed out.
var ErrConsumed = errors.New("streaming table rows already consumed")

// Row is one table row; every cell is a Scalar.
type Row []Node

// RowIterator is a pull-based, single-pass sequence of rows.
//
//	it := table.Rows()
//	defer it.Close()
//	for it.Next() {
//	    row := it.Row()
//	}
//	if err := it.Err(); err != nil {
//	    ...
//	}
//
// Close may be called at any point and releases the underlying source; calling
// Next after Close returns false.
type RowIterator interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// Table holds column names and either materialized rows or a lazy row iterator.
type Table struct {
	columns []string

	rows []Row

	mu     sync.Mutex
	stream RowIterator
	taken  bool
}

// NewTable builds a Table node from materialized rows.
func NewTable(columns []string, rows []Row) (Node, error) {
	cols, err := checkColumns(columns)
	if err != nil {
		return Node{}, err
	}
	cp := make([]Row, len(rows))
	for i, r := range rows {
		if err := checkRow(cols, r, i); err != nil {
			return Node{}, err
		}
		row := make(Row, len(r))
		copy(row, r)
		cp[i] = row
	}
	return Node{kind: TableKind, table: &Table{columns: cols, rows: cp}}, nil
}

// NewStreamingTable builds a Table node whose rows are pulled from it. Each row is
// checked against the column list as it is pulled.
func NewStreamingTable(columns []string, it RowIterator) (Node, error) {
	cols, err := checkColumns(columns)
	if err != nil {
		it.Close()
		return Node{}, err
	}
	return Node{kind: TableKind, table: &Table{columns: cols, stream: it}}, nil
}

func checkColumns(columns []string) ([]string, error) {
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, errs.Structuref("", "column %d has an empty name", i)
		}
		if seen[c] {
			return nil, errs.Structuref("", "duplicate column %q", c)
		}
		seen[c] = true
	}
	cp := make([]string, len(columns))
	copy(cp, columns)
	return cp, nil
}

func checkRow(columns []string, r Row, index int) error {
	if len(r) != len(columns) {
		return errs.Structuref(JoinIndex("", index), "row has %d cells, table has %d columns", len(r), len(columns))
	}
	for j, cell := range r {
		if cell.kind != ScalarKind {
			return errs.Structuref(JoinKey(JoinIndex("", index), columns[j]), "table cell must be a scalar, got %s", cell.kind)
		}
	}
	return nil
}

// Columns returns a copy of the column names.
func (t *Table) Columns() []string {
	cp := make([]string, len(t.columns))
	copy(cp, t.columns)
	return cp
}

// Streaming reports whether rows are pulled lazily.
func (t *Table) Streaming() bool {
	return t.stream != nil
}

// Rows returns an iterator over the rows. For a streaming table only the first call
// yields rows; later calls return an iterator failing with ErrConsumed.
func (t *Table) Rows() RowIterator {
	if t.stream == nil {
		return &sliceIterator{rows: t.rows, pos: -1}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.taken {
		return &errIterator{err: ErrConsumed}
	}
	t.taken = true
	return &checkedIterator{it: t.stream, columns: t.columns, index: -1}
}

// Close releases the source of a streaming table whose rows were never taken.
func (t *Table) Close() error {
	if t.stream == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.taken {
		return nil
	}
	t.taken = true
	return t.stream.Close()
}

type sliceIterator struct {
	rows []Row
	pos  int
}

func (s *sliceIterator) Next() bool {
	if s.pos+1 >= len(s.rows) {
		s.pos = len(s.rows)
		return false
	}
	s.pos++
	return true
}

func (s *sliceIterator) Row() Row {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return nil
	}
	r := make(Row, len(s.rows[s.pos]))
	copy(r, s.rows[s.pos])
	return r
}

func (s *sliceIterator) Err() error   { return nil }
func (s *sliceIterator) Close() error { s.pos = len(s.rows); return nil }

type errIterator struct{ err error }

func (e *errIterator) Next() bool   { return false }
func (e *errIterator) Row() Row     { return nil }
func (e *errIterator) Err() error   { return e.err }
func (e *errIterator) Close() error { return nil }

// checkedIterator enforces row width on rows pulled from a stream.
type checkedIterator struct {
	it      RowIterator
	columns []string
	index   int
	row     Row
	err     error
	done    bool
}

func (c *checkedIterator) Next() bool {
	if c.done {
		return false
	}
	if !c.it.Next() {
		c.done = true
		return false
	}
	c.index++
	row := c.it.Row()
	if err := checkRow(c.columns, row, c.index); err != nil {
		c.err = err
		c.done = true
		c.row = nil
		return false
	}
	c.row = row
	return true
}

func (c *checkedIterator) Row() Row { return c.row }

func (c *checkedIterator) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.it.Err()
}

func (c *checkedIterator) Close() error {
	c.done = true
	return c.it.Close()
}

// FuncIterator adapts a next function to RowIterator. next returns io.EOF at the
// end of the rows; closeFn, if non-nil, runs once on Close.
func FuncIterator(next func() (Row, error), closeFn func() error) RowIterator {
	return &funcIterator{next: next, closeFn: closeFn}
}

type funcIterator struct {
	next    func() (Row, error)
	closeFn func() error
	row     Row
	err     error
	done    bool
	closed  bool
}

func (f *funcIterator) Next() bool {
	if f.done {
		return false
	}
	row, err := f.next()
	if err != nil {
		f.done = true
		f.row = nil
		if !errors.Is(err, io.EOF) {
			f.err = err
		}
		return false
	}
	f.row = row
	return true
}

func (f *funcIterator) Row() Row   { return f.row }
func (f *funcIterator) Err() error { return f.err }

func (f *funcIterator) Close() error {
	f.done = true
	if f.closed || f.closeFn == nil {
		f.closed = true
		return nil
	}
	f.closed = true
	return f.closeFn()
}

// MapRows wraps it so that fn is applied to every row before it is returned. A
// non-nil error from fn stops iteration and is reported by Err.
func MapRows(it RowIterator, fn func(index int, row Row) (Row, error)) RowIterator {
	index := -1
	return FuncIterator(func() (Row, error) {
		if !it.Next() {
			if err := it.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		index++
		return fn(index, it.Row())
	}, it.Close)
}
