// Package csv adapts RFC 4180 CSV to the convkit document model.
//
// The reader produces a streaming Table: the header row names the columns and
// data rows are parsed only as the table is consumed. Cells are typed with the
// shared inference policy and empty cells are null. The writer accepts a Table
// or a sequence of flat records (see format.Tabular) and streams rows out.
package csv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

const name = "csv"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Reader reads CSV.
type Reader struct{}

// NewReader returns a CSV reader.
func NewReader() *Reader { return &Reader{} }

var _ format.Reader = (*Reader)(nil)

func (Reader) Read(ctx context.Context, r io.Reader, opts format.ReadOptions) (*ir.Document, error) {
	br := bufio.NewReader(format.ContextReader(ctx, r))
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = opts.Comma()
	cr.Comment = opts.Comment
	cr.LazyQuotes = opts.LazyQuotes
	cr.ReuseRecord = true

	closeSrc := func() error {
		if c, ok := r.(io.Closer); ok {
			return c.Close()
		}
		return nil
	}

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		root, terr := ir.NewTable(nil, nil)
		if terr != nil {
			return nil, terr
		}
		return ir.NewDocument(root, name), nil
	}
	if err != nil {
		return nil, convertErr(cr, err)
	}

	var columns []string
	var pending ir.Row
	if opts.NoHeader {
		columns = make([]string, len(first))
		for i := range first {
			columns[i] = fmt.Sprintf("column_%d", i+1)
		}
		pending = cells(first, opts.InferTypes())
	} else {
		columns, err = header(first)
		if err != nil {
			return nil, err
		}
	}

	next := func() (ir.Row, error) {
		if pending != nil {
			row := pending
			pending = nil
			return row, nil
		}
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, convertErr(cr, err)
		}
		return cells(rec, opts.InferTypes()), nil
	}

	root, err := ir.NewStreamingTable(columns, ir.FuncIterator(next, closeSrc))
	if err != nil {
		return nil, err
	}
	return ir.NewDocument(root, name), nil
}

func header(rec []string) ([]string, error) {
	columns := make([]string, len(rec))
	seen := make(map[string]bool, len(rec))
	for i, h := range rec {
		if h == "" {
			return nil, format.ParseErrorAtLine(name, 1, i+1, fmt.Sprintf("header column %d is empty", i+1), nil)
		}
		if seen[h] {
			return nil, format.ParseErrorAtLine(name, 1, i+1, fmt.Sprintf("duplicate header %q", h), nil)
		}
		seen[h] = true
		columns[i] = h
	}
	return columns, nil
}

func cells(rec []string, infer bool) ir.Row {
	row := make(ir.Row, len(rec))
	for i, s := range rec {
		switch {
		case s == "":
			row[i] = ir.Null()
		case infer:
			row[i] = ir.Infer(s)
		default:
			row[i] = ir.String(s)
		}
	}
	return row
}

func convertErr(cr *csv.Reader, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		perr := format.ParseErrorAtLine(name, pe.Line, pe.Column, pe.Err.Error(), err)
		perr.Offset = cr.InputOffset()
		return perr
	}
	return format.SourceError(name, err)
}
