// Package excel adapts Office Open XML spreadsheets (.xlsx) to the convkit document
// model using github.com/xuri/excelize/v2.
//
// The package is a zip archive, so the reader holds the package bytes once and
// then walks the selected sheet lazily with the excelize row iterator. The
// first row names the columns, short rows are padded with nulls and cells are
// typed with the shared inference policy from their displayed text.
//
// The writer uses the excelize stream writer with typed cells: booleans as
// booleans, integers and floats as numbers when the displayed number reads
// back as the same literal, everything else as text.
package excel

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

const name = "excel"

// Reader reads xlsx workbooks.
type Reader struct{}

// NewReader returns an Excel reader.
func NewReader() *Reader { return &Reader{} }

var _ format.Reader = (*Reader)(nil)

func (Reader) Read(ctx context.Context, r io.Reader, opts format.ReadOptions) (*ir.Document, error) {
	src := &format.TrackedReader{R: format.ContextReader(ctx, r)}
	f, err := excelize.OpenReader(src)
	if err != nil {
		if src.Err != nil {
			return nil, format.SourceError(name, src.Err)
		}
		return nil, format.ParseErrorAt(name, -1, "not an xlsx package", err)
	}

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, format.ParseErrorAt(name, -1, "workbook has no sheets", nil)
		}
		sheet = sheets[0]
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, format.ParseErrorAt(name, -1, fmt.Sprintf("sheet %q", sheet), err)
	}
	closeAll := func() error {
		return errors.Join(rows.Close(), f.Close())
	}

	line := 0
	readRow := func() ([]string, error) {
		if !rows.Next() {
			if err := rows.Error(); err != nil {
				return nil, format.ParseErrorAtLine(name, line+1, 0, "read row", err)
			}
			return nil, io.EOF
		}
		line++
		cols, err := rows.Columns()
		if err != nil {
			return nil, format.ParseErrorAtLine(name, line, 0, "read row", err)
		}
		return cols, nil
	}

	first, err := readRow()
	if errors.Is(err, io.EOF) {
		closeAll()
		root, terr := ir.NewTable(nil, nil)
		if terr != nil {
			return nil, terr
		}
		return ir.NewDocument(root, name), nil
	}
	if err != nil {
		closeAll()
		return nil, err
	}

	var columns []string
	var pending []string
	if opts.NoHeader {
		columns = make([]string, len(first))
		for i := range first {
			columns[i] = fmt.Sprintf("column_%d", i+1)
		}
		pending = first
	} else {
		columns, err = header(first)
		if err != nil {
			closeAll()
			return nil, err
		}
	}

	infer := opts.InferTypes()
	n := 0
	next := func() (ir.Row, error) {
		n++
		if n%format.CheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cells := pending
		rowLine := 1
		if cells != nil {
			pending = nil
		} else {
			var err error
			cells, err = readRow()
			if err != nil {
				return nil, err
			}
			rowLine = line
		}
		if len(cells) > len(columns) {
			return nil, format.ParseErrorAtLine(name, rowLine, len(columns)+1,
				fmt.Sprintf("row has %d cells, sheet has %d columns", len(cells), len(columns)), nil)
		}
		row := make(ir.Row, len(columns))
		for i, s := range cells {
			switch {
			case s == "":
				row[i] = ir.Null()
			case infer:
				row[i] = ir.Infer(s)
			default:
				row[i] = ir.String(s)
			}
		}
		return row, nil
	}

	root, err := ir.NewStreamingTable(columns, ir.FuncIterator(next, closeAll))
	if err != nil {
		return nil, err
	}
	return ir.NewDocument(root, name), nil
}

func header(cells []string) ([]string, error) {
	// Trailing empty header cells are dropped by the row iterator already.
	columns := make([]string, len(cells))
	seen := make(map[string]bool, len(cells))
	for i, h := range cells {
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
