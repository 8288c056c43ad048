package excel

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

const defaultSheet = "Sheet1"

// Writer writes xlsx workbooks with a single sheet.
type Writer struct{}

// NewWriter returns an Excel writer.
func NewWriter() *Writer { return &Writer{} }

var _ format.Writer = (*Writer)(nil)

func (Writer) Write(ctx context.Context, w io.Writer, doc *ir.Document, opts format.WriteOptions) error {
	columns, rows, err := format.Tabular(name, doc.Root, opts)
	if err != nil {
		return err
	}
	rows = format.ContextRows(ctx, rows)
	defer rows.Close()

	f := excelize.NewFile()
	defer f.Close()

	sheet := opts.SheetName()
	if sheet != defaultSheet {
		idx, err := f.NewSheet(sheet)
		if err != nil {
			return &errs.SerializeError{Format: name, Msg: "invalid sheet name " + strconv.Quote(sheet), Err: err}
		}
		f.SetActiveSheet(idx)
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return &errs.SerializeError{Format: name, Err: err}
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return &errs.SerializeError{Format: name, Err: err}
	}

	line := 1
	if !opts.NoHeader && len(columns) > 0 {
		header := make([]any, len(columns))
		for i, c := range columns {
			header[i] = c
		}
		if err := setRow(sw, line, header); err != nil {
			return err
		}
		line++
	}

	values := make([]any, len(columns))
	for rows.Next() {
		for i, cell := range rows.Row() {
			values[i] = Cell(cell)
		}
		if err := setRow(sw, line, values); err != nil {
			return err
		}
		line++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if err := sw.Flush(); err != nil {
		return &errs.SerializeError{Format: name, Err: err}
	}
	if _, err := f.WriteTo(w); err != nil {
		return &errs.IOError{Op: "write excel", Err: err}
	}
	return nil
}

func setRow(sw *excelize.StreamWriter, line int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return &errs.SerializeError{Format: name, Msg: fmt.Sprintf("sheet row %d", line), Err: err}
	}
	if err := sw.SetRow(cell, values); err != nil {
		return &errs.SerializeError{Format: name, Msg: fmt.Sprintf("sheet row %d", line), Err: err}
	}
	return nil
}

// Cell converts a scalar to the value handed to the stream writer. A number
// is written as a spreadsheet number only when the reader would see exactly
// its literal again; anything else, such as integers past 15 digits, 2.0 or
// 0.30000000000000004, is written as text so inference restores it.
func Cell(n ir.Node) any {
	switch n.Hint() {
	case ir.HintNull:
		return nil
	case ir.HintInteger:
		if i, err := strconv.ParseInt(n.Value(), 10, 64); err == nil && displaysAs(float64(i), n.Value()) {
			return i
		}
	case ir.HintFloat:
		if ir.IsFinite(n.Value()) {
			f, err := strconv.ParseFloat(n.Value(), 64)
			if err == nil && displaysAs(f, n.Value()) {
				return f
			}
		}
	case ir.HintBoolean:
		return n.Value() == "true"
	}
	return n.Value()
}

// displaysAs reports whether a number cell holding f shows lit. Numbers
// with more than 15 significant digits are shown rounded.
func displaysAs(f float64, lit string) bool {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return len(strings.ReplaceAll(s, ".", "")) <= 15 && s == lit
}
