package csv

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

// Writer writes CSV.
type Writer struct{}

// NewWriter returns a CSV writer.
func NewWriter() *Writer { return &Writer{} }

var _ format.Writer = (*Writer)(nil)

func (Writer) Write(ctx context.Context, w io.Writer, doc *ir.Document, opts format.WriteOptions) error {
	columns, rows, err := format.Tabular(name, doc.Root, opts)
	if err != nil {
		return err
	}
	rows = format.ContextRows(ctx, rows)
	defer rows.Close()

	cw := csv.NewWriter(w)
	cw.Comma = opts.Comma()
	cw.UseCRLF = opts.UseCRLF

	if !opts.NoHeader && len(columns) > 0 {
		if err := cw.Write(columns); err != nil {
			return writeErr(err)
		}
	}

	record := make([]string, len(columns))
	n := 0
	for rows.Next() {
		for i, cell := range rows.Row() {
			record[i] = Cell(cell)
		}
		if len(record) == 1 && record[0] == "" {
			// A lone empty field would be a blank line, which readers skip.
			if err := writeEmptyField(cw, w, opts.UseCRLF); err != nil {
				return writeErr(err)
			}
		} else if err := cw.Write(record); err != nil {
			return writeErr(err)
		}
		n++
		if n%format.CheckEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return writeErr(err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return writeErr(err)
	}
	return nil
}

// Cell renders a scalar as CSV text: null is the empty field and floats use their
// canonical decimal form so that they re-infer as floats.
func Cell(n ir.Node) string {
	switch n.Hint() {
	case ir.HintNull:
		return ""
	case ir.HintFloat:
		if s, err := ir.CanonicalFloat(n.Value()); err == nil {
			return s
		}
	}
	return n.Value()
}

// writeEmptyField writes a record holding one quoted empty field.
func writeEmptyField(cw *csv.Writer, w io.Writer, crlf bool) error {
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	line := "\"\"\n"
	if crlf {
		line = "\"\"\r\n"
	}
	_, err := io.WriteString(w, line)
	return err
}

func writeErr(err error) error {
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	return &errs.IOError{Op: "write csv", Err: err}
}
