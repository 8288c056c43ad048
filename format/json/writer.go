package json

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

// Writer writes JSON.
type Writer struct{}

// NewWriter returns a JSON writer.
func NewWriter() *Writer { return &Writer{} }

var _ format.Writer = (*Writer)(nil)

func (Writer) Write(ctx context.Context, w io.Writer, doc *ir.Document, opts format.WriteOptions) error {
	e := &encoder{
		ctx: ctx,
		w:   bufio.NewWriter(w),
	}
	if opts.Pretty {
		e.indent = strings.Repeat(" ", opts.IndentWidth())
	}
	e.str = json.NewEncoder(&e.scratch)
	e.str.SetEscapeHTML(false)

	if err := e.node(doc.Root, "", 0); err != nil {
		return err
	}
	e.w.WriteByte('\n')
	if err := e.w.Flush(); err != nil {
		return &errs.IOError{Op: "write json", Err: err}
	}
	return nil
}

type encoder struct {
	ctx     context.Context
	w       *bufio.Writer
	indent  string
	scratch bytes.Buffer
	str     *json.Encoder
}

func (e *encoder) newline(level int) {
	if e.indent == "" {
		return
	}
	e.w.WriteByte('\n')
	for i := 0; i < level; i++ {
		e.w.WriteString(e.indent)
	}
}

func (e *encoder) colon() {
	if e.indent == "" {
		e.w.WriteByte(':')
	} else {
		e.w.WriteString(": ")
	}
}

func (e *encoder) node(n ir.Node, path string, level int) error {
	switch n.Kind() {
	case ir.ScalarKind:
		return e.scalar(n, path)
	case ir.SequenceKind:
		if n.Len() == 0 {
			e.w.WriteString("[]")
			return nil
		}
		e.w.WriteByte('[')
		for i, item := range n.Items() {
			if i > 0 {
				e.w.WriteByte(',')
			}
			e.newline(level + 1)
			if err := e.node(item, ir.JoinIndex(path, i), level+1); err != nil {
				return err
			}
		}
		e.newline(level)
		e.w.WriteByte(']')
	case ir.MappingKind:
		if n.Len() == 0 {
			e.w.WriteString("{}")
			return nil
		}
		e.w.WriteByte('{')
		for i, entry := range n.Entries() {
			if i > 0 {
				e.w.WriteByte(',')
			}
			e.newline(level + 1)
			e.string(entry.Key)
			e.colon()
			if err := e.node(entry.Value, ir.JoinKey(path, entry.Key), level+1); err != nil {
				return err
			}
		}
		e.newline(level)
		e.w.WriteByte('}')
	case ir.TableKind:
		return e.table(n.Table(), path, level)
	}
	return nil
}

// table streams rows as an array of objects.
func (e *encoder) table(t *ir.Table, path string, level int) error {
	columns := t.Columns()
	rows := format.ContextRows(e.ctx, t.Rows())
	defer rows.Close()

	e.w.WriteByte('[')
	i := 0
	for rows.Next() {
		if i > 0 {
			e.w.WriteByte(',')
		}
		e.newline(level + 1)
		rowPath := ir.JoinIndex(path, i)
		row := rows.Row()
		if len(columns) == 0 {
			e.w.WriteString("{}")
		} else {
			e.w.WriteByte('{')
			for j, c := range columns {
				if j > 0 {
					e.w.WriteByte(',')
				}
				e.newline(level + 2)
				e.string(c)
				e.colon()
				if err := e.scalar(row[j], ir.JoinKey(rowPath, c)); err != nil {
					return err
				}
			}
			e.newline(level + 1)
			e.w.WriteByte('}')
		}
		i++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if i > 0 {
		e.newline(level)
	}
	e.w.WriteByte(']')
	return nil
}

func (e *encoder) scalar(n ir.Node, path string) error {
	switch n.Hint() {
	case ir.HintNull:
		e.w.WriteString("null")
	case ir.HintBoolean:
		e.w.WriteString(n.Value())
	case ir.HintInteger:
		e.w.WriteString(Integer(n.Value()))
	case ir.HintFloat:
		s, err := Float(n.Value())
		if err != nil {
			return &errs.SerializeError{Format: name, Path: ir.DisplayPath(path), Msg: err.Error()}
		}
		e.w.WriteString(s)
	default:
		e.string(n.Value())
	}
	return nil
}

func (e *encoder) string(s string) {
	e.scratch.Reset()
	// Encoding a string cannot fail.
	_ = e.str.Encode(s)
	b := e.scratch.Bytes()
	e.w.Write(b[:len(b)-1])
}

// Integer renders an integer literal as a JSON number, dropping leading zeros.
func Integer(lit string) string {
	neg := strings.HasPrefix(lit, "-")
	digits := strings.TrimLeft(strings.TrimPrefix(lit, "-"), "0")
	if digits == "" {
		digits = "0"
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// Float renders a float literal as a JSON number. Non-finite values have no JSON
// representation.
func Float(lit string) (string, error) {
	if !ir.IsFinite(lit) {
		return "", &nonFiniteError{lit: lit}
	}
	s, err := ir.CanonicalFloat(lit)
	if err != nil {
		return "", err
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, rest, _ := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	s = intPart + "." + rest
	if neg {
		s = "-" + s
	}
	return s, nil
}

type nonFiniteError struct{ lit string }

func (e *nonFiniteError) Error() string {
	return "non-finite float " + e.lit + " has no JSON representation"
}
