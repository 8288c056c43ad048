package yaml

import (
	"context"
	"io"
	"math/big"

	"gopkg.in/yaml.v3"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

// Writer writes YAML.
type Writer struct{}

// NewWriter returns a YAML writer.
func NewWriter() *Writer { return &Writer{} }

var _ format.Writer = (*Writer)(nil)

func (Writer) Write(ctx context.Context, w io.Writer, doc *ir.Document, opts format.WriteOptions) error {
	if doc.Root.Kind() == ir.TableKind {
		return writeTable(ctx, w, doc.Root.Table(), opts)
	}
	y, err := toYAML(doc.Root)
	if err != nil {
		return err
	}
	return encode(w, y, opts)
}

func encode(w io.Writer, y *yaml.Node, opts format.WriteOptions) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(opts.IndentWidth())
	if err := enc.Encode(y); err != nil {
		return encodeErr(err)
	}
	if err := enc.Close(); err != nil {
		return encodeErr(err)
	}
	return nil
}

func encodeErr(err error) error {
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	return &errs.SerializeError{Format: name, Err: err}
}

// writeTable emits a block sequence one row at a time, each row encoded as a
// one-item sequence so that nothing beyond the current row is held.
func writeTable(ctx context.Context, w io.Writer, t *ir.Table, opts format.WriteOptions) error {
	columns := t.Columns()
	rows := format.ContextRows(ctx, t.Rows())
	defer rows.Close()

	n := 0
	for rows.Next() {
		item := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i, cell := range rows.Row() {
			item.Content = append(item.Content, keyNode(columns[i]), scalarNode(cell))
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{item}}
		if err := encode(w, seq, opts); err != nil {
			return err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if n == 0 {
		return encode(w, &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}, opts)
	}
	return nil
}

func toYAML(n ir.Node) (*yaml.Node, error) {
	switch n.Kind() {
	case ir.ScalarKind:
		return scalarNode(n), nil
	case ir.SequenceKind:
		y := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.Items() {
			c, err := toYAML(item)
			if err != nil {
				return nil, err
			}
			y.Content = append(y.Content, c)
		}
		return y, nil
	case ir.MappingKind:
		y := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, e := range n.Entries() {
			c, err := toYAML(e.Value)
			if err != nil {
				return nil, err
			}
			y.Content = append(y.Content, keyNode(e.Key), c)
		}
		return y, nil
	case ir.TableKind:
		seq, err := ir.TableToSequence(n)
		if err != nil {
			return nil, err
		}
		return toYAML(seq)
	}
	return nil, &errs.SerializeError{Format: name, Msg: "unknown node kind " + n.Kind().String()}
}

func keyNode(k string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
}

func scalarNode(n ir.Node) *yaml.Node {
	y := &yaml.Node{Kind: yaml.ScalarNode, Value: n.Value()}
	switch n.Hint() {
	case ir.HintNull:
		y.Tag, y.Value = "!!null", "null"
	case ir.HintBoolean:
		y.Tag = "!!bool"
	case ir.HintInteger:
		y.Tag = "!!int"
		if i, ok := new(big.Int).SetString(n.Value(), 10); ok {
			y.Value = i.String()
		}
	case ir.HintFloat:
		y.Tag, y.Value = "!!float", floatLiteral(n.Value())
	case ir.HintDate:
		y.Tag = "!!timestamp"
	case ir.HintBinary:
		y.Tag = "!!binary"
	default:
		y.Tag = "!!str"
	}
	return y
}

func floatLiteral(v string) string {
	switch v {
	case "+Inf", "Inf":
		return ".inf"
	case "-Inf":
		return "-.inf"
	case "NaN":
		return ".nan"
	}
	if s, err := ir.CanonicalFloat(v); err == nil {
		switch s {
		case "+Inf":
			return ".inf"
		case "-Inf":
			return "-.inf"
		case "NaN":
			return ".nan"
		}
		return s
	}
	return v
}
