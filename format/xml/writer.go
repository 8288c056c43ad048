package xml

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"strings"
	"unicode"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

// Writer writes XML.
type Writer struct{}

// NewWriter returns an XML writer.
func NewWriter() *Writer { return &Writer{} }

var _ format.Writer = (*Writer)(nil)

func (Writer) Write(ctx context.Context, w io.Writer, doc *ir.Document, opts format.WriteOptions) error {
	bw := bufio.NewWriter(w)
	enc := xml.NewEncoder(bw)
	if opts.Pretty {
		enc.Indent("", strings.Repeat(" ", opts.IndentWidth()))
	}
	e := &encoder{ctx: ctx, enc: enc, item: opts.Item()}
	if opts.Pretty {
		e.indent = strings.Repeat(" ", opts.IndentWidth())
	}

	if !IsName(opts.Root()) {
		return &errs.SerializeError{Format: name, Msg: "invalid root element name " + opts.Root()}
	}
	if !IsName(e.item) {
		return &errs.SerializeError{Format: name, Msg: "invalid item element name " + e.item}
	}
	if err := enc.EncodeToken(xml.ProcInst{Target: "xml", Inst: []byte(`version="1.0" encoding="UTF-8"`)}); err != nil {
		return e.ioErr(err)
	}
	if err := e.node(opts.Root(), doc.Root, ""); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return e.ioErr(err)
	}
	bw.WriteByte('\n')
	if err := bw.Flush(); err != nil {
		return e.ioErr(err)
	}
	return nil
}

type encoder struct {
	ctx    context.Context
	enc    *xml.Encoder
	item   string
	indent string

	// compact is set while writing an element whose character data must
	// not pick up indentation.
	compact bool
}

func (e *encoder) ioErr(err error) error {
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	return &errs.IOError{Op: "write xml", Err: err}
}

func (e *encoder) serializeErr(path, msg string) error {
	return &errs.SerializeError{Format: name, Path: ir.DisplayPath(path), Msg: msg}
}

func (e *encoder) start(elem string, attrs []xml.Attr) error {
	return e.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: elem}, Attr: attrs})
}

func (e *encoder) end(elem string) error {
	return e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: elem}})
}

func hintAttr(value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: HintAttr}, Value: value}
}

// node writes n as an element named elem.
func (e *encoder) node(elem string, n ir.Node, path string) error {
	switch n.Kind() {
	case ir.ScalarKind:
		return e.scalar(elem, n)
	case ir.SequenceKind:
		if err := e.start(elem, []xml.Attr{hintAttr(hintSeq)}); err != nil {
			return e.ioErr(err)
		}
		for i, item := range n.Items() {
			if err := e.node(e.item, item, ir.JoinIndex(path, i)); err != nil {
				return err
			}
		}
		return e.endErr(elem)
	case ir.MappingKind:
		return e.mapping(elem, n, path)
	case ir.TableKind:
		return e.table(elem, n.Table(), path)
	}
	return nil
}

func (e *encoder) endErr(elem string) error {
	if err := e.end(elem); err != nil {
		return e.ioErr(err)
	}
	return nil
}

func (e *encoder) scalar(elem string, n ir.Node) error {
	var attrs []xml.Attr
	if !Inferable(n) {
		attrs = append(attrs, hintAttr(n.Hint().String()))
	}
	if err := e.start(elem, attrs); err != nil {
		return e.ioErr(err)
	}
	if v := n.Value(); v != "" {
		if err := e.enc.EncodeToken(xml.CharData(v)); err != nil {
			return e.ioErr(err)
		}
	}
	return e.endErr(elem)
}

// Inferable reports whether a scalar read back from element text restores n
// without a hint attribute.
func Inferable(n ir.Node) bool {
	if n.Hint() == ir.HintString && n.Value() == "" {
		return true
	}
	return ir.Inferable(n)
}

func (e *encoder) mapping(elem string, n ir.Node, path string) error {
	var attrs []xml.Attr
	var attrHints []string
	var text ir.Node
	hasText, hasChildren := false, false
	for _, entry := range n.Entries() {
		key := entry.Key
		switch {
		case strings.HasPrefix(key, "@"):
			// Attributes are read back ahead of everything else.
			if hasText || hasChildren {
				return e.serializeErr(ir.JoinKey(path, key), "attribute keys must precede element and #text keys")
			}
			attr := key[1:]
			if !IsName(attr) || isMetaAttr(attr) {
				return e.serializeErr(ir.JoinKey(path, key), "invalid attribute name")
			}
			if !entry.Value.IsScalar() {
				return e.serializeErr(ir.JoinKey(path, key), "attribute value must be a scalar")
			}
			if !Inferable(entry.Value) {
				attrHints = append(attrHints, attr+"="+entry.Value.Hint().String())
			}
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: attr}, Value: entry.Value.Value()})
		case key == "#text":
			if !entry.Value.IsScalar() {
				return e.serializeErr(ir.JoinKey(path, key), "#text must be a scalar")
			}
			text, hasText = entry.Value, true
		default:
			if !IsName(key) {
				return e.serializeErr(ir.JoinKey(path, key), "invalid element name")
			}
			hasChildren = true
		}
	}
	if !hasChildren && len(attrs) == 0 {
		attrs = append(attrs, hintAttr(hintMap))
	}
	if len(attrHints) > 0 {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: AttrHintsAttr}, Value: strings.Join(attrHints, " ")})
	}
	exactText := hasText && !exactWithoutHint(text)
	if exactText {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: TextHintAttr}, Value: text.Hint().String()})
		if hasChildren && e.indent != "" && !e.compact {
			e.enc.Indent("", "")
			e.compact = true
			defer func() {
				e.enc.Indent("", e.indent)
				e.compact = false
			}()
		}
	}
	if err := e.start(elem, attrs); err != nil {
		return e.ioErr(err)
	}
	for _, entry := range n.Entries() {
		switch {
		case strings.HasPrefix(entry.Key, "@"):
		case entry.Key == "#text":
			if v := entry.Value.Value(); v != "" {
				if err := e.enc.EncodeToken(xml.CharData(v)); err != nil {
					return e.ioErr(err)
				}
			}
		default:
			if err := e.node(entry.Key, entry.Value, ir.JoinKey(path, entry.Key)); err != nil {
				return err
			}
		}
	}
	return e.endErr(elem)
}

// exactWithoutHint reports whether a #text value survives the reader's
// trimming and inference as is.
func exactWithoutHint(n ir.Node) bool {
	v := n.Value()
	return v != "" && v == strings.TrimSpace(v) && ir.Inferable(n)
}

func isMetaAttr(name string) bool {
	return name == HintAttr || name == AttrHintsAttr || name == TextHintAttr
}

// table streams rows as a sequence of record elements.
func (e *encoder) table(elem string, t *ir.Table, path string) error {
	columns := t.Columns()
	for _, c := range columns {
		if !IsName(c) {
			return e.serializeErr(ir.JoinKey(path, c), "invalid element name")
		}
	}
	rows := format.ContextRows(e.ctx, t.Rows())
	defer rows.Close()

	if err := e.start(elem, []xml.Attr{hintAttr(hintSeq)}); err != nil {
		return e.ioErr(err)
	}
	for rows.Next() {
		row := rows.Row()
		var attrs []xml.Attr
		if len(columns) == 0 {
			attrs = append(attrs, hintAttr(hintMap))
		}
		if err := e.start(e.item, attrs); err != nil {
			return e.ioErr(err)
		}
		for j, c := range columns {
			if err := e.scalar(c, row[j]); err != nil {
				return err
			}
		}
		if err := e.endErr(e.item); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return e.endErr(elem)
}

// IsName reports whether s is usable as an XML element or attribute name.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == ':' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)):
		default:
			return false
		}
	}
	return !strings.HasPrefix(s, ":") && !strings.HasSuffix(s, ":")
}
