// Package xml adapts XML 1.0 to the convkit document model.
//
// Mapping between XML and the model:
//
//   - the root element wraps the document; its name is dropped on read unless
//     ReadOptions.KeepRoot is set and set from WriteOptions.RootElement on write
//   - mapping keys are child elements, keys prefixed with "@" are attributes and
//     the key "#text" is character data
//   - sequences are a wrapper element holding one <item> element per entry;
//     repeated sibling elements in other documents also read as a sequence
//   - scalars are element text typed with the shared inference policy
//
// The writer adds a convkit-hint attribute only where inference alone would not
// restore the node: null, dates, binary, strings that look like numbers or
// booleans, sequences and mappings that would otherwise read as scalars.
// Attribute values get the same treatment through convkit-attr-hints, a list
// of name=hint pairs, and "#text" through convkit-text-hint. Text carrying a
// convkit-text-hint is read verbatim; other character data is trimmed.
// Attribute keys must lead a mapping because they are read back first.
//
// Reading parses into an antchfx/xmlquery DOM with entity expansion disabled;
// ReadOptions.RecordPath selects record elements with an XPath expression.
package xml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

const (
	name = "xml"

	// HintAttr is the meta attribute recording a node's type.
	HintAttr = "convkit-hint"

	// AttrHintsAttr records the types of attribute values, as space
	// separated name=hint pairs.
	AttrHintsAttr = "convkit-attr-hints"

	// TextHintAttr records the type of an element's "#text" entry.
	TextHintAttr = "convkit-text-hint"

	hintSeq = "seq"
	hintMap = "map"
)

// Reader reads XML.
type Reader struct{}

// NewReader returns an XML reader.
func NewReader() *Reader { return &Reader{} }

var _ format.Reader = (*Reader)(nil)

func (Reader) Read(ctx context.Context, r io.Reader, opts format.ReadOptions) (*ir.Document, error) {
	var records *xpath.Expr
	if opts.RecordPath != "" {
		expr, err := xpath.Compile(opts.RecordPath)
		if err != nil {
			return nil, fmt.Errorf("xml: invalid record path %q: %w", opts.RecordPath, err)
		}
		records = expr
	}

	src := &format.TrackedReader{R: format.ContextReader(ctx, r)}
	top, err := xmlquery.ParseWithOptions(src, xmlquery.ParserOptions{
		Decoder: &xmlquery.DecoderOptions{
			Strict: true,
			Entity: map[string]string{},
		},
	})
	if err != nil {
		return nil, convertErr(src, err)
	}

	c := &converter{limit: opts.Depth(), infer: opts.InferTypes()}

	if records != nil {
		var items []ir.Node
		for i, el := range xmlquery.QuerySelectorAll(top, records) {
			if el.Type != xmlquery.ElementNode {
				continue
			}
			n, err := c.element(el, ir.JoinIndex("", i), 2)
			if err != nil {
				return nil, err
			}
			items = append(items, n)
		}
		return ir.NewDocument(ir.NewSequence(items...), name), nil
	}

	root := rootElement(top)
	if root == nil {
		return nil, format.ParseErrorAt(name, 0, "document has no root element", nil)
	}
	if opts.KeepRoot {
		rootName := qualifiedName(root)
		n, err := c.element(root, ir.JoinKey("", rootName), 2)
		if err != nil {
			return nil, err
		}
		m, err := ir.NewMapping(ir.E(rootName, n))
		if err != nil {
			return nil, err
		}
		return ir.NewDocument(m, name), nil
	}
	n, err := c.element(root, "", 1)
	if err != nil {
		return nil, err
	}
	return ir.NewDocument(n, name), nil
}

func rootElement(top *xmlquery.Node) *xmlquery.Node {
	for child := top.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child
		}
	}
	return nil
}

func qualifiedName(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

func attrName(a xmlquery.Attr) string {
	if a.Name.Space != "" {
		return a.Name.Space + ":" + a.Name.Local
	}
	return a.Name.Local
}

type converter struct {
	limit int
	infer bool
}

func (c *converter) text(s string) ir.Node {
	if c.infer {
		return ir.Infer(s)
	}
	return ir.String(s)
}

type childGroup struct {
	name  string
	nodes []*xmlquery.Node
}

func (c *converter) element(el *xmlquery.Node, path string, depth int) (ir.Node, error) {
	if err := format.CheckDepth(name, depth, c.limit, path); err != nil {
		return ir.Node{}, err
	}

	hint, textHint := "", ""
	var attrHints map[string]string
	var attrs []xmlquery.Attr
	for _, a := range el.Attr {
		if a.Name.Space == "" {
			switch a.Name.Local {
			case HintAttr:
				hint = a.Value
				continue
			case TextHintAttr:
				textHint = a.Value
				continue
			case AttrHintsAttr:
				attrHints = make(map[string]string)
				for _, pair := range strings.Fields(a.Value) {
					k, v, _ := strings.Cut(pair, "=")
					attrHints[k] = v
				}
				continue
			}
		}
		attrs = append(attrs, a)
	}

	var groups []*childGroup
	byName := map[string]*childGroup{}
	var text strings.Builder
	textAt := -1
	for child := el.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.ElementNode:
			key := qualifiedName(child)
			g, ok := byName[key]
			if !ok {
				g = &childGroup{name: key}
				byName[key] = g
				groups = append(groups, g)
			}
			g.nodes = append(g.nodes, child)
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if textAt < 0 && (strings.TrimSpace(child.Data) != "" || textHint != "" && child.Data != "") {
				textAt = len(groups)
			}
			text.WriteString(child.Data)
		}
	}

	switch hint {
	case hintSeq:
		var items []ir.Node
		for child := el.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != xmlquery.ElementNode {
				continue
			}
			n, err := c.element(child, ir.JoinIndex(path, len(items)), depth+1)
			if err != nil {
				return ir.Node{}, err
			}
			items = append(items, n)
		}
		return ir.NewSequence(items...), nil
	case "", hintMap:
	default:
		return c.hinted(text.String(), hint, HintAttr, path)
	}

	if hint == "" && len(attrs) == 0 && len(groups) == 0 {
		return c.text(text.String()), nil
	}

	var entries []ir.Entry
	for _, a := range attrs {
		key := "@" + attrName(a)
		n := c.text(a.Value)
		if h, ok := attrHints[attrName(a)]; ok {
			var err error
			if n, err = c.hinted(a.Value, h, AttrHintsAttr, ir.JoinKey(path, key)); err != nil {
				return ir.Node{}, err
			}
		}
		entries = append(entries, ir.E(key, n))
	}
	textEntry := func() error {
		if textHint != "" {
			n, err := c.hinted(text.String(), textHint, TextHintAttr, ir.JoinKey(path, "#text"))
			if err != nil {
				return err
			}
			entries = append(entries, ir.E("#text", n))
			return nil
		}
		if s := strings.TrimSpace(text.String()); s != "" {
			entries = append(entries, ir.E("#text", c.text(s)))
		}
		return nil
	}
	if textHint != "" && textAt < 0 {
		// Empty text leaves no node behind.
		textAt = len(groups)
	}
	for i, g := range groups {
		if i == textAt {
			if err := textEntry(); err != nil {
				return ir.Node{}, err
			}
		}
		childPath := ir.JoinKey(path, g.name)
		if len(g.nodes) == 1 {
			n, err := c.element(g.nodes[0], childPath, depth+1)
			if err != nil {
				return ir.Node{}, err
			}
			entries = append(entries, ir.E(g.name, n))
			continue
		}
		items := make([]ir.Node, len(g.nodes))
		for j, child := range g.nodes {
			n, err := c.element(child, ir.JoinIndex(childPath, j), depth+2)
			if err != nil {
				return ir.Node{}, err
			}
			items[j] = n
		}
		entries = append(entries, ir.E(g.name, ir.NewSequence(items...)))
	}
	if textAt >= len(groups) {
		if err := textEntry(); err != nil {
			return ir.Node{}, err
		}
	}
	m, err := ir.NewMapping(entries...)
	if err != nil {
		return ir.Node{}, c.errAt(path, err.Error())
	}
	return m, nil
}

// hinted builds the scalar recorded with an explicit hint taken from the
// meta attribute attr.
func (c *converter) hinted(value, hint, attr, path string) (ir.Node, error) {
	h, err := ir.ParseHint(hint)
	if err != nil {
		return ir.Node{}, c.errAt(path, fmt.Sprintf("unknown %s %q", attr, hint))
	}
	n, err := ir.NewScalar(value, h)
	if err != nil {
		return ir.Node{}, c.errAt(path, err.Error())
	}
	return n, nil
}

func (c *converter) errAt(path, msg string) error {
	return format.ParseErrorAtPath(name, ir.DisplayPath(path), msg)
}

func convertErr(src *format.TrackedReader, err error) error {
	if src.Err != nil {
		return format.SourceError(name, src.Err)
	}
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return format.ParseErrorAtLine(name, se.Line, 0, se.Msg, err)
	}
	return format.ParseErrorAt(name, -1, err.Error(), err)
}
