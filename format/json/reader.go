// Package json adapts RFC 8259 JSON to the convkit document model.
//
// The reader walks the encoding/json token stream so that object key order and
// number literals survive: integers keep their digits, other numbers are
// canonicalised to a decimal form that re-infers as a float. Duplicate keys,
// trailing data and nesting beyond the depth limit are parse failures.
//
// The writer is hand-rolled over the document so that key order is kept and
// tables stream out as an array of objects one row at a time.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

const name = "json"

// Reader reads JSON.
type Reader struct{}

// NewReader returns a JSON reader.
func NewReader() *Reader { return &Reader{} }

var _ format.Reader = (*Reader)(nil)

func (Reader) Read(ctx context.Context, r io.Reader, opts format.ReadOptions) (*ir.Document, error) {
	p := &parser{
		dec:   json.NewDecoder(format.ContextReader(ctx, r)),
		limit: opts.Depth(),
	}
	p.dec.UseNumber()

	tok, err := p.token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, format.ParseErrorAt(name, 0, "empty input", nil)
		}
		return nil, err
	}
	root, err := p.value(tok, "", 0)
	if err != nil {
		return nil, err
	}
	if _, err := p.dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, p.convertErr(err)
		}
		return nil, format.ParseErrorAt(name, p.dec.InputOffset(), "trailing data after the document", nil)
	}
	return ir.NewDocument(root, name), nil
}

type parser struct {
	dec   *json.Decoder
	limit int
}

func (p *parser) token() (json.Token, error) {
	tok, err := p.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, p.convertErr(err)
	}
	return tok, nil
}

// next reads a token inside a container, where EOF means truncated input.
func (p *parser) next() (json.Token, error) {
	tok, err := p.token()
	if errors.Is(err, io.EOF) {
		return nil, format.ParseErrorAt(name, p.dec.InputOffset(), "unexpected end of input", io.ErrUnexpectedEOF)
	}
	return tok, err
}

func (p *parser) convertErr(err error) error {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return format.ParseErrorAt(name, se.Offset, se.Error(), err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return format.ParseErrorAt(name, p.dec.InputOffset(), "unexpected end of input", err)
	}
	return format.SourceError(name, err)
}

func (p *parser) value(tok json.Token, path string, depth int) (ir.Node, error) {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return p.object(path, depth+1)
		case '[':
			return p.array(path, depth+1)
		}
		return ir.Node{}, format.ParseErrorAt(name, p.dec.InputOffset(), fmt.Sprintf("unexpected %q", rune(v)), nil)
	case string:
		return ir.String(v), nil
	case json.Number:
		return number(string(v), p.dec.InputOffset())
	case bool:
		return ir.Bool(v), nil
	case nil:
		return ir.Null(), nil
	}
	return ir.Node{}, format.ParseErrorAt(name, p.dec.InputOffset(), fmt.Sprintf("unexpected token %v", tok), nil)
}

func number(lit string, offset int64) (ir.Node, error) {
	if ir.IsIntegerLiteral(lit) {
		return ir.MustScalar(lit, ir.HintInteger), nil
	}
	s, err := ir.CanonicalFloat(lit)
	if err != nil {
		return ir.Node{}, format.ParseErrorAt(name, offset, fmt.Sprintf("bad number %q", lit), err)
	}
	return ir.MustScalar(s, ir.HintFloat), nil
}

func (p *parser) object(path string, depth int) (ir.Node, error) {
	if err := format.CheckDepth(name, depth, p.limit, path); err != nil {
		return ir.Node{}, err
	}
	var entries []ir.Entry
	seen := map[string]bool{}
	for {
		tok, err := p.next()
		if err != nil {
			return ir.Node{}, err
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			break
		}
		key, ok := tok.(string)
		if !ok {
			return ir.Node{}, format.ParseErrorAt(name, p.dec.InputOffset(), "object key must be a string", nil)
		}
		childPath := ir.JoinKey(path, key)
		if seen[key] {
			perr := format.ParseErrorAt(name, p.dec.InputOffset(), fmt.Sprintf("duplicate key %q", key), nil)
			perr.Path = childPath
			return ir.Node{}, perr
		}
		seen[key] = true
		vt, err := p.next()
		if err != nil {
			return ir.Node{}, err
		}
		v, err := p.value(vt, childPath, depth)
		if err != nil {
			return ir.Node{}, err
		}
		entries = append(entries, ir.E(key, v))
	}
	return ir.NewMapping(entries...)
}

func (p *parser) array(path string, depth int) (ir.Node, error) {
	if err := format.CheckDepth(name, depth, p.limit, path); err != nil {
		return ir.Node{}, err
	}
	var items []ir.Node
	for {
		tok, err := p.next()
		if err != nil {
			return ir.Node{}, err
		}
		if d, ok := tok.(json.Delim); ok && d == ']' {
			break
		}
		v, err := p.value(tok, ir.JoinIndex(path, len(items)), depth)
		if err != nil {
			return ir.Node{}, err
		}
		items = append(items, v)
	}
	return ir.NewSequence(items...), nil
}
