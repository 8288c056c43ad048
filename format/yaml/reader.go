// Package yaml adapts YAML to the convkit document model through the gopkg.in/yaml.v3
// node API, which keeps mapping order, source positions and resolved tags.
//
// Reading maps tags to hints: !!int and !!float become canonical decimal
// literals (hex, octal and binary integers included; .inf and .nan become +Inf,
// -Inf and NaN), !!bool, !!null, !!timestamp (date) and !!binary map directly
// and every other tag is read as a string. Aliases are expanded under the depth
// bound and an expansion budget, merge keys (<<) are applied and non-scalar keys
// are rejected.
//
// Writing sets an explicit tag on every scalar so the encoder quotes strings
// that would otherwise resolve to another type.
package yaml

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

const name = "yaml"

// MaxAliasExpansion bounds the nodes produced by alias expansion in one document.
const MaxAliasExpansion = 1_000_000

// Reader reads YAML.
type Reader struct{}

// NewReader returns a YAML reader.
func NewReader() *Reader { return &Reader{} }

var _ format.Reader = (*Reader)(nil)

func (Reader) Read(ctx context.Context, r io.Reader, opts format.ReadOptions) (*ir.Document, error) {
	src := &format.TrackedReader{R: format.ContextReader(ctx, r)}
	dec := yaml.NewDecoder(src)
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return ir.NewDocument(ir.Null(), name), nil
		}
		return nil, convertErr(src, err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, convertErr(src, err)
		}
		return nil, format.ParseErrorAtLine(name, extra.Line, extra.Column, "expected a single document", nil)
	}

	root := &doc
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return ir.NewDocument(ir.Null(), name), nil
		}
		root = doc.Content[0]
	}
	c := &converter{limit: opts.Depth()}
	n, err := c.node(root, "", 0, false)
	if err != nil {
		return nil, err
	}
	return ir.NewDocument(n, name), nil
}

type converter struct {
	limit    int
	expanded int
}

func (c *converter) node(y *yaml.Node, path string, depth int, viaAlias bool) (ir.Node, error) {
	if viaAlias {
		c.expanded++
		if c.expanded > MaxAliasExpansion {
			return ir.Node{}, errAt(y, path, "alias expansion exceeds the node budget")
		}
	}
	switch y.Kind {
	case yaml.AliasNode:
		if y.Alias == nil {
			return ir.Node{}, errAt(y, path, "unknown alias")
		}
		return c.node(y.Alias, path, depth, true)
	case yaml.ScalarNode:
		return scalar(y, path)
	case yaml.SequenceNode:
		if err := format.CheckDepth(name, depth+1, c.limit, path); err != nil {
			return ir.Node{}, err
		}
		items := make([]ir.Node, 0, len(y.Content))
		for i, child := range y.Content {
			n, err := c.node(child, ir.JoinIndex(path, i), depth+1, viaAlias)
			if err != nil {
				return ir.Node{}, err
			}
			items = append(items, n)
		}
		return ir.NewSequence(items...), nil
	case yaml.MappingNode:
		if err := format.CheckDepth(name, depth+1, c.limit, path); err != nil {
			return ir.Node{}, err
		}
		return c.mapping(y, path, depth+1, viaAlias)
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return ir.Null(), nil
		}
		return c.node(y.Content[0], path, depth, viaAlias)
	}
	return ir.Node{}, errAt(y, path, fmt.Sprintf("unsupported node kind %d", y.Kind))
}

func (c *converter) mapping(y *yaml.Node, path string, depth int, viaAlias bool) (ir.Node, error) {
	var entries []ir.Entry
	index := map[string]int{}
	explicit := map[string]bool{}

	for i := 0; i+1 < len(y.Content); i += 2 {
		k := resolveAlias(y.Content[i])
		if k.Kind == yaml.ScalarNode && !isMerge(k) {
			explicit[k.Value] = true
		}
	}

	for i := 0; i+1 < len(y.Content); i += 2 {
		k, v := resolveAlias(y.Content[i]), y.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return ir.Node{}, errAt(k, path, "mapping keys must be scalars")
		}
		if isMerge(k) {
			merged, err := c.merge(v, path, depth, viaAlias)
			if err != nil {
				return ir.Node{}, err
			}
			for _, e := range merged {
				if explicit[e.Key] {
					continue
				}
				if _, ok := index[e.Key]; ok {
					continue
				}
				index[e.Key] = len(entries)
				entries = append(entries, e)
			}
			continue
		}
		key := k.Value
		childPath := ir.JoinKey(path, key)
		if _, dup := index[key]; dup {
			return ir.Node{}, errAt(k, childPath, fmt.Sprintf("duplicate key %q", key))
		}
		n, err := c.node(v, childPath, depth, viaAlias)
		if err != nil {
			return ir.Node{}, err
		}
		index[key] = len(entries)
		entries = append(entries, ir.E(key, n))
	}
	return ir.NewMapping(entries...)
}

// merge returns the entries a << value contributes: a mapping, or a sequence of
// mappings where earlier mappings win.
func (c *converter) merge(v *yaml.Node, path string, depth int, viaAlias bool) ([]ir.Entry, error) {
	src := resolveAlias(v)
	aliased := viaAlias || v.Kind == yaml.AliasNode
	switch src.Kind {
	case yaml.MappingNode:
		n, err := c.node(v, path, depth-1, viaAlias)
		if err != nil {
			return nil, err
		}
		return n.Entries(), nil
	case yaml.SequenceNode:
		var out []ir.Entry
		seen := map[string]bool{}
		for _, item := range src.Content {
			if resolveAlias(item).Kind != yaml.MappingNode {
				return nil, errAt(item, path, "merge value must be a mapping or a sequence of mappings")
			}
			n, err := c.node(item, path, depth-1, aliased)
			if err != nil {
				return nil, err
			}
			for _, e := range n.Entries() {
				if !seen[e.Key] {
					seen[e.Key] = true
					out = append(out, e)
				}
			}
		}
		return out, nil
	}
	return nil, errAt(v, path, "merge value must be a mapping or a sequence of mappings")
}

func resolveAlias(y *yaml.Node) *yaml.Node {
	for y.Kind == yaml.AliasNode && y.Alias != nil {
		y = y.Alias
	}
	return y
}

func isMerge(k *yaml.Node) bool {
	return k.Kind == yaml.ScalarNode && k.Value == "<<" && k.ShortTag() == "!!merge"
}

func scalar(y *yaml.Node, path string) (ir.Node, error) {
	v := y.Value
	switch y.ShortTag() {
	case "!!null":
		return ir.Null(), nil
	case "!!bool":
		b, ok := boolValue(v)
		if !ok {
			return ir.Node{}, errAt(y, path, fmt.Sprintf("invalid boolean %q", v))
		}
		return ir.Bool(b), nil
	case "!!int":
		i, ok := new(big.Int).SetString(strings.ReplaceAll(v, "_", ""), 0)
		if !ok {
			return ir.Node{}, errAt(y, path, fmt.Sprintf("invalid integer %q", v))
		}
		return ir.MustScalar(i.String(), ir.HintInteger), nil
	case "!!float":
		s, ok := floatValue(v)
		if !ok {
			return ir.Node{}, errAt(y, path, fmt.Sprintf("invalid float %q", v))
		}
		return ir.MustScalar(s, ir.HintFloat), nil
	case "!!timestamp":
		if ir.IsDateLiteral(v) {
			return ir.MustScalar(v, ir.HintDate), nil
		}
		var t time.Time
		if err := y.Decode(&t); err != nil {
			return ir.Node{}, errAt(y, path, fmt.Sprintf("invalid timestamp %q", v))
		}
		return ir.Date(t), nil
	case "!!binary":
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(v), ""))
		if err != nil {
			return ir.Node{}, errAt(y, path, "invalid base64 in !!binary")
		}
		return ir.Binary(b), nil
	}
	return ir.String(v), nil
}

func boolValue(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "yes", "y", "on":
		return true, true
	case "false", "no", "n", "off":
		return false, true
	}
	return false, false
}

func floatValue(v string) (string, bool) {
	switch strings.ToLower(v) {
	case ".inf", "+.inf":
		return "+Inf", true
	case "-.inf":
		return "-Inf", true
	case ".nan":
		return "NaN", true
	}
	s, err := ir.CanonicalFloat(strings.ReplaceAll(v, "_", ""))
	if err != nil {
		// !!int-looking literals tagged !!float.
		if i, ok := new(big.Int).SetString(v, 0); ok {
			f, _ := new(big.Float).SetInt(i).Float64()
			return ir.FormatFloat(f), true
		}
		return "", false
	}
	return s, true
}

func errAt(y *yaml.Node, path, msg string) error {
	perr := format.ParseErrorAtLine(name, y.Line, y.Column, msg, nil)
	perr.Path = path
	return perr
}

func convertErr(src *format.TrackedReader, err error) error {
	if src.Err != nil {
		return format.SourceError(name, src.Err)
	}
	msg := strings.TrimPrefix(err.Error(), "yaml: ")
	line := 0
	if rest, ok := strings.CutPrefix(msg, "line "); ok {
		if num, tail, ok := strings.Cut(rest, ":"); ok {
			if n, cerr := strconv.Atoi(num); cerr == nil {
				line = n
				msg = strings.TrimSpace(tail)
			}
		}
	}
	return format.ParseErrorAtLine(name, line, 0, msg, err)
}
