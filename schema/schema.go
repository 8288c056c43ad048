package schema

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/ir"
)

// Type is a value of the type keyword.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeNull    Type = "null"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeDate    Type = "date"
	TypeBinary  Type = "binary"
)

var knownTypes = map[Type]bool{
	TypeString: true, TypeInteger: true, TypeNumber: true, TypeBoolean: true, TypeNull: true,
	TypeObject: true, TypeArray: true, TypeDate: true, TypeBinary: true,
}

// numberPrecision is the mantissa size used for numeric bounds. It holds any
// int64 exactly.
const numberPrecision = 256

// Schema is a compiled schema.
type Schema struct {
	types           []Type
	properties      map[string]*Schema
	required        []string
	requiredColumns []string
	additional      *bool
	items           *Schema
	minItems        *int
	maxItems        *int
	minimum         *bound
	maximum         *bound
	exclMinimum     *bound
	exclMaximum     *bound
	minLength       *int
	maxLength       *int
	pattern         *regexp.Regexp
	enum            []ir.Node
}

// bound is a numeric limit together with its literal for messages.
type bound struct {
	lit string
	val *big.Float
}

// Compile interprets n as a schema. Malformed schemas fail with a
// StructureError whose path locates the offending keyword.
func Compile(n ir.Node) (*Schema, error) {
	return compile(n, "")
}

// MustCompile is Compile that panics on error.
func MustCompile(n ir.Node) *Schema {
	s, err := Compile(n)
	if err != nil {
		panic(err)
	}
	return s
}

func compile(n ir.Node, path string) (*Schema, error) {
	if n.Kind() != ir.MappingKind {
		return nil, errs.Structuref(ir.DisplayPath(path), "schema must be a mapping, got %s", n.Kind())
	}
	s := &Schema{}
	for _, e := range n.Entries() {
		p := ir.JoinKey(path, e.Key)
		var err error
		switch e.Key {
		case "type":
			s.types, err = compileTypes(e.Value, p)
		case "properties":
			s.properties, err = compileProperties(e.Value, p)
		case "required":
			s.required, err = stringList(e.Value, p)
		case "requiredColumns":
			s.requiredColumns, err = stringList(e.Value, p)
		case "additionalProperties":
			var b bool
			b, err = boolean(e.Value, p)
			s.additional = &b
		case "items":
			s.items, err = compile(e.Value, p)
		case "minItems":
			s.minItems, err = count(e.Value, p)
		case "maxItems":
			s.maxItems, err = count(e.Value, p)
		case "minLength":
			s.minLength, err = count(e.Value, p)
		case "maxLength":
			s.maxLength, err = count(e.Value, p)
		case "minimum":
			s.minimum, err = number(e.Value, p)
		case "maximum":
			s.maximum, err = number(e.Value, p)
		case "exclusiveMinimum":
			s.exclMinimum, err = number(e.Value, p)
		case "exclusiveMaximum":
			s.exclMaximum, err = number(e.Value, p)
		case "pattern":
			s.pattern, err = compilePattern(e.Value, p)
		case "enum":
			s.enum, err = compileEnum(e.Value, p)
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func compileTypes(n ir.Node, path string) ([]Type, error) {
	var names []string
	if n.IsScalar() {
		if n.Hint() != ir.HintString {
			return nil, errs.Structuref(path, "type must be a string or a list of strings")
		}
		names = []string{n.Value()}
	} else {
		var err error
		if names, err = stringList(n, path); err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, errs.Structuref(path, "type list is empty")
		}
	}
	types := make([]Type, len(names))
	for i, name := range names {
		t := Type(name)
		if !knownTypes[t] {
			return nil, errs.Structuref(path, "unknown type %q", name)
		}
		types[i] = t
	}
	return types, nil
}

func compileProperties(n ir.Node, path string) (map[string]*Schema, error) {
	if n.Kind() != ir.MappingKind {
		return nil, errs.Structuref(path, "properties must be a mapping")
	}
	props := make(map[string]*Schema, n.Len())
	for _, e := range n.Entries() {
		s, err := compile(e.Value, ir.JoinKey(path, e.Key))
		if err != nil {
			return nil, err
		}
		props[e.Key] = s
	}
	return props, nil
}

func stringList(n ir.Node, path string) ([]string, error) {
	if n.Kind() != ir.SequenceKind {
		return nil, errs.Structuref(path, "must be a list of strings")
	}
	items := n.Items()
	out := make([]string, len(items))
	for i, item := range items {
		if item.Hint() != ir.HintString || !item.IsScalar() {
			return nil, errs.Structuref(ir.JoinIndex(path, i), "must be a string")
		}
		out[i] = item.Value()
	}
	return out, nil
}

func boolean(n ir.Node, path string) (bool, error) {
	if !n.IsScalar() || n.Hint() != ir.HintBoolean {
		return false, errs.Structuref(path, "must be a boolean")
	}
	return n.Value() == "true", nil
}

func count(n ir.Node, path string) (*int, error) {
	if !n.IsScalar() || n.Hint() != ir.HintInteger {
		return nil, errs.Structuref(path, "must be a non-negative integer")
	}
	v, err := strconv.Atoi(n.Value())
	if err != nil || v < 0 {
		return nil, errs.Structuref(path, "must be a non-negative integer")
	}
	return &v, nil
}

func number(n ir.Node, path string) (*bound, error) {
	if !n.IsScalar() || (n.Hint() != ir.HintInteger && n.Hint() != ir.HintFloat) {
		return nil, errs.Structuref(path, "must be a number")
	}
	v, ok := parseNumber(n.Value())
	if !ok {
		return nil, errs.Structuref(path, "must be a comparable number")
	}
	return &bound{lit: n.Value(), val: v}, nil
}

func compilePattern(n ir.Node, path string) (*regexp.Regexp, error) {
	if !n.IsScalar() || n.Hint() != ir.HintString {
		return nil, errs.Structuref(path, "pattern must be a string")
	}
	re, err := regexp.Compile(n.Value())
	if err != nil {
		return nil, errs.Structuref(path, "invalid pattern: %v", err)
	}
	return re, nil
}

func compileEnum(n ir.Node, path string) ([]ir.Node, error) {
	if n.Kind() != ir.SequenceKind {
		return nil, errs.Structuref(path, "enum must be a list")
	}
	values := n.Items()
	if len(values) == 0 {
		return nil, errs.Structuref(path, "enum is empty")
	}
	for i, v := range values {
		if v.Kind() == ir.TableKind {
			return nil, errs.Structuref(ir.JoinIndex(path, i), "enum values cannot be tables")
		}
	}
	return values, nil
}

// parseNumber parses an integer or float literal. NaN is not comparable and
// is rejected; infinities are accepted.
func parseNumber(lit string) (*big.Float, bool) {
	f, _, err := big.ParseFloat(lit, 10, numberPrecision, big.ToNearestEven)
	if err != nil {
		return nil, false
	}
	return f, true
}

// allows reports whether t is listed, treating integer as a number.
func (s *Schema) allows(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, want := range s.types {
		if want == t || (want == TypeNumber && t == TypeInteger) {
			return true
		}
	}
	return false
}

func (s *Schema) typeList() string {
	if len(s.types) == 1 {
		return string(s.types[0])
	}
	names := make([]string, len(s.types))
	for i, t := range s.types {
		names[i] = string(t)
	}
	return "one of " + strings.Join(names, ", ")
}

// typeOf names the schema types a node satisfies, most specific first.
func typeOf(n ir.Node) []Type {
	switch n.Kind() {
	case ir.SequenceKind, ir.TableKind:
		return []Type{TypeArray}
	case ir.MappingKind:
		return []Type{TypeObject}
	}
	switch n.Hint() {
	case ir.HintNull:
		return []Type{TypeNull}
	case ir.HintInteger:
		return []Type{TypeInteger, TypeNumber}
	case ir.HintFloat:
		return []Type{TypeNumber}
	case ir.HintBoolean:
		return []Type{TypeBoolean}
	case ir.HintDate:
		return []Type{TypeDate, TypeString}
	case ir.HintBinary:
		return []Type{TypeBinary, TypeString}
	default:
		return []Type{TypeString}
	}
}

func (s *Schema) matchesType(n ir.Node) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, have := range typeOf(n) {
		for _, want := range s.types {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (s *Schema) inEnum(n ir.Node) bool {
	for _, v := range s.enum {
		if ir.Equal(v, n) {
			return true
		}
		if numeric(v) && numeric(n) {
			a, okA := parseNumber(v.Value())
			b, okB := parseNumber(n.Value())
			if okA && okB && a.Cmp(b) == 0 {
				return true
			}
		}
	}
	return false
}

func numeric(n ir.Node) bool {
	return n.IsScalar() && (n.Hint() == ir.HintInteger || n.Hint() == ir.HintFloat)
}

func (s *Schema) enumList() string {
	lits := make([]string, len(s.enum))
	for i, v := range s.enum {
		if v.IsScalar() {
			lits[i] = strconv.Quote(v.Value())
		} else {
			lits[i] = v.Kind().String()
		}
	}
	return fmt.Sprintf("[%s]", strings.Join(lits, ", "))
}
