package schema

import (
	"fmt"
	"unicode/utf8"

	"github.com/gobeaver/convkit/ir"
)

// Validate checks doc against s. A streaming table root is consumed by the
// pass; the error reports a failure to read its rows, never a violation.
func Validate(doc *ir.Document, s *Schema, opts ...Option) (*Report, error) {
	return s.Validate(doc.Root, opts...)
}

// Validate checks n against s.
func (s *Schema) Validate(n ir.Node, opts ...Option) (*Report, error) {
	v := newValidator(opts)
	if err := v.check(n, s, ""); err != nil {
		return nil, err
	}
	return v.report, nil
}

type validator struct {
	opts   options
	report *Report
}

func newValidator(opts []Option) *validator {
	v := &validator{report: &Report{}}
	for _, opt := range opts {
		opt(&v.opts)
	}
	return v
}

func (v *validator) done() bool { return v.report.Truncated }

func (v *validator) add(path string, code Code, format string, args ...any) {
	if v.done() {
		return
	}
	v.report.Violations = append(v.report.Violations, Violation{
		Path:    ir.DisplayPath(path),
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
	n := len(v.report.Violations)
	if v.opts.failFast || (v.opts.maxViolations > 0 && n >= v.opts.maxViolations) {
		v.report.Truncated = true
	}
}

func (v *validator) check(n ir.Node, s *Schema, path string) error {
	if v.done() {
		return nil
	}
	if !s.matchesType(n) {
		v.add(path, CodeType, "expected %s, got %s", s.typeList(), typeOf(n)[0])
	}
	if len(s.enum) > 0 && n.Kind() != ir.TableKind && !s.inEnum(n) {
		v.add(path, CodeEnum, "value is not one of %s", s.enumList())
	}
	switch n.Kind() {
	case ir.ScalarKind:
		v.scalar(n, s, path)
	case ir.MappingKind:
		return v.mapping(n.Entries(), s, path, false)
	case ir.SequenceKind:
		items := n.Items()
		v.count(len(items), s, path)
		if s.items == nil {
			return nil
		}
		for i, item := range items {
			if v.done() {
				break
			}
			if err := v.check(item, s.items, ir.JoinIndex(path, i)); err != nil {
				return err
			}
		}
	case ir.TableKind:
		return v.table(n.Table(), s, path)
	}
	return nil
}

func (v *validator) scalar(n ir.Node, s *Schema, path string) {
	switch n.Hint() {
	case ir.HintInteger, ir.HintFloat:
		v.numeric(n.Value(), s, path)
	case ir.HintString, ir.HintDate, ir.HintBinary:
		v.text(n.Value(), s, path)
	}
}

func (v *validator) numeric(lit string, s *Schema, path string) {
	if s.minimum == nil && s.maximum == nil && s.exclMinimum == nil && s.exclMaximum == nil {
		return
	}
	x, ok := parseNumber(lit)
	if !ok {
		v.add(path, CodeType, "%s is not comparable", lit)
		return
	}
	if b := s.minimum; b != nil && x.Cmp(b.val) < 0 {
		v.add(path, CodeMinimum, "%s is less than minimum %s", lit, b.lit)
	}
	if b := s.maximum; b != nil && x.Cmp(b.val) > 0 {
		v.add(path, CodeMaximum, "%s is greater than maximum %s", lit, b.lit)
	}
	if b := s.exclMinimum; b != nil && x.Cmp(b.val) <= 0 {
		v.add(path, CodeExclusiveMinimum, "%s must be greater than %s", lit, b.lit)
	}
	if b := s.exclMaximum; b != nil && x.Cmp(b.val) >= 0 {
		v.add(path, CodeExclusiveMaximum, "%s must be less than %s", lit, b.lit)
	}
}

func (v *validator) text(str string, s *Schema, path string) {
	if s.minLength != nil || s.maxLength != nil {
		n := utf8.RuneCountInString(str)
		if s.minLength != nil && n < *s.minLength {
			v.add(path, CodeMinLength, "length %d is less than %d", n, *s.minLength)
		}
		if s.maxLength != nil && n > *s.maxLength {
			v.add(path, CodeMaxLength, "length %d is greater than %d", n, *s.maxLength)
		}
	}
	if s.pattern != nil && !s.pattern.MatchString(str) {
		v.add(path, CodePattern, "does not match pattern %q", s.pattern.String())
	}
}

func (v *validator) count(n int, s *Schema, path string) {
	if s.minItems != nil && n < *s.minItems {
		v.add(path, CodeMinItems, "%d items, want at least %d", n, *s.minItems)
	}
	if s.maxItems != nil && n > *s.maxItems {
		v.add(path, CodeMaxItems, "%d items, want at most %d", n, *s.maxItems)
	}
}

// mapping checks entries against s. Table rows skip the key-set checks, which
// are made once against the column list.
func (v *validator) mapping(entries []ir.Entry, s *Schema, path string, row bool) error {
	if !row {
		present := make(map[string]bool, len(entries))
		for _, e := range entries {
			present[e.Key] = true
		}
		for _, key := range s.required {
			if !present[key] {
				v.add(ir.JoinKey(path, key), CodeRequired, "required property %q is missing", key)
			}
		}
	}
	for _, e := range entries {
		if v.done() {
			return nil
		}
		p := ir.JoinKey(path, e.Key)
		if ps, ok := s.properties[e.Key]; ok {
			if err := v.check(e.Value, ps, p); err != nil {
				return err
			}
			continue
		}
		if !row && s.additional != nil && !*s.additional {
			v.add(p, CodeAdditional, "property %q is not allowed", e.Key)
		}
	}
	return nil
}

func (v *validator) table(t *ir.Table, s *Schema, path string) error {
	rv := &RowValidator{v: v, schema: s, columns: t.Columns(), path: path}
	rv.header(false)
	it := t.Rows()
	defer it.Close()
	i := 0
	for it.Next() {
		rv.Row(i, it.Row())
		i++
		if v.done() {
			return nil
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	rv.Finish()
	return nil
}

// RowValidator validates a table one row at a time, so that a streaming table
// can be checked while it is being written elsewhere. Column-level checks run
// when the validator is created.
type RowValidator struct {
	v        *validator
	schema   *Schema
	columns  []string
	path     string
	rows     int
	finished bool
}

// NewRowValidator returns a validator for a table with the given columns.
func NewRowValidator(s *Schema, columns []string, opts ...Option) *RowValidator {
	rv := &RowValidator{v: newValidator(opts), schema: s, columns: columns}
	rv.header(true)
	return rv
}

func (rv *RowValidator) header(checkType bool) {
	s, v := rv.schema, rv.v
	if checkType && !s.allows(TypeArray) {
		v.add(rv.path, CodeType, "expected %s, got array", s.typeList())
	}
	have := make(map[string]bool, len(rv.columns))
	for _, c := range rv.columns {
		have[c] = true
	}
	for _, c := range s.requiredColumns {
		if !have[c] {
			v.add(ir.JoinKey(rv.path, c), CodeColumn, "required column %q is missing", c)
		}
	}
	items := s.items
	if items == nil {
		return
	}
	if !items.allows(TypeObject) {
		v.add(rv.path, CodeType, "expected items of type %s, got object rows", items.typeList())
	}
	for _, key := range items.required {
		if !have[key] {
			v.add(ir.JoinKey(rv.path, key), CodeRequired, "required column %q is missing", key)
		}
	}
	if items.additional != nil && !*items.additional {
		for _, c := range rv.columns {
			if _, ok := items.properties[c]; !ok {
				v.add(ir.JoinKey(rv.path, c), CodeAdditional, "column %q is not allowed", c)
			}
		}
	}
}

// Row validates one row and reports whether it added no violations.
func (rv *RowValidator) Row(index int, row ir.Row) bool {
	rv.rows++
	items := rv.schema.items
	if items == nil || rv.v.done() {
		return true
	}
	before := len(rv.v.report.Violations)
	entries := make([]ir.Entry, len(rv.columns))
	for i, c := range rv.columns {
		entries[i] = ir.E(c, row[i])
	}
	path := ir.JoinIndex(rv.path, index)
	if len(items.enum) > 0 {
		if m, err := ir.NewMapping(entries...); err == nil && !items.inEnum(m) {
			rv.v.add(path, CodeEnum, "row is not one of %s", items.enumList())
		}
	}
	// Row mappings never hold tables, so this cannot fail.
	_ = rv.v.mapping(entries, items, path, true)
	return len(rv.v.report.Violations) == before
}

// Report returns the violations found so far.
func (rv *RowValidator) Report() *Report { return rv.v.report }

// Finish applies the row-count checks and returns the report. Call it once the
// table is exhausted.
func (rv *RowValidator) Finish() *Report {
	if !rv.finished {
		rv.finished = true
		rv.v.count(rv.rows, rv.schema, rv.path)
	}
	return rv.v.report
}
