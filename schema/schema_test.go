package schema

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/ir"
)

type found struct {
	Path string
	Code Code
}

func compileYAML(t *testing.T, src string) *Schema {
	t.Helper()
	s, err := NewRegistry().CompileBytes([]byte(src))
	if err != nil {
		t.Fatalf("CompileBytes: %v", err)
	}
	return s
}

func violations(t *testing.T, s *Schema, n ir.Node, opts ...Option) []found {
	t.Helper()
	report, err := s.Validate(n, opts...)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	var out []found
	for _, v := range report.Violations {
		out = append(out, found{v.Path, v.Code})
	}
	return out
}

const personSchema = `
type: object
required: [name, age]
properties:
  name: {type: string}
  age: {type: integer, minimum: 0}
`

func TestValidatePerson(t *testing.T) {
	s := compileYAML(t, personSchema)

	bad := ir.MustMapping(ir.E("name", ir.String("Al")), ir.E("age", ir.Int(-1)))
	report, err := s.Validate(bad)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Violations) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(report.Violations), report)
	}
	if v := report.Violations[0]; v.Path != "age" || v.Code != CodeMinimum {
		t.Errorf("violation = %+v, want minimum at age", v)
	}

	good := ir.MustMapping(ir.E("name", ir.String("Al")), ir.E("age", ir.Int(5)))
	if got := violations(t, s, good); len(got) != 0 {
		t.Errorf("valid document reported %v", got)
	}
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		node   ir.Node
		want   []found
	}{
		{"type mismatch", `type: string`, ir.Int(1), []found{{"$", CodeType}}},
		{"type list", `type: [string, "null"]`, ir.Null(), nil},
		{"integer is a number", `type: number`, ir.Int(3), nil},
		{"date is a string", `type: string`, ir.MustScalar("2024-01-02", ir.HintDate), nil},
		{"date type", `type: date`, ir.String("2024-01-02"), []found{{"$", CodeType}}},
		{"maximum", `maximum: 10`, ir.MustScalar("10.5", ir.HintFloat), []found{{"$", CodeMaximum}}},
		{"exclusive minimum", `exclusiveMinimum: 0`, ir.Int(0), []found{{"$", CodeExclusiveMinimum}}},
		{"exclusive maximum", `exclusiveMaximum: 1.5`, ir.MustScalar("1.5", ir.HintFloat), []found{{"$", CodeExclusiveMaximum}}},
		{"big integer", `minimum: 0`, ir.MustScalar("-99999999999999999999", ir.HintInteger), []found{{"$", CodeMinimum}}},
		{"numeric bounds ignore strings", `minimum: 5`, ir.String("1"), nil},
		{"min length counts runes", `minLength: 2`, ir.String("é"), []found{{"$", CodeMinLength}}},
		{"max length", `maxLength: 3`, ir.String("abcd"), []found{{"$", CodeMaxLength}}},
		{"pattern", `pattern: '^[a-z]+$'`, ir.String("abc1"), []found{{"$", CodePattern}}},
		{"pattern ok", `pattern: '^[a-z]+$'`, ir.String("abc"), nil},
		{"enum", `enum: [red, green]`, ir.String("blue"), []found{{"$", CodeEnum}}},
		{"enum ok", `enum: [red, green]`, ir.String("red"), nil},
		{"enum numeric", `enum: [1, 2.0]`, ir.Int(2), nil},
		{"min items", `minItems: 2`, ir.NewSequence(ir.Int(1)), []found{{"$", CodeMinItems}}},
		{"max items", `maxItems: 1`, ir.NewSequence(ir.Int(1), ir.Int(2)), []found{{"$", CodeMaxItems}}},
		{
			"items",
			`items: {type: integer}`,
			ir.NewSequence(ir.Int(1), ir.String("x"), ir.Int(3)),
			[]found{{"[1]", CodeType}},
		},
		{
			"required",
			`required: [a, b]`,
			ir.MustMapping(ir.E("a", ir.Null())),
			[]found{{"b", CodeRequired}},
		},
		{
			"additional properties",
			"additionalProperties: false\nproperties: {a: {}}",
			ir.MustMapping(ir.E("a", ir.Int(1)), ir.E("b", ir.Int(2))),
			[]found{{"b", CodeAdditional}},
		},
		{
			"nested path",
			`properties: {user: {properties: {tags: {items: {maxLength: 2}}}}}`,
			ir.MustMapping(ir.E("user", ir.MustMapping(ir.E("tags", ir.NewSequence(ir.String("ok"), ir.String("abc")))))),
			[]found{{"user.tags[1]", CodeMaxLength}},
		},
		{
			"quoted key path",
			`properties: {"a.b": {type: integer}}`,
			ir.MustMapping(ir.E("a.b", ir.String("x"))),
			[]found{{`["a.b"]`, CodeType}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := violations(t, compileYAML(t, tt.schema), tt.node)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("violations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAccumulatesAndLimits(t *testing.T) {
	s := compileYAML(t, `items: {type: integer, minimum: 10}`)
	doc := ir.NewSequence(ir.Int(1), ir.String("x"), ir.Int(3), ir.Int(20))

	all := violations(t, s, doc)
	want := []found{{"[0]", CodeMinimum}, {"[1]", CodeType}, {"[2]", CodeMinimum}}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	report, _ := s.Validate(doc, FailFast())
	if len(report.Violations) != 1 || !report.Truncated {
		t.Errorf("FailFast: %d violations, truncated=%v", len(report.Violations), report.Truncated)
	}
	report, _ = s.Validate(doc, MaxViolations(2))
	if len(report.Violations) != 2 || !report.Truncated {
		t.Errorf("MaxViolations(2): %d violations, truncated=%v", len(report.Violations), report.Truncated)
	}
}

const tableSchema = `
type: array
requiredColumns: [id, email]
maxItems: 2
items:
  type: object
  required: [id, name]
  additionalProperties: false
  properties:
    id: {type: integer, minimum: 1}
    name: {type: string, minLength: 1}
`

var (
	tableColumns = []string{"id", "name", "extra"}
	tableRows    = []ir.Row{
		{ir.Int(1), ir.String("Al"), ir.Null()},
		{ir.Int(0), ir.String(""), ir.Null()},
		{ir.String("x"), ir.String("Bo"), ir.Null()},
	}
	tableWant = []found{
		{"email", CodeColumn},
		{"extra", CodeAdditional},
		{"[1].id", CodeMinimum},
		{"[1].name", CodeMinLength},
		{"[2].id", CodeType},
		{"$", CodeMaxItems},
	}
)

func TestValidateTable(t *testing.T) {
	s := compileYAML(t, tableSchema)
	table, err := ir.NewTable(tableColumns, tableRows)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(tableWant, violations(t, s, table)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateStreamingTable(t *testing.T) {
	s := compileYAML(t, tableSchema)
	i := 0
	it := ir.FuncIterator(func() (ir.Row, error) {
		if i == len(tableRows) {
			return nil, io.EOF
		}
		i++
		return tableRows[i-1], nil
	}, nil)
	table, err := ir.NewStreamingTable(tableColumns, it)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(tableWant, violations(t, s, table)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateStreamingTableReadError(t *testing.T) {
	s := compileYAML(t, tableSchema)
	boom := errors.New("boom")
	table, _ := ir.NewStreamingTable(tableColumns, ir.FuncIterator(func() (ir.Row, error) {
		return nil, boom
	}, nil))
	if _, err := s.Validate(table); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRowValidator(t *testing.T) {
	s := compileYAML(t, tableSchema)
	rv := NewRowValidator(s, tableColumns)
	if got := len(rv.Report().Violations); got != 2 {
		t.Fatalf("column checks: %d violations, want 2", got)
	}
	for i, row := range tableRows {
		ok := rv.Row(i, row)
		if ok != (i == 0) {
			t.Errorf("row %d: ok = %v", i, ok)
		}
	}
	report := rv.Finish()
	rv.Finish()
	var got []found
	for _, v := range report.Violations {
		got = append(got, found{v.Path, v.Code})
	}
	if diff := cmp.Diff(tableWant, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestRowValidatorRejectsTableType(t *testing.T) {
	rv := NewRowValidator(compileYAML(t, `type: object`), []string{"a"})
	if got := rv.Report().Filter(CodeType); len(got) != 1 {
		t.Errorf("type violations = %v", got)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		schema string
		path   string
	}{
		{`[1, 2]`, "$"},
		{`properties: {age: {minimum: "x"}}`, "properties.age.minimum"},
		{`type: colour`, "type"},
		{`type: []`, "type"},
		{`minItems: -1`, "minItems"},
		{`pattern: '('`, "pattern"},
		{`required: [a, 1]`, "required[1]"},
		{`additionalProperties: "no"`, "additionalProperties"},
		{`enum: []`, "enum"},
		{`items: 3`, "items"},
	}
	for _, tt := range tests {
		t.Run(tt.schema, func(t *testing.T) {
			_, err := NewRegistry().CompileBytes([]byte(tt.schema))
			var se *errs.StructureError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want StructureError", err)
			}
			if se.Path != tt.path {
				t.Errorf("path = %q, want %q", se.Path, tt.path)
			}
		})
	}
}

func TestReportSummary(t *testing.T) {
	var empty Report
	if !empty.Valid() || empty.Summary() != "✓ valid" {
		t.Errorf("empty report: valid=%v summary=%q", empty.Valid(), empty.Summary())
	}
	r := &Report{Violations: []Violation{{Path: "age", Code: CodeMinimum, Message: "-1 is less than minimum 0"}}}
	if want := "✗ 1 violation: age: -1 is less than minimum 0 (minimum)"; r.Summary() != want {
		t.Errorf("Summary = %q, want %q", r.Summary(), want)
	}
}
