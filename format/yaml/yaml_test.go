package yaml

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
)

var nodeComparer = cmp.Comparer(ir.Equal)

func read(t *testing.T, input string) ir.Node {
	t.Helper()
	doc, err := NewReader().Read(context.Background(), strings.NewReader(input), format.ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return doc.Root
}

func write(t *testing.T, root ir.Node) string {
	t.Helper()
	var buf bytes.Buffer
	if err := NewWriter().Write(context.Background(), &buf, ir.NewDocument(root, ""), format.WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.String()
}

func TestReadTags(t *testing.T) {
	input := `
s: hello
q: "123"
i: 0x1F
o: 0o17
neg: -42
f: 1.5
e: 1e3
inf: .inf
ninf: -.inf
nan: .NaN
b: True
n: ~
d: 2024-01-02
ts: 2024-01-02T03:04:05Z
bin: !!binary aGVsbG8=
custom: !thing x
`
	got := read(t, input)
	want := ir.MustMapping(
		ir.E("s", ir.String("hello")),
		ir.E("q", ir.String("123")),
		ir.E("i", ir.Int(31)),
		ir.E("o", ir.Int(15)),
		ir.E("neg", ir.Int(-42)),
		ir.E("f", ir.MustScalar("1.5", ir.HintFloat)),
		ir.E("e", ir.MustScalar("1000.0", ir.HintFloat)),
		ir.E("inf", ir.MustScalar("+Inf", ir.HintFloat)),
		ir.E("ninf", ir.MustScalar("-Inf", ir.HintFloat)),
		ir.E("nan", ir.MustScalar("NaN", ir.HintFloat)),
		ir.E("b", ir.Bool(true)),
		ir.E("n", ir.Null()),
		ir.E("d", ir.MustScalar("2024-01-02", ir.HintDate)),
		ir.E("ts", ir.MustScalar("2024-01-02T03:04:05Z", ir.HintDate)),
		ir.E("bin", ir.Binary([]byte("hello"))),
		ir.E("custom", ir.String("x")),
	)
	if diff := cmp.Diff(want, got, nodeComparer); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestReadAliasesAndMerge(t *testing.T) {
	input := `
base: &base
  host: localhost
  port: 80
dev:
  <<: *base
  port: 8080
list: [*base]
`
	got := read(t, input)
	base := ir.MustMapping(ir.E("host", ir.String("localhost")), ir.E("port", ir.Int(80)))
	want := ir.MustMapping(
		ir.E("base", base),
		ir.E("dev", ir.MustMapping(ir.E("host", ir.String("localhost")), ir.E("port", ir.Int(8080)))),
		ir.E("list", ir.NewSequence(base)),
	)
	if diff := cmp.Diff(want, got, nodeComparer); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestReadEmpty(t *testing.T) {
	if got := read(t, ""); !got.IsNull() {
		t.Errorf("empty input should read as null, got %s", got.Kind())
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"syntax", "a: [1, 2\nb: c\n", errs.ErrParse},
		{"complex key", "? [a, b]\n: c\n", errs.ErrParse},
		{"duplicate key", "a: 1\na: 2\n", errs.ErrParse},
		{"two documents", "a: 1\n---\nb: 2\n", errs.ErrParse},
		{"depth", strings.Repeat("- ", 12) + "x\n", errs.ErrDepthExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader().Read(context.Background(), strings.NewReader(tt.input), format.ReadOptions{MaxDepth: 10})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadErrorLine(t *testing.T) {
	_, err := NewReader().Read(context.Background(), strings.NewReader("a: 1\nb: 2\na: 3\n"), format.ReadOptions{})
	var pe *errs.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Line != 3 || pe.Path != "a" {
		t.Errorf("line %d path %q, want line 3 path a", pe.Line, pe.Path)
	}
}

func TestWriteQuotesAmbiguousStrings(t *testing.T) {
	root := ir.MustMapping(
		ir.E("s", ir.String("123")),
		ir.E("t", ir.String("true")),
		ir.E("empty", ir.String("")),
		ir.E("n", ir.Null()),
		ir.E("i", ir.MustScalar("007", ir.HintInteger)),
		ir.E("inf", ir.MustScalar("+Inf", ir.HintFloat)),
		ir.E("bin", ir.Binary([]byte("hi"))),
	)
	got := write(t, root)
	want := `s: "123"
t: "true"
empty: ""
n: null
i: 7
inf: .inf
bin: !!binary aGk=
`
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteTableStreams(t *testing.T) {
	table, _ := ir.NewTable([]string{"id", "name"}, []ir.Row{
		{ir.Int(1), ir.String("a")},
		{ir.Int(2), ir.Null()},
	})
	got := write(t, table)
	want := "- id: 1\n  name: a\n- id: 2\n  name: null\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
	seq, _ := ir.TableToSequence(table)
	if again := write(t, seq); again != want {
		t.Errorf("table and sequence output differ:\n%s\n%s", want, again)
	}
	empty, _ := ir.NewTable([]string{"id"}, nil)
	if got := write(t, empty); got != "[]\n" {
		t.Errorf("empty table = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	root := ir.MustMapping(
		ir.E("name", ir.String("convkit")),
		ir.E("version", ir.MustScalar("1.10", ir.HintFloat)),
		ir.E("looks_numeric", ir.String("1.10")),
		ir.E("yes", ir.String("yes")),
		ir.E("multi", ir.String("line one\nline two\n")),
		ir.E("when", ir.MustScalar("2024-05-06T07:08:09Z", ir.HintDate)),
		ir.E("blob", ir.Binary([]byte{0, 1, 2, 255})),
		ir.E("nested", ir.NewSequence(ir.MustMapping(ir.E("k", ir.Int(-3))), ir.NewSequence(), ir.MustMapping())),
		ir.E("nothing", ir.Null()),
	)
	out := write(t, root)
	got := read(t, out)
	if diff := cmp.Diff(root, got, nodeComparer); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s\noutput:\n%s", diff, out)
	}
	if again := write(t, got); again != out {
		t.Errorf("writer not deterministic:\n%s\n%s", out, again)
	}
}
