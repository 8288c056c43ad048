package ir

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gobeaver/convkit/errs"
)

func TestNewScalar(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		hint    Hint
		wantErr bool
	}{
		{"string", "hello", HintString, false},
		{"integer", "-42", HintInteger, false},
		{"integer leading zeros", "007", HintInteger, false},
		{"bad integer", "4.2", HintInteger, true},
		{"float", "3.14", HintFloat, false},
		{"float exponent", "1e10", HintFloat, false},
		{"float huge", "1e400", HintFloat, false},
		{"bad float", "abc", HintFloat, true},
		{"bool", "true", HintBoolean, false},
		{"bool uppercase", "TRUE", HintBoolean, true},
		{"null", "", HintNull, false},
		{"null with value", "x", HintNull, true},
		{"date", "2024-01-02", HintDate, false},
		{"datetime", "2024-01-02T03:04:05Z", HintDate, false},
		{"bad date", "yesterday", HintDate, true},
		{"binary", "aGVsbG8=", HintBinary, false},
		{"bad binary", "!!", HintBinary, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewScalar(tt.value, tt.hint)
			if tt.wantErr {
				if !errors.Is(err, errs.ErrStructure) {
					t.Fatalf("NewScalar(%q, %s) error = %v, want StructureError", tt.value, tt.hint, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewScalar(%q, %s) unexpected error: %v", tt.value, tt.hint, err)
			}
			if n.Value() != tt.value || n.Hint() != tt.hint {
				t.Errorf("got (%q, %s)", n.Value(), n.Hint())
			}
		})
	}
}

func TestZeroNodeIsNull(t *testing.T) {
	var n Node
	if !n.IsNull() || n.Kind() != ScalarKind {
		t.Fatalf("zero Node should be the null scalar, got kind %s hint %s", n.Kind(), n.Hint())
	}
	if !Equal(n, Null()) {
		t.Error("zero Node should equal Null()")
	}
}

func TestScalarConstructors(t *testing.T) {
	if got := Int(-5).Value(); got != "-5" {
		t.Errorf("Int(-5) = %q", got)
	}
	if got := Float(2).Value(); got != "2.0" {
		t.Errorf("Float(2) = %q", got)
	}
	if got := Bool(false).Value(); got != "false" {
		t.Errorf("Bool(false) = %q", got)
	}
	if got := Binary([]byte("hi")).Value(); got != "aGk=" {
		t.Errorf("Binary = %q", got)
	}
	d := Date(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	if d.Value() != "2024-05-06T07:08:09Z" || d.Hint() != HintDate {
		t.Errorf("Date = (%q, %s)", d.Value(), d.Hint())
	}
}

func TestMappingDuplicateKey(t *testing.T) {
	_, err := NewMapping(E("a", Int(1)), E("b", Int(2)), E("a", Int(3)))
	var se *errs.StructureError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructureError, got %v", err)
	}
	if se.Path != "a" {
		t.Errorf("path = %q, want %q", se.Path, "a")
	}
}

func TestMappingOrderAndLookup(t *testing.T) {
	m := MustMapping(E("z", Int(1)), E("a", String("x")))
	keys := m.Keys()
	if len(keys) != 2 || keys[0] != "z" || keys[1] != "a" {
		t.Fatalf("keys = %v", keys)
	}
	v, ok := m.Get("a")
	if !ok || v.Value() != "x" {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) should fail")
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	seq := NewSequence(Int(1), Int(2))
	items := seq.Items()
	items[0] = String("changed")
	if seq.Item(0).Value() != "1" {
		t.Error("mutating Items() result changed the node")
	}

	m := MustMapping(E("k", Int(1)))
	entries := m.Entries()
	entries[0].Value = Int(9)
	if v, _ := m.Get("k"); v.Value() != "1" {
		t.Error("mutating Entries() result changed the node")
	}
}

func TestNewTable(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    []Row
		path    string
	}{
		{"short row", []string{"a", "b"}, []Row{{Int(1), Int(2)}, {Int(1)}}, "[1]"},
		{"long row", []string{"a"}, []Row{{Int(1), Int(2)}}, "[0]"},
		{"nested cell", []string{"a"}, []Row{{NewSequence()}}, "[0].a"},
		{"duplicate column", []string{"a", "a"}, nil, ""},
		{"empty column", []string{""}, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.columns, tt.rows)
			var se *errs.StructureError
			if !errors.As(err, &se) {
				t.Fatalf("expected StructureError, got %v", err)
			}
			if se.Path != tt.path {
				t.Errorf("path = %q, want %q", se.Path, tt.path)
			}
		})
	}
}

func rowSource(rows []Row) (RowIterator, *bool) {
	closed := false
	i := 0
	return FuncIterator(func() (Row, error) {
		if i >= len(rows) {
			return nil, io.EOF
		}
		i++
		return rows[i-1], nil
	}, func() error {
		closed = true
		return nil
	}), &closed
}

func TestStreamingTableSinglePass(t *testing.T) {
	src, closed := rowSource([]Row{{Int(1)}, {Int(2)}})
	n, err := NewStreamingTable([]string{"n"}, src)
	if err != nil {
		t.Fatal(err)
	}
	it := n.Table().Rows()
	count := 0
	for it.Next() {
		count++
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("rows = %d, want 2", count)
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if !*closed {
		t.Error("Close did not release the source")
	}

	again := n.Table().Rows()
	if again.Next() {
		t.Error("second Rows() should be empty")
	}
	if !errors.Is(again.Err(), ErrConsumed) {
		t.Errorf("second Rows() err = %v, want ErrConsumed", again.Err())
	}
}

func TestStreamingTableChecksRows(t *testing.T) {
	src, _ := rowSource([]Row{{Int(1), Int(2)}, {Int(3)}})
	n, err := NewStreamingTable([]string{"a", "b"}, src)
	if err != nil {
		t.Fatal(err)
	}
	it := n.Table().Rows()
	defer it.Close()
	count := 0
	for it.Next() {
		count++
	}
	if count != 1 {
		t.Errorf("rows before failure = %d, want 1", count)
	}
	if !errors.Is(it.Err(), errs.ErrStructure) {
		t.Errorf("err = %v, want StructureError", it.Err())
	}
}

func TestStreamingTableCloseUnread(t *testing.T) {
	src, closed := rowSource(nil)
	n, err := NewStreamingTable([]string{"a"}, src)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Table().Close(); err != nil {
		t.Fatal(err)
	}
	if !*closed {
		t.Error("Table.Close did not release the source")
	}
}

func TestPaths(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{JoinKey("", "a"), "a"},
		{JoinKey("a", "b"), "a.b"},
		{JoinIndex(JoinKey("a", "b"), 2), "a.b[2]"},
		{JoinKey(JoinIndex(JoinKey("a", "b"), 2), "c"), "a.b[2].c"},
		{JoinKey(JoinIndex("", 3), "age"), "[3].age"},
		{JoinKey("a", "x.y"), `a["x.y"]`},
		{JoinKey("a", ""), `a[""]`},
		{DisplayPath(""), "$"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
