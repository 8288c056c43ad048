package format

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/ir"
)

func init() {
	Register(Adapter{
		Name: "fake",
		NewReader: func() Reader {
			return ReaderFunc(func(ctx context.Context, r io.Reader, opts ReadOptions) (*ir.Document, error) {
				return ir.NewDocument(ir.Null(), "fake"), nil
			})
		},
		NewWriter: func() Writer {
			return WriterFunc(func(ctx context.Context, w io.Writer, doc *ir.Document, opts WriteOptions) error {
				return nil
			})
		},
		Extensions: []string{".fk", "fake"},
		Aliases:    []string{"FK"},
	})
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"fake", "FAKE", "fk", "Fk"} {
		a, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if a.Name != "fake" {
			t.Errorf("Lookup(%q).Name = %q", name, a.Name)
		}
	}
	if _, err := Lookup("nope"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Lookup(nope) err = %v, want ErrUnknownFormat", err)
	}
}

func TestByExtension(t *testing.T) {
	if a, ok := ByExtension(".FK"); !ok || a.Name != "fake" {
		t.Errorf("ByExtension(.FK) = %v, %v", a.Name, ok)
	}
	if _, ok := ByExtension("zzz"); ok {
		t.Error("ByExtension(zzz) should miss")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	a, _ := Lookup("fake")
	Register(a)
}

func TestDefaults(t *testing.T) {
	var ro ReadOptions
	if ro.Depth() != 500 || ro.Comma() != ',' || !ro.InferTypes() {
		t.Errorf("unexpected read defaults: depth %d comma %q infer %v", ro.Depth(), ro.Comma(), ro.InferTypes())
	}
	var wo WriteOptions
	if wo.Root() != "root" || wo.Item() != "item" || wo.SheetName() != "Sheet1" || wo.IndentWidth() != 2 {
		t.Error("unexpected write defaults")
	}
	if _, ok := wo.GetFlattener().(DottedFlattener); !ok {
		t.Error("default flattener should be DottedFlattener")
	}
}

func TestCheckDepth(t *testing.T) {
	if err := CheckDepth("json", 500, 500, "a"); err != nil {
		t.Errorf("depth at the limit should pass: %v", err)
	}
	err := CheckDepth("json", 501, 500, "a[0]")
	var de *errs.DepthExceededError
	if !errors.As(err, &de) || de.Limit != 500 || de.Path != "a[0]" {
		t.Errorf("CheckDepth over the limit = %v", err)
	}
}

func collect(t *testing.T, it ir.RowIterator) []ir.Row {
	t.Helper()
	defer it.Close()
	var rows []ir.Row
	for it.Next() {
		rows = append(rows, it.Row())
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestTabularFlatRecords(t *testing.T) {
	root := ir.NewSequence(
		ir.MustMapping(ir.E("id", ir.Int(1)), ir.E("name", ir.String("a"))),
		ir.MustMapping(ir.E("id", ir.Int(2)), ir.E("extra", ir.Bool(true))),
	)
	cols, it, err := Tabular("csv", root, WriteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"id", "name", "extra"}
	if len(cols) != 3 || cols[0] != want[0] || cols[1] != want[1] || cols[2] != want[2] {
		t.Fatalf("columns = %v, want %v", cols, want)
	}
	rows := collect(t, it)
	if len(rows) != 2 || !rows[1][1].IsNull() || rows[1][2].Value() != "true" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestTabularShapeMismatch(t *testing.T) {
	nested := ir.NewSequence(ir.MustMapping(
		ir.E("id", ir.Int(1)),
		ir.E("address", ir.MustMapping(ir.E("city", ir.String("Oslo")))),
	))
	tests := []struct {
		name string
		root ir.Node
		opts WriteOptions
		path string
	}{
		{"scalar", ir.Int(1), WriteOptions{}, ""},
		{"scalar with flatten", ir.Int(1), WriteOptions{Flatten: true}, ""},
		{"mapping root", ir.MustMapping(ir.E("a", ir.Int(1))), WriteOptions{}, ""},
		{"nested mapping", nested, WriteOptions{}, "[0].address"},
		{"sequence of scalars", ir.NewSequence(ir.Int(1)), WriteOptions{}, "[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Tabular("csv", tt.root, tt.opts)
			var sm *errs.ShapeMismatchError
			if !errors.As(err, &sm) {
				t.Fatalf("expected ShapeMismatchError, got %v", err)
			}
			if sm.Path != tt.path {
				t.Errorf("path = %q, want %q", sm.Path, tt.path)
			}
		})
	}
}

func TestTabularFlatten(t *testing.T) {
	root := ir.NewSequence(ir.MustMapping(
		ir.E("id", ir.Int(1)),
		ir.E("address", ir.MustMapping(ir.E("city", ir.String("Oslo")), ir.E("zip", ir.String("0150")))),
		ir.E("tags", ir.NewSequence(ir.String("x"), ir.String("y"))),
		ir.E("empty", ir.NewSequence()),
	))
	cols, it, err := Tabular("csv", root, WriteOptions{Flatten: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"id", "address.city", "address.zip", "tags.0", "tags.1", "empty"}
	if len(cols) != len(want) {
		t.Fatalf("columns = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, cols[i], want[i])
		}
	}
	rows := collect(t, it)
	if len(rows) != 1 || rows[0][1].Value() != "Oslo" || !rows[0][5].IsNull() {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestTabularMappingRootFlattensToOneRow(t *testing.T) {
	root := ir.MustMapping(ir.E("a", ir.MustMapping(ir.E("b", ir.Int(1)))), ir.E("c", ir.Int(2)))
	cols, it, err := Tabular("csv", root, WriteOptions{Flatten: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 2 || cols[0] != "a.b" || cols[1] != "c" {
		t.Errorf("columns = %v", cols)
	}
	if rows := collect(t, it); len(rows) != 1 {
		t.Errorf("rows = %d, want 1", len(rows))
	}
}

func TestTabularCustomFlattener(t *testing.T) {
	root := ir.NewSequence(ir.MustMapping(ir.E("a", ir.MustMapping(ir.E("b", ir.Int(1))))))
	cols, it, err := Tabular("csv", root, WriteOptions{Flatten: true, Flattener: DottedFlattener{Separator: "_"}})
	if err != nil {
		t.Fatal(err)
	}
	it.Close()
	if len(cols) != 1 || cols[0] != "a_b" {
		t.Errorf("columns = %v, want [a_b]", cols)
	}
}

func TestTabularFlattenCollision(t *testing.T) {
	root := ir.NewSequence(ir.MustMapping(
		ir.E("a.b", ir.Int(1)),
		ir.E("a", ir.MustMapping(ir.E("b", ir.Int(2)))),
	))
	if _, _, err := Tabular("csv", root, WriteOptions{Flatten: true}); !errs.IsShapeMismatch(err) {
		t.Errorf("expected ShapeMismatch for colliding keys, got %v", err)
	}
}

func TestContextRows(t *testing.T) {
	rows := make([]ir.Row, CheckEvery*2)
	for i := range rows {
		rows[i] = ir.Row{ir.Int(int64(i))}
	}
	table, _ := ir.NewTable([]string{"n"}, rows)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	it := ContextRows(ctx, table.Table().Rows())
	n := 0
	for it.Next() {
		n++
	}
	if !errors.Is(it.Err(), context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", it.Err())
	}
	if n >= len(rows) {
		t.Errorf("iteration did not stop early")
	}
}
