package convkit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gobeaver/convkit"
	"github.com/gobeaver/convkit/driver/memory"
)

func TestReadOnlyStore(t *testing.T) {
	ctx := context.Background()
	src := newStore(t, map[string]string{"orders.csv": "id\n1\n"})

	var attempts []string
	ro := convkit.ReadOnly(src, convkit.WithWriteAttemptHandler(func(p string) {
		attempts = append(attempts, p)
	}))

	if !convkit.IsReadOnly(ro) || convkit.IsReadOnly(src) {
		t.Error("IsReadOnly reports the wrong stores")
	}
	if ro.Unwrap() != convkit.Store(src) {
		t.Error("Unwrap does not return the wrapped store")
	}

	if got := readFile(t, ro, "orders.csv"); got != "id\n1\n" {
		t.Errorf("Open = %q", got)
	}
	files, err := ro.List(ctx, "*.csv")
	if err != nil || len(files) != 1 {
		t.Errorf("List = %v, %v", files, err)
	}

	_, err = ro.Create(ctx, "orders.csv")
	if !errors.Is(err, convkit.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	var pe *convkit.PathError
	if !errors.As(err, &pe) || pe.Op != "create" {
		t.Errorf("err = %#v, want a create PathError", err)
	}
	if len(attempts) != 1 || attempts[0] != "orders.csv" {
		t.Errorf("write attempts = %v", attempts)
	}

	token, err := ro.Watch(ctx, "*.csv")
	if err != nil {
		t.Fatalf("Watch error = %v", err)
	}
	src.Put("more.csv", []byte("id\n2\n"))
	if !token.HasChanged() {
		t.Error("watch not delegated to the wrapped store")
	}
}

func TestReadOnlyProtectsSources(t *testing.T) {
	ctx := context.Background()
	src := newStore(t, map[string]string{"orders.csv": "id\n1\n"})
	out := memory.New()

	m := convkit.NewMountManager()
	m.Mount("in", convkit.ReadOnly(src))
	m.Mount("out", out)

	c := convkit.NewConverter()
	if _, err := c.ConvertFile(ctx, m, "in/orders.csv", "out/orders.json"); err != nil {
		t.Fatalf("ConvertFile error = %v", err)
	}
	if _, err := c.ConvertFile(ctx, m, "out/orders.json", "in/orders.csv"); !errors.Is(err, convkit.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	if got := readFile(t, src, "orders.csv"); got != "id\n1\n" {
		t.Errorf("source modified: %q", got)
	}
}
