package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/ir"
)

func TestCompileBytesMemoised(t *testing.T) {
	r := NewRegistry()
	data := []byte(`{"type": "object", "properties": {"n": {"type": "integer"}}}`)

	var wg sync.WaitGroup
	results := make([]*Schema, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.CompileBytes(data)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = s
		}(i)
	}
	wg.Wait()
	for i, s := range results {
		if s != results[0] {
			t.Errorf("result %d is a different schema", i)
		}
	}

	report, err := results[0].Validate(ir.MustMapping(ir.E("n", ir.String("x"))))
	if err != nil || report.Valid() {
		t.Errorf("JSON schema not applied: report=%v err=%v", report, err)
	}
}

func TestCompileBytesParseError(t *testing.T) {
	_, err := NewRegistry().CompileBytes([]byte(`{"type": `))
	if !errors.Is(err, errs.ErrParse) {
		t.Errorf("err = %v, want ParseError", err)
	}
}

func TestNamedSchemas(t *testing.T) {
	r := NewRegistry()
	s := MustCompile(ir.MustMapping(ir.E("type", ir.String("string"))))
	if err := r.Register("name", s); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("name", s); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := r.Register("", s); err == nil {
		t.Error("empty name should fail")
	}
	if got, ok := r.Lookup("name"); !ok || got != s {
		t.Errorf("Lookup = %v, %v", got, ok)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup of missing name succeeded")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "name" {
		t.Errorf("Names = %v", names)
	}
}
