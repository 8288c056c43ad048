// Package format defines the contract every convkit adapter implements, the
// registry that maps format names to adapters, and the shared write policies
// (flattening, tabular shaping) and read policies (depth bound) adapters apply.
//
// Adapters live in subpackages and register themselves from init:
//
//	import _ "github.com/gobeaver/convkit/format/csv"
//
//	a, err := format.Lookup("csv")
//	doc, err := a.NewReader().Read(ctx, r, format.ReadOptions{})
//
// The registry is populated at process start and read-only afterwards.
package format

import (
	"context"
	"io"

	"github.com/gobeaver/convkit/ir"
)

// Reader parses a byte stream into a Document. Tabular readers return a streaming
// Table whose rows keep reading r; r must stay open until the rows are consumed
// or the table is closed.
type Reader interface {
	Read(ctx context.Context, r io.Reader, opts ReadOptions) (*ir.Document, error)
}

// Writer serializes a Document. Writers are deterministic: the same document and
// options always produce the same bytes.
type Writer interface {
	Write(ctx context.Context, w io.Writer, doc *ir.Document, opts WriteOptions) error
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, r io.Reader, opts ReadOptions) (*ir.Document, error)

func (f ReaderFunc) Read(ctx context.Context, r io.Reader, opts ReadOptions) (*ir.Document, error) {
	return f(ctx, r, opts)
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, w io.Writer, doc *ir.Document, opts WriteOptions) error

func (f WriterFunc) Write(ctx context.Context, w io.Writer, doc *ir.Document, opts WriteOptions) error {
	return f(ctx, w, doc, opts)
}
