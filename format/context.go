package format

import (
	"context"
	"errors"
	"io"

	"github.com/gobeaver/convkit/ir"
)

// CheckEvery is how many rows writers process between context checks.
const CheckEvery = 256

// ContextRows stops it once ctx is done; the context error is reported by Err.
func ContextRows(ctx context.Context, it ir.RowIterator) ir.RowIterator {
	if ctx.Done() == nil {
		return it
	}
	n := 0
	return ir.MapRows(it, func(_ int, row ir.Row) (ir.Row, error) {
		n++
		if n%CheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		return row, nil
	})
}

// ContextReader fails reads once ctx is done.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	if ctx.Done() == nil {
		return r
	}
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// TrackedReader records the first failure of the wrapped stream other than EOF.
// Decoders that report such failures as text or as malformed input use it to
// tell a failed source (a wrong key, a corrupt archive) from bad syntax.
type TrackedReader struct {
	R   io.Reader
	Err error
}

func (t *TrackedReader) Read(p []byte) (int, error) {
	n, err := t.R.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.Err == nil {
		t.Err = err
	}
	return n, err
}
