package transform

import (
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the plaintext size of one encrypted chunk.
const DefaultChunkSize = 64 << 10

// ErrStageOrder is returned by NewPipeline when an encryption stage runs
// before a compression stage.
var ErrStageOrder = errors.New("transform: compression must run before encryption")

// Kind classifies a stage.
type Kind int

const (
	KindCompression Kind = iota + 1
	KindEncryption
)

func (k Kind) String() string {
	switch k {
	case KindCompression:
		return "compression"
	case KindEncryption:
		return "encryption"
	default:
		return "unknown"
	}
}

// Stage is one reversible byte transformation. Encoder must not close w and
// Decoder must not close r; closing what they return flushes or releases only
// the stage itself.
type Stage struct {
	Name    string
	Kind    Kind
	Encoder func(w io.Writer) (io.WriteCloser, error)
	Decoder func(r io.Reader) (io.ReadCloser, error)
}

// Pipeline is an ordered, immutable list of stages.
type Pipeline struct {
	stages []Stage
}

// NewPipeline checks and returns a pipeline applying stages in order on write.
func NewPipeline(stages ...Stage) (*Pipeline, error) {
	encrypted := false
	for i, s := range stages {
		if s.Encoder == nil || s.Decoder == nil {
			return nil, fmt.Errorf("transform: stage %d (%s) is incomplete", i, s.Name)
		}
		switch s.Kind {
		case KindEncryption:
			encrypted = true
		case KindCompression:
			if encrypted {
				return nil, fmt.Errorf("%w: %s follows encryption", ErrStageOrder, s.Name)
			}
		default:
			return nil, fmt.Errorf("transform: stage %d (%s) has no kind", i, s.Name)
		}
	}
	return &Pipeline{stages: append([]Stage(nil), stages...)}, nil
}

// Stages returns a copy of the stage list.
func (p *Pipeline) Stages() []Stage {
	if p == nil {
		return nil
	}
	return append([]Stage(nil), p.stages...)
}

// Len returns the number of stages.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.stages)
}

// Writer returns a writer that encodes into w. Close flushes every stage in
// order but leaves w open.
func (p *Pipeline) Writer(w io.Writer) (io.WriteCloser, error) {
	if p.Len() == 0 {
		return nopWriteCloser{w}, nil
	}
	created := make([]io.WriteCloser, 0, len(p.stages))
	cur := w
	for i := len(p.stages) - 1; i >= 0; i-- {
		wc, err := p.stages[i].Encoder(cur)
		if err != nil {
			for j := len(created) - 1; j >= 0; j-- {
				created[j].Close()
			}
			return nil, err
		}
		created = append(created, wc)
		cur = wc
	}
	// The data side stage was created last and must be closed first.
	closers := make([]io.Closer, len(created))
	for i, c := range created {
		closers[len(created)-1-i] = c
	}
	return &chainWriter{Writer: cur, closers: closers}, nil
}

// Reader returns a reader that decodes r. Close releases every stage but
// leaves r open.
func (p *Pipeline) Reader(r io.Reader) (io.ReadCloser, error) {
	if p.Len() == 0 {
		return io.NopCloser(r), nil
	}
	var created []io.Closer
	cur := r
	for i := len(p.stages) - 1; i >= 0; i-- {
		rc, err := p.stages[i].Decoder(cur)
		if err != nil {
			closeAll(created)
			return nil, err
		}
		created = append(created, rc)
		cur = rc
	}
	return &chainReader{Reader: cur, closers: created}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type chainWriter struct {
	io.Writer
	closers []io.Closer
	closed  bool
}

func (c *chainWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type chainReader struct {
	io.Reader
	closers []io.Closer
	closed  bool
}

func (c *chainReader) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return closeAll(c.closers)
}

// closeAll closes in reverse creation order.
func closeAll(closers []io.Closer) error {
	var failures []error
	for i := len(closers) - 1; i >= 0; i-- {
		failures = append(failures, closers[i].Close())
	}
	return errors.Join(failures...)
}
