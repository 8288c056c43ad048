package convkit

import (
	"errors"
	"io"
	"os"
	"sync"
)

// WriterSink returns a sink that spools to a temporary file and copies the
// result to w only on Commit, so that w never sees a failed conversion.
func WriterSink(w io.Writer) Sink {
	return &writerSink{dst: w}
}

type writerSink struct {
	dst  io.Writer
	mu   sync.Mutex
	tmp  *os.File
	err  error
	done bool
}

func (s *writerSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, ErrSinkClosed
	}
	if s.err != nil {
		return 0, s.err
	}
	if s.tmp == nil {
		f, err := os.CreateTemp("", "convkit-*.spool")
		if err != nil {
			s.err = &PathError{Op: "spool", Path: os.TempDir(), Err: err}
			return 0, s.err
		}
		s.tmp = f
	}
	n, err := s.tmp.Write(p)
	if err != nil {
		s.err = &PathError{Op: "spool", Path: s.tmp.Name(), Err: err}
		return n, s.err
	}
	return n, nil
}

func (s *writerSink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrSinkClosed
	}
	s.done = true
	if s.err != nil {
		s.cleanup()
		return s.err
	}
	if s.tmp == nil {
		return nil
	}
	defer s.cleanup()
	if _, err := s.tmp.Seek(0, io.SeekStart); err != nil {
		return &PathError{Op: "commit", Path: s.tmp.Name(), Err: err}
	}
	if _, err := io.Copy(s.dst, s.tmp); err != nil {
		return &PathError{Op: "commit", Path: s.tmp.Name(), Err: err}
	}
	return nil
}

func (s *writerSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrSinkClosed
	}
	s.done = true
	return s.cleanup()
}

func (s *writerSink) cleanup() error {
	if s.tmp == nil {
		return nil
	}
	name := s.tmp.Name()
	err := errors.Join(s.tmp.Close(), os.Remove(name))
	s.tmp = nil
	return err
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ Sink = (*writerSink)(nil)
