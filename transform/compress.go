package transform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/gobeaver/convkit/errs"
)

// DefaultZipEntry names the single entry of archives written by the zip stage.
const DefaultZipEntry = "data"

// Gzip returns a gzip stage. Output carries no name or modification time.
func Gzip() Stage {
	return Stage{
		Name: "gzip",
		Kind: KindCompression,
		Encoder: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		},
		Decoder: func(r io.Reader) (io.ReadCloser, error) {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, compressionErr("gzip", err)
			}
			return &decodeReader{r: zr, c: zr, algorithm: "gzip"}, nil
		},
	}
}

// Zstd returns a Zstandard stage. Encoding and decoding run on the calling
// goroutine so that output is deterministic and memory stays bounded.
func Zstd() Stage {
	return Stage{
		Name: "zstd",
		Kind: KindCompression,
		Encoder: func(w io.Writer) (io.WriteCloser, error) {
			zw, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
			if err != nil {
				return nil, &errs.CompressionError{Op: "encode", Algorithm: "zstd", Err: err}
			}
			return zw, nil
		},
		Decoder: func(r io.Reader) (io.ReadCloser, error) {
			br := bufio.NewReader(r)
			if _, err := br.Peek(1); err != nil {
				return nil, compressionErr("zstd", err)
			}
			zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, compressionErr("zstd", err)
			}
			rc := zr.IOReadCloser()
			return &decodeReader{r: rc, c: rc, algorithm: "zstd"}, nil
		},
	}
}

// XZ returns an xz stage.
func XZ() Stage {
	return Stage{
		Name: "xz",
		Kind: KindCompression,
		Encoder: func(w io.Writer) (io.WriteCloser, error) {
			xw, err := xz.NewWriter(w)
			if err != nil {
				return nil, &errs.CompressionError{Op: "encode", Algorithm: "xz", Err: err}
			}
			return xw, nil
		},
		Decoder: func(r io.Reader) (io.ReadCloser, error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, compressionErr("xz", err)
			}
			return &decodeReader{r: xr, algorithm: "xz"}, nil
		},
	}
}

// Zip returns a stage that stores the stream as the only entry of a zip
// archive. Decoding spools the archive to a temporary file because the zip
// directory sits at the end; the file is removed on Close.
func Zip(entry string) Stage {
	if entry == "" {
		entry = DefaultZipEntry
	}
	return Stage{
		Name: "zip",
		Kind: KindCompression,
		Encoder: func(w io.Writer) (io.WriteCloser, error) {
			zw := zip.NewWriter(w)
			ew, err := zw.CreateHeader(&zip.FileHeader{Name: entry, Method: zip.Deflate})
			if err != nil {
				return nil, &errs.CompressionError{Op: "encode", Algorithm: "zip", Err: err}
			}
			return &zipWriter{Writer: ew, zw: zw}, nil
		},
		Decoder: openZip,
	}
}

type zipWriter struct {
	io.Writer
	zw *zip.Writer
}

func (z *zipWriter) Close() error { return z.zw.Close() }

func openZip(r io.Reader) (io.ReadCloser, error) {
	f, err := os.CreateTemp("", "convkit-zip-*")
	if err != nil {
		return nil, &errs.IOError{Op: "spool zip", Err: err}
	}
	discard := func() {
		f.Close()
		os.Remove(f.Name())
	}
	size, err := io.Copy(f, r)
	if err != nil {
		discard()
		if errs.KindOf(err) != errs.KindUnknown || isContextErr(err) {
			return nil, err
		}
		return nil, &errs.IOError{Op: "spool zip", Path: f.Name(), Err: err}
	}
	zr, err := zip.NewReader(f, size)
	if err != nil {
		discard()
		return nil, compressionErr("zip", err)
	}
	var entry *zip.File
	for _, file := range zr.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if entry != nil {
			discard()
			return nil, &errs.CompressionError{Op: "decode", Algorithm: "zip", Err: errors.New("archive holds more than one file")}
		}
		entry = file
	}
	if entry == nil {
		discard()
		return nil, &errs.CompressionError{Op: "decode", Algorithm: "zip", Err: errors.New("archive is empty")}
	}
	rc, err := entry.Open()
	if err != nil {
		discard()
		return nil, compressionErr("zip", err)
	}
	return &decodeReader{r: rc, algorithm: "zip", c: closerFunc(func() error {
		err := rc.Close()
		discard()
		return err
	})}, nil
}

// decodeReader classifies decoder failures as CompressionErrors. Failures of
// the source stream, already classified upstream, pass through.
type decodeReader struct {
	r         io.Reader
	c         io.Closer
	algorithm string
}

func (d *decodeReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = compressionErr(d.algorithm, err)
	}
	return n, err
}

func (d *decodeReader) Close() error {
	if d.c == nil {
		return nil
	}
	return d.c.Close()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func compressionErr(algorithm string, err error) error {
	if errs.KindOf(err) != errs.KindUnknown || isContextErr(err) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("empty input: %w", io.ErrUnexpectedEOF)
	}
	return &errs.CompressionError{Op: "decode", Algorithm: algorithm, Err: err}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
