package convkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/format"
)

// ConvertFile converts the file at srcPath into dstPath within store. Formats
// and compression are taken from the file names, so "orders.csv.gz" is read as
// gzip-compressed CSV; explicit options override them. A destination ending in
// ".enc" needs an encryption option.
func (c *Converter) ConvertFile(ctx context.Context, store Store, srcPath, dstPath string, opts ...ConvertOption) (*Result, error) {
	src, err := GuessFileType(srcPath)
	if err != nil {
		return nil, err
	}
	dst, err := GuessFileType(dstPath)
	if err != nil {
		return nil, err
	}

	var guessed []ConvertOption
	if src.Compression != "" {
		guessed = append(guessed, WithInputCompression(src.Compression))
	}
	if dst.Compression != "" {
		guessed = append(guessed, WithCompression(dst.Compression))
	}
	o := c.options(append(guessed, opts...))
	if dst.Encrypted && o.Encryption == nil {
		return nil, &errs.CryptoError{Op: "configure", Err: fmt.Errorf("%s names an encrypted file and no encryption key is configured", dstPath)}
	}

	r, err := store.Open(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	sink, err := store.Create(ctx, dstPath)
	if err != nil {
		return nil, err
	}
	log := c.logger.With(slog.String("src", srcPath), slog.String("dst", dstPath))
	return c.run(ctx, r, sink, src.Format, dst.Format, o, log)
}

// FileResult is the outcome of converting one file in ConvertAll.
type FileResult struct {
	Path   string
	Target string
	Result *Result
	Err    error
}

// ConvertAll converts every file in store matching pattern to the format to,
// writing each next to its source. Files are converted independently and
// concurrently; a failure does not stop the others. The returned error joins
// the failures, and the results list every attempted file in path order.
//
// Files whose target name equals their own, such as outputs of an earlier
// run, are skipped.
func (c *Converter) ConvertAll(ctx context.Context, store Store, pattern, to string, opts ...ConvertOption) ([]FileResult, error) {
	if _, err := format.Lookup(to); err != nil {
		return nil, err
	}
	files, err := store.List(ctx, pattern)
	if err != nil {
		return nil, err
	}

	o := c.options(opts)
	target := FileType{Format: to, Encrypted: o.Encryption != nil}
	if !strings.EqualFold(o.Compression, "none") {
		target.Compression = o.Compression
	}

	results := make([]FileResult, 0, len(files))
	for _, f := range files {
		if _, err := GuessFileType(f.Path); err != nil {
			c.logger.Debug("skipping file", slog.String("path", f.Path), slog.Any("error", err))
			continue
		}
		name, err := target.Name(f.Path)
		if err != nil {
			return nil, err
		}
		if name == f.Path {
			continue
		}
		results = append(results, FileResult{Path: f.Path, Target: name})
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i := range results {
		fr := &results[i]
		g.Go(func() error {
			fr.Result, fr.Err = c.ConvertFile(ctx, store, fr.Path, fr.Target, opts...)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, fr := range results {
		if fr.Err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", fr.Path, fr.Err))
		}
	}
	if len(failed) > 0 {
		c.logger.Warn("batch finished with failures",
			slog.Int("files", len(results)),
			slog.Int("failed", len(failed)),
		)
	}
	return results, errors.Join(failed...)
}
