package convkit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/gobeaver/convkit/errs"
	"github.com/gobeaver/convkit/format"
	"github.com/gobeaver/convkit/ir"
	"github.com/gobeaver/convkit/schema"
	"github.com/gobeaver/convkit/transform"

	// Built-in formats.
	_ "github.com/gobeaver/convkit/format/csv"
	_ "github.com/gobeaver/convkit/format/excel"
	_ "github.com/gobeaver/convkit/format/json"
	_ "github.com/gobeaver/convkit/format/xml"
	_ "github.com/gobeaver/convkit/format/yaml"
)

// DefaultConcurrency bounds ConvertAll when no limit is configured.
const DefaultConcurrency = 4

// Converter runs conversions. It holds no per-call state and is safe for
// concurrent use.
type Converter struct {
	logger      *slog.Logger
	secrets     SecretProvider
	defaults    []ConvertOption
	concurrency int
}

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) ConverterOption {
	return func(c *Converter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSecrets sets the provider that resolves encryption key ids.
func WithSecrets(p SecretProvider) ConverterOption {
	return func(c *Converter) {
		c.secrets = p
	}
}

// WithDefaults adds options applied to every conversion before the options
// of the call.
func WithDefaults(opts ...ConvertOption) ConverterOption {
	return func(c *Converter) {
		c.defaults = append(c.defaults, opts...)
	}
}

// WithConcurrency bounds how many files ConvertAll converts at once.
func WithConcurrency(n int) ConverterOption {
	return func(c *Converter) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewConverter returns a Converter.
func NewConverter(opts ...ConverterOption) *Converter {
	c := &Converter{
		logger:      slog.New(slog.DiscardHandler),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Converter) options(opts []ConvertOption) *Options {
	o := &Options{}
	for _, opt := range c.defaults {
		opt(o)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Convert reads src as format from and writes it to dst as format to.
//
// The input is decrypted and decompressed when it is encrypted or compressed,
// decoded from the configured charset, parsed, validated, trimmed to the row
// limit and renamed, then written, compressed and encrypted into dst. dst is
// committed only when every step succeeded and aborted otherwise. Tables are
// streamed: rows are read, validated and written one at a time.
//
// A strict conversion whose document violates the schema fails with a
// ValidationFailedError carrying the report.
func (c *Converter) Convert(ctx context.Context, src io.Reader, dst Sink, from, to string, opts ...ConvertOption) (*Result, error) {
	return c.run(ctx, src, dst, from, to, c.options(opts), c.logger)
}

func (c *Converter) run(ctx context.Context, src io.Reader, dst Sink, from, to string, o *Options, log *slog.Logger) (*Result, error) {
	res := &Result{ID: uuid.NewString(), From: from, To: to}
	log = log.With(
		slog.String("conversion_id", res.ID),
		slog.String("from", from),
		slog.String("to", to),
	)
	log.Debug("conversion started")

	start := time.Now()
	err := c.convert(ctx, src, dst, res, o, log)
	res.Elapsed = time.Since(start)
	if err != nil {
		if aerr := dst.Abort(); aerr != nil && !errors.Is(aerr, ErrSinkClosed) {
			log.Warn("abort sink", slog.Any("error", aerr))
		}
		log.Warn("conversion failed",
			slog.Any("error", err),
			slog.String("kind", string(errs.KindOf(err))),
			slog.Duration("elapsed", res.Elapsed),
		)
		return nil, err
	}
	log.Info("conversion finished",
		slog.Int64("rows", res.Rows),
		slog.Int64("bytes_read", res.BytesRead),
		slog.Int64("bytes_written", res.BytesWritten),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (c *Converter) convert(ctx context.Context, src io.Reader, dst Sink, res *Result, o *Options, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := format.Lookup(res.From)
	if err != nil {
		return err
	}
	out, err := format.Lookup(res.To)
	if err != nil {
		return err
	}
	s, err := schemaFor(o)
	if err != nil {
		return err
	}
	pipeline, err := c.outputPipeline(ctx, o)
	if err != nil {
		return err
	}
	hasher, err := newMultiHasher(o.Checksums)
	if err != nil {
		return err
	}

	t := time.Now()
	read := &countingReader{r: src}
	r, closeInput, err := c.openInput(ctx, read, in, o)
	if err != nil {
		return err
	}
	defer closeInput()
	res.addStage("open", t)

	t = time.Now()
	doc, err := in.NewReader().Read(ctx, r, o.Read)
	if err != nil {
		return err
	}
	root := doc.Root
	// Whoever takes a streaming table's rows closes them; this releases the
	// source when the writer never got that far.
	defer func() { closeNode(root) }()
	res.addStage("read", t)

	var finish func() error
	if s != nil {
		t = time.Now()
		if root, finish, err = validate(root, s, o, res); err != nil {
			return err
		}
		res.addStage("validate", t)
	}
	if root, err = reshape(root, o); err != nil {
		return err
	}
	if root, err = countRows(root, &res.Rows); err != nil {
		return err
	}

	t = time.Now()
	written := &countingWriter{w: io.MultiWriter(dst, hasher)}
	pw, err := pipeline.Writer(written)
	if err != nil {
		return err
	}
	err = writeDocument(ctx, pw, out, ir.NewDocument(root, doc.Source), o)
	if cerr := pw.Close(); err == nil && cerr != nil {
		err = outputErr("write "+out.Name, cerr)
	}
	if err != nil {
		return err
	}
	res.addStage("write", t)
	if finish != nil {
		if err := finish(); err != nil {
			return err
		}
	}

	res.BytesRead = read.n
	res.BytesWritten = written.n
	res.Checksums = hasher.sums()
	log.Debug("conversion written",
		slog.Int("stages", pipeline.Len()),
		slog.Int64("bytes_written", res.BytesWritten),
	)

	t = time.Now()
	if err := dst.Commit(); err != nil {
		return outputErr("commit", err)
	}
	res.addStage("commit", t)
	return nil
}

func writeDocument(ctx context.Context, w io.Writer, out format.Adapter, doc *ir.Document, o *Options) error {
	var closer io.Closer
	if o.OutputCharset != "" && !out.Binary() {
		enc, err := lookupCharset(o.OutputCharset)
		if err != nil {
			return err
		}
		ew := enc.NewEncoder().Writer(w)
		if c, ok := ew.(io.Closer); ok {
			closer = c
		}
		w = ew
	}
	if err := out.NewWriter().Write(ctx, w, doc, o.Write); err != nil {
		return outputErr("write "+out.Name, err)
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			return outputErr("write "+out.Name, err)
		}
	}
	return nil
}

// openInput peels encryption and compression off the input and decodes its
// charset. Encryption is recognised by its header; compression by magic bytes
// unless InputCompression names the codec.
func (c *Converter) openInput(ctx context.Context, src io.Reader, in format.Adapter, o *Options) (io.Reader, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}
	fail := func(err error) (io.Reader, func(), error) {
		closeAll()
		return nil, nil, err
	}

	prefix, r, err := transform.Peek(format.ContextReader(ctx, src))
	if err != nil {
		return fail(format.SourceError(in.Name, err))
	}
	if name, _ := transform.Sniff(prefix); name == transform.EncryptedName {
		if o.Decryption == nil {
			return fail(&errs.CryptoError{Op: "decrypt", Err: errors.New("input looks encrypted and no decryption key is configured")})
		}
		secret, err := c.secret(ctx, o.Decryption)
		if err != nil {
			return fail(err)
		}
		stage, err := transform.Decryption(secret)
		if err != nil {
			return fail(err)
		}
		rc, err := stage.Decoder(r)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rc)
		if prefix, r, err = transform.Peek(rc); err != nil {
			return fail(format.SourceError(in.Name, err))
		}
	}

	codec, err := inputCodec(prefix, in, o.InputCompression)
	if err != nil {
		return fail(err)
	}
	if codec != nil {
		rc, err := codec.Decoder(r)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rc)
		r = rc
	}

	if o.Charset != "" && !in.Binary() {
		enc, err := lookupCharset(o.Charset)
		if err != nil {
			return fail(err)
		}
		r = enc.NewDecoder().Reader(r)
	}
	return r, closeAll, nil
}

func inputCodec(prefix []byte, in format.Adapter, name string) (*transform.Stage, error) {
	switch strings.ToLower(name) {
	case "none":
		return nil, nil
	case "":
		sniffed, ok := transform.Sniff(prefix)
		if !ok || sniffed == transform.EncryptedName {
			return nil, nil
		}
		// An xlsx package is a zip archive itself.
		if in.Binary() && bytes.HasPrefix(prefix, in.Magic) {
			return nil, nil
		}
		name = sniffed
	}
	codec, err := transform.Lookup(name)
	if err != nil {
		return nil, err
	}
	stage := codec.New()
	return &stage, nil
}

func (c *Converter) outputPipeline(ctx context.Context, o *Options) (*transform.Pipeline, error) {
	var stages []transform.Stage
	if o.Compression != "" && !strings.EqualFold(o.Compression, "none") {
		codec, err := transform.Lookup(o.Compression)
		if err != nil {
			return nil, err
		}
		stages = append(stages, codec.New())
	}
	if o.Encryption != nil {
		secret, err := c.secret(ctx, o.Encryption)
		if err != nil {
			return nil, err
		}
		stage, err := transform.Encryption(secret, o.Encryption.Stage...)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return transform.NewPipeline(stages...)
}

func (c *Converter) secret(ctx context.Context, e *EncryptionOptions) ([]byte, error) {
	if len(e.Secret) > 0 {
		return e.Secret, nil
	}
	if e.KeyID == "" {
		return nil, &errs.CryptoError{Op: "configure", Err: errors.New("no secret or key id")}
	}
	if c.secrets == nil {
		return nil, &errs.CryptoError{Op: "configure", Err: fmt.Errorf("%w %q: no secret provider", ErrNoSecret, e.KeyID)}
	}
	secret, err := c.secrets.Secret(ctx, e.KeyID)
	if err != nil {
		return nil, &errs.CryptoError{Op: "configure", Err: err}
	}
	return secret, nil
}

func schemaFor(o *Options) (*schema.Schema, error) {
	if o.Schema != nil || o.SchemaName == "" {
		return o.Schema, nil
	}
	s, ok := schema.Lookup(o.SchemaName)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSchema, o.SchemaName)
	}
	return s, nil
}

func lookupCharset(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownCharset, name)
	}
	return enc, nil
}

// validate checks root against s. Tables are checked row by row as the writer
// pulls them; the returned finish applies the row-count checks afterwards.
func validate(root ir.Node, s *schema.Schema, o *Options, res *Result) (ir.Node, func() error, error) {
	if root.Kind() != ir.TableKind {
		rep, err := s.Validate(root, o.Validation...)
		if err != nil {
			return root, nil, err
		}
		res.Report = rep
		if o.Strict && !rep.Valid() {
			return root, nil, &ValidationFailedError{Report: rep}
		}
		return root, nil, nil
	}

	t := root.Table()
	rv := schema.NewRowValidator(s, t.Columns(), o.Validation...)
	res.Report = rv.Report()
	if o.Strict && !rv.Report().Valid() {
		return root, nil, &ValidationFailedError{Report: rv.Report()}
	}
	rows := ir.MapRows(t.Rows(), func(index int, row ir.Row) (ir.Row, error) {
		if !rv.Row(index, row) && o.Strict {
			return nil, &ValidationFailedError{Report: rv.Report()}
		}
		return row, nil
	})
	checked, err := ir.NewStreamingTable(t.Columns(), rows)
	if err != nil {
		return root, nil, err
	}
	finish := func() error {
		rep := rv.Finish()
		res.Report = rep
		if o.Strict && !rep.Valid() {
			return &ValidationFailedError{Report: rep}
		}
		return nil
	}
	return checked, finish, nil
}

// reshape applies the row limit and the column mapping.
func reshape(root ir.Node, o *Options) (ir.Node, error) {
	if o.MaxRows <= 0 && len(o.ColumnMapping) == 0 {
		return root, nil
	}
	switch root.Kind() {
	case ir.TableKind:
		t := root.Table()
		columns := t.Columns()
		for i, col := range columns {
			if to, ok := o.ColumnMapping[col]; ok {
				columns[i] = to
			}
		}
		rows := t.Rows()
		if o.MaxRows > 0 {
			rows = limitRows(rows, o.MaxRows)
		}
		return ir.NewStreamingTable(columns, rows)
	case ir.SequenceKind:
		items := root.Items()
		if o.MaxRows > 0 && len(items) > o.MaxRows {
			items = items[:o.MaxRows]
		}
		for i, item := range items {
			if item.Kind() != ir.MappingKind {
				continue
			}
			renamed, err := renameKeys(item, o.ColumnMapping)
			if err != nil {
				return ir.Node{}, err
			}
			items[i] = renamed
		}
		return ir.NewSequence(items...), nil
	case ir.MappingKind:
		return renameKeys(root, o.ColumnMapping)
	}
	return root, nil
}

func renameKeys(m ir.Node, mapping map[string]string) (ir.Node, error) {
	if len(mapping) == 0 {
		return m, nil
	}
	entries := m.Entries()
	for i, e := range entries {
		if to, ok := mapping[e.Key]; ok {
			entries[i].Key = to
		}
	}
	return ir.NewMapping(entries...)
}

func limitRows(it ir.RowIterator, limit int) ir.RowIterator {
	n := 0
	return ir.FuncIterator(func() (ir.Row, error) {
		if n >= limit {
			return nil, io.EOF
		}
		if !it.Next() {
			if err := it.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		n++
		return it.Row(), nil
	}, it.Close)
}

func countRows(root ir.Node, n *int64) (ir.Node, error) {
	switch root.Kind() {
	case ir.TableKind:
		t := root.Table()
		rows := ir.MapRows(t.Rows(), func(_ int, row ir.Row) (ir.Row, error) {
			*n++
			return row, nil
		})
		return ir.NewStreamingTable(t.Columns(), rows)
	case ir.SequenceKind:
		*n = int64(root.Len())
	default:
		if !root.IsNull() {
			*n = 1
		}
	}
	return root, nil
}

func closeNode(n ir.Node) {
	if n.Kind() == ir.TableKind {
		n.Table().Close()
	}
}

// outputErr classifies a failure of the output side: errors already in the
// taxonomy and context errors pass through, anything else is an IOError.
func outputErr(op string, err error) error {
	if errs.KindOf(err) != errs.KindUnknown || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &errs.IOError{Op: op, Err: err}
}
