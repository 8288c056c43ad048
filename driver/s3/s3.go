package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gobeaver/convkit"
)

// MinPartSize is the smallest part S3 accepts in a multipart upload, except
// for the last one.
const MinPartSize = 5 << 20

// DefaultPartSize is the size of the parts a sink uploads.
const DefaultPartSize = 8 << 20

// Client is the subset of *s3.Client the store uses.
type Client interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Adapter provides an S3 implementation of convkit.Store
type Adapter struct {
	client       Client
	bucket       string
	prefix       string
	partSize     int
	pollInterval time.Duration
}

// AdapterOption is a function that configures Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for S3 objects
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		// Ensure prefix ends with a slash if it's not empty
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithPartSize sets the size of multipart upload parts. Sizes below
// MinPartSize are raised to it.
func WithPartSize(size int) AdapterOption {
	return func(a *Adapter) {
		a.partSize = max(size, MinPartSize)
	}
}

// WithPollInterval sets how often Watch lists the bucket.
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

// New creates a new S3 store
func New(client Client, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client:   client,
		bucket:   bucket,
		partSize: DefaultPartSize,
	}

	// Apply options
	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// key maps a store path to an object key.
func (a *Adapter) key(op, p string) (string, error) {
	clean := path.Clean("/" + p)[1:]
	if clean == "" || clean != strings.TrimPrefix(p, "/") {
		return "", &convkit.PathError{Op: op, Path: p, Err: convkit.ErrNotAllowed}
	}
	return a.prefix + clean, nil
}

// Open implements convkit.Store
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	key, err := a.key("open", p)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error("open", p, err)
	}

	return resp.Body, nil
}

// Create implements convkit.Store. The sink uploads parts as they fill and
// completes the multipart upload on Commit; output smaller than one part is
// sent in a single PutObject. S3 publishes neither before Commit.
func (a *Adapter) Create(ctx context.Context, p string) (convkit.Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := a.key("create", p)
	if err != nil {
		return nil, err
	}
	return &uploadSink{ctx: ctx, a: a, key: key, path: p}, nil
}

// List implements convkit.Store
func (a *Adapter) List(ctx context.Context, pattern string) ([]convkit.FileInfo, error) {
	sel, err := convkit.Glob(pattern)
	if err != nil {
		return nil, err
	}

	// Only list below the literal part of the pattern
	listPrefix := a.prefix
	if idx := strings.IndexAny(pattern, "*?[{"); idx != 0 {
		static := pattern
		if idx > 0 {
			static = pattern[:idx]
		}
		if lastSlash := strings.LastIndex(static, "/"); lastSlash > 0 {
			listPrefix += static[:lastSlash+1]
		}
	}

	var files []convkit.FileInfo
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("list", pattern, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// Skip directory markers
			if strings.HasSuffix(key, "/") {
				continue
			}

			file := convkit.FileInfo{
				Path:    strings.TrimPrefix(key, a.prefix),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			}
			if sel.Match(&file) {
				files = append(files, file)
			}
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// mapS3Error maps S3 errors to convkit errors
func mapS3Error(op, p string, err error) error {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound

	if errors.As(err, &nsk) || errors.As(err, &notFound) {
		return &convkit.PathError{Op: op, Path: p, Err: convkit.ErrNotExist}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return &convkit.PathError{Op: op, Path: p, Err: err}
}

// uploadSink buffers one part at a time.
type uploadSink struct {
	ctx  context.Context
	a    *Adapter
	key  string
	path string

	mu       sync.Mutex
	buf      bytes.Buffer
	uploadID string
	parts    []types.CompletedPart
	err      error
	done     bool
}

func (s *uploadSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, convkit.ErrSinkClosed
	}
	if s.err != nil {
		return 0, s.err
	}

	n, _ := s.buf.Write(p)
	for s.buf.Len() >= s.a.partSize {
		if err := s.uploadPart(s.buf.Next(s.a.partSize)); err != nil {
			s.err = err
			return n, err
		}
	}
	return n, nil
}

// uploadPart sends data as the next part, starting the upload on the first.
func (s *uploadSink) uploadPart(data []byte) error {
	if s.uploadID == "" {
		resp, err := s.a.client.CreateMultipartUpload(s.ctx, &s3.CreateMultipartUploadInput{
			Bucket: aws.String(s.a.bucket),
			Key:    aws.String(s.key),
		})
		if err != nil {
			return mapS3Error("write", s.path, err)
		}
		s.uploadID = aws.ToString(resp.UploadId)
	}

	// S3 supports 1-10000 parts
	number := len(s.parts) + 1
	if number > 10000 {
		return &convkit.PathError{
			Op:   "write",
			Path: s.path,
			Err:  fmt.Errorf("more than 10000 parts of %d bytes", s.a.partSize),
		}
	}
	resp, err := s.a.client.UploadPart(s.ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.a.bucket),
		Key:           aws.String(s.key),
		UploadId:      aws.String(s.uploadID),
		PartNumber:    aws.Int32(int32(number)), //nolint:gosec // validated above
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return mapS3Error("write", s.path, err)
	}
	s.parts = append(s.parts, types.CompletedPart{
		ETag:       resp.ETag,
		PartNumber: aws.Int32(int32(number)), //nolint:gosec // validated above
	})
	return nil
}

func (s *uploadSink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true
	if s.err != nil {
		s.abort()
		return s.err
	}

	if s.uploadID == "" {
		data := s.buf.Bytes()
		_, err := s.a.client.PutObject(s.ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.a.bucket),
			Key:           aws.String(s.key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			return mapS3Error("commit", s.path, err)
		}
		return nil
	}

	if s.buf.Len() > 0 {
		if err := s.uploadPart(s.buf.Bytes()); err != nil {
			s.abort()
			return err
		}
	}
	_, err := s.a.client.CompleteMultipartUpload(s.ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.a.bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(s.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: s.parts,
		},
	})
	if err != nil {
		s.abort()
		return mapS3Error("commit", s.path, err)
	}
	return nil
}

func (s *uploadSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true
	return s.abort()
}

// abort discards the buffered data and any uploaded parts.
func (s *uploadSink) abort() error {
	s.buf = bytes.Buffer{}
	if s.uploadID == "" {
		return nil
	}
	// The conversion may have failed because its context ended
	ctx := context.WithoutCancel(s.ctx)
	_, err := s.a.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.a.bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(s.uploadID),
	})
	if err != nil {
		return mapS3Error("abort", s.path, err)
	}
	return nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Watch implements convkit.CanWatch by polling. S3 doesn't have native file
// system events.
func (a *Adapter) Watch(ctx context.Context, pattern string) (convkit.ChangeToken, error) {
	token, err := convkit.PollingWatch(ctx, a, pattern, a.pollInterval)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Ensure Adapter implements interfaces
var (
	_ convkit.Store    = (*Adapter)(nil)
	_ convkit.CanWatch = (*Adapter)(nil)
	_ convkit.Sink     = (*uploadSink)(nil)
	_ Client           = (*s3.Client)(nil)
)
