package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/google/uuid"

	"github.com/gobeaver/convkit"
)

// DefaultBlockSize is the size of the blocks a sink stages.
const DefaultBlockSize = 4 << 20

// Container is what the store needs from a blob container.
type Container interface {
	Download(ctx context.Context, name string) (io.ReadCloser, error)

	// Upload creates name from data in one request.
	Upload(ctx context.Context, name string, data []byte) error

	// StageBlock stores an uncommitted block of name.
	StageBlock(ctx context.Context, name, blockID string, data []byte) error

	// CommitBlocks makes the staged blocks, in order, the content of name.
	CommitBlocks(ctx context.Context, name string, blockIDs []string) error

	// Blobs calls fn for every blob whose name starts with prefix.
	Blobs(ctx context.Context, prefix string, fn func(name string, size int64, modTime time.Time)) error
}

// Adapter provides an Azure Blob Storage implementation of convkit.Store
type Adapter struct {
	container    Container
	prefix       string
	blockSize    int
	pollInterval time.Duration
}

// AdapterOption is a function that configures Azure Adapter
type AdapterOption func(*Adapter)

// WithPrefix sets the prefix for blob names
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

// WithBlockSize sets the size of staged blocks.
func WithBlockSize(size int) AdapterOption {
	return func(a *Adapter) {
		if size > 0 {
			a.blockSize = size
		}
	}
}

// WithPollInterval sets how often Watch lists the container.
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

// New creates a store on the named container.
func New(client *azblob.Client, containerName string, options ...AdapterOption) *Adapter {
	return NewWithContainer(&blobContainer{client: client, name: containerName}, options...)
}

// NewWithContainer creates a store on any Container implementation.
func NewWithContainer(c Container, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		container: c,
		blockSize: DefaultBlockSize,
	}

	// Apply options
	for _, option := range options {
		option(adapter)
	}

	return adapter
}

// blobName maps a store path to a blob name.
func (a *Adapter) blobName(op, p string) (string, error) {
	clean := path.Clean("/" + p)[1:]
	if clean == "" || clean != strings.TrimPrefix(p, "/") {
		return "", &convkit.PathError{Op: op, Path: p, Err: convkit.ErrNotAllowed}
	}
	return a.prefix + clean, nil
}

// Open implements convkit.Store
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	name, err := a.blobName("open", p)
	if err != nil {
		return nil, err
	}

	body, err := a.container.Download(ctx, name)
	if err != nil {
		return nil, mapAzureError("open", p, err)
	}
	return body, nil
}

// Create implements convkit.Store. The sink stages a block whenever one
// fills and commits the block list on Commit; output smaller than one block
// is uploaded in a single request. Uncommitted blocks are never visible and
// the service discards them.
func (a *Adapter) Create(ctx context.Context, p string) (convkit.Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := a.blobName("create", p)
	if err != nil {
		return nil, err
	}
	return &blockSink{
		ctx:     ctx,
		a:       a,
		name:    name,
		path:    p,
		blockNS: uuid.New(),
	}, nil
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
	err = a.container.Blobs(ctx, listPrefix, func(name string, size int64, modTime time.Time) {
		// Skip directory markers
		if strings.HasSuffix(name, "/") {
			return
		}
		file := convkit.FileInfo{
			Path:    strings.TrimPrefix(name, a.prefix),
			Size:    size,
			ModTime: modTime,
		}
		if sel.Match(&file) {
			files = append(files, file)
		}
	})
	if err != nil {
		return nil, mapAzureError("list", pattern, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// mapAzureError maps Azure errors to convkit errors
func mapAzureError(op, p string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound) || bloberror.HasCode(err, bloberror.ContainerNotFound) {
		return &convkit.PathError{Op: op, Path: p, Err: convkit.ErrNotExist}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &convkit.PathError{Op: op, Path: p, Err: err}
}

// blockSink stages one block at a time.
type blockSink struct {
	ctx  context.Context
	a    *Adapter
	name string
	path string

	// blockNS keeps the block IDs of concurrent sinks on one blob apart.
	blockNS uuid.UUID

	mu       sync.Mutex
	buf      bytes.Buffer
	blockIDs []string
	err      error
	done     bool
}

// blockID returns the ID of block n. All IDs of a blob must have the same
// length.
func (s *blockSink) blockID(n int) string {
	return base64.StdEncoding.EncodeToString(fmt.Appendf(nil, "%s-%06d", s.blockNS, n))
}

func (s *blockSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, convkit.ErrSinkClosed
	}
	if s.err != nil {
		return 0, s.err
	}

	n, _ := s.buf.Write(p)
	for s.buf.Len() >= s.a.blockSize {
		if err := s.stage(s.buf.Next(s.a.blockSize)); err != nil {
			s.err = err
			return n, err
		}
	}
	return n, nil
}

func (s *blockSink) stage(data []byte) error {
	id := s.blockID(len(s.blockIDs))
	if err := s.a.container.StageBlock(s.ctx, s.name, id, data); err != nil {
		return mapAzureError("write", s.path, err)
	}
	s.blockIDs = append(s.blockIDs, id)
	return nil
}

func (s *blockSink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true
	if s.err != nil {
		return s.err
	}

	if len(s.blockIDs) == 0 {
		if err := s.a.container.Upload(s.ctx, s.name, s.buf.Bytes()); err != nil {
			return mapAzureError("commit", s.path, err)
		}
		return nil
	}

	if s.buf.Len() > 0 {
		if err := s.stage(s.buf.Bytes()); err != nil {
			return err
		}
	}
	if err := s.a.container.CommitBlocks(s.ctx, s.name, s.blockIDs); err != nil {
		return mapAzureError("commit", s.path, err)
	}
	return nil
}

func (s *blockSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true
	s.buf = bytes.Buffer{}
	s.blockIDs = nil
	return nil
}

// blobContainer adapts an *azblob.Client container to Container.
type blobContainer struct {
	client *azblob.Client
	name   string
}

func (c *blobContainer) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, c.name, name, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *blobContainer) Upload(ctx context.Context, name string, data []byte) error {
	_, err := c.client.UploadBuffer(ctx, c.name, name, data, nil)
	return err
}

func (c *blobContainer) StageBlock(ctx context.Context, name, blockID string, data []byte) error {
	blockBlobClient := c.client.ServiceClient().NewContainerClient(c.name).NewBlockBlobClient(name)
	_, err := blockBlobClient.StageBlock(ctx, blockID, streaming.NopCloser(bytes.NewReader(data)), nil)
	return err
}

func (c *blobContainer) CommitBlocks(ctx context.Context, name string, blockIDs []string) error {
	blockBlobClient := c.client.ServiceClient().NewContainerClient(c.name).NewBlockBlobClient(name)
	_, err := blockBlobClient.CommitBlockList(ctx, blockIDs, nil)
	return err
}

func (c *blobContainer) Blobs(ctx context.Context, prefix string, fn func(string, int64, time.Time)) error {
	pager := c.client.NewListBlobsFlatPager(c.name, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, blob := range page.Segment.BlobItems {
			if blob.Name == nil {
				continue
			}
			var modTime time.Time
			var size int64
			if blob.Properties != nil {
				if blob.Properties.LastModified != nil {
					modTime = *blob.Properties.LastModified
				}
				if blob.Properties.ContentLength != nil {
					size = *blob.Properties.ContentLength
				}
			}
			fn(*blob.Name, size, modTime)
		}
	}
	return nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Watch implements convkit.CanWatch by polling.
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
	_ convkit.Sink     = (*blockSink)(nil)
	_ Container        = (*blobContainer)(nil)
)
