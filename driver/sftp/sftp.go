package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/gobeaver/convkit"
)

// tempPrefix marks the files of sinks that have not been committed yet. List
// and Watch ignore them.
const tempPrefix = ".convkit-"

// Adapter provides an SFTP implementation of convkit.Store
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config
	dial     bool // reconnect with config when the connection drops
}

// Config holds SFTP connection configuration
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte // PEM encoded private key
	KnownHosts string // known_hosts file; host keys are not checked when empty
	BasePath   string

	// PollInterval is how often Watch lists the server.
	PollInterval time.Duration
}

// AdapterOption is a function that configures SFTP Adapter
type AdapterOption func(*Adapter)

// WithBasePath sets the base path for SFTP operations
func WithBasePath(basePath string) AdapterOption {
	return func(a *Adapter) {
		a.basePath = basePath
	}
}

// WithPollInterval sets how often Watch lists the server.
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.config.PollInterval = d
	}
}

// New connects to the server in cfg and returns a store on it. The store
// reconnects when the connection drops.
func New(cfg Config, options ...AdapterOption) (*Adapter, error) {
	adapter := &Adapter{
		config:   cfg,
		basePath: cfg.BasePath,
		dial:     true,
	}

	// Apply options
	for _, option := range options {
		option(adapter)
	}

	// Establish connection
	if err := adapter.connect(); err != nil {
		return nil, err
	}

	return adapter, nil
}

// NewFromClient returns a store on an established SFTP session. Closing the
// store closes client.
func NewFromClient(client *sftp.Client, options ...AdapterOption) *Adapter {
	adapter := &Adapter{client: client}
	for _, option := range options {
		option(adapter)
	}
	return adapter
}

// connect establishes SSH and SFTP connections. The caller holds a.mu.
func (a *Adapter) connect() error {
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if a.config.KnownHosts != "" {
		cb, err := knownhosts.New(a.config.KnownHosts)
		if err != nil {
			return fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	// Build SSH config
	sshConfig := &ssh.ClientConfig{
		User:            a.config.Username,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	// Add authentication method
	if len(a.config.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(a.config.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}

	if a.config.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(a.config.Password))
	}

	if len(sshConfig.Auth) == 0 {
		return errors.New("no authentication method provided")
	}

	port := a.config.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", a.config.Host, port)
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SSH: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("failed to create SFTP client: %w", err)
	}

	a.sshConn = sshConn
	a.client = sftpClient

	return nil
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disconnect()
}

func (a *Adapter) disconnect() error {
	var errs []error

	if a.client != nil {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
		a.client = nil
	}

	if a.sshConn != nil {
		if err := a.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
		a.sshConn = nil
	}

	return errors.Join(errs...)
}

// conn returns the SFTP client, reconnecting if the last operation lost the
// connection.
func (a *Adapter) conn(op, p string) (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client == nil {
		if !a.dial {
			return nil, &convkit.PathError{Op: op, Path: p, Err: sftp.ErrSSHFxNoConnection}
		}
		if err := a.connect(); err != nil {
			return nil, &convkit.PathError{Op: op, Path: p, Err: err}
		}
	}
	return a.client, nil
}

// check drops a lost connection so the next operation reconnects.
func (a *Adapter) check(client *sftp.Client, err error) {
	if !errors.Is(err, sftp.ErrSSHFxConnectionLost) && !errors.Is(err, sftp.ErrSSHFxNoConnection) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == client && a.dial {
		a.disconnect()
	}
}

// fullPath maps a store path under the base path, rejecting paths that
// escape it.
func (a *Adapter) fullPath(op, relativePath string) (string, error) {
	clean := path.Clean("/" + relativePath)[1:]
	if clean == "" || clean != strings.TrimPrefix(relativePath, "/") {
		return "", &convkit.PathError{Op: op, Path: relativePath, Err: convkit.ErrNotAllowed}
	}
	if a.basePath == "" {
		return clean, nil
	}
	return path.Join(a.basePath, clean), nil
}

// root is the directory List walks.
func (a *Adapter) root() string {
	if a.basePath == "" {
		return "."
	}
	return a.basePath
}

// Open implements convkit.Store
func (a *Adapter) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := a.fullPath("open", p)
	if err != nil {
		return nil, err
	}
	client, err := a.conn("open", p)
	if err != nil {
		return nil, err
	}

	file, err := client.Open(fullPath)
	if err != nil {
		a.check(client, err)
		return nil, mapSFTPError("open", p, err)
	}

	return file, nil
}

// Create implements convkit.Store. The sink writes a hidden temporary file
// next to path and renames it over path on Commit.
func (a *Adapter) Create(ctx context.Context, p string) (convkit.Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := a.fullPath("create", p)
	if err != nil {
		return nil, err
	}
	client, err := a.conn("create", p)
	if err != nil {
		return nil, err
	}

	// Ensure parent directory exists
	dir := path.Dir(fullPath)
	if err := client.MkdirAll(dir); err != nil {
		a.check(client, err)
		return nil, mapSFTPError("create", p, err)
	}

	tmp := path.Join(dir, tempPrefix+path.Base(fullPath)+"."+uuid.NewString()+".tmp")
	file, err := client.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	if err != nil {
		a.check(client, err)
		return nil, mapSFTPError("create", p, err)
	}

	return &fileSink{
		ctx:    ctx,
		a:      a,
		client: client,
		f:      file,
		tmp:    tmp,
		target: fullPath,
		path:   p,
	}, nil
}

// List implements convkit.Store
func (a *Adapter) List(ctx context.Context, pattern string) ([]convkit.FileInfo, error) {
	sel, err := convkit.Glob(pattern)
	if err != nil {
		return nil, err
	}
	client, err := a.conn("list", pattern)
	if err != nil {
		return nil, err
	}

	var files []convkit.FileInfo
	err = a.walkDir(ctx, client, a.root(), "", func(rel string, info os.FileInfo) {
		file := convkit.FileInfo{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if sel.Match(&file) {
			files = append(files, file)
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// A base path nobody has written to yet holds no files
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		a.check(client, err)
		return nil, mapSFTPError("list", pattern, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// walkDir recursively walks a directory
func (a *Adapter) walkDir(ctx context.Context, client *sftp.Client, fullPath, relPath string, fn func(string, os.FileInfo)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := client.ReadDir(fullPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		entryRelPath := path.Join(relPath, entry.Name())
		entryFullPath := path.Join(fullPath, entry.Name())

		if entry.IsDir() {
			if err := a.walkDir(ctx, client, entryFullPath, entryRelPath, fn); err != nil {
				return err
			}
		} else if !strings.HasPrefix(entry.Name(), tempPrefix) {
			fn(entryRelPath, entry)
		}
	}

	return nil
}

// mapSFTPError maps SFTP errors to convkit errors
func mapSFTPError(op, p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &convkit.PathError{Op: op, Path: p, Err: convkit.ErrNotExist}
	}
	if errors.Is(err, fs.ErrPermission) {
		return &convkit.PathError{Op: op, Path: p, Err: convkit.ErrPermission}
	}
	return &convkit.PathError{Op: op, Path: p, Err: err}
}

// fileSink publishes its temporary file by renaming it.
type fileSink struct {
	ctx    context.Context
	a      *Adapter
	client *sftp.Client
	mu     sync.Mutex
	f      *sftp.File
	tmp    string
	target string
	path   string
	done   bool
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, convkit.ErrSinkClosed
	}
	if err := s.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.f.Write(p)
	if err != nil {
		s.a.check(s.client, err)
		return n, &convkit.PathError{Op: "write", Path: s.path, Err: err}
	}
	return n, nil
}

func (s *fileSink) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true

	if err := s.f.Close(); err != nil {
		s.client.Remove(s.tmp)
		s.a.check(s.client, err)
		return &convkit.PathError{Op: "commit", Path: s.path, Err: err}
	}
	if err := s.rename(); err != nil {
		s.client.Remove(s.tmp)
		s.a.check(s.client, err)
		return &convkit.PathError{Op: "commit", Path: s.path, Err: err}
	}
	return nil
}

// rename moves the temporary file over the target. Servers without the
// posix-rename extension refuse to rename onto an existing file, so the
// target is removed first there.
func (s *fileSink) rename() error {
	err := s.client.PosixRename(s.tmp, s.target)
	if err == nil {
		return nil
	}
	if rmErr := s.client.Remove(s.target); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return err
	}
	return s.client.Rename(s.tmp, s.target)
}

func (s *fileSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return convkit.ErrSinkClosed
	}
	s.done = true

	if err := errors.Join(s.f.Close(), s.client.Remove(s.tmp)); err != nil {
		s.a.check(s.client, err)
		return &convkit.PathError{Op: "abort", Path: s.path, Err: err}
	}
	return nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Watch implements convkit.CanWatch by polling. SFTP has no change
// notifications.
func (a *Adapter) Watch(ctx context.Context, pattern string) (convkit.ChangeToken, error) {
	token, err := convkit.PollingWatch(ctx, a, pattern, a.config.PollInterval)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Ensure Adapter implements interfaces
var (
	_ convkit.Store    = (*Adapter)(nil)
	_ convkit.CanWatch = (*Adapter)(nil)
	_ convkit.Sink     = (*fileSink)(nil)
)
