package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gobeaver/convkit"
)

var errBlobNotFound = errors.New("BlobNotFound")

// fakeContainer keeps staged blocks apart from committed blobs like the
// service does.
type fakeContainer struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	updated map[string]time.Time
	staged  map[string]map[string][]byte
	uploads int
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{
		blobs:   make(map[string][]byte),
		updated: make(map[string]time.Time),
		staged:  make(map[string]map[string][]byte),
	}
}

func (c *fakeContainer) put(name string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[name] = data
	c.updated[name] = time.Now()
}

func (c *fakeContainer) get(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.blobs[name]
	return data, ok
}

func (c *fakeContainer) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	data, ok := c.get(name)
	if !ok {
		return nil, errBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *fakeContainer) Upload(ctx context.Context, name string, data []byte) error {
	c.put(name, bytes.Clone(data))
	c.mu.Lock()
	c.uploads++
	c.mu.Unlock()
	return nil
}

func (c *fakeContainer) StageBlock(ctx context.Context, name, blockID string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staged[name] == nil {
		c.staged[name] = make(map[string][]byte)
	}
	c.staged[name][blockID] = bytes.Clone(data)
	return nil
}

func (c *fakeContainer) CommitBlocks(ctx context.Context, name string, blockIDs []string) error {
	c.mu.Lock()
	var buf bytes.Buffer
	for _, id := range blockIDs {
		block, ok := c.staged[name][id]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("InvalidBlockList: %s", id)
		}
		buf.Write(block)
	}
	delete(c.staged, name)
	c.mu.Unlock()
	c.put(name, buf.Bytes())
	return nil
}

func (c *fakeContainer) Blobs(ctx context.Context, prefix string, fn func(string, int64, time.Time)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, data := range c.blobs {
		if strings.HasPrefix(name, prefix) {
			fn(name, int64(len(data)), c.updated[name])
		}
	}
	return nil
}

func readAll(t *testing.T, a *Adapter, p string) string {
	t.Helper()
	rc, err := a.Open(context.Background(), p)
	if err != nil {
		t.Fatalf("Open(%q) error = %v", p, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	c := newFakeContainer()
	c.put("exports/in/orders.csv", []byte("id\n1\n"))
	a := NewWithContainer(c, WithPrefix("exports"))

	if got := readAll(t, a, "in/orders.csv"); got != "id\n1\n" {
		t.Errorf("content = %q", got)
	}
	if _, err := a.Open(ctx, "../x.csv"); !errors.Is(err, convkit.ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed, got %v", err)
	}
	if _, err := a.Open(ctx, "in/missing.csv"); err == nil {
		t.Error("expected an error for a missing blob")
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("small output is one upload", func(t *testing.T) {
		c := newFakeContainer()
		a := NewWithContainer(c)

		sink, err := a.Create(ctx, "out/a.json")
		if err != nil {
			t.Fatalf("Create error = %v", err)
		}
		io.WriteString(sink, `[{"id":1}]`)
		if _, ok := c.get("out/a.json"); ok {
			t.Fatal("blob visible before Commit")
		}
		if err := sink.Commit(); err != nil {
			t.Fatalf("Commit error = %v", err)
		}
		if got := readAll(t, a, "out/a.json"); got != `[{"id":1}]` {
			t.Errorf("content = %q", got)
		}
		if c.uploads != 1 {
			t.Errorf("uploads = %d, want 1", c.uploads)
		}
	})

	t.Run("large output is staged in blocks", func(t *testing.T) {
		c := newFakeContainer()
		a := NewWithContainer(c, WithBlockSize(10))

		sink, err := a.Create(ctx, "big.csv")
		if err != nil {
			t.Fatalf("Create error = %v", err)
		}
		want := strings.Repeat("0123456789", 3) + "tail"
		for _, chunk := range []string{want[:7], want[7:22], want[22:]} {
			if _, err := io.WriteString(sink, chunk); err != nil {
				t.Fatalf("Write error = %v", err)
			}
		}
		if n := len(c.staged["big.csv"]); n != 3 {
			t.Errorf("%d blocks staged before Commit, want 3", n)
		}
		if _, ok := c.get("big.csv"); ok {
			t.Fatal("blob visible before Commit")
		}
		if err := sink.Commit(); err != nil {
			t.Fatalf("Commit error = %v", err)
		}
		if got := readAll(t, a, "big.csv"); got != want {
			t.Errorf("content = %q, want %q", got, want)
		}
		if c.uploads != 0 {
			t.Errorf("uploads = %d, want 0", c.uploads)
		}
	})

	t.Run("block ids have one length", func(t *testing.T) {
		s := &blockSink{}
		first, _ := base64.StdEncoding.DecodeString(s.blockID(0))
		last, _ := base64.StdEncoding.DecodeString(s.blockID(49999))
		if len(first) != len(last) || len(first) > 64 {
			t.Errorf("block ids of %d and %d bytes", len(first), len(last))
		}
	})

	t.Run("abort commits nothing", func(t *testing.T) {
		c := newFakeContainer()
		a := NewWithContainer(c, WithBlockSize(4))

		sink, _ := a.Create(ctx, "out.csv")
		io.WriteString(sink, "0123456789")
		if err := sink.Abort(); err != nil {
			t.Fatalf("Abort error = %v", err)
		}
		if _, ok := c.get("out.csv"); ok {
			t.Error("aborted sink committed a blob")
		}
		if err := sink.Commit(); !errors.Is(err, convkit.ErrSinkClosed) {
			t.Errorf("Commit after Abort error = %v, want ErrSinkClosed", err)
		}
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	c := newFakeContainer()
	for _, name := range []string{"exports/a.csv", "exports/in/b.csv", "exports/in/c.json", "exports/dir/", "x/d.csv"} {
		c.put(name, []byte("x"))
	}
	a := NewWithContainer(c, WithPrefix("exports"))

	tests := []struct {
		pattern string
		want    []string
	}{
		{"", []string{"a.csv", "in/b.csv", "in/c.json"}},
		{"**.csv", []string{"a.csv", "in/b.csv"}},
		{"in/*.json", []string{"in/c.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			files, err := a.List(ctx, tt.pattern)
			if err != nil {
				t.Fatalf("List error = %v", err)
			}
			var got []string
			for _, f := range files {
				got = append(got, f.Path)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("List(%q) mismatch (-want +got):\n%s", tt.pattern, diff)
			}
		})
	}
}

func TestConvertAll(t *testing.T) {
	ctx := context.Background()
	c := newFakeContainer()
	c.put("in/a.yaml", []byte("- id: 1\n"))
	c.put("in/b.yaml", []byte("- id: 2\n"))
	a := NewWithContainer(c)

	results, err := convkit.NewConverter().ConvertAll(ctx, a, "in/*.yaml", "csv")
	if err != nil {
		t.Fatalf("ConvertAll error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("%d results, want 2", len(results))
	}
	if got := readAll(t, a, "in/a.csv"); got != "id\n1\n" {
		t.Errorf("in/a.csv = %q", got)
	}
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newFakeContainer()
	a := NewWithContainer(c, WithPollInterval(10*time.Millisecond))

	token, err := a.Watch(ctx, "in/*.csv")
	if err != nil {
		t.Fatalf("Watch error = %v", err)
	}
	changed := make(chan struct{})
	token.RegisterChangeCallback(func() { close(changed) })

	c.put("in/new.csv", []byte("id\n"))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("token did not fire after a new blob")
	}
}
