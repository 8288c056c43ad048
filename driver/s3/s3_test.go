package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/go-cmp/cmp"

	"github.com/gobeaver/convkit"
)

// fakeClient keeps a bucket in memory and checks part sizes like S3 does.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	updated map[string]time.Time
	uploads map[string]*fakeUpload
	aborted int
	puts    int
	nextID  int
}

type fakeUpload struct {
	key   string
	parts map[int32][]byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		objects: make(map[string][]byte),
		updated: make(map[string]time.Time),
		uploads: make(map[string]*fakeUpload),
	}
}

func (c *fakeClient) put(key string, data []byte) {
	c.objects[key] = data
	c.updated[key] = time.Now()
}

func (c *fakeClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (c *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.put(aws.ToString(in.Key), data)
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeClient) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := fmt.Sprintf("upload-%d", c.nextID)
	c.uploads[id] = &fakeUpload{key: aws.ToString(in.Key), parts: make(map[int32][]byte)}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (c *fakeClient) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	n := aws.ToInt32(in.PartNumber)
	u.parts[n] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", n))}, nil
}

func (c *fakeClient) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	var buf bytes.Buffer
	parts := in.MultipartUpload.Parts
	for i, p := range parts {
		data := u.parts[aws.ToInt32(p.PartNumber)]
		if aws.ToString(p.ETag) != fmt.Sprintf("etag-%d", aws.ToInt32(p.PartNumber)) {
			return nil, errors.New("InvalidPart")
		}
		if i < len(parts)-1 && len(data) < MinPartSize {
			return nil, errors.New("EntityTooSmall")
		}
		buf.Write(data)
	}
	delete(c.uploads, aws.ToString(in.UploadId))
	c.put(u.key, buf.Bytes())
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (c *fakeClient) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.uploads, aws.ToString(in.UploadId))
	c.aborted++
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (c *fakeClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for k := range c.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(c.objects[k]))),
			LastModified: aws.Time(c.updated[k]),
		})
	}
	return out, nil
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
	client := newFakeClient()
	client.put("exports/in/orders.csv", []byte("id\n1\n"))
	a := New(client, "bucket", WithPrefix("/exports/"))

	if got := readAll(t, a, "in/orders.csv"); got != "id\n1\n" {
		t.Errorf("content = %q", got)
	}

	_, err := a.Open(ctx, "in/missing.csv")
	if !convkit.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	for _, p := range []string{"../secrets.csv", "in/../../x.csv", ""} {
		_, err := a.Open(ctx, p)
		if !errors.Is(err, convkit.ErrNotAllowed) {
			t.Errorf("Open(%q) error = %v, want ErrNotAllowed", p, err)
		}
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("small output is one put", func(t *testing.T) {
		client := newFakeClient()
		a := New(client, "bucket")

		sink, err := a.Create(ctx, "out/a.json")
		if err != nil {
			t.Fatalf("Create error = %v", err)
		}
		io.WriteString(sink, `[{"id":1}]`)
		if _, ok := client.objects["out/a.json"]; ok {
			t.Fatal("object visible before Commit")
		}
		if err := sink.Commit(); err != nil {
			t.Fatalf("Commit error = %v", err)
		}
		if got := readAll(t, a, "out/a.json"); got != `[{"id":1}]` {
			t.Errorf("content = %q", got)
		}
		if client.puts != 1 || client.nextID != 0 {
			t.Errorf("puts = %d, multipart uploads = %d", client.puts, client.nextID)
		}
		if err := sink.Commit(); !errors.Is(err, convkit.ErrSinkClosed) {
			t.Errorf("second Commit error = %v, want ErrSinkClosed", err)
		}
	})

	t.Run("large output is uploaded in parts", func(t *testing.T) {
		client := newFakeClient()
		a := New(client, "bucket", WithPartSize(1)) // raised to MinPartSize

		want := bytes.Repeat([]byte("0123456789abcdef"), (2*MinPartSize+MinPartSize/2)/16)
		sink, err := a.Create(ctx, "big.csv")
		if err != nil {
			t.Fatalf("Create error = %v", err)
		}
		for chunk := range chunks(want, 64<<10) {
			if _, err := sink.Write(chunk); err != nil {
				t.Fatalf("Write error = %v", err)
			}
		}
		if _, ok := client.objects["big.csv"]; ok {
			t.Fatal("object visible before Commit")
		}
		if n := len(client.uploads["upload-1"].parts); n != 2 {
			t.Errorf("%d parts uploaded before Commit, want 2", n)
		}
		if err := sink.Commit(); err != nil {
			t.Fatalf("Commit error = %v", err)
		}
		if got := client.objects["big.csv"]; !bytes.Equal(got, want) {
			t.Errorf("object has %d bytes, want %d", len(got), len(want))
		}
		if client.puts != 0 {
			t.Errorf("puts = %d, want 0", client.puts)
		}
	})

	t.Run("abort discards uploaded parts", func(t *testing.T) {
		client := newFakeClient()
		a := New(client, "bucket")

		sink, _ := a.Create(ctx, "big.csv")
		sink.Write(make([]byte, DefaultPartSize+1))
		if err := sink.Abort(); err != nil {
			t.Fatalf("Abort error = %v", err)
		}
		if client.aborted != 1 || len(client.uploads) != 0 {
			t.Errorf("aborted = %d, open uploads = %d", client.aborted, len(client.uploads))
		}
		if len(client.objects) != 0 {
			t.Error("aborted sink published an object")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := New(newFakeClient(), "bucket").Create(cctx, "a.csv"); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

// chunks splits data into chunks of at most n bytes.
func chunks(data []byte, n int) func(func([]byte) bool) {
	return func(yield func([]byte) bool) {
		for len(data) > 0 {
			k := min(n, len(data))
			if !yield(data[:k]) {
				return
			}
			data = data[k:]
		}
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	for _, k := range []string{
		"exports/a.csv",
		"exports/in/b.csv",
		"exports/in/deep/c.csv",
		"exports/in/d.json",
		"exports/in/",
		"other/e.csv",
	} {
		client.put(k, []byte("x"))
	}
	a := New(client, "bucket", WithPrefix("exports"))

	tests := []struct {
		pattern string
		want    []string
	}{
		{"", []string{"a.csv", "in/b.csv", "in/d.json", "in/deep/c.csv"}},
		{"*.csv", []string{"a.csv"}},
		{"in/*.csv", []string{"in/b.csv"}},
		{"in/**.csv", []string{"in/b.csv", "in/deep/c.csv"}},
		{"**.json", []string{"in/d.json"}},
		{"missing/*", nil},
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

func TestConvertFile(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.put("in/orders.csv", []byte("id,name\n1,Al\n"))
	a := New(client, "bucket")

	c := convkit.NewConverter()
	if _, err := c.ConvertFile(ctx, a, "in/orders.csv", "out/orders.json.gz"); err != nil {
		t.Fatalf("ConvertFile error = %v", err)
	}
	if _, err := c.ConvertFile(ctx, a, "out/orders.json.gz", "out/orders.csv"); err != nil {
		t.Fatalf("ConvertFile error = %v", err)
	}
	if got := readAll(t, a, "out/orders.csv"); got != "id,name\n1,Al\n" {
		t.Errorf("round trip = %q", got)
	}

	client.put("in/bad.json", []byte(`{"id":`))
	if _, err := c.ConvertFile(ctx, a, "in/bad.json", "out/bad.csv"); err == nil {
		t.Fatal("expected a parse error")
	}
	if _, ok := client.objects["out/bad.csv"]; ok {
		t.Error("failed conversion published an object")
	}
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeClient()
	a := New(client, "bucket", WithPollInterval(10*time.Millisecond))

	token, err := a.Watch(ctx, "in/*.csv")
	if err != nil {
		t.Fatalf("Watch error = %v", err)
	}
	changed := make(chan struct{})
	token.RegisterChangeCallback(func() { close(changed) })

	client.mu.Lock()
	client.put("in/new.csv", []byte("id\n"))
	client.mu.Unlock()

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("token did not fire after a new object")
	}
}
