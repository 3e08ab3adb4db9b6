package cache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/punk-blvck/blvck-hub/internal/faults"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Bucket: "punk-blvck-static-v1", Key: "https://app.local/index.html"}

	captured := time.Now().Add(-time.Hour).UTC()
	payload := []byte("<html>shell</html>")
	header := http.Header{"Content-Type": []string{"text/html"}}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader(payload), PutOptions{
		Status:     http.StatusOK,
		Header:     header,
		CapturedAt: captured,
	}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if !result.Entry.CapturedAt.Equal(captured) {
		t.Fatalf("captured_at mismatch: expected %v got %v", captured, result.Entry.CapturedAt)
	}
	if result.Entry.Header.Get("Content-Type") != "text/html" {
		t.Fatalf("header not persisted: %v", result.Entry.Header)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), Locator{Bucket: "static", Key: "https://app.local/missing"})
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Bucket: "dynamic", Key: "https://app.local/app.js"}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), locator); err == nil || err != ErrNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
}

func TestStoreBucketsLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"punk-blvck-static-v1", "punk-blvck-weather-v1"} {
		if err := store.EnsureBucket(ctx, name); err != nil {
			t.Fatalf("ensure bucket %s: %v", name, err)
		}
	}
	locator := Locator{Bucket: "punk-blvck-static-v1", Key: "https://app.local/"}
	if _, err := store.Put(ctx, locator, bytes.NewReader([]byte("root")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	buckets, err := store.Buckets(ctx)
	if err != nil {
		t.Fatalf("buckets error: %v", err)
	}
	if len(buckets) != 2 || buckets[0] != "punk-blvck-static-v1" || buckets[1] != "punk-blvck-weather-v1" {
		t.Fatalf("unexpected buckets: %v", buckets)
	}

	if err := store.DeleteBucket(ctx, "punk-blvck-static-v1"); err != nil {
		t.Fatalf("delete bucket: %v", err)
	}
	if _, err := store.Get(ctx, locator); err != ErrNotFound {
		t.Fatalf("expected entry gone with bucket, got %v", err)
	}
	buckets, _ = store.Buckets(ctx)
	if len(buckets) != 1 {
		t.Fatalf("expected single bucket after delete, got %v", buckets)
	}
}

func TestStoreRejectsInvalidBucket(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"", "../escape", ".hidden", `a\b`} {
		if err := store.EnsureBucket(context.Background(), name); err != ErrInvalidBucket {
			t.Fatalf("bucket %q: expected ErrInvalidBucket, got %v", name, err)
		}
	}
}

func TestStoreQuotaExceeded(t *testing.T) {
	store, err := NewStore(t.TempDir(), WithQuota(8))
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	ctx := context.Background()
	first := Locator{Bucket: "dynamic", Key: "https://img.local/a.png"}
	if _, err := store.Put(ctx, first, bytes.NewReader([]byte("12345")), PutOptions{}); err != nil {
		t.Fatalf("first put should fit: %v", err)
	}

	second := Locator{Bucket: "dynamic", Key: "https://img.local/b.png"}
	_, err = store.Put(ctx, second, bytes.NewReader([]byte("67890")), PutOptions{})
	if !faults.Is(err, faults.CodeQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}

	// 覆盖同一条目只计算差值。
	if _, err := store.Put(ctx, first, bytes.NewReader([]byte("1234567")), PutOptions{}); err != nil {
		t.Fatalf("overwrite within quota should pass: %v", err)
	}
}

func TestStoreIgnoresOrphanBody(t *testing.T) {
	store := newTestStore(t)
	locator := Locator{Bucket: "static", Key: "https://app.local/orphan"}

	fs, ok := store.(*fileStore)
	if !ok {
		t.Fatalf("unexpected store type %T", store)
	}

	bodyPath, _, err := fs.entryPath(locator)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := os.WriteFile(bodyPath, []byte("orphan"), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}

	if _, err := store.Get(context.Background(), locator); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound without metadata, got %v", err)
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestStorePutInterruptedStreamLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("store init error: %v", err)
	}
	locator := Locator{Bucket: "punk-blvck-dynamic-v1", Key: "https://images.unsplash.com/photo-1.jpg"}

	reader := &flakyReader{payload: []byte("partial_data"), failAfter: 5}
	if _, err := store.Put(context.Background(), locator, reader, PutOptions{}); err == nil {
		t.Fatalf("expected error from interrupted reader")
	}
	if _, err := store.Get(context.Background(), locator); err != ErrNotFound {
		t.Fatalf("interrupted write must not be readable, got %v", err)
	}

	var leftovers []string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	if len(leftovers) != 0 {
		t.Fatalf("temporary files should be cleaned up, found %v", leftovers)
	}
}

type flakyReader struct {
	payload   []byte
	failAfter int
	readBytes int
}

func (f *flakyReader) Read(p []byte) (int, error) {
	if f.readBytes >= f.failAfter {
		return 0, io.ErrUnexpectedEOF
	}
	remaining := f.failAfter - f.readBytes
	if remaining > len(p) {
		remaining = len(p)
	}
	copy(p[:remaining], f.payload[f.readBytes:f.readBytes+remaining])
	f.readBytes += remaining
	return remaining, nil
}
