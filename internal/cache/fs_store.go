package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/punk-blvck/blvck-hub/internal/faults"
)

const (
	bodySuffix = ".body"
	metaSuffix = ".meta"
)

// Option 调整 fileStore 的可选行为。
type Option func(*fileStore)

// WithQuota 限制所有桶正文的总字节数，<=0 表示不限制。
func WithQuota(limit int64) Option {
	return func(s *fileStore) {
		s.quota = limit
	}
}

// NewStore 以 basePath 为根目录构建磁盘缓存，整站复用一份实例。
func NewStore(basePath string, opts ...Option) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	store := &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}
	for _, opt := range opts {
		opt(store)
	}
	if store.quota > 0 {
		used, err := diskUsage(abs)
		if err != nil {
			return nil, fmt.Errorf("scan storage usage: %w", err)
		}
		store.used = used
	}
	return store, nil
}

// fileStore 通过 entryLock 避免同一 Locator 并发写入，同时复用 basePath。
type fileStore struct {
	basePath string
	quota    int64

	mu    sync.Mutex
	locks map[string]*entryLock
	used  int64
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

type entryMeta struct {
	Key        string      `json:"key"`
	Status     int         `json:"status"`
	Header     http.Header `json:"header"`
	CapturedAt time.Time   `json:"captured_at"`
	SizeBytes  int64       `json:"size_bytes"`
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	bodyPath, metaPath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}
	if meta.Key != locator.Key {
		return nil, ErrNotFound
	}

	info, err := os.Stat(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := os.Open(bodyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	entry := Entry{
		Locator:    locator,
		FilePath:   bodyPath,
		SizeBytes:  info.Size(),
		Status:     meta.Status,
		Header:     meta.Header,
		CapturedAt: meta.CapturedAt,
	}

	return &ReadResult{
		Entry:  entry,
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	unlock, err := s.lockEntry(locator)
	if err != nil {
		return nil, err
	}
	defer unlock()

	bodyPath, metaPath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(bodyPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return nil, err
	}

	var previous int64
	if info, statErr := os.Stat(bodyPath); statErr == nil {
		previous = info.Size()
	}
	if err := s.reserve(locator.Bucket, written-previous); err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if err := os.Rename(tempName, bodyPath); err != nil {
		os.Remove(tempName)
		s.release(written - previous)
		return nil, err
	}

	capturedAt := opts.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	status := opts.Status
	if status == 0 {
		status = http.StatusOK
	}
	meta := entryMeta{
		Key:        locator.Key,
		Status:     status,
		Header:     opts.Header,
		CapturedAt: capturedAt,
		SizeBytes:  written,
	}
	if err := writeMeta(metaPath, meta); err != nil {
		return nil, err
	}

	entry := Entry{
		Locator:    locator,
		FilePath:   bodyPath,
		SizeBytes:  written,
		Status:     status,
		Header:     opts.Header,
		CapturedAt: capturedAt,
	}
	return &entry, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	unlock, err := s.lockEntry(locator)
	if err != nil {
		return err
	}
	defer unlock()

	bodyPath, metaPath, err := s.entryPath(locator)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(bodyPath); statErr == nil {
		s.release(info.Size())
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(bodyPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Buckets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *fileStore) DeleteBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return err
	}
	size, err := diskUsage(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	s.release(size)
	return nil
}

func (s *fileStore) reserve(bucket string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quota > 0 && delta > 0 && s.used+delta > s.quota {
		return faults.QuotaExceeded(bucket, s.used+delta, s.quota)
	}
	s.used += delta
	return nil
}

func (s *fileStore) release(size int64) {
	s.mu.Lock()
	s.used -= size
	if s.used < 0 {
		s.used = 0
	}
	s.mu.Unlock()
}

func (s *fileStore) lockEntry(locator Locator) (func(), error) {
	key := locatorKey(locator)
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}, nil
}

func (s *fileStore) bucketPath(bucket string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || strings.HasPrefix(bucket, ".") {
		return "", ErrInvalidBucket
	}
	return filepath.Join(s.basePath, bucket), nil
}

func (s *fileStore) entryPath(locator Locator) (string, string, error) {
	dir, err := s.bucketPath(locator.Bucket)
	if err != nil {
		return "", "", err
	}
	if locator.Key == "" {
		return "", "", errors.New("cache key required")
	}
	sum := sha256.Sum256([]byte(locator.Key))
	name := hex.EncodeToString(sum[:])
	base := filepath.Join(dir, name[:2], name)
	return base + bodySuffix, base + metaSuffix, nil
}

func readMeta(path string) (entryMeta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entryMeta{}, ErrNotFound
		}
		return entryMeta{}, err
	}
	var meta entryMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return entryMeta{}, fmt.Errorf("decode cache metadata: %w", err)
	}
	return meta, nil
}

func writeMeta(path string, meta entryMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".meta-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	_, err = tempFile.Write(raw)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// diskUsage 统计目录下所有正文文件的总字节数，用于配额初始化与桶删除。
func diskUsage(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), bodySuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}

func locatorKey(locator Locator) string {
	return locator.Bucket + "::" + locator.Key
}
