package kv

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const fileSuffix = ".json"

// FileStore 每个键一个文件，写入采用临时文件 + rename。
type FileStore struct {
	fs billy.Filesystem
	mu sync.RWMutex
}

// NewFileStore 在 fs 上构造存储。
func NewFileStore(fs billy.Filesystem) *FileStore {
	return &FileStore{fs: fs}
}

// OpenFileStore 以 dir 为根目录构造磁盘存储。
func OpenFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("kv: storage directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create %s: %w", dir, err)
	}
	return NewFileStore(osfs.New(dir)), nil
}

// NewMemoryStore 返回仅存在于内存中的存储。
func NewMemoryStore() *FileStore {
	return NewFileStore(memfs.New())
}

func (s *FileStore) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := util.ReadFile(s.fs, fileName(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv: read %s: %w", key, err)
	}
	return data, true, nil
}

func (s *FileStore) SetItem(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fileName(key)
	tmp, err := util.TempFile(s.fs, "", ".kv-")
	if err != nil {
		return fmt.Errorf("kv: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("kv: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("kv: close %s: %w", key, err)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("kv: rename %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(fileName(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("kv: remove %s: %w", key, err)
	}
	return nil
}

// fileName 对键做转义，避免冒号与路径分隔符进入文件名。
func fileName(key string) string {
	return url.QueryEscape(key) + fileSuffix
}
