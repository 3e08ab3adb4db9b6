package kv

import (
	"fmt"
	"io"
	"path/filepath"
)

// Open 根据驱动名打开客户端存储并加上命名空间。返回的 io.Closer 在进程退出时调用。
func Open(driver, dir, namespace string) (Storage, io.Closer, error) {
	switch driver {
	case "", "file":
		store, err := OpenFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return WithNamespace(store, namespace), nopCloser{}, nil
	case "sqlite":
		store, err := OpenSQLiteStore(filepath.Join(dir, "client.db"))
		if err != nil {
			return nil, nil, err
		}
		return WithNamespace(store, namespace), store, nil
	default:
		return nil, nil, fmt.Errorf("kv: unsupported driver %q", driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
