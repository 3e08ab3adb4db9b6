package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyKey 表示调用方传入空键。
var ErrEmptyKey = errors.New("kv: empty key")

// Storage 是字符串键值存储，对齐浏览器 localStorage 的 get/set/remove 语义。
type Storage interface {
	// GetItem 返回键对应的值；不存在时 ok 为 false 且 err 为 nil。
	GetItem(ctx context.Context, key string) (value []byte, ok bool, err error)
	SetItem(ctx context.Context, key string, value []byte) error
	// RemoveItem 删除键，不存在时不报错。
	RemoveItem(ctx context.Context, key string) error
}

// Namespaced 为所有键加上 "<namespace>:" 前缀。
type Namespaced struct {
	inner  Storage
	prefix string
}

// WithNamespace 包装 inner，namespace 为空时原样返回。
func WithNamespace(inner Storage, namespace string) Storage {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return inner
	}
	return &Namespaced{inner: inner, prefix: namespace + ":"}
}

// Key 返回加上前缀后的实际键。
func (n *Namespaced) Key(key string) string {
	return n.prefix + key
}

func (n *Namespaced) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.GetItem(ctx, n.Key(key))
}

func (n *Namespaced) SetItem(ctx context.Context, key string, value []byte) error {
	return n.inner.SetItem(ctx, n.Key(key), value)
}

func (n *Namespaced) RemoveItem(ctx context.Context, key string) error {
	return n.inner.RemoveItem(ctx, n.Key(key))
}

// envelope 是持久化格式：{"data": ..., "timestamp": <unix 毫秒>}。
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Save 以 envelope 格式写入 data，timestamp 为写入时刻。
func Save(ctx context.Context, s Storage, key string, data any, at time.Time) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	payload, err := json.Marshal(envelope{Data: raw, Timestamp: at.UnixMilli()})
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.SetItem(ctx, key, payload)
}

// Load 读取 envelope 并把 data 解码到 out，返回写入时刻。
// 键不存在时 ok 为 false；内容损坏时返回错误。
func Load(ctx context.Context, s Storage, key string, out any) (time.Time, bool, error) {
	payload, ok, err := s.GetItem(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return time.Time{}, false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return time.Time{}, false, fmt.Errorf("kv: decode %s: missing data", key)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return time.Time{}, false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return time.UnixMilli(env.Timestamp), true, nil
}

func checkKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}
