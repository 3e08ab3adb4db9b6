package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Store 负责管理磁盘缓存桶的读写。磁盘布局遵循：
//
//	<StoragePath>/<Bucket>/<sha[0:2]>/<sha>.body    # 响应正文
//	<StoragePath>/<Bucket>/<sha[0:2]>/<sha>.meta    # JSON 元数据（请求键、状态码、响应头、捕获时间）
//
// 元数据缺失的条目视为不存在。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将上游响应写入缓存桶，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。超出配额时返回 STORAGE_QUOTA_EXCEEDED。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除单个条目，不存在时不报错。
	Remove(ctx context.Context, locator Locator) error

	// Buckets 返回当前磁盘上存在的所有缓存桶名称（排序后）。
	Buckets(ctx context.Context) ([]string, error)

	// EnsureBucket 创建空桶，已存在时不做任何事。
	EnsureBucket(ctx context.Context, bucket string) error

	// DeleteBucket 删除整个桶及其全部条目。
	DeleteBucket(ctx context.Context, bucket string) error
}

// PutOptions 控制写入过程中的附加属性。
type PutOptions struct {
	Status     int
	Header     http.Header
	CapturedAt time.Time
}

// Locator 唯一定位一个缓存条目（桶名 + 请求键），请求键为完整的上游 URL。
type Locator struct {
	Bucket string
	Key    string
}

// Entry 表示一次缓存命中结果，包含正文文件路径与响应元数据。
type Entry struct {
	Locator    Locator     `json:"locator"`
	FilePath   string      `json:"file_path"`
	SizeBytes  int64       `json:"size_bytes"`
	Status     int         `json:"status"`
	Header     http.Header `json:"header"`
	CapturedAt time.Time   `json:"captured_at"`
}

// ReadResult 组合 Entry 与正文 Reader，便于控制器直接将 Body 返回给页面。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidBucket 表示桶名为空或包含路径分隔符。
var ErrInvalidBucket = errors.New("invalid cache bucket name")
