package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrStoreUnavailable 表示当前控制器未注入缓存存储实例。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// Writer 以“分离任务”的方式写入缓存：响应立即返回给调用方，写入在后台 goroutine 中完成，
// 失败只记录日志不向上传播。Schedule 返回前 goroutine 已登记到 WaitGroup，Flush 可等待全部落盘。
type Writer struct {
	store  Store
	logger logrus.FieldLogger

	wg sync.WaitGroup
}

// NewWriter 构造后台写入器，store 为空时 Schedule 只记录一次跳过。
func NewWriter(store Store, logger logrus.FieldLogger) *Writer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Writer{store: store, logger: logger}
}

// Enabled 返回当前是否具备缓存写入能力。
func (w *Writer) Enabled() bool {
	return w != nil && w.store != nil
}

// Put 同步写入缓存正文，保持与 Store 相同的语义；安装阶段的预缓存需要同步结果。
func (w *Writer) Put(ctx context.Context, locator Locator, body []byte, opts PutOptions) (*Entry, error) {
	if !w.Enabled() {
		return nil, ErrStoreUnavailable
	}
	return w.store.Put(ctx, locator, bytes.NewReader(body), opts)
}

// Schedule 登记一次后台写入。body 会被复制，调用方可继续复用原切片。
func (w *Writer) Schedule(locator Locator, body []byte, opts PutOptions) {
	if !w.Enabled() {
		return
	}
	payload := append([]byte(nil), body...)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		// 请求上下文可能已结束，后台写入使用独立上下文。
		if _, err := w.store.Put(context.Background(), locator, bytes.NewReader(payload), opts); err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_write",
				"bucket": locator.Bucket,
				"key":    locator.Key,
			}).Warn("cache_write_failed")
		}
	}()
}

// Flush 等待所有已登记的后台写入完成。
func (w *Writer) Flush() {
	if w == nil {
		return
	}
	w.wg.Wait()
}

// TTLPolicy 根据捕获时间判断条目是否仍然新鲜，TTL<=0 表示条目永不过期。
type TTLPolicy struct {
	TTL time.Duration
	now func() time.Time
}

// NewTTLPolicy 构造 TTL 判定器，默认使用 time.Now 作为时钟。
func NewTTLPolicy(ttl time.Duration) TTLPolicy {
	return TTLPolicy{TTL: ttl, now: time.Now}
}

// WithClock 返回使用指定时钟的副本，便于测试模拟时间流逝。
func (p TTLPolicy) WithClock(now func() time.Time) TTLPolicy {
	p.now = now
	return p
}

// Fresh 返回条目年龄是否严格小于 TTL。
func (p TTLPolicy) Fresh(entry Entry) bool {
	if p.TTL <= 0 {
		return true
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	if entry.CapturedAt.IsZero() {
		return false
	}
	return now().Sub(entry.CapturedAt) < p.TTL
}
