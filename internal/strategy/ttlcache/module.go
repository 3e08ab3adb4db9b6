// Package ttlcache 注册天气数据使用的 TTL cache-first 策略。
package ttlcache

import (
	"time"

	"github.com/punk-blvck/blvck-hub/internal/strategy"
)

const weatherDefaultTTL = 30 * time.Minute

// 天气供应商响应在 TTL 内直接返回；过期后回源，回源失败时仍可返回旧数据。
func init() {
	strategy.MustRegister(strategy.Metadata{
		Key:          strategy.KeyTTLCacheFirst,
		Description:  "Time-boxed cache-first for weather provider responses",
		Destinations: []string{"empty"},
		Profile: strategy.Profile{
			TTL:              weatherDefaultTTL,
			StaleOnError:     true,
			StampCaptureTime: true,
		},
	})
}
