// Package cachefirst 注册 cache-first 策略：命中即返回，未命中回源并写入缓存。
package cachefirst

import "github.com/punk-blvck/blvck-hub/internal/strategy"

func init() {
	strategy.MustRegister(strategy.Metadata{
		Key:          strategy.KeyCacheFirst,
		Description:  "Serve from cache when present, otherwise fetch and populate the bucket",
		Destinations: []string{"image", "font", "manifest", "empty"},
		Profile: strategy.Profile{
			FallbackToShell: true,
		},
	})
}
