// Package networkfirst 注册 network-first 策略：优先回源，失败时退回缓存或 App Shell。
package networkfirst

import "github.com/punk-blvck/blvck-hub/internal/strategy"

func init() {
	strategy.MustRegister(strategy.Metadata{
		Key:          strategy.KeyNetworkFirst,
		Description:  "Prefer a live fetch, fall back to the cached copy or the app shell",
		Destinations: []string{"document", "script", "style"},
		Profile: strategy.Profile{
			NetworkFirst:    true,
			FallbackToShell: true,
		},
	})
}
