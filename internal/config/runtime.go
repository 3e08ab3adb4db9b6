package config

import (
	"time"

	"github.com/punk-blvck/blvck-hub/internal/strategy"
)

// StrategyOverrides 将全局 WeatherTTL 映射为策略覆盖项。
func (g GlobalConfig) StrategyOverrides() strategy.Options {
	return strategy.Options{TTLOverride: g.WeatherTTL.DurationValue()}
}

// StrategyProfile 返回指定策略键在当前配置下的最终画像。
func (c *Config) StrategyProfile(key string) (strategy.Profile, bool) {
	meta, ok := strategy.Resolve(key)
	if !ok {
		return strategy.Profile{}, false
	}
	return strategy.ResolveProfile(meta, c.Global.StrategyOverrides()), true
}

// GeolocationTimeoutValue 返回定位超时，未配置时回退 10 秒。
func (w WeatherConfig) GeolocationTimeoutValue() time.Duration {
	if d := w.GeolocationTimeout.DurationValue(); d > 0 {
		return d
	}
	return 10 * time.Second
}

// CacheDurationValue 返回天气记录有效期，未配置时回退 30 分钟。
func (w WeatherConfig) CacheDurationValue() time.Duration {
	if d := w.CacheDuration.DurationValue(); d > 0 {
		return d
	}
	return 30 * time.Minute
}
