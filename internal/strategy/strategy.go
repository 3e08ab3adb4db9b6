package strategy

import "time"

// Options 描述来自全局配置的覆盖项。
type Options struct {
	TTLOverride time.Duration
}

// ResolveProfile 将策略默认画像与配置覆盖合并。覆盖只作用于原本带 TTL 的策略，
// 避免把全局天气 TTL 误加到永不过期的静态资源上。
func ResolveProfile(meta Metadata, opts Options) Profile {
	profile := meta.Profile
	if opts.TTLOverride > 0 && profile.TTL > 0 {
		profile.TTL = opts.TTLOverride
	}
	return normalizeProfile(profile)
}

func normalizeProfile(profile Profile) Profile {
	if profile.TTL < 0 {
		profile.TTL = 0
	}
	if profile.TTL == 0 {
		profile.StaleOnError = false
	}
	return profile
}
