package strategy

import "time"

// 内置策略键。
const (
	KeyCacheFirst    = "cache-first"
	KeyNetworkFirst  = "network-first"
	KeyTTLCacheFirst = "ttl-cache-first"
)

// BucketRole 描述策略写入的缓存桶角色，最终桶名由版本化命名规则决定。
type BucketRole string

const (
	BucketStatic  BucketRole = "static"
	BucketDynamic BucketRole = "dynamic"
	BucketWeather BucketRole = "weather"
)

// Profile 描述策略的读写顺序与回退行为。
type Profile struct {
	// NetworkFirst 为 true 时先回源，失败后才读缓存。
	NetworkFirst bool
	// TTL>0 时缓存命中需要捕获时间足够新；0 表示命中即返回。
	TTL time.Duration
	// StaleOnError 允许回源失败时返回过期缓存。
	StaleOnError bool
	// FallbackToShell 允许 document 请求在无缓存且回源失败时返回 App Shell。
	FallbackToShell bool
	// StampCaptureTime 写入缓存时在响应头记录捕获时间。
	StampCaptureTime bool
}

// Metadata 记录一个策略的静态信息，供控制器执行与诊断端展示。
type Metadata struct {
	Key          string
	Description  string
	Destinations []string
	Profile      Profile
}
