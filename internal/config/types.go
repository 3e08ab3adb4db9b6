package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，以及离线缓存控制器的分类规则。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	StorageQuota    int64    `mapstructure:"StorageQuota"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`

	CachePrefix     string   `mapstructure:"CachePrefix"`
	CacheVersion    string   `mapstructure:"CacheVersion"`
	AppShell        string   `mapstructure:"AppShell"`
	WeatherTTL      Duration `mapstructure:"WeatherTTL"`
	SkipWaiting     bool     `mapstructure:"SkipWaiting"`
	StaticAssets    []string `mapstructure:"StaticAssets"`
	WeatherHosts    []string `mapstructure:"WeatherHosts"`
	ImagePatterns   []string `mapstructure:"ImagePatterns"`
	ExcludePatterns []string `mapstructure:"ExcludePatterns"`
	DevHosts        []string `mapstructure:"DevHosts"`
}

// OriginConfig 描述一个被网关接管的上游主机。
type OriginConfig struct {
	Name     string `mapstructure:"Name"`
	Domain   string `mapstructure:"Domain"`
	Upstream string `mapstructure:"Upstream"`
	Proxy    string `mapstructure:"Proxy"`
	// Shell 标记提供 App Shell 与静态清单的应用主站，有且仅有一个。
	Shell bool `mapstructure:"Shell"`
}

// WeatherConfig 控制天气服务的供应商、定位与客户端存储。
type WeatherConfig struct {
	APIKey             string   `mapstructure:"APIKey"`
	Units              string   `mapstructure:"Units"`
	Lang               string   `mapstructure:"Lang"`
	GeolocationTimeout Duration `mapstructure:"GeolocationTimeout"`
	CacheDuration      Duration `mapstructure:"CacheDuration"`
	Development        bool     `mapstructure:"Development"`
	Endpoint           string   `mapstructure:"Endpoint"`
	GeocodeEndpoint    string   `mapstructure:"GeocodeEndpoint"`
	UserAgent          string   `mapstructure:"UserAgent"`
	StorageDriver      string   `mapstructure:"StorageDriver"`
	StoragePath        string   `mapstructure:"StoragePath"`
	Namespace          string   `mapstructure:"Namespace"`
	Latitude           float64  `mapstructure:"Latitude"`
	Longitude          float64  `mapstructure:"Longitude"`
	Accuracy           float64  `mapstructure:"Accuracy"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Origins []OriginConfig `mapstructure:"Origin"`
	Weather WeatherConfig  `mapstructure:"Weather"`

	// Warnings 记录加载过程中被忽略的环境变量，日志初始化后输出。
	Warnings []string `mapstructure:"-"`
}

// ShellOrigin 返回提供 App Shell 的源站配置。
func (c *Config) ShellOrigin() (OriginConfig, bool) {
	if c == nil {
		return OriginConfig{}, false
	}
	for _, origin := range c.Origins {
		if origin.Shell {
			return origin, true
		}
	}
	return OriginConfig{}, false
}

// OriginNames 返回所有源站名称，供启动日志使用。
func OriginNames(origins []OriginConfig) []string {
	if len(origins) == 0 {
		return nil
	}
	result := make([]string, len(origins))
	for i, origin := range origins {
		result[i] = origin.Name
	}
	return result
}
