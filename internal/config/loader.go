package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认的静态清单，安装阶段全部预缓存。
var defaultStaticAssets = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/favicon.ico",
	"/icons/icon-192x192.png",
	"/icons/icon-512x512.png",
	"https://fonts.googleapis.com/css2?family=Inter:wght@100;300;400;600;700;900&display=swap",
}

var defaultExcludePatterns = []string{
	`^chrome-extension://`,
	`^https://www\.google-analytics\.com/`,
	`^https://www\.googletagmanager\.com/`,
}

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectOriginLevelPorts(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	warnings, err := ApplyWeatherEnv(&cfg.Weather)
	if err != nil {
		return nil, err
	}
	cfg.Warnings = warnings

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Origins {
		applyOriginDefaults(&cfg.Origins[i])
	}
	applyWeatherDefaults(&cfg.Weather, cfg.Global.StoragePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	absKV, err := filepath.Abs(cfg.Weather.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析天气存储目录: %w", err)
	}
	cfg.Weather.StoragePath = absKV

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("StorageQuota", 0)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("CachePrefix", "punk-blvck")
	v.SetDefault("CacheVersion", "v1.0.0")
	v.SetDefault("AppShell", "/index.html")
	v.SetDefault("WeatherTTL", "30m")
	v.SetDefault("SkipWaiting", true)
	v.SetDefault("StaticAssets", defaultStaticAssets)
	v.SetDefault("WeatherHosts", []string{"openweathermap.org"})
	v.SetDefault("ImagePatterns", []string{`^https://images\.unsplash\.com/`})
	v.SetDefault("ExcludePatterns", defaultExcludePatterns)
	v.SetDefault("DevHosts", []string{"localhost"})

	v.SetDefault("Weather.Units", "metric")
	v.SetDefault("Weather.Lang", "pt_br")
	v.SetDefault("Weather.GeolocationTimeout", "10s")
	v.SetDefault("Weather.CacheDuration", "30m")
	v.SetDefault("Weather.Endpoint", "https://api.openweathermap.org")
	v.SetDefault("Weather.GeocodeEndpoint", "https://nominatim.openstreetmap.org")
	v.SetDefault("Weather.UserAgent", "PunkBlvck/1.0")
	v.SetDefault("Weather.StorageDriver", "file")
	v.SetDefault("Weather.Namespace", "punk_blvck")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.WeatherTTL.DurationValue() == 0 {
		g.WeatherTTL = Duration(30 * time.Minute)
	}
	g.CachePrefix = strings.TrimSpace(g.CachePrefix)
	g.CacheVersion = strings.TrimSpace(g.CacheVersion)
	if g.AppShell != "" && !strings.HasPrefix(g.AppShell, "/") {
		g.AppShell = "/" + g.AppShell
	}
	for i, host := range g.WeatherHosts {
		g.WeatherHosts[i] = strings.ToLower(strings.TrimSpace(host))
	}
	for i, host := range g.DevHosts {
		g.DevHosts[i] = strings.ToLower(strings.TrimSpace(host))
	}
}

func applyOriginDefaults(o *OriginConfig) {
	o.Name = strings.TrimSpace(o.Name)
	o.Domain = strings.ToLower(strings.TrimSpace(o.Domain))
	o.Upstream = strings.TrimRight(strings.TrimSpace(o.Upstream), "/")
}

func applyWeatherDefaults(w *WeatherConfig, storagePath string) {
	w.Units = strings.ToLower(strings.TrimSpace(w.Units))
	if w.Units == "" {
		w.Units = "metric"
	}
	if strings.TrimSpace(w.Lang) == "" {
		w.Lang = "pt_br"
	}
	if w.GeolocationTimeout.DurationValue() <= 0 {
		w.GeolocationTimeout = Duration(10 * time.Second)
	}
	if w.CacheDuration.DurationValue() <= 0 {
		w.CacheDuration = Duration(30 * time.Minute)
	}
	w.StorageDriver = strings.ToLower(strings.TrimSpace(w.StorageDriver))
	if w.StorageDriver == "" {
		w.StorageDriver = "file"
	}
	if w.StoragePath == "" {
		w.StoragePath = filepath.Clean(storagePath) + "-client"
	}
	if w.Namespace == "" {
		w.Namespace = "punk_blvck"
	}
	w.Endpoint = strings.TrimRight(w.Endpoint, "/")
	w.GeocodeEndpoint = strings.TrimRight(w.GeocodeEndpoint, "/")
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectOriginLevelPorts 拒绝在 Origin 内声明端口，所有源站共享全局 ListenPort。
func rejectOriginLevelPorts(v *viper.Viper) error {
	raw := v.Get("Origin")
	origins, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	for idx, entry := range origins {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if _, exists := lookupKey(m, "Port"); exists {
			name := fmt.Sprintf("#%d", idx)
			if rawName, ok := lookupKey(m, "Name"); ok && rawName != "" {
				name = rawName
			}
			return newFieldError(originField(name, "Port"), "不支持单独端口，请使用全局 ListenPort")
		}
	}

	return nil
}

// lookupKey 忽略大小写读取表字段，viper 会将 TOML 键统一转为小写。
func lookupKey(m map[string]interface{}, key string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return fmt.Sprint(v), true
		}
	}
	return "", false
}
