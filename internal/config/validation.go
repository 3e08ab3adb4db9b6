package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

var supportedUnits = map[string]struct{}{
	"metric":   {},
	"imperial": {},
	"standard": {},
}

var supportedStorageDrivers = map[string]struct{}{
	"file":   {},
	"sqlite": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if err := c.Global.validate(); err != nil {
		return err
	}

	if len(c.Origins) == 0 {
		return errors.New("至少需要配置一个 Origin")
	}

	seenNames := map[string]struct{}{}
	seenDomains := map[string]struct{}{}
	shells := 0
	for i := range c.Origins {
		origin := &c.Origins[i]
		if origin.Name == "" {
			return newFieldError("Origin[].Name", "不能为空")
		}
		if _, exists := seenNames[origin.Name]; exists {
			return newFieldError(originField(origin.Name, "Name"), "重复")
		}
		seenNames[origin.Name] = struct{}{}

		if err := validateDomain(origin.Domain); err != nil {
			return fmt.Errorf("%s: %w", originField(origin.Name, "Domain"), err)
		}
		domain := strings.ToLower(origin.Domain)
		if _, exists := seenDomains[domain]; exists {
			return newFieldError(originField(origin.Name, "Domain"), "重复")
		}
		seenDomains[domain] = struct{}{}

		if err := validateUpstream(origin.Upstream); err != nil {
			return fmt.Errorf("%s: %w", originField(origin.Name, "Upstream"), err)
		}
		if origin.Proxy != "" {
			if err := validateUpstream(origin.Proxy); err != nil {
				return fmt.Errorf("%s: %w", originField(origin.Name, "Proxy"), err)
			}
		}
		if origin.Shell {
			shells++
		}
	}
	if shells != 1 {
		return newFieldError("Origin[].Shell", "必须且只能有一个源站提供 App Shell")
	}

	if err := c.Weather.validate(); err != nil {
		return err
	}
	return c.validateStorageSeparation()
}

// validateStorageSeparation 要求客户端存储目录位于缓存根目录之外，
// 缓存根目录下的每个子目录都被视为缓存桶。
func (c *Config) validateStorageSeparation() error {
	if c.Weather.StoragePath == "" {
		return nil
	}
	root, err := filepath.Abs(c.Global.StoragePath)
	if err != nil {
		return fmt.Errorf("Global.StoragePath: %w", err)
	}
	kvPath, err := filepath.Abs(c.Weather.StoragePath)
	if err != nil {
		return fmt.Errorf("Weather.StoragePath: %w", err)
	}
	if pathWithin(root, kvPath) {
		return newFieldError("Weather.StoragePath", "不能位于 Global.StoragePath 之内")
	}
	return nil
}

// pathWithin 判断 target 是否为 root 本身或其子路径。
func pathWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (g GlobalConfig) validate() error {
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.StorageQuota < 0 {
		return newFieldError("Global.StorageQuota", "不能为负数")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.WeatherTTL.DurationValue() <= 0 {
		return newFieldError("Global.WeatherTTL", "必须大于 0")
	}
	if err := validateBucketToken(g.CachePrefix); err != nil {
		return newFieldError("Global.CachePrefix", err.Error())
	}
	if err := validateBucketToken(g.CacheVersion); err != nil {
		return newFieldError("Global.CacheVersion", err.Error())
	}
	if !strings.HasPrefix(g.AppShell, "/") {
		return newFieldError("Global.AppShell", "必须是以 / 开头的路径")
	}
	for _, pattern := range g.ImagePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return newFieldError("Global.ImagePatterns", fmt.Sprintf("非法正则 %q: %v", pattern, err))
		}
	}
	for _, pattern := range g.ExcludePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return newFieldError("Global.ExcludePatterns", fmt.Sprintf("非法正则 %q: %v", pattern, err))
		}
	}
	for _, asset := range g.StaticAssets {
		if strings.HasPrefix(asset, "/") {
			continue
		}
		if err := validateUpstream(asset); err != nil {
			return fmt.Errorf("Global.StaticAssets: %w", err)
		}
	}
	return nil
}

func (w WeatherConfig) validate() error {
	if _, ok := supportedUnits[w.Units]; !ok {
		return newFieldError("Weather.Units", "仅支持 metric/imperial/standard")
	}
	if _, err := language.Parse(strings.ReplaceAll(w.Lang, "_", "-")); err != nil {
		return newFieldError("Weather.Lang", fmt.Sprintf("无法识别的语言代码 %q", w.Lang))
	}
	if _, ok := supportedStorageDrivers[w.StorageDriver]; !ok {
		return newFieldError("Weather.StorageDriver", "仅支持 file/sqlite")
	}
	if err := validateUpstream(w.Endpoint); err != nil {
		return fmt.Errorf("Weather.Endpoint: %w", err)
	}
	if err := validateUpstream(w.GeocodeEndpoint); err != nil {
		return fmt.Errorf("Weather.GeocodeEndpoint: %w", err)
	}
	if w.Latitude < -90 || w.Latitude > 90 {
		return newFieldError("Weather.Latitude", "必须在 -90 到 90 之间")
	}
	if w.Longitude < -180 || w.Longitude > 180 {
		return newFieldError("Weather.Longitude", "必须在 -180 到 180 之间")
	}
	if w.Accuracy < 0 {
		return newFieldError("Weather.Accuracy", "不能为负数")
	}
	if strings.ContainsAny(w.Namespace, ": ") {
		return newFieldError("Weather.Namespace", "不能包含冒号或空格")
	}
	return nil
}

func validateBucketToken(token string) error {
	if token == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(token, `/\ `) || strings.HasPrefix(token, ".") {
		return errors.New("不能包含路径分隔符、空格或以 . 开头")
	}
	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("Domain 不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
