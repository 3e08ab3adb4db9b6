package controller

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/punk-blvck/blvck-hub/internal/config"
	"github.com/punk-blvck/blvck-hub/internal/strategy"
)

// Rules 是分类使用的已编译规则集。
type Rules struct {
	WeatherHosts    []string
	ImagePatterns   []*regexp.Regexp
	ExcludePatterns []*regexp.Regexp
	DevHosts        []string
}

// CompileRules 从全局配置编译分类规则。
func CompileRules(g config.GlobalConfig) (Rules, error) {
	images, err := compilePatterns(g.ImagePatterns)
	if err != nil {
		return Rules{}, fmt.Errorf("image patterns: %w", err)
	}
	excludes, err := compilePatterns(g.ExcludePatterns)
	if err != nil {
		return Rules{}, fmt.Errorf("exclude patterns: %w", err)
	}
	return Rules{
		WeatherHosts:    lowerAll(g.WeatherHosts),
		ImagePatterns:   images,
		ExcludePatterns: excludes,
		DevHosts:        lowerAll(g.DevHosts),
	}, nil
}

// Route 是分类结果。Intercept 为 false 时请求直接透传给上游。
type Route struct {
	Intercept bool
	Strategy  string
	Bucket    strategy.BucketRole
	Reason    string
}

func bypass(reason string) Route {
	return Route{Reason: reason}
}

// Classify 按固定优先级为请求选择策略，命中第一条规则即返回：
//
//  1. 非 GET 不拦截
//  2. 排除规则（统计脚本、浏览器扩展等非 http(s) 协议）不拦截
//  3. 天气供应商主机 → ttl-cache-first，weather 桶
//  4. image 请求或图片主机规则 → cache-first，dynamic 桶
//  5. document/script/style 或开发主机 → network-first，dynamic 桶
//  6. 其它 → cache-first，static 桶
func Classify(rules Rules, req RequestDescriptor) Route {
	if req.Method != http.MethodGet {
		return bypass("method")
	}
	if req.URL == nil {
		return bypass("no_url")
	}
	scheme := strings.ToLower(req.URL.Scheme)
	if scheme != "http" && scheme != "https" {
		return bypass("scheme")
	}

	raw := req.URL.String()
	for _, pattern := range rules.ExcludePatterns {
		if pattern.MatchString(raw) {
			return bypass("excluded")
		}
	}

	host := strings.ToLower(req.URL.Hostname())
	if hostMatches(host, rules.WeatherHosts) {
		return Route{Intercept: true, Strategy: strategy.KeyTTLCacheFirst, Bucket: strategy.BucketWeather, Reason: "weather"}
	}

	if req.Destination == DestinationImage || matchesAny(raw, rules.ImagePatterns) {
		return Route{Intercept: true, Strategy: strategy.KeyCacheFirst, Bucket: strategy.BucketDynamic, Reason: "image"}
	}

	switch req.Destination {
	case DestinationDocument, DestinationScript, DestinationStyle:
		return Route{Intercept: true, Strategy: strategy.KeyNetworkFirst, Bucket: strategy.BucketDynamic, Reason: string(req.Destination)}
	}
	if hostMatches(host, rules.DevHosts) {
		return Route{Intercept: true, Strategy: strategy.KeyNetworkFirst, Bucket: strategy.BucketDynamic, Reason: "dev_host"}
	}

	return Route{Intercept: true, Strategy: strategy.KeyCacheFirst, Bucket: strategy.BucketStatic, Reason: "static"}
}

// hostMatches 匹配主机本身或其子域。
func hostMatches(host string, candidates []string) bool {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}

func matchesAny(raw string, patterns []*regexp.Regexp) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(raw) {
			return true
		}
	}
	return false
}

func compilePatterns(raw []string) ([]*regexp.Regexp, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	result := make([]*regexp.Regexp, 0, len(raw))
	for _, expr := range raw {
		compiled, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		result = append(result, compiled)
	}
	return result, nil
}

func lowerAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			result = append(result, v)
		}
	}
	return result
}
