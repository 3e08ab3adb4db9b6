package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/punk-blvck/blvck-hub/internal/config"
)

// OriginRoute 将源站配置与解析后的 Upstream/Proxy URL 聚合在一起，
// 供路由与控制器直接复用，避免重复解析配置。
type OriginRoute struct {
	// Config 是用户在 config.toml 中声明的 Origin 字段副本。
	Config config.OriginConfig
	// ListenPort 记录当前监听端口，方便日志与转发头输出。
	ListenPort int
	// UpstreamURL/ProxyURL 在构造 Registry 时提前解析完成。
	UpstreamURL *url.URL
	ProxyURL    *url.URL
}

// UpstreamFor 将页面请求的路径与查询串映射为源站上的绝对 URL，该 URL 同时作为缓存键。
func (r *OriginRoute) UpstreamFor(path, rawQuery string) *url.URL {
	if path == "" {
		path = "/"
	}
	relative := &url.URL{Path: path, RawPath: path}
	if rawQuery != "" {
		relative.RawQuery = rawQuery
	}
	return r.UpstreamURL.ResolveReference(relative)
}

// OriginRegistry 提供 Host/Host:port 到 OriginRoute 的查询能力，所有源站共享同一个监听端口。
type OriginRegistry struct {
	routes  map[string]*OriginRoute
	byHost  map[string]*OriginRoute
	ordered []*OriginRoute
	shell   *OriginRoute
}

// NewOriginRegistry 根据配置构建 Host 映射。调用方应在启动阶段创建一次并复用。
func NewOriginRegistry(cfg *config.Config) (*OriginRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &OriginRegistry{
		routes: make(map[string]*OriginRoute, len(cfg.Origins)),
		byHost: make(map[string]*OriginRoute, len(cfg.Origins)),
	}

	for _, origin := range cfg.Origins {
		normalizedHost := normalizeDomain(origin.Domain)
		if normalizedHost == "" {
			return nil, fmt.Errorf("invalid domain for origin %s", origin.Name)
		}
		if _, exists := registry.routes[normalizedHost]; exists {
			return nil, fmt.Errorf("duplicate domain mapping detected for %s", normalizedHost)
		}

		route, err := buildOriginRoute(cfg, origin)
		if err != nil {
			return nil, err
		}

		registry.routes[normalizedHost] = route
		registry.byHost[strings.ToLower(route.UpstreamURL.Host)] = route
		registry.ordered = append(registry.ordered, route)
		if origin.Shell && registry.shell == nil {
			registry.shell = route
		}
	}

	return registry, nil
}

// Lookup 根据 Host 或 Host:port 查找 OriginRoute。
func (r *OriginRegistry) Lookup(host string) (*OriginRoute, bool) {
	if r == nil {
		return nil, false
	}

	normalizedHost, _ := normalizeHost(host)
	if normalizedHost == "" {
		return nil, false
	}

	route, ok := r.routes[normalizedHost]
	return route, ok
}

// ForUpstream 根据绝对上游 URL 的 Host 找到对应源站，供预缓存清单中的跨域条目复用代理设置。
func (r *OriginRegistry) ForUpstream(target *url.URL) (*OriginRoute, bool) {
	if r == nil || target == nil {
		return nil, false
	}
	route, ok := r.byHost[strings.ToLower(target.Host)]
	return route, ok
}

// Shell 返回提供 App Shell 的源站。
func (r *OriginRegistry) Shell() (*OriginRoute, bool) {
	if r == nil || r.shell == nil {
		return nil, false
	}
	return r.shell, true
}

// List 返回当前注册的 OriginRoute 列表（按配置定义的顺序），用于诊断输出。
func (r *OriginRegistry) List() []OriginRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]OriginRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func buildOriginRoute(cfg *config.Config, origin config.OriginConfig) (*OriginRoute, error) {
	upstreamURL, err := url.Parse(origin.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream for origin %s: %w", origin.Name, err)
	}
	if upstreamURL.Host == "" {
		return nil, fmt.Errorf("invalid upstream for origin %s: missing host", origin.Name)
	}

	var proxyURL *url.URL
	if origin.Proxy != "" {
		proxyURL, err = url.Parse(origin.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy for origin %s: %w", origin.Name, err)
		}
	}

	return &OriginRoute{
		Config:      origin,
		ListenPort:  cfg.Global.ListenPort,
		UpstreamURL: upstreamURL,
		ProxyURL:    proxyURL,
	}, nil
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
