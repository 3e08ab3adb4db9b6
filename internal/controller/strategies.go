package controller

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/punk-blvck/blvck-hub/internal/cache"
	"github.com/punk-blvck/blvck-hub/internal/faults"
	"github.com/punk-blvck/blvck-hub/internal/server"
	"github.com/punk-blvck/blvck-hub/internal/strategy"
)

// HeaderCacheTime 记录天气响应的捕获时间（RFC 3339），TTL 判定只看该头。
const HeaderCacheTime = "X-Blvck-Cache-Time"

// Source 标记结果的来源。
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceShell   Source = "shell"
)

// Exchange 是一次被拦截的请求：分类快照加上回源所需的上下文。
type Exchange struct {
	Request RequestDescriptor
	Header  http.Header
	Origin  *server.OriginRoute

	ForwardedHost  string
	ForwardedFor   string
	ForwardedProto string
}

// Outcome 是策略执行结果，正文已完整读入内存。
type Outcome struct {
	Status   int
	Header   http.Header
	Body     []byte
	Source   Source
	Bucket   string
	Upstream string
	// Stale 表示 TTL 已过期但因回源失败仍被返回的缓存。
	Stale bool
}

// CacheHit 表示结果是否来自缓存桶（包括 App Shell 回退）。
func (o *Outcome) CacheHit() bool {
	return o != nil && o.Source != SourceNetwork
}

// Serve 按分类结果执行对应策略。所有缓存写入都以后台任务方式调度，
// 返回前已登记，失败只记录日志。
func (c *Controller) Serve(ctx context.Context, route Route, ex Exchange) (*Outcome, error) {
	profile, ok := c.opts.Profiles(route.Strategy)
	if !ok {
		return nil, errors.New("strategy " + route.Strategy + " is not registered")
	}
	bucket := c.opts.Buckets.Name(route.Bucket)
	key := ex.Request.URL.String()

	if profile.NetworkFirst {
		out, err := c.fetchAndStore(ctx, ex, bucket, profile)
		if err == nil {
			return out, nil
		}
		if cached := c.match(ctx, key, bucket); cached != nil {
			return cached, nil
		}
		return c.fallback(ctx, ex, profile, err)
	}

	cached := c.match(ctx, key, bucket)
	if cached != nil && c.fresh(profile, cached) {
		return cached, nil
	}

	out, err := c.fetchAndStore(ctx, ex, bucket, profile)
	if err == nil {
		return out, nil
	}
	if cached != nil && profile.StaleOnError {
		cached.Stale = true
		return cached, nil
	}
	return c.fallback(ctx, ex, profile, err)
}

// fresh 判断缓存是否可以不经回源直接返回。无 TTL 的策略命中即新鲜；
// 带 TTL 的策略只信任捕获时间头，缺失时视为过期。
func (c *Controller) fresh(profile strategy.Profile, out *Outcome) bool {
	if profile.TTL <= 0 {
		return true
	}
	var captured time.Time
	if raw := out.Header.Get(HeaderCacheTime); raw != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			captured = parsed
		}
	}
	policy := cache.NewTTLPolicy(profile.TTL).WithClock(c.opts.Now)
	return policy.Fresh(cache.Entry{CapturedAt: captured})
}

func (c *Controller) fallback(ctx context.Context, ex Exchange, profile strategy.Profile, cause error) (*Outcome, error) {
	if profile.FallbackToShell && ex.Request.Destination == DestinationDocument {
		if shell := c.matchShell(ctx); shell != nil {
			shell.Source = SourceShell
			return shell, nil
		}
	}
	return nil, cause
}

func (c *Controller) matchShell(ctx context.Context) *Outcome {
	shellRoute, ok := c.opts.Registry.Shell()
	if !ok || c.opts.AppShell == "" {
		return nil
	}
	key := shellRoute.UpstreamFor(c.opts.AppShell, "").String()
	return c.match(ctx, key, c.opts.Buckets.Name(strategy.BucketStatic))
}

// match 先查目标桶，再依次查当前版本集合内的其它桶。
func (c *Controller) match(ctx context.Context, key, preferred string) *Outcome {
	if c.opts.Store == nil {
		return nil
	}
	order := append([]string{preferred}, c.opts.Buckets.KeepSet()...)
	seen := make(map[string]struct{}, len(order))
	for _, bucket := range order {
		if _, dup := seen[bucket]; dup {
			continue
		}
		seen[bucket] = struct{}{}

		result, err := c.opts.Store.Get(ctx, cache.Locator{Bucket: bucket, Key: key})
		if err != nil {
			if !errors.Is(err, cache.ErrNotFound) {
				c.opts.Logger.WithError(err).WithFields(logrus.Fields{
					"action": "cache_get",
					"bucket": bucket,
				}).Warn("cache_get_failed")
			}
			continue
		}
		body, readErr := io.ReadAll(result.Reader)
		result.Reader.Close()
		if readErr != nil {
			c.opts.Logger.WithError(readErr).WithFields(logrus.Fields{
				"action": "cache_get",
				"bucket": bucket,
			}).Warn("cache_read_failed")
			continue
		}
		status := result.Entry.Status
		if status == 0 {
			status = http.StatusOK
		}
		header := result.Entry.Header.Clone()
		if header == nil {
			header = http.Header{}
		}
		return &Outcome{
			Status:   status,
			Header:   header,
			Body:     body,
			Source:   SourceCache,
			Bucket:   bucket,
			Upstream: key,
		}
	}
	return nil
}

// fetchAndStore 回源；2xx 响应的副本以后台任务写入目标桶，非 2xx 原样返回不落盘。
func (c *Controller) fetchAndStore(ctx context.Context, ex Exchange, bucket string, profile strategy.Profile) (*Outcome, error) {
	target := ex.Request.URL
	resp, err := c.opts.Fetcher.Fetch(ctx, FetchRequest{
		Method:         http.MethodGet,
		URL:            target,
		Header:         ex.Header,
		Route:          c.routeFor(ex.Origin, target),
		ForwardedHost:  ex.ForwardedHost,
		ForwardedFor:   ex.ForwardedFor,
		ForwardedProto: ex.ForwardedProto,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.FetchFailed(err, target.String(), resp.StatusCode)
	}

	out := &Outcome{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		Source:   SourceNetwork,
		Bucket:   bucket,
		Upstream: target.String(),
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		now := c.opts.Now().UTC()
		header := storableHeader(resp.Header)
		if profile.StampCaptureTime {
			header.Set(HeaderCacheTime, now.Format(time.RFC3339Nano))
		}
		c.opts.Writer.Schedule(cache.Locator{Bucket: bucket, Key: target.String()}, body, cache.PutOptions{
			Status:     resp.StatusCode,
			Header:     header,
			CapturedAt: now,
		})
	}
	return out, nil
}

func (c *Controller) routeFor(origin *server.OriginRoute, target *url.URL) *server.OriginRoute {
	if origin != nil {
		return origin
	}
	route, _ := c.opts.Registry.ForUpstream(target)
	return route
}

// storableHeader 去掉 hop-by-hop 与长度相关字段，正文长度以落盘大小为准。
func storableHeader(src http.Header) http.Header {
	dst := http.Header{}
	server.CopyHeaders(dst, src)
	dst.Del("Content-Length")
	dst.Del("Content-Encoding")
	return dst
}
