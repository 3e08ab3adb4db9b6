package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/punk-blvck/blvck-hub/internal/faults"
	"github.com/punk-blvck/blvck-hub/internal/logging"
	"github.com/punk-blvck/blvck-hub/internal/server"
)

// 控制器写入页面响应的诊断头。
const (
	HeaderCacheHit = "X-Blvck-Cache-Hit"
	HeaderStrategy = "X-Blvck-Strategy"
	HeaderBucket   = "X-Blvck-Bucket"
	HeaderUpstream = "X-Blvck-Upstream"

	strategyBypass = "bypass"
)

// Handler 实现 server.ProxyHandler：分类 → 活跃控制器执行策略；
// 未拦截或无活跃控制器时直接透传上游。
type Handler struct {
	registration *Registration
	rules        Rules
	fetcher      Fetcher
	logger       *logrus.Logger
}

// NewHandler 构造 Fiber 入口。
func NewHandler(registration *Registration, rules Rules, fetcher Fetcher, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		registration: registration,
		rules:        rules,
		fetcher:      fetcher,
		logger:       logger,
	}
}

// Handle 实现 server.ProxyHandler。
func (h *Handler) Handle(c fiber.Ctx, route *server.OriginRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	upstream := route.UpstreamFor(string(c.Request().URI().Path()), string(c.Request().URI().QueryString()))
	desc := DescribeRequest(c.Method(), upstream, c.Get("Sec-Fetch-Dest"), c.Get(fiber.HeaderAccept))
	decision := Classify(h.rules, desc)

	active := h.registration.Active()
	if !decision.Intercept || active == nil {
		return h.passThrough(ctx, c, route, desc, requestID, started)
	}

	ex := Exchange{
		Request:        desc,
		Header:         requestHeaders(c),
		Origin:         route,
		ForwardedHost:  c.Hostname(),
		ForwardedFor:   c.IP(),
		ForwardedProto: c.Protocol(),
	}
	out, err := active.Serve(ctx, decision, ex)
	bucket := active.Buckets().Name(decision.Bucket)
	if err != nil {
		h.logResult(route, decision.Strategy, bucket, upstream.String(), requestID, 0, false, started, err)
		c.Set(HeaderStrategy, decision.Strategy)
		c.Set(HeaderUpstream, upstream.String())
		return server.WriteError(c, fiber.StatusBadGateway, errorCode(err))
	}

	writeHeaders(c, out.Header)
	c.Set(HeaderCacheHit, fmt.Sprintf("%t", out.CacheHit()))
	c.Set(HeaderStrategy, decision.Strategy)
	c.Set(HeaderBucket, out.Bucket)
	c.Set(HeaderUpstream, out.Upstream)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	h.logResult(route, decision.Strategy, out.Bucket, out.Upstream, requestID, out.Status, out.CacheHit(), started, nil)
	return c.Status(out.Status).Send(out.Body)
}

// passThrough 不经缓存直接转发，保留原始方法与请求体。
func (h *Handler) passThrough(ctx context.Context, c fiber.Ctx, route *server.OriginRoute, desc RequestDescriptor, requestID string, started time.Time) error {
	var body io.Reader
	if raw := c.Body(); len(raw) > 0 {
		body = bytes.NewReader(raw)
	}
	resp, err := h.fetcher.Fetch(ctx, FetchRequest{
		Method:         c.Method(),
		URL:            desc.URL,
		Header:         requestHeaders(c),
		Body:           body,
		Route:          route,
		ForwardedHost:  c.Hostname(),
		ForwardedFor:   c.IP(),
		ForwardedProto: c.Protocol(),
	})
	if err != nil {
		h.logResult(route, strategyBypass, "", desc.URL.String(), requestID, 0, false, started, err)
		c.Set(HeaderStrategy, strategyBypass)
		return server.WriteError(c, fiber.StatusBadGateway, errorCode(err))
	}
	defer resp.Body.Close()

	writeHeaders(c, resp.Header)
	c.Set(HeaderCacheHit, "false")
	c.Set(HeaderStrategy, strategyBypass)
	c.Set(HeaderUpstream, desc.URL.String())
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		h.logResult(route, strategyBypass, "", desc.URL.String(), requestID, resp.StatusCode, false, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logResult(route, strategyBypass, "", desc.URL.String(), requestID, resp.StatusCode, false, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

// errorCode 将故障分类映射为 HTTP 错误体里的 error 字段。
func errorCode(err error) string {
	if faults.Is(err, faults.CodeFetchFailed) {
		return "upstream_failed"
	}
	return strings.ToLower(string(faults.Code(err)))
}

func (h *Handler) logResult(
	route *server.OriginRoute,
	strategyKey string,
	bucket string,
	upstream string,
	requestID string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(route.Config.Name, route.Config.Domain, strategyKey, bucket, cacheHit)
	fields["action"] = "proxy"
	fields["upstream"] = upstream
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func requestHeaders(c fiber.Ctx) http.Header {
	header := http.Header{}
	for key, values := range c.GetReqHeaders() {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	return header
}

func writeHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || strings.EqualFold(key, "Content-Length") {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
