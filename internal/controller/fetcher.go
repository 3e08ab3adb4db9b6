package controller

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/punk-blvck/blvck-hub/internal/faults"
	"github.com/punk-blvck/blvck-hub/internal/server"
)

// FetchRequest 描述一次回源请求。
type FetchRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   io.Reader
	Route  *server.OriginRoute
	// ForwardedHost/ForwardedFor/ForwardedProto 为空时不写入 X-Forwarded-* 头。
	ForwardedHost  string
	ForwardedFor   string
	ForwardedProto string
}

// Fetcher 执行回源请求。网络层失败返回 NETWORK_FETCH_FAILED，非 2xx 响应照常返回。
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*http.Response, error)
}

// HTTPFetcher 基于共享 http.Client 回源，源站声明 Proxy 时自动切换代理。
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher 构造回源器，client 为空时使用 http.DefaultClient。
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch 实现 Fetcher。
func (f *HTTPFetcher) Fetch(ctx context.Context, fr FetchRequest) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method := fr.Method
	if method == "" {
		method = http.MethodGet
	}
	body := fr.Body
	if body == nil {
		body = http.NoBody
	}
	target := fr.URL.String()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, faults.FetchFailed(err, target, 0)
	}
	if fr.Header != nil {
		server.CopyHeaders(req.Header, fr.Header)
	}
	req.Header.Del("Accept-Encoding")
	req.Header.Del("Host")
	req.Host = fr.URL.Host
	if fr.ForwardedHost != "" {
		req.Header.Set("X-Forwarded-Host", fr.ForwardedHost)
	}
	if fr.ForwardedFor != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+fr.ForwardedFor)
		} else {
			req.Header.Set("X-Forwarded-For", fr.ForwardedFor)
		}
	}
	if fr.ForwardedProto != "" {
		req.Header.Set("X-Forwarded-Proto", fr.ForwardedProto)
	}

	resp, err := server.ClientForRoute(f.client, fr.Route).Do(req)
	if err != nil {
		return nil, faults.FetchFailed(err, target, 0)
	}
	return resp, nil
}
