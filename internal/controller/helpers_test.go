package controller

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/punk-blvck/blvck-hub/internal/cache"
	"github.com/punk-blvck/blvck-hub/internal/config"
	"github.com/punk-blvck/blvck-hub/internal/server"
	"github.com/punk-blvck/blvck-hub/internal/strategy"

	_ "github.com/punk-blvck/blvck-hub/internal/strategy/cachefirst"
	_ "github.com/punk-blvck/blvck-hub/internal/strategy/networkfirst"
	_ "github.com/punk-blvck/blvck-hub/internal/strategy/ttlcache"
)

// upstreamStub is a tiny origin server whose responses are keyed by path.
type upstreamStub struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]stubResponse
	hits      map[string]int
}

type stubResponse struct {
	status      int
	body        string
	contentType string
}

func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{
		responses: make(map[string]stubResponse),
		hits:      make(map[string]int),
	}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.hits[r.URL.Path]++
		resp, ok := stub.responses[r.URL.Path]
		stub.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodPost {
			payload, _ := io.ReadAll(r.Body)
			resp.body = "echo:" + string(payload)
		}
		if resp.contentType != "" {
			w.Header().Set("Content-Type", resp.contentType)
		}
		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *upstreamStub) serve(path string, status int, body, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = stubResponse{status: status, body: body, contentType: contentType}
}

func (s *upstreamStub) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

type fixture struct {
	upstream *upstreamStub
	store    cache.Store
	writer   *cache.Writer
	registry *server.OriginRegistry
	route    *server.OriginRoute
	logger   *logrus.Logger
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	upstream := newUpstreamStub(t)

	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000},
		Origins: []config.OriginConfig{
			{Name: "app", Domain: "app.local", Upstream: upstream.URL, Shell: true},
		},
	}
	registry, err := server.NewOriginRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	route, _ := registry.Lookup("app.local")

	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return &fixture{
		upstream: upstream,
		store:    store,
		writer:   cache.NewWriter(store, logger),
		registry: registry,
		route:    route,
		logger:   logger,
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) controller(version string, assets ...string) *Controller {
	return New(Options{
		Buckets:      Buckets{Prefix: "punk-blvck", Version: version},
		StaticAssets: assets,
		AppShell:     "/index.html",
		Store:        f.store,
		Writer:       f.writer,
		Fetcher:      NewHTTPFetcher(server.NewUpstreamClient(nil)),
		Registry:     f.registry,
		Logger:       f.logger,
		Profiles:     weatherTTLProfiles(30 * time.Minute),
		Now:          func() time.Time { return f.now },
	})
}

func weatherTTLProfiles(ttl time.Duration) func(string) (strategy.Profile, bool) {
	return func(key string) (strategy.Profile, bool) {
		meta, ok := strategy.Resolve(key)
		if !ok {
			return strategy.Profile{}, false
		}
		return strategy.ResolveProfile(meta, strategy.Options{TTLOverride: ttl}), true
	}
}

func (f *fixture) exchange(path, dest string) Exchange {
	target := f.route.UpstreamFor(path, "")
	return Exchange{
		Request: DescribeRequest(http.MethodGet, target, dest, ""),
		Origin:  f.route,
	}
}
