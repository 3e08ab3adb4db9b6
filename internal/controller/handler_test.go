package controller

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/punk-blvck/blvck-hub/internal/server"
)

func newHandlerApp(t *testing.T, f *fixture, reg *Registration) *fiber.App {
	t.Helper()
	rules := defaultRules(t)
	handler := NewHandler(reg, rules, NewHTTPFetcher(server.NewUpstreamClient(nil)), f.logger)
	app, err := server.NewApp(server.AppOptions{
		Logger:     f.logger,
		Registry:   f.registry,
		Proxy:      handler,
		ListenPort: 5000,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return app
}

func activeRegistration(t *testing.T, f *fixture, assets ...string) *Registration {
	t.Helper()
	reg := NewRegistration(RegistrationOptions{SkipWaiting: true, Writer: f.writer, Logger: f.logger})
	if err := reg.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := reg.Update(context.Background(), f.controller("v1.0.0", assets...)); err != nil {
		t.Fatalf("update: %v", err)
	}
	return reg
}

func TestHandlerServesCacheFirstWithHeaders(t *testing.T) {
	f := newFixture(t)
	f.upstream.serve("/index.html", http.StatusOK, "<html>shell</html>", "text/html")
	f.upstream.serve("/manifest.json", http.StatusOK, `{"name":"PUNK | BLVCK"}`, "application/json")
	app := newHandlerApp(t, f, activeRegistration(t, f, "/index.html"))

	req := httptest.NewRequest(http.MethodGet, "http://app.local/manifest.json", nil)
	req.Host = "app.local"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if resp.Header.Get(HeaderCacheHit) != "false" || resp.Header.Get(HeaderStrategy) != "cache-first" {
		t.Fatalf("unexpected headers %v", resp.Header)
	}
	if resp.Header.Get(HeaderBucket) != "punk-blvck-static-v1.0.0" {
		t.Fatalf("unexpected bucket header %s", resp.Header.Get(HeaderBucket))
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("upstream content type should be forwarded")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
	f.writer.Flush()

	req = httptest.NewRequest(http.MethodGet, "http://app.local/manifest.json", nil)
	req.Host = "app.local"
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.Header.Get(HeaderCacheHit) != "true" || string(body) != `{"name":"PUNK | BLVCK"}` {
		t.Fatalf("second request should hit cache: %v %s", resp.Header, body)
	}
}

func TestHandlerBypassesNonGet(t *testing.T) {
	f := newFixture(t)
	f.upstream.serve("/index.html", http.StatusOK, "shell", "text/html")
	f.upstream.serve("/api/checkin", http.StatusCreated, "", "text/plain")
	app := newHandlerApp(t, f, activeRegistration(t, f, "/index.html"))

	req := httptest.NewRequest(http.MethodPost, "http://app.local/api/checkin", strings.NewReader("class=hiit"))
	req.Host = "app.local"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated || string(body) != "echo:class=hiit" {
		t.Fatalf("pass-through should forward body and status: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get(HeaderStrategy) != "bypass" {
		t.Fatalf("expected bypass strategy header, got %q", resp.Header.Get(HeaderStrategy))
	}
}

func TestHandlerPassesThroughWithoutActiveController(t *testing.T) {
	f := newFixture(t)
	f.upstream.serve("/manifest.json", http.StatusOK, "{}", "application/json")
	reg := NewRegistration(RegistrationOptions{Writer: f.writer, Logger: f.logger})
	app := newHandlerApp(t, f, reg)

	req := httptest.NewRequest(http.MethodGet, "http://app.local/manifest.json", nil)
	req.Host = "app.local"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.Header.Get(HeaderStrategy) != "bypass" {
		t.Fatalf("uncontrolled requests should bypass the cache")
	}
}

func TestHandlerReturnsUpstreamFailed(t *testing.T) {
	f := newFixture(t)
	f.upstream.serve("/index.html", http.StatusOK, "shell", "text/html")
	app := newHandlerApp(t, f, activeRegistration(t, f, "/index.html"))
	f.upstream.Close()

	req := httptest.NewRequest(http.MethodGet, "http://app.local/photos/hero.jpg", nil)
	req.Host = "app.local"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["error"] != "upstream_failed" {
		t.Fatalf("unexpected error body %v", payload)
	}
}

func TestHandlerFallsBackToShellForNavigations(t *testing.T) {
	f := newFixture(t)
	f.upstream.serve("/index.html", http.StatusOK, "<html>shell</html>", "text/html")
	app := newHandlerApp(t, f, activeRegistration(t, f, "/index.html"))
	f.upstream.Close()

	req := httptest.NewRequest(http.MethodGet, "http://app.local/schedule", nil)
	req.Host = "app.local"
	req.Header.Set("Accept", "text/html")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "<html>shell</html>" {
		t.Fatalf("navigation should get the app shell offline: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get(HeaderStrategy) != "network-first" || resp.Header.Get(HeaderCacheHit) != "true" {
		t.Fatalf("unexpected headers %v", resp.Header)
	}
}
