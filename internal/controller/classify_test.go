package controller

import (
	"net/http"
	"net/url"
	"regexp"
	"testing"

	"github.com/punk-blvck/blvck-hub/internal/config"
	"github.com/punk-blvck/blvck-hub/internal/strategy"
)

func defaultRules(t *testing.T) Rules {
	t.Helper()
	rules, err := CompileRules(config.GlobalConfig{
		WeatherHosts:  []string{"openweathermap.org"},
		ImagePatterns: []string{`^https://images\.unsplash\.com/`},
		ExcludePatterns: []string{
			`^chrome-extension://`,
			`^https://www\.google-analytics\.com/`,
			`^https://www\.googletagmanager\.com/`,
		},
		DevHosts: []string{"localhost"},
	})
	if err != nil {
		t.Fatalf("compile rules: %v", err)
	}
	return rules
}

func TestClassifyPrecedence(t *testing.T) {
	rules := defaultRules(t)

	cases := []struct {
		name      string
		method    string
		rawURL    string
		dest      string
		accept    string
		intercept bool
		strategy  string
		bucket    strategy.BucketRole
	}{
		{"post bypasses", http.MethodPost, "https://app.example.com/api/checkin", "", "", false, "", ""},
		{"extension bypasses", http.MethodGet, "chrome-extension://abcdef/script.js", "script", "", false, "", ""},
		{"analytics bypasses", http.MethodGet, "https://www.google-analytics.com/collect?v=1", "", "", false, "", ""},
		{"weather wins over image destination", http.MethodGet, "https://api.openweathermap.org/data/2.5/weather?lat=1&lon=2", "image", "", true, strategy.KeyTTLCacheFirst, strategy.BucketWeather},
		{"image destination", http.MethodGet, "https://app.example.com/hero", "image", "", true, strategy.KeyCacheFirst, strategy.BucketDynamic},
		{"image host pattern", http.MethodGet, "https://images.unsplash.com/photo-123?w=800", "", "", true, strategy.KeyCacheFirst, strategy.BucketDynamic},
		{"inferred image extension", http.MethodGet, "https://app.example.com/icons/icon-192x192.png", "", "", true, strategy.KeyCacheFirst, strategy.BucketDynamic},
		{"navigation document", http.MethodGet, "https://app.example.com/", "", "text/html,application/xhtml+xml", true, strategy.KeyNetworkFirst, strategy.BucketDynamic},
		{"script", http.MethodGet, "https://app.example.com/assets/index.js", "", "", true, strategy.KeyNetworkFirst, strategy.BucketDynamic},
		{"style via header", http.MethodGet, "https://fonts.googleapis.com/css2?family=Inter", "style", "", true, strategy.KeyNetworkFirst, strategy.BucketDynamic},
		{"dev host", http.MethodGet, "http://localhost:5173/manifest.json", "", "", true, strategy.KeyNetworkFirst, strategy.BucketDynamic},
		{"everything else", http.MethodGet, "https://app.example.com/manifest.json", "", "", true, strategy.KeyCacheFirst, strategy.BucketStatic},
		{"font falls to static", http.MethodGet, "https://fonts.gstatic.com/s/inter/v12/a.woff2", "", "", true, strategy.KeyCacheFirst, strategy.BucketStatic},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target, err := url.Parse(tc.rawURL)
			if err != nil {
				t.Fatalf("parse url: %v", err)
			}
			route := Classify(rules, DescribeRequest(tc.method, target, tc.dest, tc.accept))
			if route.Intercept != tc.intercept {
				t.Fatalf("intercept = %v, want %v (reason %s)", route.Intercept, tc.intercept, route.Reason)
			}
			if !tc.intercept {
				return
			}
			if route.Strategy != tc.strategy || route.Bucket != tc.bucket {
				t.Fatalf("got %s/%s, want %s/%s", route.Strategy, route.Bucket, tc.strategy, tc.bucket)
			}
		})
	}
}

func TestClassifyExclusionBeatsWeather(t *testing.T) {
	rules := defaultRules(t)
	rules.ExcludePatterns = append(rules.ExcludePatterns, mustCompile(t, `openweathermap\.org/data/2\.5/forecast`))

	target, _ := url.Parse("https://api.openweathermap.org/data/2.5/forecast?q=x")
	if route := Classify(rules, DescribeRequest(http.MethodGet, target, "", "")); route.Intercept {
		t.Fatalf("excluded weather URL must not be intercepted")
	}
}

func TestClassifyWeatherHostRequiresDomainBoundary(t *testing.T) {
	rules := defaultRules(t)
	target, _ := url.Parse("https://notopenweathermap.org/data")
	route := Classify(rules, DescribeRequest(http.MethodGet, target, "", ""))
	if route.Strategy == strategy.KeyTTLCacheFirst {
		t.Fatalf("lookalike host must not be treated as weather provider")
	}
}

func TestInferDestination(t *testing.T) {
	cases := []struct {
		dest, path, accept string
		want               Destination
	}{
		{"Image", "/x.js", "", DestinationImage},
		{"", "/app.mjs", "", DestinationScript},
		{"", "/theme.css", "", DestinationStyle},
		{"", "/index.html", "", DestinationDocument},
		{"", "/schedule", "text/html", DestinationDocument},
		{"", "/schedule", "application/json", DestinationEmpty},
		{"", "/font.woff2", "", DestinationFont},
		{"", "/photo.JPG", "", DestinationImage},
	}
	for _, tc := range cases {
		if got := InferDestination(tc.dest, tc.path, tc.accept); got != tc.want {
			t.Fatalf("InferDestination(%q,%q,%q) = %s, want %s", tc.dest, tc.path, tc.accept, got, tc.want)
		}
	}
}

func TestBucketsKeepSet(t *testing.T) {
	b := Buckets{Prefix: "punk-blvck", Version: "v1.0.0"}
	want := []string{
		"punk-blvck-static-v1.0.0",
		"punk-blvck-dynamic-v1.0.0",
		"punk-blvck-weather-v1.0.0",
		"punk-blvck-v1.0.0",
	}
	got := b.KeepSet()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keep set mismatch: %v", got)
		}
	}
	if b.Contains("punk-blvck-static-v0.9.0") {
		t.Fatalf("older version must not be kept")
	}
}

func mustCompile(t *testing.T, expr string) *regexp.Regexp {
	t.Helper()
	compiled, err := regexp.Compile(expr)
	if err != nil {
		t.Fatalf("compile %s: %v", expr, err)
	}
	return compiled
}
