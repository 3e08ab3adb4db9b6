package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/punk-blvck/blvck-hub/internal/config"
	"github.com/punk-blvck/blvck-hub/internal/kv"
	"github.com/punk-blvck/blvck-hub/internal/weather"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("BLVCK_HUB_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}
	if opts.envFile != ".env" {
		t.Fatalf("默认 env 文件应为 .env，得到 %s", opts.envFile)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml", "--env-file", ""})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
	if opts.envFile != "" {
		t.Fatalf("应允许关闭 .env 加载")
	}

	if _, err := parseCLIFlags([]string{"--unknown"}); err == nil {
		t.Fatalf("未知参数应报错")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	_, errBuf := useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(errBuf.String(), "加载配置失败") {
		t.Fatalf("应输出配置错误，得到 %q", errBuf.String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	outBuf, _ := useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(outBuf.String(), "blvck-hub") {
		t.Fatalf("version 输出应包含 blvck-hub 标识")
	}
}

func TestLoadDotEnvOverlaysWeatherSettings(t *testing.T) {
	t.Setenv("WEATHER_UNITS", "")
	os.Unsetenv("WEATHER_UNITS")

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("WEATHER_UNITS=imperial\n"), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}
	if err := loadDotEnv(envFile); err != nil {
		t.Fatalf("加载 .env 失败: %v", err)
	}
	if got := os.Getenv("WEATHER_UNITS"); got != "imperial" {
		t.Fatalf("期望 WEATHER_UNITS=imperial，得到 %q", got)
	}

	if err := loadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("缺失的 .env 应被忽略: %v", err)
	}
	if err := loadDotEnv(""); err != nil {
		t.Fatalf("空路径应跳过: %v", err)
	}
}

func TestBuildGatewayWiresServices(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>shell</html>"))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	configPath := writeConfigFile(t, `
StoragePath = "`+filepath.Join(dir, "storage")+`"
StaticAssets = ["/index.html", "/manifest.json"]

[[Origin]]
Name = "app"
Domain = "app.local"
Upstream = "`+upstream.URL+`"
Shell = true

[Weather]
StorageDriver = "sqlite"
`)
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	gw, err := buildGateway(t.Context(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("构建网关失败: %v", err)
	}
	defer gw.teardown(quietLogger())

	status := gw.registration.Status()
	if status.Version != cfg.Global.CacheVersion || !status.Claimed {
		t.Fatalf("预缓存成功后应立即激活，得到 %+v", status)
	}
	if _, err := os.Stat(filepath.Join(cfg.Weather.StoragePath, "client.db")); err != nil {
		t.Fatalf("sqlite 客户端存储应已创建: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://app.local/manifest.json", nil)
	req.Host = "app.local"
	resp, err := gw.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Blvck-Cache-Hit") != "true" {
		t.Fatalf("预缓存的静态资源应命中缓存，status=%d headers=%v", resp.StatusCode, resp.Header)
	}
}

func TestBuildGatewayKeepsPersistedWeather(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	configPath := writeConfigFile(t, `
StoragePath = "`+filepath.Join(dir, "storage")+`"
StaticAssets = ["/index.html"]

[[Origin]]
Name = "app"
Domain = "app.local"
Upstream = "`+upstream.URL+`"
Shell = true
`)
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	// 上一次运行留下的天气记录。
	store, closer, err := kv.Open(cfg.Weather.StorageDriver, cfg.Weather.StoragePath, cfg.Weather.Namespace)
	if err != nil {
		t.Fatalf("打开客户端存储失败: %v", err)
	}
	record := weather.Record{Temp: 27, Condition: "Ensolarado", City: "Goiânia, GO"}
	if err := kv.Save(t.Context(), store, "weather-cache", record, time.Now()); err != nil {
		t.Fatalf("写入天气记录失败: %v", err)
	}
	_ = closer.Close()

	gw, err := buildGateway(t.Context(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("构建网关失败: %v", err)
	}
	defer gw.teardown(quietLogger())

	if !gw.registration.Status().Claimed {
		t.Fatalf("控制器应已激活")
	}
	got, ok := gw.weather.CachedWeather(t.Context())
	if !ok || got.City != record.City {
		t.Fatalf("激活控制器后天气记录应保留，得到 %+v ok=%v", got, ok)
	}

	// 运行期再次激活同样不能触及客户端存储。
	if err := gw.registration.Active().Activate(t.Context()); err != nil {
		t.Fatalf("再次激活失败: %v", err)
	}
	if _, ok := gw.weather.CachedWeather(t.Context()); !ok {
		t.Fatalf("运行期激活删除了天气记录")
	}
}

type closeRecorder struct {
	io.Closer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return c.Closer.Close()
}

func TestBuildGatewayClosesClientStorageWhenAppFails(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	configPath := writeConfigFile(t, `
StoragePath = "`+filepath.Join(dir, "storage")+`"
StaticAssets = ["/index.html"]

[[Origin]]
Name = "app"
Domain = "app.local"
Upstream = "`+upstream.URL+`"
Shell = true

[Weather]
StorageDriver = "sqlite"
`)
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	// 非法端口让 server.NewApp 在客户端存储打开之后失败。
	cfg.Global.ListenPort = 0

	var recorder *closeRecorder
	prev := openClientStorage
	openClientStorage = func(driver, path, namespace string) (kv.Storage, io.Closer, error) {
		store, closer, err := prev(driver, path, namespace)
		if err != nil {
			return nil, nil, err
		}
		recorder = &closeRecorder{Closer: closer}
		return store, recorder, nil
	}
	t.Cleanup(func() { openClientStorage = prev })

	if _, err := buildGateway(t.Context(), cfg, quietLogger()); err == nil {
		t.Fatalf("ListenPort=0 应导致构建失败")
	}
	if recorder == nil || !recorder.closed {
		t.Fatalf("构建失败时应关闭客户端存储")
	}
}
