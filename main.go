package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/punk-blvck/blvck-hub/internal/cache"
	"github.com/punk-blvck/blvck-hub/internal/config"
	"github.com/punk-blvck/blvck-hub/internal/controller"
	"github.com/punk-blvck/blvck-hub/internal/kv"
	"github.com/punk-blvck/blvck-hub/internal/logging"
	"github.com/punk-blvck/blvck-hub/internal/server"
	"github.com/punk-blvck/blvck-hub/internal/server/routes"
	"github.com/punk-blvck/blvck-hub/internal/version"
	"github.com/punk-blvck/blvck-hub/internal/weather"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	envFile     string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr

	// openClientStorage 打开天气客户端存储，测试可替换。
	openClientStorage = kv.Open
)

const shutdownTimeout = 10 * time.Second

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	if err := loadDotEnv(opts.envFile); err != nil {
		fmt.Fprintf(stdErr, "加载 .env 失败: %v\n", err)
		return 1
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}
	for _, warning := range cfg.Warnings {
		logger.WithFields(logging.BaseFields("load_config", opts.configPath)).Warn(warning)
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["origins"] = config.OriginNames(cfg.Origins)
		fields["cache_version"] = cfg.Global.CacheVersion
		fields["weather_storage"] = cfg.Weather.StorageDriver
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化网关失败: %v\n", err)
		return 1
	}
	defer gw.teardown(logger)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["origins"] = config.OriginNames(cfg.Origins)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_version"] = cfg.Global.CacheVersion
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := serve(ctx, gw.app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// gateway 持有进程内所有带生命周期的服务对象。
type gateway struct {
	app          *fiber.App
	registration *controller.Registration
	weather      *weather.Service
}

// buildGateway 遵循“配置 → 源站注册表 → 磁盘缓存 → 控制器 → 天气服务 → Fiber”顺序，
// 保证所有请求共享同一份路由、缓存与注册表实例。
func buildGateway(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*gateway, error) {
	registry, err := server.NewOriginRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("构建源站注册表失败: %w", err)
	}

	store, err := cache.NewStore(cfg.Global.StoragePath, cache.WithQuota(cfg.Global.StorageQuota))
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	rules, err := controller.CompileRules(cfg.Global)
	if err != nil {
		return nil, fmt.Errorf("编译请求分类规则失败: %w", err)
	}

	client := server.NewUpstreamClient(cfg)
	fetcher := controller.NewHTTPFetcher(client)
	writer := cache.NewWriter(store, logger)

	registration := controller.NewRegistration(controller.RegistrationOptions{
		SkipWaiting: cfg.Global.SkipWaiting,
		Writer:      writer,
		Logger:      logger,
	})
	if err := registration.Init(ctx); err != nil {
		return nil, err
	}
	current := controller.New(controller.Options{
		Buckets:      controller.Buckets{Prefix: cfg.Global.CachePrefix, Version: cfg.Global.CacheVersion},
		StaticAssets: cfg.Global.StaticAssets,
		AppShell:     cfg.Global.AppShell,
		Store:        store,
		Writer:       writer,
		Fetcher:      fetcher,
		Registry:     registry,
		Logger:       logger,
		Profiles:     cfg.StrategyProfile,
	})
	if err := registration.Update(ctx, current); err != nil {
		// 安装失败时没有活跃控制器，请求全部直通上游。
		logger.WithError(err).WithFields(logrus.Fields{
			"action":  "install",
			"version": cfg.Global.CacheVersion,
		}).Warn("controller_passthrough_mode")
	}

	kvStore, closer, err := openClientStorage(cfg.Weather.StorageDriver, cfg.Weather.StoragePath, cfg.Weather.Namespace)
	if err != nil {
		return nil, fmt.Errorf("初始化客户端存储失败: %w", err)
	}
	weatherSvc := weather.NewFromConfig(cfg.Weather, client, kvStore, closer, logger)
	if err := weatherSvc.Init(ctx); err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("初始化天气服务失败: %w", err)
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      controller.NewHandler(registration, rules, fetcher, logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	routes.RegisterDiagnostics(app, registration, cfg.StrategyProfile)
	routes.RegisterWeatherRoutes(app, weatherSvc)

	return &gateway{app: app, registration: registration, weather: weatherSvc}, nil
}

// teardown 等待后台缓存写入落盘并关闭客户端存储。
func (g *gateway) teardown(logger logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := g.registration.Teardown(ctx); err != nil {
		logger.WithError(err).WithField("action", "shutdown").Warn("controller_teardown_failed")
	}
	if err := g.weather.Teardown(ctx); err != nil {
		logger.WithError(err).WithField("action", "shutdown").Warn("weather_teardown_failed")
	}
}

// serve 监听端口直到 ctx 结束，随后优雅关闭。
func serve(ctx context.Context, app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.WithField("action", "shutdown").Info("Fiber 服务关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// loadDotEnv 在文件存在时把 .env 载入进程环境，已存在的变量不会被覆盖。
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("blvck-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		envFile    string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 BLVCK_HUB_CONFIG 覆盖）")
	fs.StringVar(&envFile, "env-file", ".env", "启动前加载的 .env 文件，不存在时忽略")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("BLVCK_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		envFile:     envFile,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}
