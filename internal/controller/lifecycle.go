package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/punk-blvck/blvck-hub/internal/cache"
	"github.com/punk-blvck/blvck-hub/internal/faults"
	"github.com/punk-blvck/blvck-hub/internal/server"
	"github.com/punk-blvck/blvck-hub/internal/strategy"
)

// State 表示控制器所处的生命周期阶段。
type State string

const (
	StateParsed     State = "parsed"
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActive     State = "active"
	StateRedundant  State = "redundant"
	StateFailed     State = "failed"
)

// ErrNotInstalled 表示尝试激活尚未完成安装的控制器。
var ErrNotInstalled = errors.New("controller is not installed")

// Options 汇总控制器依赖。Registry 用于解析静态清单中的相对路径与跨域代理设置。
type Options struct {
	Buckets      Buckets
	StaticAssets []string
	AppShell     string
	Store        cache.Store
	Writer       *cache.Writer
	Fetcher      Fetcher
	Registry     *server.OriginRegistry
	Logger       logrus.FieldLogger
	// Profiles 返回策略画像，通常为 (*config.Config).StrategyProfile。
	Profiles func(key string) (strategy.Profile, bool)
	// Now 便于测试注入时钟，为空时使用 time.Now。
	Now func() time.Time
}

// Controller 对应一个缓存版本的控制器实例。
type Controller struct {
	opts Options

	mu      sync.RWMutex
	state   State
	claimed bool
}

// New 构造处于 parsed 状态的控制器。
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Writer == nil {
		opts.Writer = cache.NewWriter(opts.Store, opts.Logger)
	}
	if opts.Profiles == nil {
		opts.Profiles = defaultProfiles
	}
	return &Controller{opts: opts, state: StateParsed}
}

func defaultProfiles(key string) (strategy.Profile, bool) {
	meta, ok := strategy.Resolve(key)
	if !ok {
		return strategy.Profile{}, false
	}
	return strategy.ResolveProfile(meta, strategy.Options{}), true
}

// Version 返回控制器负责的缓存版本。
func (c *Controller) Version() string {
	return c.opts.Buckets.Version
}

// Buckets 返回控制器使用的桶命名规则。
func (c *Controller) Buckets() Buckets {
	return c.opts.Buckets
}

// State 返回当前生命周期阶段。
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Claimed 表示控制器是否已接管流量。
func (c *Controller) Claimed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.claimed
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	if state != StateActive {
		c.claimed = false
	}
	c.mu.Unlock()
}

// Install 并发预缓存静态清单，并确保 weather 桶存在。任一静态资源失败
// （网络错误或非 2xx）都会让安装失败，不做重试。
func (c *Controller) Install(ctx context.Context) error {
	c.setState(StateInstalling)
	if c.opts.Store == nil {
		c.setState(StateFailed)
		return cache.ErrStoreUnavailable
	}

	staticBucket := c.opts.Buckets.Name(strategy.BucketStatic)
	weatherBucket := c.opts.Buckets.Name(strategy.BucketWeather)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.opts.Store.EnsureBucket(groupCtx, staticBucket)
	})
	group.Go(func() error {
		return c.opts.Store.EnsureBucket(groupCtx, weatherBucket)
	})
	for _, asset := range c.opts.StaticAssets {
		group.Go(func() error {
			return c.precache(groupCtx, staticBucket, asset)
		})
	}

	if err := group.Wait(); err != nil {
		c.setState(StateFailed)
		c.opts.Logger.WithError(err).WithFields(logrus.Fields{
			"action":  "install",
			"version": c.Version(),
		}).Error("controller_install_failed")
		return err
	}

	c.setState(StateWaiting)
	c.opts.Logger.WithFields(logrus.Fields{
		"action":  "install",
		"version": c.Version(),
		"assets":  len(c.opts.StaticAssets),
	}).Info("controller_installed")
	return nil
}

func (c *Controller) precache(ctx context.Context, bucket, asset string) error {
	target, route, err := c.resolveAsset(asset)
	if err != nil {
		return err
	}

	resp, err := c.opts.Fetcher.Fetch(ctx, FetchRequest{URL: target, Route: route})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return faults.FetchFailed(nil, target.String(), resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return faults.FetchFailed(err, target.String(), resp.StatusCode)
	}

	_, err = c.opts.Writer.Put(ctx, cache.Locator{Bucket: bucket, Key: target.String()}, body, cache.PutOptions{
		Status:     resp.StatusCode,
		Header:     storableHeader(resp.Header),
		CapturedAt: c.opts.Now().UTC(),
	})
	return err
}

// resolveAsset 将清单条目解析为上游绝对 URL：相对路径挂在 App Shell 源站上。
func (c *Controller) resolveAsset(asset string) (*url.URL, *server.OriginRoute, error) {
	if strings.HasPrefix(asset, "/") {
		shell, ok := c.opts.Registry.Shell()
		if !ok {
			return nil, nil, fmt.Errorf("no shell origin for static asset %s", asset)
		}
		parsed, err := url.Parse(asset)
		if err != nil {
			return nil, nil, fmt.Errorf("static asset %s: %w", asset, err)
		}
		return shell.UpstreamFor(parsed.Path, parsed.RawQuery), shell, nil
	}

	target, err := url.Parse(asset)
	if err != nil {
		return nil, nil, fmt.Errorf("static asset %s: %w", asset, err)
	}
	route, _ := c.opts.Registry.ForUpstream(target)
	return target, route, nil
}

// Activate 删除不在当前版本集合内的桶，随后接管流量。
func (c *Controller) Activate(ctx context.Context) error {
	if state := c.State(); state != StateWaiting && state != StateActive {
		return fmt.Errorf("%w (state %s)", ErrNotInstalled, state)
	}

	buckets, err := c.opts.Store.Buckets(ctx)
	if err != nil {
		return fmt.Errorf("list buckets: %w", err)
	}
	for _, name := range buckets {
		if c.opts.Buckets.Contains(name) {
			continue
		}
		if err := c.opts.Store.DeleteBucket(ctx, name); err != nil {
			return fmt.Errorf("delete bucket %s: %w", name, err)
		}
		c.opts.Logger.WithFields(logrus.Fields{
			"action":  "activate",
			"version": c.Version(),
			"bucket":  name,
		}).Info("cache_bucket_deleted")
	}

	c.mu.Lock()
	c.state = StateActive
	c.claimed = true
	c.mu.Unlock()

	c.opts.Logger.WithFields(logrus.Fields{
		"action":  "activate",
		"version": c.Version(),
	}).Info("controller_activated")
	return nil
}

func (c *Controller) markRedundant() {
	c.setState(StateRedundant)
}
