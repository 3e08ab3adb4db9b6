package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/punk-blvck/blvck-hub/internal/cache"
)

// Lifecycle 描述 Registration 自身是否已初始化。
type Lifecycle string

const (
	LifecycleUninitialized Lifecycle = "uninitialized"
	LifecycleActive        Lifecycle = "active"
)

// ErrNoWaitingController 表示没有可以跳过等待的控制器。
var ErrNoWaitingController = errors.New("no waiting controller")

// RegistrationOptions 配置控制器注册表。
type RegistrationOptions struct {
	// SkipWaiting 为 true 时安装成功立即激活。
	SkipWaiting bool
	Writer      *cache.Writer
	Logger      logrus.FieldLogger
}

// Registration 持有当前活跃与等待中的控制器。
type Registration struct {
	mu          sync.RWMutex
	lifecycle   Lifecycle
	active      *Controller
	waiting     *Controller
	skipWaiting bool
	writer      *cache.Writer
	logger      logrus.FieldLogger
}

// NewRegistration 构造未初始化的注册表。
func NewRegistration(opts RegistrationOptions) *Registration {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registration{
		lifecycle:   LifecycleUninitialized,
		skipWaiting: opts.SkipWaiting,
		writer:      opts.Writer,
		logger:      logger,
	}
}

// Init 将注册表置为 active，可重复调用。
func (r *Registration) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.lifecycle = LifecycleActive
	r.mu.Unlock()
	return nil
}

// Teardown 等待所有后台缓存写入完成，并回到 uninitialized。
func (r *Registration) Teardown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.writer.Flush()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	r.lifecycle = LifecycleUninitialized
	r.mu.Unlock()
	return nil
}

// Lifecycle 返回注册表状态。
func (r *Registration) Lifecycle() Lifecycle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lifecycle
}

// Update 安装新的控制器。失败时标记为 failed 并保留旧的活跃控制器；
// 成功后进入 waiting，开启 SkipWaiting 时立即激活。
func (r *Registration) Update(ctx context.Context, next *Controller) error {
	if err := next.Install(ctx); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"action":  "update",
			"version": next.Version(),
		}).Warn("controller_update_failed")
		return err
	}

	r.mu.Lock()
	if r.waiting != nil && r.waiting != next {
		r.waiting.markRedundant()
	}
	r.waiting = next
	skip := r.skipWaiting
	r.mu.Unlock()

	if skip {
		return r.SkipWaiting(ctx)
	}
	return nil
}

// SkipWaiting 立即激活等待中的控制器，旧控制器变为 redundant。
func (r *Registration) SkipWaiting(ctx context.Context) error {
	r.mu.RLock()
	next := r.waiting
	r.mu.RUnlock()
	if next == nil {
		return ErrNoWaitingController
	}

	if err := next.Activate(ctx); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"action":  "activate",
			"version": next.Version(),
		}).Error("controller_activate_failed")
		return err
	}

	r.mu.Lock()
	previous := r.active
	r.active = next
	if r.waiting == next {
		r.waiting = nil
	}
	r.mu.Unlock()

	if previous != nil && previous != next {
		previous.markRedundant()
	}
	return nil
}

// Active 返回当前接管流量的控制器，可能为 nil。
func (r *Registration) Active() *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting 返回安装完成但尚未激活的控制器，可能为 nil。
func (r *Registration) Waiting() *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// Status 是诊断接口输出的注册表快照。
type Status struct {
	Lifecycle Lifecycle `json:"lifecycle"`
	State     State     `json:"state"`
	Version   string    `json:"version"`
	Claimed   bool      `json:"claimed"`
	Waiting   string    `json:"waiting,omitempty"`
	KeepSet   []string  `json:"keep_set,omitempty"`
}

// Status 汇总当前活跃与等待中的控制器信息。
func (r *Registration) Status() Status {
	r.mu.RLock()
	active, waiting, lifecycle := r.active, r.waiting, r.lifecycle
	r.mu.RUnlock()

	status := Status{Lifecycle: lifecycle}
	if active != nil {
		status.State = active.State()
		status.Version = active.Version()
		status.Claimed = active.Claimed()
		status.KeepSet = active.Buckets().KeepSet()
	}
	if waiting != nil {
		status.Waiting = waiting.Version()
		if active == nil {
			status.State = waiting.State()
		}
	}
	return status
}
