package weather

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/punk-blvck/blvck-hub/internal/config"
	"github.com/punk-blvck/blvck-hub/internal/kv"
	"github.com/punk-blvck/blvck-hub/internal/logging"
)

// Lifecycle 表示服务对象的生命周期。
type Lifecycle string

const (
	LifecycleUninitialized Lifecycle = "uninitialized"
	LifecycleActive        Lifecycle = "active"
)

// ErrNotInitialized 表示在 Init 之前或 Teardown 之后调用服务。
var ErrNotInitialized = errors.New("weather service is not initialized")

// Options 汇总服务依赖。Synthetic 为 true 时跳过供应商，直接使用合成数据。
type Options struct {
	Storage    kv.Storage
	Closer     io.Closer
	Geolocator Geolocator
	Provider   Provider
	Geocoder   Geocoder
	Synthetic  bool

	CacheDuration      time.Duration
	GeolocationTimeout time.Duration
	Logger             logrus.FieldLogger
	Now                func() time.Time
	// Pick 选择合成记录下标，为空时随机。
	Pick func(n int) int
}

// Service 是天气客户端缓存。
type Service struct {
	opts  Options
	state *serviceState
}

type serviceState struct {
	mu        sync.RWMutex
	lifecycle Lifecycle
}

// NewService 构造未初始化的服务。
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CacheDuration <= 0 {
		opts.CacheDuration = 30 * time.Minute
	}
	if opts.GeolocationTimeout <= 0 {
		opts.GeolocationTimeout = 10 * time.Second
	}
	if opts.Storage == nil {
		opts.Storage = kv.NewMemoryStore()
	}
	return &Service{opts: opts, state: &serviceState{lifecycle: LifecycleUninitialized}}
}

// NewFromConfig 依据 [Weather] 配置组装供应商、反查与设备定位。
func NewFromConfig(cfg config.WeatherConfig, client *http.Client, storage kv.Storage, closer io.Closer, logger logrus.FieldLogger) *Service {
	return NewService(Options{
		Storage:    storage,
		Closer:     closer,
		Geolocator: StaticGeolocator{Lat: cfg.Latitude, Lon: cfg.Longitude, Accuracy: cfg.Accuracy},
		Provider: &OpenWeather{
			Client:   client,
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Units:    cfg.Units,
			Lang:     cfg.Lang,
			Logger:   logger,
		},
		Geocoder: &Nominatim{
			Client:    client,
			Endpoint:  cfg.GeocodeEndpoint,
			UserAgent: cfg.UserAgent,
		},
		Synthetic:          cfg.APIKey == "" || cfg.Development,
		CacheDuration:      cfg.CacheDurationValue(),
		GeolocationTimeout: cfg.GeolocationTimeoutValue(),
		Logger:             logger,
	})
}

// WithGeolocator 返回共享存储与生命周期、但使用另一定位器的视图。
func (s *Service) WithGeolocator(g Geolocator) *Service {
	clone := *s
	clone.opts.Geolocator = g
	return &clone
}

// Init 探测存储可用后进入 active。
func (s *Service) Init(ctx context.Context) error {
	if _, _, err := s.opts.Storage.GetItem(ctx, weatherKey); err != nil {
		return err
	}
	s.state.mu.Lock()
	s.state.lifecycle = LifecycleActive
	s.state.mu.Unlock()
	s.opts.Logger.WithFields(logging.WeatherFields("init", "")).
		WithField("synthetic", s.opts.Synthetic).Info("weather_service_ready")
	return nil
}

// Teardown 回到 uninitialized 并关闭底层存储。
func (s *Service) Teardown(ctx context.Context) error {
	s.state.mu.Lock()
	s.state.lifecycle = LifecycleUninitialized
	s.state.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.opts.Closer != nil {
		return s.opts.Closer.Close()
	}
	return nil
}

// Lifecycle 返回当前生命周期。
func (s *Service) Lifecycle() Lifecycle {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	return s.state.lifecycle
}

func (s *Service) active() bool {
	return s.Lifecycle() == LifecycleActive
}

// GetWeatherData 返回可展示的天气记录，永不失败。
func (s *Service) GetWeatherData(ctx context.Context) Report {
	if !s.active() {
		return s.degrade(ctx, "lifecycle", ErrNotInitialized, nil)
	}

	cached, capturedAt, ok := s.loadWeather(ctx)
	if ok {
		if s.opts.Now().Sub(capturedAt) <= s.opts.CacheDuration {
			s.opts.Logger.WithFields(logging.WeatherFields("cache", string(SourceCache))).Debug("weather_cache_hit")
			return Report{Record: cached, Source: SourceCache}
		}
		s.remove(ctx, weatherKey)
	}
	var stale *Record
	if ok {
		stale = &cached
	}

	loc, err := s.resolveLocation(ctx)
	if err != nil {
		return s.degrade(ctx, "geolocation", err, stale)
	}

	record, source, err := s.fetch(ctx, loc)
	if err != nil {
		return s.degrade(ctx, "provider", err, stale)
	}
	if record.City == "" {
		record.City = s.reverseGeocode(ctx, loc)
	}

	record.CapturedAt = s.opts.Now()
	if err := kv.Save(ctx, s.opts.Storage, weatherKey, record, record.CapturedAt); err != nil {
		s.opts.Logger.WithError(err).WithFields(logging.WeatherFields("persist", string(source))).Warn("weather_cache_write_failed")
	}
	s.opts.Logger.WithFields(logging.WeatherFields("fetch", string(source))).WithFields(logrus.Fields{
		"temp":      record.Temp,
		"condition": record.Condition,
		"city":      record.City,
	}).Info("weather_fetched")
	return Report{Record: record, Source: source}
}

// degrade 依次尝试已持久化记录（任意年龄）、本次调用读到的过期记录、合成占位数据。
func (s *Service) degrade(ctx context.Context, stage string, cause error, stale *Record) Report {
	report := Report{Err: cause}
	if rec, _, ok := s.loadWeather(ctx); ok {
		report.Record, report.Source = rec, SourceStale
	} else if stale != nil {
		report.Record, report.Source = *stale, SourceStale
	} else {
		report.Record, report.Source = synthetic(s.opts.Pick), SourcePlaceholder
		report.Record.CapturedAt = s.opts.Now()
	}
	s.opts.Logger.WithError(cause).WithFields(logging.WeatherFields(stage, string(report.Source))).Warn("weather_degraded")
	return report
}

func (s *Service) fetch(ctx context.Context, loc Location) (Record, Source, error) {
	if s.opts.Synthetic || s.opts.Provider == nil {
		s.opts.Logger.WithFields(logging.WeatherFields("fetch", string(SourceSynthetic))).Debug("weather_synthetic")
		return synthetic(s.opts.Pick), SourceSynthetic, nil
	}
	rec, err := s.opts.Provider.Current(ctx, loc.Lat, loc.Lon)
	if err != nil {
		return Record{}, "", err
	}
	return rec, SourceFresh, nil
}

func (s *Service) reverseGeocode(ctx context.Context, loc Location) string {
	if s.opts.Geocoder != nil {
		label, err := s.opts.Geocoder.Reverse(ctx, loc.Lat, loc.Lon)
		if err == nil && label != "" {
			return label
		}
		s.opts.Logger.WithError(err).WithFields(logging.WeatherFields("geocode", "")).Warn("weather_geocode_failed")
	}
	return coordinateLabel(loc.Lat, loc.Lon)
}

func (s *Service) resolveLocation(ctx context.Context) (Location, error) {
	if loc, ok := s.CachedLocation(ctx); ok {
		return loc, nil
	}
	s.opts.Logger.WithFields(logging.WeatherFields("geolocation", "")).Info("weather_location_requested")
	return s.CurrentLocation(ctx)
}

// CurrentLocation 发起一次新的定位并在成功时持久化。
func (s *Service) CurrentLocation(ctx context.Context) (Location, error) {
	loc, err := locate(ctx, s.opts.Geolocator, PositionOptions{
		EnableHighAccuracy: true,
		Timeout:            s.opts.GeolocationTimeout,
		MaximumAge:         5 * time.Minute,
	})
	if err != nil {
		s.opts.Logger.WithError(err).WithFields(logging.WeatherFields("geolocation", "")).Warn("weather_location_failed")
		return Location{}, err
	}
	loc.CapturedAt = s.opts.Now()
	if err := kv.Save(ctx, s.opts.Storage, locationKey, loc, loc.CapturedAt); err != nil {
		s.opts.Logger.WithError(err).WithFields(logging.WeatherFields("persist", "")).Warn("weather_location_write_failed")
	}
	s.opts.Logger.WithFields(logging.WeatherFields("geolocation", "")).WithFields(logrus.Fields{
		"lat":      formatFixed(loc.Lat),
		"lon":      formatFixed(loc.Lon),
		"accuracy": int(loc.Accuracy + 0.5),
	}).Info("weather_location_obtained")
	return loc, nil
}

// CachedLocation 返回一小时内持久化的位置，过期条目会被删除。
func (s *Service) CachedLocation(ctx context.Context) (Location, bool) {
	var loc Location
	at, ok, err := kv.Load(ctx, s.opts.Storage, locationKey, &loc)
	if err != nil || !ok {
		return Location{}, false
	}
	if s.opts.Now().Sub(at) > locationTTL {
		s.remove(ctx, locationKey)
		return Location{}, false
	}
	loc.CapturedAt = at
	return loc, true
}

// CachedWeather 返回有效期内的持久化天气，过期条目会被删除。
func (s *Service) CachedWeather(ctx context.Context) (Record, bool) {
	rec, at, ok := s.loadWeather(ctx)
	if !ok {
		return Record{}, false
	}
	if s.opts.Now().Sub(at) > s.opts.CacheDuration {
		s.remove(ctx, weatherKey)
		return Record{}, false
	}
	return rec, true
}

// ClearCache 删除持久化的位置与天气。
func (s *Service) ClearCache(ctx context.Context) error {
	err := errors.Join(
		s.opts.Storage.RemoveItem(ctx, locationKey),
		s.opts.Storage.RemoveItem(ctx, weatherKey),
	)
	if err != nil {
		s.opts.Logger.WithError(err).WithFields(logging.WeatherFields("clear", "")).Warn("weather_cache_clear_failed")
		return err
	}
	s.opts.Logger.WithFields(logging.WeatherFields("clear", "")).Info("weather_cache_cleared")
	return nil
}

// GeolocationAvailable 返回是否配置了定位器。
func (s *Service) GeolocationAvailable() bool {
	return s.opts.Geolocator != nil
}

// RequestGeolocationPermission 通过一次实时定位判断是否已授权，从不返回错误。
func (s *Service) RequestGeolocationPermission(ctx context.Context) bool {
	if !s.GeolocationAvailable() {
		return false
	}
	_, err := s.CurrentLocation(ctx)
	return err == nil
}

// loadWeather 读取任意年龄的天气记录，损坏条目视为不存在。
func (s *Service) loadWeather(ctx context.Context) (Record, time.Time, bool) {
	var rec Record
	at, ok, err := kv.Load(ctx, s.opts.Storage, weatherKey, &rec)
	if err != nil {
		s.opts.Logger.WithError(err).WithFields(logging.WeatherFields("cache", "")).Debug("weather_cache_unreadable")
		return Record{}, time.Time{}, false
	}
	if !ok {
		return Record{}, time.Time{}, false
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = at
	}
	return rec, at, true
}

func (s *Service) remove(ctx context.Context, key string) {
	if err := s.opts.Storage.RemoveItem(ctx, key); err != nil {
		s.opts.Logger.WithError(err).WithFields(logging.WeatherFields("cache", "")).WithField("key", key).Warn("weather_cache_remove_failed")
	}
}

func formatFixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
