package weather

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/punk-blvck/blvck-hub/internal/kv"
)

type stubProvider struct {
	record Record
	err    error
	calls  atomic.Int32
}

func (p *stubProvider) Current(context.Context, float64, float64) (Record, error) {
	p.calls.Add(1)
	return p.record, p.err
}

type stubGeocoder struct {
	label string
	err   error
	calls atomic.Int32
}

func (g *stubGeocoder) Reverse(context.Context, float64, float64) (string, error) {
	g.calls.Add(1)
	return g.label, g.err
}

type countingGeolocator struct {
	inner Geolocator
	calls atomic.Int32
}

func (g *countingGeolocator) CurrentPosition(ctx context.Context, opts PositionOptions) (Location, error) {
	g.calls.Add(1)
	return g.inner.CurrentPosition(ctx, opts)
}

// blockingGeolocator 直到 ctx 结束才返回。
type blockingGeolocator struct{}

func (blockingGeolocator) CurrentPosition(ctx context.Context, _ PositionOptions) (Location, error) {
	<-ctx.Done()
	return Location{}, ctx.Err()
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	svc        *Service
	storage    kv.Storage
	provider   *stubProvider
	geocoder   *stubGeocoder
	geolocator *countingGeolocator
	clock      *clock
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		storage: kv.WithNamespace(kv.NewMemoryStore(), "punk_blvck"),
		provider: &stubProvider{record: Record{
			Temp: 24, Condition: "Nublado", City: "Lisboa", Humidity: 70, WindSpeed: 18,
		}},
		geocoder:   &stubGeocoder{label: "Goiânia, Goiás"},
		geolocator: &countingGeolocator{inner: StaticGeolocator{Lat: -16.6869, Lon: -49.2648, Accuracy: 20}},
		clock:      &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	opts := Options{
		Storage:       h.storage,
		Geolocator:    h.geolocator,
		Provider:      h.provider,
		Geocoder:      h.geocoder,
		CacheDuration: 30 * time.Minute,
		Logger:        quietLogger(),
		Now:           h.clock.Now,
		Pick:          func(int) int { return 0 },
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.svc = NewService(opts)
	require.NoError(t, h.svc.Init(context.Background()))
	return h
}

func (h *harness) seedWeather(t *testing.T, rec Record, at time.Time) {
	t.Helper()
	require.NoError(t, kv.Save(context.Background(), h.storage, weatherKey, rec, at))
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
