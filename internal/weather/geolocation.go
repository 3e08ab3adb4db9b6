package weather

import (
	"context"
	"errors"
	"time"

	perrors "github.com/jmgilman/go/errors"

	"github.com/punk-blvck/blvck-hub/internal/faults"
)

// PositionReason 是定位失败的分类。
type PositionReason string

const (
	ReasonPermissionDenied    PositionReason = "permission-denied"
	ReasonPositionUnavailable PositionReason = "position-unavailable"
	ReasonTimeout             PositionReason = "timeout"
)

// PositionError 是带分类的定位失败，Unwrap 返回对应的 faults 错误码。
type PositionError struct {
	Reason  PositionReason
	Message string
}

func (e *PositionError) Error() string {
	if e.Message != "" {
		return string(e.Reason) + ": " + e.Message
	}
	return string(e.Reason)
}

func (e *PositionError) Unwrap() error {
	return faults.Geolocation(e.code(), e.Error())
}

func (e *PositionError) code() perrors.ErrorCode {
	switch e.Reason {
	case ReasonPermissionDenied:
		return faults.CodeGeolocationDenied
	case ReasonTimeout:
		return faults.CodeGeolocationTimeout
	default:
		return faults.CodeGeolocationUnavailable
	}
}

// PositionOptions 对齐浏览器定位参数。
type PositionOptions struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	// MaximumAge 为可接受的设备缓存位置最大年龄。
	MaximumAge time.Duration
}

// Geolocator 获取设备位置。实现应在 ctx 结束时返回。
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Location, error)
}

// StaticGeolocator 返回配置中的设备坐标（如工作室位置）。坐标全零视为无法定位。
type StaticGeolocator struct {
	Lat      float64
	Lon      float64
	Accuracy float64
}

func (g StaticGeolocator) CurrentPosition(ctx context.Context, _ PositionOptions) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	if g.Lat == 0 && g.Lon == 0 {
		return Location{}, &PositionError{Reason: ReasonPositionUnavailable, Message: "no device coordinates configured"}
	}
	return Location{Lat: g.Lat, Lon: g.Lon, Accuracy: g.Accuracy}, nil
}

// FixedGeolocator 返回调用方（页面）上报的坐标。
type FixedGeolocator struct {
	Location Location
}

func (g FixedGeolocator) CurrentPosition(ctx context.Context, _ PositionOptions) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	return Location{Lat: g.Location.Lat, Lon: g.Location.Lon, Accuracy: g.Location.Accuracy}, nil
}

// DeniedGeolocator 模拟拒绝授权的浏览器。
type DeniedGeolocator struct{}

func (DeniedGeolocator) CurrentPosition(context.Context, PositionOptions) (Location, error) {
	return Location{}, &PositionError{Reason: ReasonPermissionDenied, Message: "location permission denied by user"}
}

// locate 在超时约束下调用 g，并把任意失败归类为 PositionError。
func locate(ctx context.Context, g Geolocator, opts PositionOptions) (Location, error) {
	if g == nil {
		return Location{}, &PositionError{Reason: ReasonPositionUnavailable, Message: "geolocation not supported"}
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	loc, err := g.CurrentPosition(ctx, opts)
	if err == nil {
		return loc, nil
	}
	var posErr *PositionError
	switch {
	case errors.As(err, &posErr):
		return Location{}, posErr
	case errors.Is(err, context.DeadlineExceeded):
		return Location{}, &PositionError{Reason: ReasonTimeout, Message: "timed out acquiring position"}
	default:
		return Location{}, &PositionError{Reason: ReasonPositionUnavailable, Message: err.Error()}
	}
}
