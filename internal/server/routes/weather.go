package routes

import (
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/punk-blvck/blvck-hub/internal/server"
	"github.com/punk-blvck/blvck-hub/internal/weather"
)

// RegisterWeatherRoutes 暴露天气客户端缓存：查询、清空缓存与定位授权探测。
// 页面可通过 lat/lon/accuracy 上报坐标，或以 denied=1 表示用户拒绝了定位。
func RegisterWeatherRoutes(app *fiber.App, svc *weather.Service) {
	if app == nil || svc == nil {
		return
	}

	app.Get("/-/weather", func(c fiber.Ctx) error {
		view, ok := serviceForRequest(c, svc)
		if !ok {
			return server.WriteError(c, fiber.StatusBadRequest, "invalid_coordinates")
		}
		report := view.GetWeatherData(c.Context())
		payload := fiber.Map{
			"data":     report.Record,
			"source":   report.Source,
			"degraded": report.Source.Degraded(),
		}
		if report.Err != nil {
			payload["message"] = report.Err.Error()
		}
		return c.JSON(payload)
	})

	app.Delete("/-/weather/cache", func(c fiber.Ctx) error {
		if err := svc.ClearCache(c.Context()); err != nil {
			return server.WriteError(c, fiber.StatusInternalServerError, "storage_failed")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/-/weather/permission", func(c fiber.Ctx) error {
		view, ok := serviceForRequest(c, svc)
		if !ok {
			return server.WriteError(c, fiber.StatusBadRequest, "invalid_coordinates")
		}
		return c.JSON(fiber.Map{"granted": view.RequestGeolocationPermission(c.Context())})
	})
}

// serviceForRequest 根据查询参数选择定位器，未提供参数时使用服务默认定位器。
func serviceForRequest(c fiber.Ctx, svc *weather.Service) (*weather.Service, bool) {
	if denied := strings.ToLower(strings.TrimSpace(c.Query("denied"))); denied == "1" || denied == "true" {
		return svc.WithGeolocator(weather.DeniedGeolocator{}), true
	}
	rawLat, rawLon := strings.TrimSpace(c.Query("lat")), strings.TrimSpace(c.Query("lon"))
	if rawLat == "" && rawLon == "" {
		return svc, true
	}
	lat, err := parseCoord(rawLat, 90)
	if err != nil {
		return nil, false
	}
	lon, err := parseCoord(rawLon, 180)
	if err != nil {
		return nil, false
	}
	var accuracy float64
	if raw := strings.TrimSpace(c.Query("accuracy")); raw != "" {
		accuracy, err = strconv.ParseFloat(raw, 64)
		if err != nil || accuracy < 0 {
			return nil, false
		}
	}
	return svc.WithGeolocator(weather.FixedGeolocator{Location: weather.Location{
		Lat: lat, Lon: lon, Accuracy: accuracy,
	}}), true
}

func parseCoord(raw string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.Abs(v) > limit {
		return 0, strconv.ErrRange
	}
	return v, nil
}
