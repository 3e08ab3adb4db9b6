package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// weatherEnv 对应部署环境变量，未设置的字段保持 nil，不覆盖文件配置。
type weatherEnv struct {
	APIKey             *string `env:"OPENWEATHER_API_KEY"`
	Units              *string `env:"WEATHER_UNITS"`
	Lang               *string `env:"WEATHER_LANG"`
	GeolocationTimeout *string `env:"GEOLOCATION_TIMEOUT"`
	CacheDuration      *string `env:"WEATHER_CACHE_DURATION"`
	NodeEnv            *string `env:"NODE_ENV"`
}

// ApplyWeatherEnv 使用环境变量覆盖天气配置。GEOLOCATION_TIMEOUT 单位为毫秒，
// WEATHER_CACHE_DURATION 单位为分钟，NODE_ENV=development 强制使用模拟数据。
// 数值变量为空、非数字或不大于 0 时回退到默认值（10 秒 / 30 分钟），并在返回的警告中说明。
func ApplyWeatherEnv(w *WeatherConfig) ([]string, error) {
	var overlay weatherEnv
	if err := env.Parse(&overlay); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	var warnings []string
	if overlay.APIKey != nil {
		w.APIKey = strings.TrimSpace(*overlay.APIKey)
	}
	if overlay.Units != nil && *overlay.Units != "" {
		w.Units = *overlay.Units
	}
	if overlay.Lang != nil && *overlay.Lang != "" {
		w.Lang = *overlay.Lang
	}
	if overlay.GeolocationTimeout != nil {
		ms, ok := positiveInt(*overlay.GeolocationTimeout)
		if ok {
			w.GeolocationTimeout = Duration(time.Duration(ms) * time.Millisecond)
		} else {
			w.GeolocationTimeout = 0
			warnings = append(warnings, fmt.Sprintf("GEOLOCATION_TIMEOUT=%q 无效，使用默认 10000ms", *overlay.GeolocationTimeout))
		}
	}
	if overlay.CacheDuration != nil {
		minutes, ok := positiveInt(*overlay.CacheDuration)
		if ok {
			w.CacheDuration = Duration(time.Duration(minutes) * time.Minute)
		} else {
			w.CacheDuration = 0
			warnings = append(warnings, fmt.Sprintf("WEATHER_CACHE_DURATION=%q 无效，使用默认 30 分钟", *overlay.CacheDuration))
		}
	}
	if overlay.NodeEnv != nil && strings.EqualFold(strings.TrimSpace(*overlay.NodeEnv), "development") {
		w.Development = true
	}
	return warnings, nil
}

func positiveInt(raw string) (int64, bool) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}
