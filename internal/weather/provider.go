package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/punk-blvck/blvck-hub/internal/faults"
)

// Provider 返回坐标处的当前天气，City 可能为空。
type Provider interface {
	Current(ctx context.Context, lat, lon float64) (Record, error)
}

// OpenWeather 调用 OpenWeather /data/2.5/weather 接口。
type OpenWeather struct {
	Client   *http.Client
	Endpoint string
	APIKey   string
	Units    string
	Lang     string
	Logger   logrus.FieldLogger
}

type openWeatherResponse struct {
	Main *struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

// Current 实现 Provider。风速统一换算为 km/h。
func (p *OpenWeather) Current(ctx context.Context, lat, lon float64) (Record, error) {
	target, err := p.requestURL(lat, lon)
	if err != nil {
		return Record{}, err
	}
	redacted := p.redact(target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Record{}, fmt.Errorf("build weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	p.logger().WithField("url", redacted).Debug("weather_fetch")
	resp, err := p.client().Do(req)
	if err != nil {
		return Record{}, faults.FetchFailed(scrub(err, p.APIKey), redacted, 0)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Record{}, faults.FetchFailed(nil, redacted, resp.StatusCode)
	}

	var payload openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Record{}, faults.Malformed(err, "openweather")
	}
	if payload.Main == nil || len(payload.Weather) == 0 {
		return Record{}, faults.Malformed(errors.New("missing main or weather fields"), "openweather")
	}

	cond := payload.Weather[0]
	if !translated(cond.Main, cond.Description) {
		p.logger().WithFields(logrus.Fields{"main": cond.Main, "description": cond.Description}).
			Debug("weather_condition_untranslated")
	}
	return Record{
		Temp:      int(math.Round(payload.Main.Temp)),
		Condition: TranslateCondition(cond.Main, cond.Description),
		City:      payload.Name,
		Humidity:  int(math.Round(payload.Main.Humidity)),
		WindSpeed: int(math.Round(payload.Wind.Speed * windFactor(p.Units))),
	}, nil
}

func (p *OpenWeather) requestURL(lat, lon float64) (string, error) {
	base, err := url.Parse(strings.TrimRight(p.Endpoint, "/") + "/data/2.5/weather")
	if err != nil {
		return "", fmt.Errorf("parse weather endpoint: %w", err)
	}
	q := url.Values{}
	q.Set("lat", formatCoord(lat))
	q.Set("lon", formatCoord(lon))
	q.Set("appid", p.APIKey)
	q.Set("units", p.Units)
	q.Set("lang", p.Lang)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// redact 隐藏 URL 中的 API key。
func (p *OpenWeather) redact(target string) string {
	if p.APIKey == "" {
		return target
	}
	return strings.ReplaceAll(target, url.QueryEscape(p.APIKey), "[API_KEY]")
}

func (p *OpenWeather) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

func (p *OpenWeather) logger() logrus.FieldLogger {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.StandardLogger()
}

// windFactor 返回换算到 km/h 的系数：imperial 为 mph，其余为 m/s。
func windFactor(units string) float64 {
	if strings.EqualFold(units, "imperial") {
		return 1.609344
	}
	return 3.6
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// scrub 去掉 *url.Error 中携带的完整 URL，避免 API key 进入日志。
func scrub(err error, apiKey string) error {
	var urlErr *url.Error
	if apiKey == "" || !errors.As(err, &urlErr) {
		return err
	}
	return urlErr.Err
}
