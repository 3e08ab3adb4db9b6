package weather

import "time"

// Record 是展示用的当前天气。
type Record struct {
	Temp       int       `json:"temp"`
	Condition  string    `json:"condition"`
	City       string    `json:"city"`
	Humidity   int       `json:"humidity"`
	WindSpeed  int       `json:"windSpeed"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Location 是一次定位结果。
type Location struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Source 标记 Report 的数据来源层级。
type Source string

const (
	SourceCache       Source = "cache"
	SourceFresh       Source = "fresh"
	SourceSynthetic   Source = "synthetic"
	SourceStale       Source = "stale"
	SourcePlaceholder Source = "placeholder"
)

// Degraded 返回该来源是否为失败后的降级结果。
func (s Source) Degraded() bool {
	return s == SourceStale || s == SourcePlaceholder
}

// Report 是 GetWeatherData 的结果，Err 仅在降级时非空。
type Report struct {
	Record Record
	Source Source
	Err    error
}

const (
	locationKey = "location-cache"
	weatherKey  = "weather-cache"

	locationTTL = time.Hour
)
