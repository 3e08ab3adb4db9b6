package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/punk-blvck/blvck-hub/internal/faults"
)

// unknownPlace 在反查结果没有任何可用地名时返回。
const unknownPlace = "Localização desconhecida"

// Geocoder 根据坐标反查 "城市, 州" 标签。
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Nominatim 调用 OpenStreetMap Nominatim /reverse 接口。
type Nominatim struct {
	Client    *http.Client
	Endpoint  string
	UserAgent string
}

type nominatimResponse struct {
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		State        string `json:"state"`
	} `json:"address"`
	DisplayName string `json:"display_name"`
}

// Reverse 实现 Geocoder。
func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	base, err := url.Parse(strings.TrimRight(n.Endpoint, "/") + "/reverse")
	if err != nil {
		return "", fmt.Errorf("parse geocode endpoint: %w", err)
	}
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", formatCoord(lat))
	q.Set("lon", formatCoord(lon))
	q.Set("zoom", strconv.Itoa(10))
	q.Set("addressdetails", "1")
	base.RawQuery = q.Encode()
	target := base.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build geocode request: %w", err)
	}
	if n.UserAgent != "" {
		req.Header.Set("User-Agent", n.UserAgent)
	}
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", faults.FetchFailed(err, target, 0)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", faults.FetchFailed(nil, target, resp.StatusCode)
	}

	var payload nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", faults.Malformed(err, "nominatim")
	}
	return placeLabel(payload), nil
}

func placeLabel(p nominatimResponse) string {
	city := firstNonEmpty(p.Address.City, p.Address.Town, p.Address.Village, p.Address.Municipality)
	state := p.Address.State
	switch {
	case city != "" && state != "":
		return city + ", " + state
	case city != "":
		return city
	case state != "":
		return state
	}
	if head, _, _ := strings.Cut(p.DisplayName, ","); strings.TrimSpace(head) != "" {
		return strings.TrimSpace(head)
	}
	return unknownPlace
}

// coordinateLabel 是反查失败时的兜底标签。
func coordinateLabel(lat, lon float64) string {
	return fmt.Sprintf("%.2f, %.2f", lat, lon)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
