package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/refresh"
)

// variables requested for both current and hourly data.
const variables = "weather_code,temperature_2m,relative_humidity_2m,precipitation,cloud_cover,wind_speed_10m"

// hourLayout is the timestamp format Open-Meteo uses with timezone=GMT.
const hourLayout = "2006-01-02T15:04"

// Client implements refresh.Source using the Open-Meteo forecast endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client. baseURL is the API origin, e.g.
// https://api.open-meteo.com.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Current returns the latest observation for a coordinate.
func (c *Client) Current(ctx context.Context, lat, lon float64) (domain.Reading, error) {
	params := c.params(lat, lon)
	params.Set("current", variables)

	var resp response
	if err := c.doRequest(ctx, params, "current", &resp); err != nil {
		return domain.Reading{}, err
	}
	if resp.Current == nil || resp.Current.WeatherCode == nil {
		return domain.Reading{}, refresh.ErrNoReading
	}

	cur := resp.Current
	observed, _ := time.ParseInLocation(hourLayout, cur.Time, time.UTC)
	return domain.Reading{
		Code: *cur.WeatherCode,
		Metrics: domain.WeatherMetrics{
			WindSpeed:     cur.WindSpeed,
			Precipitation: cur.Precipitation,
			Temperature:   cur.Temperature,
			Humidity:      cur.Humidity,
			CloudCover:    cur.CloudCover,
		},
		ObservedAt: observed,
		Source:     "current",
	}, nil
}

// ForecastAt returns the hourly forecast for the hour containing at.
func (c *Client) ForecastAt(ctx context.Context, lat, lon float64, at time.Time) (domain.Reading, error) {
	hour := at.UTC().Truncate(time.Hour).Format(hourLayout)
	params := c.params(lat, lon)
	params.Set("hourly", variables)
	params.Set("start_hour", hour)
	params.Set("end_hour", hour)

	var resp response
	if err := c.doRequest(ctx, params, "forecast", &resp); err != nil {
		return domain.Reading{}, err
	}
	if resp.Hourly == nil {
		return domain.Reading{}, refresh.ErrNoReading
	}

	h := resp.Hourly
	for i, ts := range h.Time {
		if ts != hour || i >= len(h.WeatherCode) || h.WeatherCode[i] == nil {
			continue
		}
		observed, _ := time.ParseInLocation(hourLayout, ts, time.UTC)
		return domain.Reading{
			Code: *h.WeatherCode[i],
			Metrics: domain.WeatherMetrics{
				WindSpeed:     valueAt(h.WindSpeed, i),
				Precipitation: valueAt(h.Precipitation, i),
				Temperature:   valueAt(h.Temperature, i),
				Humidity:      valueAt(h.Humidity, i),
				CloudCover:    valueAt(h.CloudCover, i),
			},
			ObservedAt: observed,
			Source:     "forecast",
		}, nil
	}
	return domain.Reading{}, refresh.ErrNoReading
}

func (c *Client) params(lat, lon float64) url.Values {
	return url.Values{
		"latitude":        {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude":       {strconv.FormatFloat(lon, 'f', 4, 64)},
		"timezone":        {"GMT"},
		"wind_speed_unit": {"kmh"},
	}
}

func (c *Client) doRequest(ctx context.Context, params url.Values, kind string, out *response) error {
	fullURL := c.baseURL + "/v1/forecast?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.WeatherFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s weather request: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("weather fetched", "kind", kind, "duration", time.Since(start))
	return nil
}

func valueAt(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

// Open-Meteo API response types.

type response struct {
	Current *current `json:"current"`
	Hourly  *hourly  `json:"hourly"`
}

type current struct {
	Time          string  `json:"time"`
	WeatherCode   *int    `json:"weather_code"`
	Temperature   float64 `json:"temperature_2m"`
	Humidity      float64 `json:"relative_humidity_2m"`
	Precipitation float64 `json:"precipitation"`
	CloudCover    float64 `json:"cloud_cover"`
	WindSpeed     float64 `json:"wind_speed_10m"`
}

type hourly struct {
	Time          []string   `json:"time"`
	WeatherCode   []*int     `json:"weather_code"`
	Temperature   []*float64 `json:"temperature_2m"`
	Humidity      []*float64 `json:"relative_humidity_2m"`
	Precipitation []*float64 `json:"precipitation"`
	CloudCover    []*float64 `json:"cloud_cover"`
	WindSpeed     []*float64 `json:"wind_speed_10m"`
}

var _ refresh.Source = (*Client)(nil)
