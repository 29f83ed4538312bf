package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/observability"
)

// ErrNoLocation is returned when a query has neither coordinates nor a city.
var ErrNoLocation = errors.New("openweather: query has no coordinates or city")

// Client implements domain.Provider using the OpenWeatherMap current weather API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenWeatherMap client. apiKey is used when a query
// carries none. perMinute caps outgoing requests.
func NewClient(baseURL, apiKey string, timeout time.Duration, perMinute int, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		metrics: metrics,
		logger:  logger,
	}
}

// CurrentWeather fetches current conditions for the query location.
func (c *Client) CurrentWeather(ctx context.Context, q domain.Query) (domain.Reading, error) {
	params := url.Values{}
	switch {
	case q.HasCoordinates():
		params.Set("lat", strconv.FormatFloat(q.Latitude, 'f', 6, 64))
		params.Set("lon", strconv.FormatFloat(q.Longitude, 'f', 6, 64))
	case q.City != "":
		params.Set("q", q.City)
	default:
		return domain.Reading{}, ErrNoLocation
	}

	key := q.APIKey
	if key == "" {
		key = c.apiKey
	}
	params.Set("appid", key)
	if q.Units != "" {
		params.Set("units", q.Units)
	}
	if q.Lang != "" {
		params.Set("lang", q.Lang)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Reading{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	reading, err := c.doRequest(ctx, c.baseURL+"/data/2.5/weather?"+params.Encode())
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return domain.Reading{}, err
	}
	c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	c.logger.Debug("weather fetched", "city", reading.City, "temperature", reading.Temperature)
	return reading, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("current weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Reading{}, fmt.Errorf("openweather API error: status %d: %s", resp.StatusCode, body)
	}

	var owResp response
	if err := json.NewDecoder(resp.Body).Decode(&owResp); err != nil {
		return domain.Reading{}, fmt.Errorf("decode response: %w", err)
	}
	return owResp.toReading(), nil
}

// OpenWeatherMap API response types.

type response struct {
	Weather []condition `json:"weather"`
	Main    struct {
		Temp     float64 `json:"temp"`
		TempMin  float64 `json:"temp_min"`
		TempMax  float64 `json:"temp_max"`
		Pressure float64 `json:"pressure"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Rain *precipitation `json:"rain,omitempty"`
	Snow *precipitation `json:"snow,omitempty"`
	Dt   int64          `json:"dt"`
	Sys  struct {
		Sunrise int64 `json:"sunrise"`
		Sunset  int64 `json:"sunset"`
	} `json:"sys"`
	Name string `json:"name"`
}

type condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type precipitation struct {
	OneHour float64 `json:"1h"`
}

func (r response) toReading() domain.Reading {
	out := domain.Reading{
		City:           r.Name,
		Temperature:    r.Main.Temp,
		TemperatureMax: r.Main.TempMax,
		TemperatureMin: r.Main.TempMin,
		Humidity:       r.Main.Humidity,
		Pressure:       r.Main.Pressure,
		WindSpeed:      r.Wind.Speed,
		WindDegrees:    r.Wind.Deg,
		Cloudiness:     r.Clouds.All,
		Sunrise:        unixOrZero(r.Sys.Sunrise),
		Sunset:         unixOrZero(r.Sys.Sunset),
		ObservedAt:     unixOrZero(r.Dt),
	}
	if len(r.Weather) > 0 {
		out.WeatherIconID = r.Weather[0].ID
		out.WeatherDescription = r.Weather[0].Description
	}
	if r.Rain != nil {
		out.Rain = r.Rain.OneHour
	}
	if r.Snow != nil {
		out.Snow = r.Snow.OneHour
	}
	return out
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
