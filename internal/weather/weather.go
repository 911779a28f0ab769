// Package weather fetches current conditions from Open-Meteo, rate-limited
// and circuit-breaker wrapped.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/model"
)

const baseURL = "https://api.open-meteo.com/v1/forecast"

// LatencyRecorder receives the round-trip latency of one FetchWeather call.
type LatencyRecorder func(d time.Duration)

// Client fetches WeatherSnapshots for a coordinate.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	log       *logging.Logger
	onLatency LatencyRecorder
	baseURL   string
}

// Config tunes the client's rate limit and circuit breaker.
type Config struct {
	RequestsPerSecond float64
	BreakerFailures   int
	BreakerOpenFor    time.Duration
	Timeout           time.Duration
	// BaseURL overrides the Open-Meteo endpoint, used by tests to point at
	// an httptest.Server instead of the live API.
	BaseURL string
}

// New constructs a weather Client.
func New(cfg Config, onLatency LatencyRecorder) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "weather-client",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
	})
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breaker:   breaker,
		log:       logging.New("weather"),
		onLatency: onLatency,
		baseURL:   cfg.BaseURL,
	}
}

type forecastResponse struct {
	Current struct {
		Temperature2m  float64 `json:"temperature_2m"`
		Precipitation  float64 `json:"precipitation"`
		WindSpeed10m   float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		Temperature2mMax []float64 `json:"temperature_2m_max"`
		Temperature2mMin []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// FetchWeather returns the current snapshot for a coordinate, or nil if the
// fetch fails for any reason — it never raises to the caller.
func (c *Client) FetchWeather(ctx context.Context, lat, lon float64) *model.WeatherSnapshot {
	start := time.Now()
	snap, err := c.fetch(ctx, lat, lon)
	if c.onLatency != nil {
		c.onLatency(time.Since(start))
	}
	if err != nil {
		c.log.Printf("fetch error for (%.4f,%.4f): %v", lat, lon, err)
		return nil
	}
	return snap
}

// Ping issues a real request against a reference coordinate and reports
// whether Open-Meteo is reachable, for use as a health check. Unlike
// FetchWeather it returns the error instead of swallowing it.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetch(ctx, 0, 0)
	return err
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (*model.WeatherSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.breaker.Execute(func() (any, error) {
		return c.doRequest(ctx, lat, lon)
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.WeatherSnapshot), nil
}

func (c *Client) doRequest(ctx context.Context, lat, lon float64) (*model.WeatherSnapshot, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.6f", lat))
	q.Set("longitude", fmt.Sprintf("%.6f", lon))
	q.Set("current", "temperature_2m,precipitation,wind_speed_10m")
	q.Set("daily", "temperature_2m_max,temperature_2m_min")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("open-meteo GET -> %s", res.Status)
	}
	var body forecastResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, err
	}

	snap := &model.WeatherSnapshot{
		Temperature:   body.Current.Temperature2m,
		Precipitation: body.Current.Precipitation,
		WindSpeed:     body.Current.WindSpeed10m,
		ObservedAt:    time.Now().UTC(),
	}
	if len(body.Daily.Temperature2mMax) > 0 {
		snap.TemperatureMax = body.Daily.Temperature2mMax[0]
	}
	if len(body.Daily.Temperature2mMin) > 0 {
		snap.TemperatureMin = body.Daily.Temperature2mMin[0]
	}
	return snap, nil
}
