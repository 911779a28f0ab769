package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchWeather_Success_ReturnsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"current": {"temperature_2m": 34.5, "precipitation": 0, "wind_speed_10m": 12.1},
			"daily": {"temperature_2m_max": [36.2], "temperature_2m_min": [21.0]}
		}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	snap := c.FetchWeather(context.Background(), 45.0, 9.0)
	require.NotNil(t, snap)
	require.Equal(t, 34.5, snap.Temperature)
	require.Equal(t, 36.2, snap.TemperatureMax)
	require.Equal(t, 21.0, snap.TemperatureMin)
}

func TestFetchWeather_NonOKStatus_ReturnsNilNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	snap := c.FetchWeather(context.Background(), 45.0, 9.0)
	require.Nil(t, snap)
}

func TestFetchWeather_MalformedBody_ReturnsNilNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	snap := c.FetchWeather(context.Background(), 45.0, 9.0)
	require.Nil(t, snap)
}

func TestFetchWeather_ConnectionFailure_ReturnsNilNotError(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"}, nil)
	require.NotPanics(t, func() {
		snap := c.FetchWeather(context.Background(), 45.0, 9.0)
		require.Nil(t, snap)
	})
}

func TestFetchWeather_RecordsLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current": {"temperature_2m": 20}, "daily": {}}`))
	}))
	defer srv.Close()

	var recorded bool
	c := New(Config{BaseURL: srv.URL}, func(d time.Duration) { recorded = true })
	c.FetchWeather(context.Background(), 1, 1)
	require.True(t, recorded)
}
