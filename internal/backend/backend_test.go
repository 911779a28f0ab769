package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchUserPlants_SucceedsOnThirdAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1,"user_id":7,"name":"Tomato","type":"tomato"}]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 1000}, nil)
	start := time.Now()
	plants, err := c.FetchUserPlants(context.Background(), 7)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, plants, 1)
	require.Equal(t, int32(3), calls)
	require.GreaterOrEqual(t, elapsed, 3*time.Second)
}

func TestFetchUserPlants_ExhaustsRetriesAndReturnsErrBackendUnavailable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 1000}, nil)
	plants, err := c.FetchUserPlants(context.Background(), 7)

	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Nil(t, plants)
	require.Equal(t, int32(3), calls)
}

func TestFetchUser_SucceedsFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":7,"name":"Ada","phone_number":"+15555550123"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 1000}, nil)
	user, err := c.FetchUser(context.Background(), 7)

	require.NoError(t, err)
	require.Equal(t, "Ada", user.Name)
	require.NotNil(t, user.PhoneNumber)
}

func TestFetchUser_ExhaustsRetriesAndReturnsErrBackendUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 1000}, nil)
	user, err := c.FetchUser(context.Background(), 7)

	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Nil(t, user)
}

func TestFetchUserPlants_RecordsLatency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var recorded bool
	c := New(Config{BaseURL: srv.URL, RequestsPerSecond: 1000}, func(d time.Duration) { recorded = true })
	_, _ = c.FetchUserPlants(context.Background(), 1)
	require.True(t, recorded)
}
