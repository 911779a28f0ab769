// Package backend talks to the plants/users HTTP backend, retrying transient
// failures with a bounded exponential backoff.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/model"
)

// ErrBackendUnavailable is returned once all retry attempts are exhausted.
var ErrBackendUnavailable = errors.New("backend unavailable")

// LatencyRecorder receives the total round-trip latency of one call chain
// (including retries).
type LatencyRecorder func(d time.Duration)

// Config tunes the client's rate limit, retry ladder, and circuit breaker.
type Config struct {
	BaseURL           string
	RequestsPerSecond float64
	BreakerFailures   int
	BreakerOpenFor    time.Duration
	Timeout           time.Duration
}

// Client fetches plants and users from the backend: FetchUserPlants and
// FetchUser, both tried up to 3 times, waiting 1s and then 2s between
// attempts.
type Client struct {
	cfg       Config
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	log       *logging.Logger
	onLatency LatencyRecorder
}

// New constructs a backend Client.
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
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "backend-client",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
	})
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breaker:   breaker,
		log:       logging.New("plants-client"),
		onLatency: onLatency,
	}
}

// retryPolicy returns the 3-attempt exponential backoff ladder: 1s before the
// second attempt, 2s before the third.
func retryPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, 2), ctx)
}

// FetchUserPlants returns the plants belonging to userId.
func (c *Client) FetchUserPlants(ctx context.Context, userID int) ([]model.Plant, error) {
	start := time.Now()
	var plants []model.Plant
	op := func() error {
		p, err := c.getPlants(ctx, userID)
		if err != nil {
			return err
		}
		plants = p
		return nil
	}
	err := backoff.Retry(op, retryPolicy(ctx))
	if c.onLatency != nil {
		c.onLatency(time.Since(start))
	}
	if err != nil {
		c.log.Printf("fetch plants for user %d failed after retries: %v", userID, err)
		return nil, ErrBackendUnavailable
	}
	return plants, nil
}

// FetchUser returns the user record for userID.
func (c *Client) FetchUser(ctx context.Context, userID int) (*model.User, error) {
	start := time.Now()
	var user *model.User
	op := func() error {
		u, err := c.getUser(ctx, userID)
		if err != nil {
			return err
		}
		user = u
		return nil
	}
	err := backoff.Retry(op, retryPolicy(ctx))
	if c.onLatency != nil {
		c.onLatency(time.Since(start))
	}
	if err != nil {
		c.log.Printf("fetch user %d failed after retries: %v", userID, err)
		return nil, ErrBackendUnavailable
	}
	return user, nil
}

func (c *Client) getPlants(ctx context.Context, userID int) ([]model.Plant, error) {
	var out []model.Plant
	url := c.cfg.BaseURL + "/api/plants?userId=" + strconv.Itoa(userID)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getUser(ctx context.Context, userID int) (*model.User, error) {
	var out model.User
	url := c.cfg.BaseURL + "/api/users/" + strconv.Itoa(userID)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, fmt.Errorf("GET %s -> %s", url, res.Status)
		}
		return nil, json.NewDecoder(res.Body).Decode(out)
	})
	return err
}
