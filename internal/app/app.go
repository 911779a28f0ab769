// Package app wires together every weatheralertd component from a loaded
// config, shared by the serve, check-config, and evaluate-once CLI
// subcommands.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/weatheralertd/weatheralertd/internal/alertengine"
	"github.com/weatheralertd/weatheralertd/internal/backend"
	"github.com/weatheralertd/weatheralertd/internal/broadcast"
	"github.com/weatheralertd/weatheralertd/internal/config"
	"github.com/weatheralertd/weatheralertd/internal/history"
	"github.com/weatheralertd/weatheralertd/internal/httpapi"
	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/metrics"
	"github.com/weatheralertd/weatheralertd/internal/plantcache"
	"github.com/weatheralertd/weatheralertd/internal/scheduler"
	"github.com/weatheralertd/weatheralertd/internal/sensitivity"
	"github.com/weatheralertd/weatheralertd/internal/smschannel"
	"github.com/weatheralertd/weatheralertd/internal/weather"
)

// App holds every constructed component, ready for the CLI to drive.
type App struct {
	Cfg       *config.Config
	Metrics   *metrics.Service
	Weather   *weather.Client
	Backend   *backend.Client
	Cache     *plantcache.Cache
	Registry  *sensitivity.Registry
	Engine    *alertengine.Engine
	SMS       *smschannel.Channel
	Hub       *broadcast.Hub
	History   *history.Store
	Scheduler *scheduler.Scheduler
	HTTP      *httpapi.Server
	log       *logging.Logger
}

// Build constructs every component from cfg. It does not start any
// background goroutines or HTTP listeners.
func Build(cfg *config.Config) (*App, error) {
	registry, err := sensitivity.New(cfg.Profiles)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	weatherClient := weather.New(weather.Config{
		RequestsPerSecond: cfg.WeatherRateLimitRPS,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerOpenFor:    cfg.BreakerOpenFor,
	}, m.RecordOpenMeteoLatency)

	backendClient := backend.New(backend.Config{
		BaseURL:           cfg.BackendURL,
		RequestsPerSecond: cfg.BackendRateLimitRPS,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerOpenFor:    cfg.BreakerOpenFor,
	}, m.RecordBackendLatency)

	cache := plantcache.New(backendClient)
	engine := alertengine.New(weatherClient, cache, registry)

	var gateway smschannel.Gateway
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		gateway = smschannel.NewTwilioGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	}
	sms := smschannel.New(smschannel.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
	}, gateway)

	hub := broadcast.New()
	historyStore := history.New(cfg.MongoURL)

	sch := scheduler.New(scheduler.Config{
		EvalInterval:         cfg.EvalInterval,
		CacheRefreshInterval: cfg.CacheRefreshInterval,
	}, cfg.Gardens, engine, backendClient, sms, hub, historyStore, cache, m)

	checkers := map[string]httpapi.Checker{
		"postgres":  backendHealthCheck(cfg.BackendURL),
		"mongodb":   historyHealthCheck(historyStore),
		"openmeteo": openMeteoHealthCheck(weatherClient),
		"twilio":    twilioHealthCheck(sms),
	}
	httpServer := httpapi.New(hub, m, checkers, []string{"postgres", "openmeteo"})

	return &App{
		Cfg:       cfg,
		Metrics:   m,
		Weather:   weatherClient,
		Backend:   backendClient,
		Cache:     cache,
		Registry:  registry,
		Engine:    engine,
		SMS:       sms,
		Hub:       hub,
		History:   historyStore,
		Scheduler: sch,
		HTTP:      httpServer,
		log:       logging.New("app"),
	}, nil
}

// InitializeHistory best-effort connects the history store.
func (a *App) InitializeHistory(ctx context.Context) {
	a.History.Initialize(ctx)
}

func openMeteoHealthCheck(client *weather.Client) httpapi.Checker {
	return func(ctx context.Context) httpapi.ServiceStatus {
		start := time.Now()
		err := client.Ping(ctx)
		latency := time.Since(start).Seconds()
		if err != nil {
			return httpapi.ServiceStatus{Status: "error", Message: err.Error(), Latency: &latency}
		}
		return httpapi.ServiceStatus{Status: "ok", Latency: &latency}
	}
}

func twilioHealthCheck(sms *smschannel.Channel) httpapi.Checker {
	return func(ctx context.Context) httpapi.ServiceStatus {
		if !sms.IsEnabled() {
			return httpapi.ServiceStatus{Status: "degraded", Message: "SMS not configured"}
		}
		return httpapi.ServiceStatus{Status: "ok"}
	}
}

func historyHealthCheck(store *history.Store) httpapi.Checker {
	return func(ctx context.Context) httpapi.ServiceStatus {
		if !store.Ready() {
			return httpapi.ServiceStatus{Status: "degraded", Message: "history store not connected"}
		}
		return httpapi.ServiceStatus{Status: "ok"}
	}
}

func backendHealthCheck(baseURL string) httpapi.Checker {
	client := &http.Client{Timeout: 5 * time.Second}
	return func(ctx context.Context) httpapi.ServiceStatus {
		if baseURL == "" {
			return httpapi.ServiceStatus{Status: "error", Message: "BACKEND_URL not configured"}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/health", nil)
		if err != nil {
			return httpapi.ServiceStatus{Status: "error", Message: err.Error()}
		}
		start := time.Now()
		res, err := client.Do(req)
		if err != nil {
			return httpapi.ServiceStatus{Status: "error", Message: err.Error()}
		}
		defer res.Body.Close()
		latency := time.Since(start).Seconds()
		if res.StatusCode != http.StatusOK {
			return httpapi.ServiceStatus{Status: "error", Message: res.Status, Latency: &latency}
		}
		return httpapi.ServiceStatus{Status: "ok", Latency: &latency}
	}
}
