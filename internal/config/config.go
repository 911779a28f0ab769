// Package config loads weatheralertd's two JSON configuration files and the
// environment variables that tune the pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/weatheralertd/weatheralertd/internal/model"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Gardens  []model.Garden
	Profiles map[string]model.SensitivityProfile

	Port                 string
	BackendURL           string
	MongoURL             string
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioFromNumber     string
	EvalInterval         time.Duration
	CacheRefreshInterval time.Duration
	WeatherRateLimitRPS  float64
	BackendRateLimitRPS  float64
	BreakerFailures      int
	BreakerOpenFor       time.Duration
}

type gardensFile struct {
	Gardens []model.Garden `json:"gardens"`
}

type profilesFile struct {
	Profiles map[string]model.SensitivityProfile `json:"profiles"`
}

// LoadDotEnv best-effort loads a .env file; a missing file is not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load reads both JSON config files and the environment, returning a fatal
// error for any Configuration-fatal condition (missing default profile,
// invalid coordinates, inverted thresholds).
func Load(gardensPath, profilesPath string) (*Config, error) {
	gardens, err := loadGardens(gardensPath)
	if err != nil {
		return nil, fmt.Errorf("load gardens config: %w", err)
	}
	profiles, err := loadProfiles(profilesPath)
	if err != nil {
		return nil, fmt.Errorf("load sensitivity profiles: %w", err)
	}

	cfg := &Config{
		Gardens:              gardens,
		Profiles:             profiles,
		Port:                 firstNonEmpty(os.Getenv("PORT"), "8080"),
		BackendURL:           strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
		MongoURL:             os.Getenv("MONGO_URL"),
		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:     os.Getenv("TWILIO_PHONE_NUMBER"),
		EvalInterval:         getenvDuration("EVAL_INTERVAL", 5*time.Minute),
		CacheRefreshInterval: getenvDuration("CACHE_REFRESH_INTERVAL", 24*time.Hour),
		WeatherRateLimitRPS:  getenvFloat("WEATHER_RATE_LIMIT_RPS", 5),
		BackendRateLimitRPS:  getenvFloat("BACKEND_RATE_LIMIT_RPS", 5),
		BreakerFailures:      int(getenvFloat("BACKEND_BREAKER_FAILURES", 5)),
		BreakerOpenFor:       getenvDuration("BACKEND_BREAKER_OPEN_FOR", 30*time.Second),
	}
	return cfg, nil
}

func loadGardens(path string) ([]model.Garden, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var gf gardensFile
	if err := json.Unmarshal(raw, &gf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, g := range gf.Gardens {
		if g.GardenID == "" {
			return nil, fmt.Errorf("garden missing gardenId")
		}
		if g.UserID <= 0 {
			return nil, fmt.Errorf("garden %s: missing or invalid userId", g.GardenID)
		}
		if g.Name == "" {
			return nil, fmt.Errorf("garden %s: missing name", g.GardenID)
		}
		if g.Latitude < -90 || g.Latitude > 90 {
			return nil, fmt.Errorf("garden %s: latitude %.4f out of range", g.GardenID, g.Latitude)
		}
		if g.Longitude < -180 || g.Longitude > 180 {
			return nil, fmt.Errorf("garden %s: longitude %.4f out of range", g.GardenID, g.Longitude)
		}
	}
	return gf.Gardens, nil
}

func loadProfiles(path string) (map[string]model.SensitivityProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf profilesFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if _, ok := pf.Profiles[model.DefaultProfileKey]; !ok {
		return nil, fmt.Errorf("sensitivity profiles missing required %q entry", model.DefaultProfileKey)
	}
	for key, p := range pf.Profiles {
		if p.MinTemperature >= p.MaxTemperature {
			return nil, fmt.Errorf("profile %s: minTemperature >= maxTemperature", key)
		}
	}
	return pf.Profiles, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
