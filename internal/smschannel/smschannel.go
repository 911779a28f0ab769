// Package smschannel sends alert SMS messages via a Twilio-shaped gateway,
// retrying with a fixed-delay ladder distinct from the backend client's
// exponential one.
package smschannel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/model"
)

// Gateway sends a raw SMS body to a phone number and reports success.
type Gateway interface {
	SendSMS(ctx context.Context, from, to, body string) error
}

// Channel sends one alert's SMS notification to its owning user.
type Channel struct {
	gateway    Gateway
	from       string
	enabled    bool
	log        *logging.Logger
}

// Config holds the Twilio-style credential triad; the channel is disabled
// unless all three and a working gateway client are present.
type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// New constructs a Channel. gateway may be nil when credentials are absent;
// IsEnabled reports false in that case and SendAlert always returns false.
func New(cfg Config, gateway Gateway) *Channel {
	enabled := cfg.AccountSID != "" && cfg.AuthToken != "" && cfg.FromNumber != "" && gateway != nil
	return &Channel{
		gateway: gateway,
		from:    cfg.FromNumber,
		enabled: enabled,
		log:     logging.New("sms-channel"),
	}
}

// IsEnabled reports whether the channel was constructed with full Twilio
// credentials and a live gateway client.
func (c *Channel) IsEnabled() bool {
	return c.enabled
}

// SendAlert formats and sends alert to user.PhoneNumber, retrying up to 2
// more times (3 attempts total) with a fixed 5-second delay. It never raises;
// it reports success or failure via its boolean return.
func (c *Channel) SendAlert(ctx context.Context, alert model.Alert, user model.User) bool {
	if !c.enabled {
		return false
	}
	if user.PhoneNumber == nil || strings.TrimSpace(*user.PhoneNumber) == "" {
		return false
	}

	body := formatMessage(alert)
	op := func() error {
		return c.gateway.SendSMS(ctx, c.from, *user.PhoneNumber, body)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Second), 2), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		c.log.Printf("send to %s failed after retries: %v", *user.PhoneNumber, err)
		return false
	}
	return true
}

func formatMessage(a model.Alert) string {
	names := a.AffectedPlantNames
	if len(names) == 0 {
		names = a.AffectedPlantTypes
	}

	var label, metricLine string
	switch a.AlertType {
	case model.AlertHighTemperature:
		label = "High temperature warning"
	case model.AlertLowTemperature:
		label = "Low temperature warning"
	case model.AlertHeavyRain:
		label = "Heavy rain warning"
	case model.AlertStrongWind:
		label = "Strong wind warning"
	default:
		label = string(a.AlertType)
	}

	switch a.Metric {
	case model.MetricTemperature:
		metricLine = fmt.Sprintf("Temperature: %.1f°C (threshold %.1f°C)", a.CurrentValue, a.Threshold)
	case model.MetricPrecipitation:
		metricLine = fmt.Sprintf("Precipitation: %.1f mm/h (threshold %.1f mm/h)", a.CurrentValue, a.Threshold)
	case model.MetricWindSpeed:
		metricLine = fmt.Sprintf("Wind speed: %.1f km/h (threshold %.1f km/h)", a.CurrentValue, a.Threshold)
	}

	return fmt.Sprintf("%s - %s\n%s\nAffected plants: %s", a.GardenName, label, metricLine, strings.Join(names, ", "))
}
