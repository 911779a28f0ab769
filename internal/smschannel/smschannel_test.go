package smschannel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weatheralertd/weatheralertd/internal/model"
)

type fakeGateway struct {
	failTimes int32
	calls     int32
}

func (g *fakeGateway) SendSMS(ctx context.Context, from, to, body string) error {
	n := atomic.AddInt32(&g.calls, 1)
	if n <= g.failTimes {
		return errors.New("gateway error")
	}
	return nil
}

func phonePtr(s string) *string { return &s }

var testAlert = model.Alert{
	AlertID:            "a1",
	GardenName:         "Test Garden",
	AlertType:          model.AlertHighTemperature,
	Metric:             model.MetricTemperature,
	CurrentValue:       35.4,
	Threshold:          32,
	AffectedPlantNames: []string{"Tomato A"},
}

func TestIsEnabled_FalseWhenCredentialsMissing(t *testing.T) {
	ch := New(Config{}, &fakeGateway{})
	require.False(t, ch.IsEnabled())
}

func TestSendAlert_SkipsWhenDisabled(t *testing.T) {
	ch := New(Config{}, &fakeGateway{})
	ok := ch.SendAlert(context.Background(), testAlert, model.User{PhoneNumber: phonePtr("+15555550123")})
	require.False(t, ok)
}

func TestSendAlert_SkipsWhenPhoneMissing(t *testing.T) {
	gw := &fakeGateway{}
	ch := New(Config{AccountSID: "sid", AuthToken: "token", FromNumber: "+1111"}, gw)
	ok := ch.SendAlert(context.Background(), testAlert, model.User{PhoneNumber: nil})
	require.False(t, ok)
	require.Equal(t, int32(0), gw.calls)
}

func TestSendAlert_SucceedsFirstAttempt(t *testing.T) {
	gw := &fakeGateway{}
	ch := New(Config{AccountSID: "sid", AuthToken: "token", FromNumber: "+1111"}, gw)
	ok := ch.SendAlert(context.Background(), testAlert, model.User{PhoneNumber: phonePtr("+15555550123")})
	require.True(t, ok)
	require.Equal(t, int32(1), gw.calls)
}

func TestSendAlert_RetriesUpToThreeAttempts(t *testing.T) {
	gw := &fakeGateway{failTimes: 2}
	ch := New(Config{AccountSID: "sid", AuthToken: "token", FromNumber: "+1111"}, gw)

	start := time.Now()
	ok := ch.SendAlert(context.Background(), testAlert, model.User{PhoneNumber: phonePtr("+15555550123")})
	elapsed := time.Since(start)

	require.True(t, ok)
	require.Equal(t, int32(3), gw.calls)
	require.GreaterOrEqual(t, elapsed, 9*time.Second)
}

func TestSendAlert_FailsAfterThreeAttempts(t *testing.T) {
	gw := &fakeGateway{failTimes: 10}
	ch := New(Config{AccountSID: "sid", AuthToken: "token", FromNumber: "+1111"}, gw)

	ok := ch.SendAlert(context.Background(), testAlert, model.User{PhoneNumber: phonePtr("+15555550123")})
	require.False(t, ok)
	require.Equal(t, int32(3), gw.calls)
}
