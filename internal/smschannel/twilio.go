package smschannel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioGateway implements Gateway against the real Twilio Messages API.
type TwilioGateway struct {
	accountSID string
	authToken  string
	http       *http.Client
}

// NewTwilioGateway constructs a TwilioGateway.
func NewTwilioGateway(accountSID, authToken string) *TwilioGateway {
	return &TwilioGateway{
		accountSID: accountSID,
		authToken:  authToken,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// SendSMS submits one message via Twilio's Messages resource.
func (g *TwilioGateway) SendSMS(ctx context.Context, from, to, body string) error {
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", g.accountSID)

	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.accountSID, g.authToken)

	res, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("twilio POST -> %s", res.Status)
	}
	return nil
}
