package relay

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vigil-live/vigil/pkg/core"
)

const twilioBaseURL = "https://api.twilio.com"

// Twilio implements Telephony against the Twilio REST API.
type Twilio struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// NewTwilio creates a Twilio client sending from fromNumber.
func NewTwilio(accountSID, authToken, fromNumber string) *Twilio {
	return &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    twilioBaseURL,
		httpClient: &http.Client{},
	}
}

// NewTwilioWithClient creates a Twilio client with a custom endpoint and HTTP
// client.
func NewTwilioWithClient(accountSID, authToken, fromNumber, baseURL string, client *http.Client) *Twilio {
	t := NewTwilio(accountSID, authToken, fromNumber)
	t.baseURL = baseURL
	t.httpClient = client
	return t
}

// SendNotification texts body to the given number.
func (t *Twilio) SendNotification(ctx context.Context, to, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.fromNumber)
	form.Set("Body", body)
	return t.post(ctx, "Messages.json", form)
}

// Dial places a call that bridges the callee onto the live media stream at
// bridgeURL.
func (t *Twilio) Dial(ctx context.Context, to, bridgeURL string) error {
	twiml := fmt.Sprintf(`<Response><Connect><Stream url=%q/></Connect></Response>`, bridgeURL)
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.fromNumber)
	form.Set("Twiml", twiml)
	return t.post(ctx, "Calls.json", form)
}

// Announce places a call that speaks message twice and hangs up.
func (t *Twilio) Announce(ctx context.Context, to, message string) error {
	var esc strings.Builder
	xml.EscapeText(&esc, []byte(message))
	twiml := fmt.Sprintf(`<Response><Say loop="2">%s</Say></Response>`, esc.String())
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.fromNumber)
	form.Set("Twiml", twiml)
	return t.post(ctx, "Calls.json", form)
}

func (t *Twilio) post(ctx context.Context, resource string, form url.Values) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s", t.baseURL, t.accountSID, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return core.NewCollaboratorError("telephony", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return core.NewCollaboratorError("telephony", fmt.Errorf("twilio %s: http %d: %s", resource, resp.StatusCode, body))
	}
	return nil
}
