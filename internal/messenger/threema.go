package messenger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"xcbot/internal/model"
)

const defaultSendURL = "https://msgapi.threema.ch/send_simple"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ThreemaGateway sends messages through the Threema gateway HTTP API.
type ThreemaGateway struct {
	client  HTTPClient
	sendURL string
	id      string
	secret  string
	timeout time.Duration
	log     *slog.Logger
}

// NewThreemaGateway creates a gateway client for the given gateway identity.
func NewThreemaGateway(client HTTPClient, id, secret string, timeout time.Duration, log *slog.Logger) *ThreemaGateway {
	return &ThreemaGateway{
		client:  client,
		sendURL: defaultSendURL,
		id:      id,
		secret:  secret,
		timeout: timeout,
		log:     log,
	}
}

// SetSendURL overrides the gateway send endpoint (useful for testing).
func (g *ThreemaGateway) SetSendURL(u string) {
	g.sendURL = u
}

// Kind returns the identity namespace this gateway serves.
func (g *ThreemaGateway) Kind() model.MessengerKind {
	return model.KindThreema
}

// Send delivers one text message to a Threema identity. Failures are
// reported as *DeliveryError so callers can tell retryable from fatal.
func (g *ThreemaGateway) Send(ctx context.Context, recipient, text string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	form := url.Values{
		"from":   {g.id},
		"to":     {recipient},
		"secret": {g.secret},
		"text":   {text},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.sendURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return &DeliveryError{Permanent: false, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		g.log.Debug("message sent", "recipient", recipient)
		return nil
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusRequestEntityTooLarge:
		// Bad or unknown recipient, bad credentials, oversized payload:
		// retrying cannot succeed.
		return &DeliveryError{Permanent: true, Status: resp.StatusCode}
	default:
		return &DeliveryError{Permanent: false, Status: resp.StatusCode}
	}
}

// ComputeMAC returns the hex HMAC-SHA256 authenticating an inbound webhook
// callback, keyed with the gateway secret.
func ComputeMAC(secret, from, to, text string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(from))
	mac.Write([]byte(to))
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyMAC checks a webhook callback MAC in constant time.
func VerifyMAC(secret, from, to, text, gotMAC string) bool {
	want := ComputeMAC(secret, from, to, text)
	return hmac.Equal([]byte(want), []byte(gotMAC))
}
