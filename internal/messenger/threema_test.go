package messenger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

type mockTransport struct {
	statusCode int
	err        error
	lastReq    *http.Request
	lastBody   string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		m.lastBody = string(b)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}, nil
}

func newTestGateway(transport HTTPClient) *ThreemaGateway {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewThreemaGateway(transport, "*XCBOT01", "s3cret", 5*time.Second, log)
}

func TestSendStatusMapping(t *testing.T) {
	tests := []struct {
		name          string
		transport     *mockTransport
		wantErr       bool
		wantPermanent bool
	}{
		{name: "ok", transport: &mockTransport{statusCode: 200}},
		{name: "bad recipient", transport: &mockTransport{statusCode: 400}, wantErr: true, wantPermanent: true},
		{name: "bad credentials", transport: &mockTransport{statusCode: 401}, wantErr: true, wantPermanent: true},
		{name: "unknown identity", transport: &mockTransport{statusCode: 404}, wantErr: true, wantPermanent: true},
		{name: "payload too large", transport: &mockTransport{statusCode: 413}, wantErr: true, wantPermanent: true},
		{name: "server error", transport: &mockTransport{statusCode: 500}, wantErr: true, wantPermanent: false},
		{name: "rate limited", transport: &mockTransport{statusCode: 429}, wantErr: true, wantPermanent: false},
		{name: "network error", transport: &mockTransport{err: io.ErrUnexpectedEOF}, wantErr: true, wantPermanent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(tt.transport)
			err := g.Send(context.Background(), "ECHOECHO", "hello")
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var derr *DeliveryError
			if !errors.As(err, &derr) {
				t.Fatalf("expected *DeliveryError, got %T: %v", err, err)
			}
			if derr.Permanent != tt.wantPermanent {
				t.Errorf("Permanent = %v, want %v", derr.Permanent, tt.wantPermanent)
			}
		})
	}
}

func TestSendFormEncoding(t *testing.T) {
	transport := &mockTransport{statusCode: 200}
	g := newTestGateway(transport)

	if err := g.Send(context.Background(), "ECHOECHO", "new flight!"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := transport.lastReq.Method; got != http.MethodPost {
		t.Errorf("method = %s, want POST", got)
	}
	if got := transport.lastReq.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", got)
	}
	for _, want := range []string{"from=%2AXCBOT01", "to=ECHOECHO", "secret=s3cret", "text=new+flight%21"} {
		if !bytes.Contains([]byte(transport.lastBody), []byte(want)) {
			t.Errorf("form body %q missing %q", transport.lastBody, want)
		}
	}
}

func TestVerifyMAC(t *testing.T) {
	mac := ComputeMAC("s3cret", "ECHOECHO", "*XCBOT01", "follow chrigel")

	if !VerifyMAC("s3cret", "ECHOECHO", "*XCBOT01", "follow chrigel", mac) {
		t.Error("valid MAC rejected")
	}
	if VerifyMAC("s3cret", "ECHOECHO", "*XCBOT01", "follow petra", mac) {
		t.Error("MAC accepted for altered text")
	}
	if VerifyMAC("other-secret", "ECHOECHO", "*XCBOT01", "follow chrigel", mac) {
		t.Error("MAC accepted with wrong secret")
	}
	if VerifyMAC("s3cret", "ECHOECHO", "*XCBOT01", "follow chrigel", "") {
		t.Error("empty MAC accepted")
	}
}
