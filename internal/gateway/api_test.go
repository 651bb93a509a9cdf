package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAPIGatewaySend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/send" {
			t.Errorf("path = %q, want /api/v1/send", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gw-key" {
			t.Errorf("Authorization = %q", got)
		}

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.From != "me@acme.com" || req.To != "jane@example.com" {
			t.Errorf("request = %+v", req)
		}

		json.NewEncoder(w).Encode(sendResponse{ID: "msg-1"})
	}))
	defer srv.Close()

	g := NewAPIGateway(srv.URL, "gw-key", "me@acme.com", time.Second)
	id, err := g.Send(context.Background(), "jane@example.com", "hi", "body")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "msg-1" {
		t.Errorf("Send() id = %q, want %q", id, "msg-1")
	}
}

func TestAPIGatewaySendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"relay down"}`))
	}))
	defer srv.Close()

	g := NewAPIGateway(srv.URL, "k", "me@acme.com", time.Second)
	_, err := g.Send(context.Background(), "jane@example.com", "hi", "body")
	if err == nil {
		t.Fatal("Send() error = nil, want gateway error")
	}
}

func TestAPIGatewaySignals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("to"); got != "jane@example.com" {
			t.Errorf("to = %q", got)
		}
		json.NewEncoder(w).Encode(Signals{Bounced: true, BounceReason: "mailbox full"})
	}))
	defer srv.Close()

	g := NewAPIGateway(srv.URL, "k", "me@acme.com", time.Second)
	sig, err := g.Signals(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("Signals() error = %v", err)
	}
	if !sig.Bounced || sig.BounceReason != "mailbox full" {
		t.Errorf("Signals() = %+v", sig)
	}
}

func TestSMTPGatewaySignalsUnsupported(t *testing.T) {
	g := NewSMTPGateway("localhost:587", "u", "p", "me@acme.com", time.Second)
	_, err := g.Signals(context.Background(), "jane@example.com")
	if !errors.Is(err, ErrSignalsUnsupported) {
		t.Errorf("Signals() error = %v, want ErrSignalsUnsupported", err)
	}
}
