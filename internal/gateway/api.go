package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIGateway talks to the gateway's HTTP API
type APIGateway struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

// NewAPIGateway creates an HTTP transport. from is the envelope/header
// sender used for every message.
func NewAPIGateway(baseURL, apiKey, from string, timeout time.Duration) *APIGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Send dispatches one message through the gateway API.
func (g *APIGateway) Send(ctx context.Context, to, subject, body string) (string, error) {
	var resp sendResponse
	err := g.request(ctx, http.MethodPost, "/api/v1/send", &sendRequest{
		From:    g.from,
		To:      to,
		Subject: subject,
		Body:    body,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Signals polls the gateway's delivery signals for a recipient.
func (g *APIGateway) Signals(ctx context.Context, to string) (*Signals, error) {
	var resp Signals
	path := "/api/v1/signals?to=" + url.QueryEscape(to)
	if err := g.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *APIGateway) request(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("gateway error: HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("gateway error: %s", errResp.Error)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
