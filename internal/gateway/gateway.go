// Package gateway is the client side of the outbound email gateway:
// it sends one message at a time and polls read-only delivery signals
// (reply/open/bounce). Two transports exist, the gateway's HTTP API
// and plain SMTP submission; SMTP cannot report signals.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Gateway sends messages and exposes delivery signals
type Gateway interface {
	// Send dispatches one message and returns the gateway message id
	Send(ctx context.Context, to, subject, body string) (string, error)

	// Signals returns the last known delivery signals for a recipient
	Signals(ctx context.Context, to string) (*Signals, error)
}

// ErrSignalsUnsupported is returned by transports that can send but
// not observe delivery outcomes.
var ErrSignalsUnsupported = errors.New("gateway transport does not support signals")

// Signals is the read-only delivery state the gateway reports for a
// recipient. Advisory only; nothing in the campaign state machine
// branches on it.
type Signals struct {
	Replied      bool       `json:"replied"`
	Opened       bool       `json:"opened"`
	Bounced      bool       `json:"bounced"`
	BounceReason string     `json:"bounce_reason,omitempty"`
	LastEventAt  *time.Time `json:"last_event_at,omitempty"`
}
