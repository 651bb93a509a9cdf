package gateway

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// SMTPGateway submits messages to a relay over SMTP with PLAIN auth.
// It can send but has no visibility into replies or bounces, so
// Signals always reports ErrSignalsUnsupported.
type SMTPGateway struct {
	addr     string
	username string
	password string
	from     string
	timeout  time.Duration
}

// NewSMTPGateway creates an SMTP submission transport. addr is
// host:port of the relay (typically port 587).
func NewSMTPGateway(addr, username, password, from string, timeout time.Duration) *SMTPGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPGateway{
		addr:     addr,
		username: username,
		password: password,
		from:     from,
		timeout:  timeout,
	}
}

// Send submits one message to the relay and returns a locally
// generated message id (the relay does not echo one back).
func (g *SMTPGateway) Send(ctx context.Context, to, subject, body string) (string, error) {
	id := uuid.NewString()
	msg := g.buildMessage(id, to, subject, body)

	done := make(chan error, 1)
	go func() {
		var auth sasl.Client
		if g.username != "" {
			auth = sasl.NewPlainClient("", g.username, g.password)
		}
		done <- smtp.SendMail(g.addr, auth, g.from, []string{to}, strings.NewReader(msg))
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("smtp submission failed: %w", err)
		}
		return id, nil
	case <-time.After(g.timeout):
		return "", fmt.Errorf("smtp submission to %s timed out", g.addr)
	}
}

// Signals is not available over plain SMTP.
func (g *SMTPGateway) Signals(ctx context.Context, to string) (*Signals, error) {
	return nil, ErrSignalsUnsupported
}

func (g *SMTPGateway) buildMessage(id, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message-ID: <%s@frankie>\r\n", id)
	fmt.Fprintf(&b, "From: %s\r\n", g.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.String()
}
