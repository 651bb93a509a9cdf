package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/autofranco/frankie/internal/gateway"
	"github.com/autofranco/frankie/internal/lead"
)

// PollSignals fetches gateway delivery signals for every row that has
// sent at least one email and records the bounce state on the row.
// Bounce status is advisory: it never changes a row's lifecycle
// status. Transports without signal support make this a no-op.
func (e *Executor) PollSignals(ctx context.Context) error {
	var rows []*lead.Lead
	for _, status := range []lead.Status{lead.StatusRunning, lead.StatusDone} {
		batch, err := e.store.ListByStatus(status)
		if err != nil {
			return fmt.Errorf("failed to list leads: %w", err)
		}
		rows = append(rows, batch...)
	}

	for _, l := range rows {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if l.NextUnsent() == 0 {
			continue // nothing sent yet
		}

		sig, err := e.gateway.Signals(ctx, l.Email)
		if err != nil {
			if errors.Is(err, gateway.ErrSignalsUnsupported) {
				e.logger.Debug("gateway transport has no signal support, skipping poll")
				return nil
			}
			e.logger.Warn("signal poll failed", "row", l.Row, "error", err)
			continue
		}

		status := bounceStatus(sig)
		if status != l.BounceStatus {
			if err := e.store.SetBounceStatus(l.Row, status); err != nil {
				e.logger.Error("failed to record bounce status", "row", l.Row, "error", err)
			}
		}
	}
	return nil
}

func bounceStatus(sig *gateway.Signals) string {
	switch {
	case sig.Bounced && sig.BounceReason != "":
		return "bounced: " + sig.BounceReason
	case sig.Bounced:
		return "bounced"
	case sig.Replied:
		return "replied"
	case sig.Opened:
		return "opened"
	default:
		return ""
	}
}
