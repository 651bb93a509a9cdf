// Package executor sends due follow-up emails. The automatic sweep
// and the manual send-now action converge on one idempotent core: a
// slot is eligible iff its sent marker is unset, the marker is checked
// (via an atomic store claim) immediately before the gateway call and
// set immediately after a confirmed send.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/autofranco/frankie/internal/gateway"
	"github.com/autofranco/frankie/internal/lead"
	"github.com/autofranco/frankie/internal/metrics"
	"github.com/autofranco/frankie/internal/store"
)

var (
	// ErrNotRunning rejects manual sends on rows outside Running
	ErrNotRunning = errors.New("lead is not running")
	// ErrNothingPending means every slot is already sent
	ErrNothingPending = errors.New("no pending email to send")
	// ErrInvalidLead rejects manual sends on rows that fail validation
	ErrInvalidLead = errors.New("lead fails validation")
)

// Executor resolves the next due email per row and sends it once
type Executor struct {
	store    *store.Store
	gateway  gateway.Gateway
	metrics  *metrics.Metrics
	logger   *slog.Logger
	claimTTL time.Duration

	now func() time.Time
}

// New creates an executor. claimTTL bounds how long a crashed
// invocation can hold a slot claim; zero means ten minutes.
func New(s *store.Store, gw gateway.Gateway, claimTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *Executor {
	if claimTTL <= 0 {
		claimTTL = 10 * time.Minute
	}
	return &Executor{
		store:    s,
		gateway:  gw,
		metrics:  m,
		logger:   logger.With("component", "executor"),
		claimTTL: claimTTL,
		now:      time.Now,
	}
}

// RunSweep scans every Running row for its earliest due-and-unsent
// slot and sends it. A failed send leaves the marker unset and the
// row Running so the next sweep retries; one row's failure never
// stops the sweep. Returns how many emails went out.
func (e *Executor) RunSweep(ctx context.Context) (int, error) {
	started := e.now()
	defer func() {
		e.metrics.SweepSeconds.Observe(e.now().Sub(started).Seconds())
	}()

	rows, err := e.store.ListByStatus(lead.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running leads: %w", err)
	}

	sent := 0
	for _, l := range rows {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		default:
		}

		// A row completed elsewhere but not yet advanced
		if l.AllSent() {
			e.advanceIfComplete(l.Row)
			continue
		}

		idx := l.NextDue(e.now())
		if idx < 0 {
			continue
		}

		delivered, err := e.sendSlot(ctx, l.Row, idx, "sweep")
		if err != nil {
			e.logger.Warn("sweep send failed", "row", l.Row, "slot", idx, "error", err)
			continue
		}
		if delivered {
			sent++
		}
	}
	return sent, nil
}

// SendNow sends the earliest unsent slot of one user-selected row,
// ignoring the due timestamp. The row must be Running and valid.
func (e *Executor) SendNow(ctx context.Context, row uint64) error {
	l, err := e.store.Get(row)
	if err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("row %d: %w", row, store.ErrNotFound)
	}
	if l.Status != lead.StatusRunning {
		return fmt.Errorf("row %d in status %q: %w", row, l.Status, ErrNotRunning)
	}
	if res := lead.Validate(l); !res.Valid {
		return fmt.Errorf("row %d (%s): %w", row, strings.Join(res.Errors, "; "), ErrInvalidLead)
	}

	idx := l.NextUnsent()
	if idx < 0 {
		return fmt.Errorf("row %d: %w", row, ErrNothingPending)
	}

	_, err = e.sendSlot(ctx, row, idx, "manual")
	return err
}

// sendSlot is the idempotent core shared by both entry points. The
// claim is the check of the sent marker; losing the claim means the
// slot is sent or another invocation is sending it, and either way
// this path must no-op. The bool reports whether this invocation
// delivered the email, so callers count only their own sends.
func (e *Executor) sendSlot(ctx context.Context, row uint64, idx int, trigger string) (bool, error) {
	l, claimed, err := e.store.ClaimSlot(row, idx, e.now(), e.claimTTL)
	if err != nil {
		return false, fmt.Errorf("failed to claim slot: %w", err)
	}
	if !claimed {
		e.logger.Debug("slot not claimable", "row", row, "slot", idx, "trigger", trigger)
		return false, nil
	}

	slot := l.Slots[idx]
	msgID, err := e.gateway.Send(ctx, l.Email, slot.Subject, slot.Body)
	if err != nil {
		e.metrics.SendFailedTotal.Inc()
		info := fmt.Sprintf("email %d send failed: %v", idx+1, err)
		if rerr := e.store.ReleaseSlot(row, idx, info); rerr != nil {
			e.logger.Error("failed to release slot after send error", "row", row, "slot", idx, "error", rerr)
		}
		return false, err
	}

	updated, err := e.store.MarkSlotSent(row, idx, e.now())
	if err != nil {
		// The email went out but the marker write failed; surface
		// loudly, the next claim within the TTL still blocks a resend.
		e.logger.Error("failed to mark slot sent", "row", row, "slot", idx, "error", err)
		return true, fmt.Errorf("failed to mark slot sent: %w", err)
	}

	e.metrics.EmailsSentTotal.WithLabelValues(trigger).Inc()
	e.logger.Info("email sent",
		"row", row,
		"slot", idx,
		"to", l.Email,
		"trigger", trigger,
		"message_id", msgID,
	)

	if updated.AllSent() {
		e.advanceIfComplete(row)
	}
	return true, nil
}

// advanceIfComplete moves a fully-sent Running row to Done with the
// completion summary. Rows a user already forced to Done keep their
// manual-stop annotation.
func (e *Executor) advanceIfComplete(row uint64) {
	advanced := false
	_, err := e.store.Update(row, func(l *lead.Lead) error {
		if l.Status == lead.StatusRunning && l.AllSent() {
			l.Status = lead.StatusDone
			l.Info = lead.InfoAllSent
			advanced = true
		}
		return nil
	})
	if err != nil {
		e.logger.Error("failed to advance lead to done", "row", row, "error", err)
		return
	}
	if advanced {
		e.logger.Info("campaign complete", "row", row)
	}
}
