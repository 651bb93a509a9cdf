// Package dispatch routes the closed set of inbound commands (edit
// notifications, timer firings, manual send requests) to the engine
// and executor through one entry point, instead of scattering host
// callbacks across the codebase.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Command is one inbound event for the core
type Command interface{ isCommand() }

// RowEdited reports a user edit of one cell. The core only reacts to
// the Status column; every other column is ignored here.
type RowEdited struct {
	Row    uint64
	Column string
	Value  string
}

// SweepDue fires when the recurring global sweep is due
type SweepDue struct{}

// SendNowRequested is the manual per-row send action
type SendNowRequested struct {
	Row uint64
}

func (RowEdited) isCommand()        {}
func (SweepDue) isCommand()         {}
func (SendNowRequested) isCommand() {}

// Engine is the campaign state machine surface the dispatcher needs
type Engine interface {
	ProcessBatch(ctx context.Context) (int, error)
	Backlog() (int, error)
	HandleStatusEdit(row uint64, value string) error
}

// Continuation schedules a follow-up sweep for rows the batch quota
// deferred. remaining is how many eligible rows are still waiting.
type Continuation func(ctx context.Context, remaining int)

// Executor is the send surface the dispatcher needs
type Executor interface {
	RunSweep(ctx context.Context) (int, error)
	SendNow(ctx context.Context, row uint64) error
}

// Dispatcher routes commands to their handlers
type Dispatcher struct {
	engine       Engine
	executor     Executor
	logger       *slog.Logger
	continuation Continuation
}

// New creates a dispatcher.
func New(engine Engine, executor Executor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		executor: executor,
		logger:   logger.With("component", "dispatch"),
	}
}

// SetContinuation installs the follow-up hook a sweep invokes when
// the batch quota left eligible rows behind. Without one, deferred
// rows simply wait for the next recurring sweep.
func (d *Dispatcher) SetContinuation(fn Continuation) {
	d.continuation = fn
}

// Dispatch routes one command. A sweep runs the batch intake first and
// then the send pass, so newly entered rows get generated and already
// running rows get their due emails in the same invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case SweepDue:
		processed, err := d.engine.ProcessBatch(ctx)
		if err != nil {
			d.logger.Error("batch intake failed", "error", err)
		}
		sent, serr := d.executor.RunSweep(ctx)
		if serr != nil {
			return fmt.Errorf("sweep failed: %w", serr)
		}
		d.logger.Info("sweep finished", "processed", processed, "sent", sent)

		if d.continuation != nil {
			remaining, berr := d.engine.Backlog()
			if berr != nil {
				d.logger.Error("backlog check failed", "error", berr)
			} else if remaining > 0 {
				d.continuation(ctx, remaining)
			}
		}
		return err

	case SendNowRequested:
		return d.executor.SendNow(ctx, c.Row)

	case RowEdited:
		if !strings.EqualFold(c.Column, "status") {
			return nil
		}
		return d.engine.HandleStatusEdit(c.Row, c.Value)

	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}
