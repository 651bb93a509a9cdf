// Package campaign is the per-lead state machine: it takes raw rows
// through Processing (content generation) into Running (three
// scheduled follow-ups), and reacts to manual status edits.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/autofranco/frankie/internal/batch"
	"github.com/autofranco/frankie/internal/content"
	"github.com/autofranco/frankie/internal/lead"
	"github.com/autofranco/frankie/internal/llm"
	"github.com/autofranco/frankie/internal/metrics"
	"github.com/autofranco/frankie/internal/schedule"
	"github.com/autofranco/frankie/internal/store"
)

// Config holds the engine's tunables
type Config struct {
	BatchSize int
	Offsets   []time.Duration
	Markers   content.Markers
}

// Engine drives lead lifecycle transitions
type Engine struct {
	store   *store.Store
	gen     llm.Generator
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	// now is swapped in tests
	now func() time.Time
}

// New creates an engine. Zero-value config fields fall back to the
// stock batch size, offsets and markers.
func New(s *store.Store, gen llm.Generator, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if len(cfg.Offsets) == 0 {
		cfg.Offsets = schedule.DefaultOffsets
	}
	if cfg.Markers == (content.Markers{}) {
		cfg.Markers = content.DefaultMarkers()
	}

	return &Engine{
		store:   s,
		gen:     gen,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "campaign"),
		now:     time.Now,
	}
}

// ProcessBatch selects the eligible rows and runs the generation
// pipeline over at most one batch of them: the batch size is the
// per-invocation quota against the generation service's rate limits,
// so rows beyond it are left untouched for a later pass. One row's
// failure never aborts the rest; failed rows land in Error with the
// cause in Info. Returns how many rows reached Running.
func (e *Engine) ProcessBatch(ctx context.Context) (int, error) {
	eligible, err := e.selectEligible()
	if err != nil {
		return 0, fmt.Errorf("failed to select leads: %w", err)
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	chunk := batch.Chunk(eligible, e.cfg.BatchSize)[0]
	if rest := len(eligible) - len(chunk); rest > 0 {
		e.logger.Info("batch quota reached", "taking", len(chunk), "deferring", rest)
	}

	processed := 0
	for _, l := range chunk {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		if err := e.processLead(ctx, l); err != nil {
			e.metrics.GenerationFailedTotal.Inc()
			e.logger.Warn("lead generation failed", "row", l.Row, "error", err)
			if uerr := e.store.UpdateStatus(l.Row, lead.StatusError, "generation failed: "+err.Error()); uerr != nil {
				e.logger.Error("failed to record generation error", "row", l.Row, "error", uerr)
			}
			continue
		}
		processed++
	}
	return processed, nil
}

// Backlog reports how many eligible rows are still waiting for a
// generation pass. Non-zero after ProcessBatch means the batch quota
// deferred rows and a follow-up pass is worth scheduling.
func (e *Engine) Backlog() (int, error) {
	eligible, err := e.selectEligible()
	if err != nil {
		return 0, fmt.Errorf("failed to select leads: %w", err)
	}
	return len(eligible), nil
}

// selectEligible returns rows the validator clears for processing, in
// row order. Both untouched rows and rows stuck in Processing from an
// interrupted run are picked up.
func (e *Engine) selectEligible() ([]*lead.Lead, error) {
	var eligible []*lead.Lead
	for _, status := range []lead.Status{lead.StatusEmpty, lead.StatusProcessing} {
		rows, err := e.store.ListByStatus(status)
		if err != nil {
			return nil, err
		}
		for _, l := range rows {
			if lead.ShouldProcess(l.Status, l) {
				eligible = append(eligible, l)
			}
		}
	}
	return eligible, nil
}

// processLead runs the full generation pipeline for one row:
// Processing -> profile -> angles -> three follow-up bodies -> due
// times -> Running.
func (e *Engine) processLead(ctx context.Context, l *lead.Lead) error {
	started := e.now()

	if err := e.store.UpdateStatus(l.Row, lead.StatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark processing: %w", err)
	}

	data := content.PromptData{
		FirstName:  l.FirstName,
		Company:    l.Company,
		Position:   l.Position,
		Department: l.Department,
	}

	profile, err := e.gen.Generate(ctx, content.ProfilePrompt(data))
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	data.Profile = strings.TrimSpace(profile)

	anglesText, err := e.gen.Generate(ctx, content.AnglesPrompt(data))
	if err != nil {
		return fmt.Errorf("angles: %w", err)
	}
	angleList, ok := content.ParseAngles(anglesText, lead.SlotCount)
	if !ok {
		return fmt.Errorf("angles: unusable reply")
	}

	var angles [lead.SlotCount]string
	copy(angles[:], angleList)

	generated := e.now()
	dueTimes := schedule.Times(generated, e.cfg.Offsets)

	var slots [lead.SlotCount]lead.Slot
	for i := 0; i < lead.SlotCount; i++ {
		data.Angle = angles[i]
		text, err := e.gen.Generate(ctx, content.FollowUpPrompt(data, e.cfg.Markers, i+1))
		if err != nil {
			return fmt.Errorf("follow-up %d: %w", i+1, err)
		}

		parsed := content.Parse(text, e.cfg.Markers)
		if parsed.Body == "" {
			return fmt.Errorf("follow-up %d: empty body", i+1)
		}
		// A missing subject is recoverable; fall back to the angle
		if parsed.Subject == "" {
			parsed.Subject = angles[i]
		}

		slots[i] = lead.Slot{
			DueAt:   dueTimes[i],
			Subject: parsed.Subject,
			Body:    parsed.Body,
		}
	}

	if _, err := e.store.SetGenerated(l.Row, data.Profile, angles, slots); err != nil {
		return fmt.Errorf("failed to persist generated content: %w", err)
	}

	e.metrics.LeadsProcessedTotal.Inc()
	e.metrics.GenerationSeconds.Observe(e.now().Sub(started).Seconds())
	e.logger.Info("lead running",
		"row", l.Row,
		"email", l.Email,
		"first_due", schedule.FormatDue(dueTimes[0]),
	)
	return nil
}

// HandleStatusEdit reacts to a user edit of the Status column. A
// Running row forced to Done before all slots went out is recorded as
// a manual stop, distinct from automatic completion; any other edit is
// applied verbatim (clearing Error back to empty re-arms the row for
// the next batch sweep). Edits to other columns are ignored by the
// core.
func (e *Engine) HandleStatusEdit(row uint64, value string) error {
	next := lead.Status(strings.TrimSpace(value))
	switch next {
	case lead.StatusEmpty, lead.StatusProcessing, lead.StatusRunning, lead.StatusDone, lead.StatusError:
	default:
		return fmt.Errorf("unknown status %q", value)
	}

	_, err := e.store.Update(row, func(l *lead.Lead) error {
		if next == lead.StatusDone && l.Status == lead.StatusRunning && !l.AllSent() {
			l.Info = lead.InfoStoppedBy
		}
		l.Status = next
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply status edit: %w", err)
	}

	e.logger.Info("status edited", "row", row, "status", string(next))
	return nil
}
