// Package scheduler owns the timed-callback registrations: the
// recurring global sweep, the recurring cleanup, and any one-shot
// triggers. It decides that work fires on schedule, never what gets
// sent. Registrations are persisted so they can be enumerated, created
// idempotently and reset across restarts; the live timers are rebuilt
// from the records on start.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autofranco/frankie/internal/metrics"
	"github.com/autofranco/frankie/internal/store"
)

// Handler is the callback a trigger invokes
type Handler func(ctx context.Context)

// Well-known trigger purposes
const (
	PurposeSweep   = "sweep"
	PurposeCleanup = "cleanup"
	PurposeSignals = "signals"
	PurposeOneShot = "one-shot"
)

// staleAfter is how long past its fire time a one-shot registration
// may linger before cleanup deletes it
const staleAfter = time.Hour

// Coordinator manages named trigger registrations
type Coordinator struct {
	store    *store.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	minEvery time.Duration

	mu       sync.Mutex
	handlers map[string]Handler // by purpose
	active   map[string]*trigger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type trigger struct {
	rec  *store.TriggerRecord
	stop chan struct{}
}

// New creates a coordinator. minEvery is the platform's minimum
// recurring cadence (one hour in production; tests lower it).
func New(s *store.Store, minEvery time.Duration, m *metrics.Metrics, logger *slog.Logger) *Coordinator {
	if minEvery <= 0 {
		minEvery = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:    s,
		metrics:  m,
		logger:   logger.With("component", "scheduler"),
		minEvery: minEvery,
		handlers: make(map[string]Handler),
		active:   make(map[string]*trigger),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler binds a purpose to its callback. Must be called for
// every purpose before Start so persisted registrations can be
// rebuilt.
func (c *Coordinator) RegisterHandler(purpose string, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[purpose] = fn
}

// Start rebuilds live timers from the persisted registrations.
// Records whose purpose has no handler are dropped with a warning.
func (c *Coordinator) Start() error {
	recs, err := c.store.ListTriggers()
	if err != nil {
		return fmt.Errorf("failed to list trigger records: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range recs {
		if _, ok := c.handlers[rec.Purpose]; !ok {
			c.logger.Warn("dropping trigger with no handler", "name", rec.Name, "purpose", rec.Purpose)
			if err := c.store.DeleteTrigger(rec.Name); err != nil {
				c.logger.Error("failed to delete orphan trigger", "name", rec.Name, "error", err)
			}
			continue
		}
		c.startLocked(rec)
	}
	c.updateGauges()
	c.logger.Info("scheduler started", "triggers", len(c.active))
	return nil
}

// Stop tears down every live timer without touching the persisted
// registrations.
func (c *Coordinator) Stop() {
	c.cancel()
	c.mu.Lock()
	for _, t := range c.active {
		close(t.stop)
	}
	c.active = make(map[string]*trigger)
	c.mu.Unlock()
	c.wg.Wait()
	c.logger.Info("scheduler stopped")
}

// EnsureRecurring registers a recurring trigger unless one with the
// same name already exists (check-then-create; at most one
// registration per name ever exists). Cadences under the platform
// minimum are raised to it.
func (c *Coordinator) EnsureRecurring(name, purpose string, every time.Duration) error {
	if every < c.minEvery {
		every = c.minEvery
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.handlers[purpose]; !ok {
		return fmt.Errorf("no handler registered for purpose %q", purpose)
	}

	existing, err := c.store.GetTrigger(name)
	if err != nil {
		return fmt.Errorf("failed to check trigger %q: %w", name, err)
	}
	if existing != nil {
		if _, live := c.active[name]; !live {
			c.startLocked(existing)
		}
		return nil // already registered
	}

	rec := &store.TriggerRecord{
		ID:      uuid.NewString(),
		Name:    name,
		Purpose: purpose,
		Every:   every,
		Created: time.Now(),
	}
	if err := c.store.SaveTrigger(rec); err != nil {
		return fmt.Errorf("failed to save trigger %q: %w", name, err)
	}

	c.startLocked(rec)
	c.updateGauges()
	c.logger.Info("trigger registered", "name", name, "purpose", purpose, "every", every)
	return nil
}

// EnsureOneShot registers a trigger that fires once at the given time,
// unless a registration with the same name exists. Times already in
// the past fire on the next tick.
func (c *Coordinator) EnsureOneShot(name, purpose string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.handlers[purpose]; !ok {
		return fmt.Errorf("no handler registered for purpose %q", purpose)
	}

	existing, err := c.store.GetTrigger(name)
	if err != nil {
		return fmt.Errorf("failed to check trigger %q: %w", name, err)
	}
	if existing != nil {
		return nil
	}

	rec := &store.TriggerRecord{
		ID:      uuid.NewString(),
		Name:    name,
		Purpose: purpose,
		FireAt:  at,
		Created: time.Now(),
	}
	if err := c.store.SaveTrigger(rec); err != nil {
		return fmt.Errorf("failed to save trigger %q: %w", name, err)
	}

	c.startLocked(rec)
	c.updateGauges()
	c.logger.Info("one-shot registered", "name", name, "purpose", purpose, "at", at)
	return nil
}

// Remove deletes one registration by name, stopping its timer.
func (c *Coordinator) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(name)
}

// RemoveAll deletes every registration owned by this system and
// returns how many were removed. Used for a full reset.
func (c *Coordinator) RemoveAll() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, t := range c.active {
		close(t.stop)
		delete(c.active, name)
	}
	deleted, err := c.store.DeleteAllTriggers()
	if err != nil {
		return 0, fmt.Errorf("failed to delete trigger records: %w", err)
	}
	c.updateGauges()
	c.logger.Info("all triggers removed", "deleted", deleted)
	return deleted, nil
}

// Stats returns registration counts by purpose.
func (c *Coordinator) Stats() (map[string]int, error) {
	recs, err := c.store.ListTriggers()
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger records: %w", err)
	}
	stats := make(map[string]int)
	for _, rec := range recs {
		stats[rec.Purpose]++
	}
	return stats, nil
}

// List returns the persisted registrations.
func (c *Coordinator) List() ([]*store.TriggerRecord, error) {
	return c.store.ListTriggers()
}

// Cleanup deletes stale one-shot registrations: anything that was due
// more than an hour ago. Recurring registrations are never pruned.
// Returns how many records were removed.
func (c *Coordinator) Cleanup(now time.Time) (int, error) {
	recs, err := c.store.ListTriggers()
	if err != nil {
		return 0, fmt.Errorf("failed to list trigger records: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, rec := range recs {
		if rec.Every > 0 || rec.FireAt.IsZero() {
			continue
		}
		if now.Sub(rec.FireAt) <= staleAfter {
			continue
		}
		if err := c.removeLocked(rec.Name); err != nil {
			c.logger.Error("failed to prune trigger", "name", rec.Name, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		c.logger.Info("pruned stale triggers", "removed", removed)
	}
	return removed, nil
}

func (c *Coordinator) removeLocked(name string) error {
	if t, ok := c.active[name]; ok {
		close(t.stop)
		delete(c.active, name)
	}
	if err := c.store.DeleteTrigger(name); err != nil {
		return fmt.Errorf("failed to delete trigger %q: %w", name, err)
	}
	c.updateGauges()
	return nil
}

// startLocked launches the timer goroutine for a registration.
// Callers hold c.mu.
func (c *Coordinator) startLocked(rec *store.TriggerRecord) {
	fn := c.handlers[rec.Purpose]
	t := &trigger{rec: rec, stop: make(chan struct{})}
	c.active[rec.Name] = t

	c.wg.Add(1)
	if rec.Every > 0 {
		go c.runRecurring(t, fn)
	} else {
		go c.runOneShot(t, fn)
	}
}

func (c *Coordinator) runRecurring(t *trigger, fn Handler) {
	defer c.wg.Done()

	ticker := time.NewTicker(t.rec.Every)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			fn(c.ctx)
		}
	}
}

func (c *Coordinator) runOneShot(t *trigger, fn Handler) {
	defer c.wg.Done()

	delay := time.Until(t.rec.FireAt)
	if delay < 0 {
		delay = 0
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return
	case <-t.stop:
		return
	case <-timer.C:
		fn(c.ctx)
	}

	// Fired; the record stays behind for the cleanup pass, only the
	// live timer goes away.
	c.mu.Lock()
	if cur, ok := c.active[t.rec.Name]; ok && cur == t {
		delete(c.active, t.rec.Name)
	}
	c.mu.Unlock()
}

// updateGauges refreshes the per-purpose registration gauge. Callers
// hold c.mu.
func (c *Coordinator) updateGauges() {
	counts := make(map[string]int)
	for _, t := range c.active {
		counts[t.rec.Purpose]++
	}
	for _, purpose := range []string{PurposeSweep, PurposeCleanup, PurposeSignals, PurposeOneShot} {
		c.metrics.TriggersRegistered.WithLabelValues(purpose).Set(float64(counts[purpose]))
	}
}
