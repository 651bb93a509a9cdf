package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/autofranco/frankie/internal/gateway"
	"github.com/autofranco/frankie/internal/lead"
	"github.com/autofranco/frankie/internal/metrics"
	"github.com/autofranco/frankie/internal/store"
)

// fakeGateway records sends and can be told to fail
type fakeGateway struct {
	mu      sync.Mutex
	sent    []string // "email|subject"
	failAll bool
	signals map[string]*gateway.Signals
}

func (f *fakeGateway) Send(ctx context.Context, to, subject, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errors.New("relay unavailable")
	}
	f.sent = append(f.sent, to+"|"+subject)
	return "msg-1", nil
}

func (f *fakeGateway) Signals(ctx context.Context, to string) (*gateway.Signals, error) {
	if f.signals == nil {
		return nil, gateway.ErrSignalsUnsupported
	}
	if sig, ok := f.signals[to]; ok {
		return sig, nil
	}
	return &gateway.Signals{}, nil
}

func (f *fakeGateway) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "leads.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// runningLead creates a Running lead with three slots due at gen,
// gen+1h, gen+2h.
func runningLead(t *testing.T, s *store.Store, gen time.Time) *lead.Lead {
	t.Helper()
	l := &lead.Lead{
		Email:     "jane@example.com",
		FirstName: "Jane",
		Company:   "https://example.com",
		Position:  "VP Sales",
	}
	if err := s.Create(l); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var slots [lead.SlotCount]lead.Slot
	for i := range slots {
		slots[i] = lead.Slot{
			DueAt:   gen.Add(time.Duration(i) * time.Hour),
			Subject: "subject",
			Body:    "body",
		}
	}
	got, err := s.SetGenerated(l.Row, "profile", [lead.SlotCount]string{"a", "b", "c"}, slots)
	if err != nil {
		t.Fatalf("SetGenerated() error = %v", err)
	}
	return got
}

func newExecutor(s *store.Store, gw gateway.Gateway, now time.Time) *Executor {
	e := New(s, gw, 10*time.Minute, metrics.New(), testLogger())
	e.now = func() time.Time { return now }
	return e
}

func TestRunSweepSendsOnlyDueSlots(t *testing.T) {
	s := newTestStore(t)
	gw := &fakeGateway{}
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	l := runningLead(t, s, gen)

	// At generation time only the first slot is due
	e := newExecutor(s, gw, gen)
	sent, err := e.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if sent != 1 {
		t.Fatalf("RunSweep() sent = %d, want 1", sent)
	}

	got, _ := s.Get(l.Row)
	if !got.Slots[0].Sent || got.Slots[1].Sent {
		t.Errorf("slots sent = [%v %v %v], want only first",
			got.Slots[0].Sent, got.Slots[1].Sent, got.Slots[2].Sent)
	}
	if got.Status != lead.StatusRunning {
		t.Errorf("Status = %q, want Running", got.Status)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	gw := &fakeGateway{}
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	runningLead(t, s, gen)

	e := newExecutor(s, gw, gen)
	if _, err := e.RunSweep(context.Background()); err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	// Same instant again: first slot already sent, second not due
	sent, err := e.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if sent != 0 {
		t.Errorf("second RunSweep() sent = %d, want 0", sent)
	}
	if gw.sendCount() != 1 {
		t.Errorf("gateway calls = %d, want exactly 1", gw.sendCount())
	}
}

func TestThreeSweepsCompleteTheCampaign(t *testing.T) {
	s := newTestStore(t)
	gw := &fakeGateway{}
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	l := runningLead(t, s, gen)

	for i := 0; i < 3; i++ {
		e := newExecutor(s, gw, gen.Add(time.Duration(i)*time.Hour))
		if _, err := e.RunSweep(context.Background()); err != nil {
			t.Fatalf("sweep %d error = %v", i, err)
		}
	}

	got, _ := s.Get(l.Row)
	if got.Status != lead.StatusDone {
		t.Fatalf("Status = %q, want Done", got.Status)
	}
	if got.Info != lead.InfoAllSent {
		t.Errorf("Info = %q, want %q", got.Info, lead.InfoAllSent)
	}
	if !got.AllSent() {
		t.Error("AllSent() = false, want true")
	}
	if gw.sendCount() != 3 {
		t.Errorf("gateway calls = %d, want 3", gw.sendCount())
	}
}

func TestSendFailureLeavesRowRunningForRetry(t *testing.T) {
	s := newTestStore(t)
	gw := &fakeGateway{failAll: true}
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	l := runningLead(t, s, gen)

	e := newExecutor(s, gw, gen)
	sent, err := e.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if sent != 0 {
		t.Errorf("RunSweep() sent = %d, want 0", sent)
	}

	got, _ := s.Get(l.Row)
	if got.Status != lead.StatusRunning {
		t.Errorf("Status = %q, want Running", got.Status)
	}
	if got.Slots[0].Sent {
		t.Error("failed send set the sent marker")
	}
	if got.Info == "" {
		t.Error("failure not recorded in Info")
	}

	// Gateway recovers; the same slot is retried on the next sweep
	gw.failAll = false
	if _, err := e.RunSweep(context.Background()); err != nil {
		t.Fatalf("RunSweep() retry error = %v", err)
	}
	got, _ = s.Get(l.Row)
	if !got.Slots[0].Sent {
		t.Error("retry did not send the slot")
	}
}

func TestSendNowIgnoresDueTime(t *testing.T) {
	s := newTestStore(t)
	gw := &fakeGateway{}
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	l := runningLead(t, s, gen)

	e := newExecutor(s, gw, gen)
	// Send all three immediately, hours ahead of schedule
	for i := 0; i < 3; i++ {
		if err := e.SendNow(context.Background(), l.Row); err != nil {
			t.Fatalf("SendNow() #%d error = %v", i+1, err)
		}
	}

	got, _ := s.Get(l.Row)
	if got.Status != lead.StatusDone {
		t.Errorf("Status = %q, want Done", got.Status)
	}

	// Nothing left
	err := e.SendNow(context.Background(), l.Row)
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("SendNow() on done row error = %v, want ErrNotRunning", err)
	}
}

func TestSendNowRejectsNonRunning(t *testing.T) {
	s := newTestStore(t)
	l := &lead.Lead{Email: "jane@example.com", FirstName: "Jane", Company: "c", Position: "p"}
	if err := s.Create(l); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	e := newExecutor(s, &fakeGateway{}, time.Now())
	err := e.SendNow(context.Background(), l.Row)
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("SendNow() on empty row error = %v, want ErrNotRunning", err)
	}

	err = e.SendNow(context.Background(), 999)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SendNow() on missing row error = %v, want ErrNotFound", err)
	}
}

func TestManualAndSweepRaceSendOnce(t *testing.T) {
	s := newTestStore(t)
	gw := &fakeGateway{}
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	l := runningLead(t, s, gen)

	e := newExecutor(s, gw, gen)

	// Manual send claims and sends slot 0; the sweep landing right
	// after must observe the marker and no-op.
	if err := e.SendNow(context.Background(), l.Row); err != nil {
		t.Fatalf("SendNow() error = %v", err)
	}
	sent, err := e.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if sent != 0 {
		t.Errorf("RunSweep() after manual send sent = %d, want 0", sent)
	}
	if gw.sendCount() != 1 {
		t.Errorf("gateway calls = %d, want exactly 1", gw.sendCount())
	}
}

func TestSweepCountSkipsSlotsClaimedElsewhere(t *testing.T) {
	s := newTestStore(t)
	gw := &fakeGateway{}
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	l := runningLead(t, s, gen)

	// Another invocation holds the claim on the due slot
	if _, claimed, err := s.ClaimSlot(l.Row, 0, gen, 10*time.Minute); err != nil || !claimed {
		t.Fatalf("ClaimSlot() = %v, %v, want live claim", claimed, err)
	}

	e := newExecutor(s, gw, gen)
	sent, err := e.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if sent != 0 {
		t.Errorf("RunSweep() sent = %d for a slot it never delivered, want 0", sent)
	}
	if gw.sendCount() != 0 {
		t.Errorf("gateway calls = %d, want 0", gw.sendCount())
	}

	// Claim released: the next sweep delivers and counts it
	if err := s.ReleaseSlot(l.Row, 0, ""); err != nil {
		t.Fatalf("ReleaseSlot() error = %v", err)
	}
	sent, err = e.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if sent != 1 || gw.sendCount() != 1 {
		t.Errorf("sent = %d, gateway calls = %d, want 1 and 1", sent, gw.sendCount())
	}
}

func TestStoppedRowIsNotSwept(t *testing.T) {
	s := newTestStore(t)
	gw := &fakeGateway{}
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	l := runningLead(t, s, gen)

	// User forces the row to Done before anything was sent
	if _, err := s.Update(l.Row, func(l *lead.Lead) error {
		l.Status = lead.StatusDone
		l.Info = lead.InfoStoppedBy
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	e := newExecutor(s, gw, gen.Add(3*time.Hour))
	sent, err := e.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if sent != 0 || gw.sendCount() != 0 {
		t.Errorf("stopped row was swept: sent=%d calls=%d", sent, gw.sendCount())
	}

	got, _ := s.Get(l.Row)
	if got.Info != lead.InfoStoppedBy {
		t.Errorf("Info = %q, want %q", got.Info, lead.InfoStoppedBy)
	}
}

func TestPollSignalsRecordsBounce(t *testing.T) {
	s := newTestStore(t)
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	l := runningLead(t, s, gen)

	gw := &fakeGateway{signals: map[string]*gateway.Signals{
		"jane@example.com": {Bounced: true, BounceReason: "mailbox full"},
	}}
	e := newExecutor(s, gw, gen)

	// One email out, then the poll runs
	if err := e.SendNow(context.Background(), l.Row); err != nil {
		t.Fatalf("SendNow() error = %v", err)
	}
	if err := e.PollSignals(context.Background()); err != nil {
		t.Fatalf("PollSignals() error = %v", err)
	}

	got, _ := s.Get(l.Row)
	if got.BounceStatus != "bounced: mailbox full" {
		t.Errorf("BounceStatus = %q", got.BounceStatus)
	}
	// Advisory only: the row keeps running
	if got.Status != lead.StatusRunning {
		t.Errorf("Status = %q, want Running", got.Status)
	}
}

func TestPollSignalsUnsupportedTransport(t *testing.T) {
	s := newTestStore(t)
	gen := time.Date(2025, 1, 8, 14, 0, 0, 0, time.UTC)
	l := runningLead(t, s, gen)

	gw := &fakeGateway{} // nil signals map → unsupported
	e := newExecutor(s, gw, gen)
	if err := e.SendNow(context.Background(), l.Row); err != nil {
		t.Fatalf("SendNow() error = %v", err)
	}
	if err := e.PollSignals(context.Background()); err != nil {
		t.Errorf("PollSignals() error = %v, want nil for unsupported transport", err)
	}
}
