package store

import (
	"fmt"
	"time"

	"github.com/autofranco/frankie/internal/lead"
)

// SetGenerated writes the generated fields and scheduled slots and
// moves the row to Running. Non-empty generated fields are only
// replaced when the row re-enters the pipeline from the start, which
// is the only caller of this method.
func (s *Store) SetGenerated(row uint64, profile string, angles [lead.SlotCount]string, slots [lead.SlotCount]lead.Slot) (*lead.Lead, error) {
	return s.Update(row, func(l *lead.Lead) error {
		l.Profile = profile
		l.Angles = angles
		l.Slots = slots
		l.Status = lead.StatusRunning
		return nil
	})
}

// ClaimSlot atomically claims slot idx of a row for sending. The claim
// succeeds only when the sent marker is unset and no live claim
// exists; claims older than ttl are treated as abandoned by a crashed
// invocation and taken over. This check-and-set inside one store
// transaction is what keeps a manual send and the sweep from
// double-sending the same slot.
func (s *Store) ClaimSlot(row uint64, idx int, now time.Time, ttl time.Duration) (*lead.Lead, bool, error) {
	var claimed bool
	l, err := s.Update(row, func(l *lead.Lead) error {
		if idx < 0 || idx >= len(l.Slots) {
			return fmt.Errorf("slot %d out of range", idx)
		}
		slot := &l.Slots[idx]
		if slot.Sent {
			return nil // already sent, no-op
		}
		if slot.ClaimedAt != nil && now.Sub(*slot.ClaimedAt) < ttl {
			return nil // another invocation holds the claim
		}
		t := now
		slot.ClaimedAt = &t
		claimed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return l, claimed, nil
}

// ReleaseSlot drops the claim on slot idx after a failed send, leaving
// the sent marker unset so the next sweep retries it. The failure note
// is recorded in Info.
func (s *Store) ReleaseSlot(row uint64, idx int, info string) error {
	_, err := s.Update(row, func(l *lead.Lead) error {
		if idx < 0 || idx >= len(l.Slots) {
			return fmt.Errorf("slot %d out of range", idx)
		}
		l.Slots[idx].ClaimedAt = nil
		if info != "" {
			l.Info = info
		}
		return nil
	})
	return err
}

// MarkSlotSent sets the sent marker for slot idx after a confirmed
// gateway send. The marker is never cleared once set. Returns the
// updated lead so callers can check whether the campaign completed.
func (s *Store) MarkSlotSent(row uint64, idx int, at time.Time) (*lead.Lead, error) {
	return s.Update(row, func(l *lead.Lead) error {
		if idx < 0 || idx >= len(l.Slots) {
			return fmt.Errorf("slot %d out of range", idx)
		}
		slot := &l.Slots[idx]
		slot.Sent = true
		t := at
		slot.SentAt = &t
		slot.ClaimedAt = nil
		return nil
	})
}
