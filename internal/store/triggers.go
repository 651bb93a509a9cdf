package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// TriggerRecord is a persisted scheduler registration. The live timer
// is rebuilt from this record on startup; the record is what makes
// registrations enumerable and idempotent across restarts.
type TriggerRecord struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Purpose string        `json:"purpose"`
	Every   time.Duration `json:"every,omitempty"` // recurring cadence, 0 for one-shot
	FireAt  time.Time     `json:"fire_at,omitempty"`
	Created time.Time     `json:"created"`
}

// SaveTrigger stores a registration keyed by name.
func (s *Store) SaveTrigger(rec *TriggerRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal trigger %q: %w", rec.Name, err)
		}
		return tx.Bucket(bucketTriggers).Put([]byte(rec.Name), data)
	})
}

// GetTrigger returns the registration named name, or nil.
func (s *Store) GetTrigger(name string) (*TriggerRecord, error) {
	var rec *TriggerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTriggers).Get([]byte(name))
		if data == nil {
			return nil
		}
		got := &TriggerRecord{}
		if err := json.Unmarshal(data, got); err != nil {
			return fmt.Errorf("failed to unmarshal trigger %q: %w", name, err)
		}
		rec = got
		return nil
	})
	return rec, err
}

// ListTriggers returns every stored registration.
func (s *Store) ListTriggers() ([]*TriggerRecord, error) {
	var recs []*TriggerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTriggers).ForEach(func(k, v []byte) error {
			rec := &TriggerRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("failed to unmarshal trigger %q: %w", k, err)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

// DeleteTrigger removes one registration by name.
func (s *Store) DeleteTrigger(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTriggers).Delete([]byte(name))
	})
}

// DeleteAllTriggers removes every registration and returns how many
// were deleted. Used for a full scheduler reset.
func (s *Store) DeleteAllTriggers() (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTriggers)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
