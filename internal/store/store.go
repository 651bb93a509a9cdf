// Package store persists lead rows in BoltDB. It is the system's only
// durable state: every cross-invocation decision (status transitions,
// sent markers, slot claims) goes through a store transaction.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/autofranco/frankie/internal/lead"
)

var (
	bucketLeads     = []byte("leads")
	bucketStatusIdx = []byte("status_idx")
	bucketTriggers  = []byte("triggers")
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("lead not found")

// Store is a BoltDB-backed lead row store
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketLeads, bucketStatusIdx, bucketTriggers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new lead row, assigning the next row number. The
// row starts in the empty status regardless of what the caller set.
func (s *Store) Create(l *lead.Lead) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeads)

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate row: %w", err)
		}
		l.Row = seq
		l.Status = lead.StatusEmpty
		now := time.Now()
		l.CreatedAt = now
		l.UpdatedAt = now

		if err := putLead(tx, l); err != nil {
			return err
		}
		return indexStatus(tx, l.Row, "", l.Status)
	})
}

// Get returns the lead at row, or nil if it does not exist.
func (s *Store) Get(row uint64) (*lead.Lead, error) {
	var l *lead.Lead
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLeads).Get(rowKey(row))
		if data == nil {
			return nil
		}
		got := &lead.Lead{}
		if err := json.Unmarshal(data, got); err != nil {
			return fmt.Errorf("failed to unmarshal lead %d: %w", row, err)
		}
		l = got
		return nil
	})
	return l, err
}

// List returns all leads in row order.
func (s *Store) List() ([]*lead.Lead, error) {
	var leads []*lead.Lead
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLeads).ForEach(func(k, v []byte) error {
			l := &lead.Lead{}
			if err := json.Unmarshal(v, l); err != nil {
				return fmt.Errorf("failed to unmarshal lead: %w", err)
			}
			leads = append(leads, l)
			return nil
		})
	})
	return leads, err
}

// ListByStatus returns all leads currently in the given status, in
// row order, via the status index.
func (s *Store) ListByStatus(status lead.Status) ([]*lead.Lead, error) {
	var leads []*lead.Lead
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketStatusIdx)
		b := tx.Bucket(bucketLeads)

		prefix := statusPrefix(status)
		c := idx.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			data := b.Get(v)
			if data == nil {
				continue // row deleted out from under the index
			}
			l := &lead.Lead{}
			if err := json.Unmarshal(data, l); err != nil {
				return fmt.Errorf("failed to unmarshal lead: %w", err)
			}
			leads = append(leads, l)
		}
		return nil
	})
	return leads, err
}

// Delete removes a row and its index entry.
func (s *Store) Delete(row uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		l, err := getLead(tx, row)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketStatusIdx).Delete(statusKey(l.Status, row)); err != nil {
			return err
		}
		return tx.Bucket(bucketLeads).Delete(rowKey(row))
	})
}

// Update applies fn to the lead at row inside one transaction. fn sees
// the current state and mutates it; the status index is kept in sync.
func (s *Store) Update(row uint64, fn func(*lead.Lead) error) (*lead.Lead, error) {
	var updated *lead.Lead
	err := s.db.Update(func(tx *bolt.Tx) error {
		l, err := getLead(tx, row)
		if err != nil {
			return err
		}
		old := l.Status

		if err := fn(l); err != nil {
			return err
		}
		l.UpdatedAt = time.Now()

		if err := putLead(tx, l); err != nil {
			return err
		}
		if err := indexStatus(tx, row, old, l.Status); err != nil {
			return err
		}
		updated = l
		return nil
	})
	return updated, err
}

// UpdateStatus sets the row's status and, when info is non-empty, its
// info annotation.
func (s *Store) UpdateStatus(row uint64, status lead.Status, info string) error {
	_, err := s.Update(row, func(l *lead.Lead) error {
		l.Status = status
		if info != "" {
			l.Info = info
		}
		return nil
	})
	return err
}

// SetBounceStatus records the last delivery-failure signal for a row.
func (s *Store) SetBounceStatus(row uint64, status string) error {
	_, err := s.Update(row, func(l *lead.Lead) error {
		l.BounceStatus = status
		return nil
	})
	return err
}

// Stats returns lead counts keyed by status.
func (s *Store) Stats() (map[lead.Status]int, error) {
	stats := map[lead.Status]int{
		lead.StatusEmpty:      0,
		lead.StatusProcessing: 0,
		lead.StatusRunning:    0,
		lead.StatusDone:       0,
		lead.StatusError:      0,
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLeads).ForEach(func(k, v []byte) error {
			l := &lead.Lead{}
			if err := json.Unmarshal(v, l); err != nil {
				return err
			}
			stats[l.Status]++
			return nil
		})
	})
	return stats, err
}

func getLead(tx *bolt.Tx, row uint64) (*lead.Lead, error) {
	data := tx.Bucket(bucketLeads).Get(rowKey(row))
	if data == nil {
		return nil, fmt.Errorf("row %d: %w", row, ErrNotFound)
	}
	l := &lead.Lead{}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead %d: %w", row, err)
	}
	return l, nil
}

func putLead(tx *bolt.Tx, l *lead.Lead) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal lead %d: %w", l.Row, err)
	}
	return tx.Bucket(bucketLeads).Put(rowKey(l.Row), data)
}

func indexStatus(tx *bolt.Tx, row uint64, prev, next lead.Status) error {
	idx := tx.Bucket(bucketStatusIdx)
	if prev != next {
		if err := idx.Delete(statusKey(prev, row)); err != nil {
			return err
		}
	}
	return idx.Put(statusKey(next, row), rowKey(row))
}

func rowKey(row uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, row)
	return k
}

// statusKey builds "<status>\x00<row>" so all rows of one status sort
// together and in row order within it. The empty status gets a
// placeholder so its prefix is non-empty.
func statusKey(status lead.Status, row uint64) []byte {
	return append(statusPrefix(status), rowKey(row)...)
}

func statusPrefix(status lead.Status) []byte {
	name := string(status)
	if name == "" {
		name = "_empty"
	}
	return append([]byte(name), 0x00)
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
