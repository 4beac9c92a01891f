// Package idempotency replays the stored response of a mutating request when
// a client retries it with the same Idempotency-Key.
//
// Records live in BoltDB. A key moves through two states:
//
//	in_flight  Begin has claimed it; a concurrent retry is rejected
//	done       Complete stored the response; retries get it back verbatim
//
// Keys are scoped by actor, so two clients cannot collide. A retry whose
// method, path or body differ from the original is rejected as a misuse of
// the key.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "idempotency"

var (
	ErrInFlight    = errors.New("a request with this idempotency key is still in progress")
	ErrKeyReused   = errors.New("idempotency key reused with a different request")
	ErrNotInFlight = errors.New("idempotency key is not in flight")
)

type State string

const (
	StateInFlight State = "in_flight"
	StateDone     State = "done"
)

// Record is the stored state of one key.
type Record struct {
	Key         string            `json:"key"`
	Fingerprint string            `json:"fingerprint"`
	State       State             `json:"state"`
	Status      int               `json:"status,omitempty"`
	Header      map[string]string `json:"header,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type Store struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens (or creates) the database at path. Records older than ttl are
// treated as absent; zero keeps them forever.
func Open(path string, ttl time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Fingerprint identifies the request a key was first used with.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin claims key. When the key already completed with the same
// fingerprint it returns the stored record and claimed=false.
func (s *Store) Begin(key, fingerprint string) (rec *Record, claimed bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		if existing := b.Get([]byte(key)); existing != nil {
			var r Record
			if err := json.Unmarshal(existing, &r); err != nil {
				return err
			}
			if !s.expired(r) {
				if r.Fingerprint != fingerprint {
					return ErrKeyReused
				}
				if r.State == StateInFlight {
					return ErrInFlight
				}
				rec = &r
				return nil
			}
		}

		r := Record{Key: key, Fingerprint: fingerprint, State: StateInFlight, CreatedAt: s.now().UTC()}
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		rec, claimed = &r, true
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return nil, false, err
	}
	return rec, claimed, nil
}

// Complete stores the response for a claimed key.
func (s *Store) Complete(key string, status int, header map[string]string, body []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		existing := b.Get([]byte(key))
		if existing == nil {
			return ErrNotInFlight
		}
		var r Record
		if err := json.Unmarshal(existing, &r); err != nil {
			return err
		}
		if r.State != StateInFlight {
			return ErrNotInFlight
		}
		r.State = StateDone
		r.Status = status
		r.Header = header
		r.Body = body
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Abort releases a claimed key so the request can be retried. Aborting an
// unknown key is a no-op.
func (s *Store) Abort(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

// Get returns the record for key, or nil.
func (s *Store) Get(key string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if v == nil {
			return nil
		}
		var r Record
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("decode record %s: %w", key, err)
		}
		if !s.expired(r) {
			rec = &r
		}
		return nil
	})
	return rec, err
}

func (s *Store) expired(r Record) bool {
	return s.ttl > 0 && s.now().Sub(r.CreatedAt) > s.ttl
}
