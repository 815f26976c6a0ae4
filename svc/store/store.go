// Package store holds encrypted pastes in memory. Entries live in a fixed set
// of independently locked shards; expiry is checked on every read and swept
// in bulk by the reaper.
package store

import (
	"sync/atomic"
	"time"

	"sealbin/pkg/domain"
	"sealbin/svc/util"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	maxIDAttempts   = 5
	reclaimCooldown = time.Second
	DefaultShards   = 32
)

type Config struct {
	// Shards is rounded up to a power of two.
	Shards int
	// MaxEntries and MaxBytes bound resident data. Zero disables one bound;
	// at least one must be set.
	MaxEntries int64
	MaxBytes   int64
	// MaxPayloadBytes bounds len(ciphertext)+len(nonce) of a single entry.
	MaxPayloadBytes int64
}

type Stats struct {
	Entries    int64 `json:"entries"`
	Bytes      int64 `json:"bytes"`
	MaxEntries int64 `json:"max_entries"`
	MaxBytes   int64 `json:"max_bytes"`
	Shards     int   `json:"shards"`
}

// Store is safe for concurrent use. Returned entries are shared and must
// not be modified by callers.
type Store struct {
	shards     []*shard
	mask       uint64
	maxEntries int64
	maxBytes   int64
	maxPayload int64

	// entries and bytes are reserved before an insert becomes visible and
	// released after a delete, so they never undercount resident data.
	entries atomic.Int64
	bytes   atomic.Int64

	lastReclaim atomic.Int64
	genID       func() (string, error)
	now         func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now, letting tests move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.genID = gen }
}

func New(c Config, opts ...Option) (*Store, error) {
	if c.MaxPayloadBytes <= 0 {
		return nil, errors.New("max payload bytes must be positive")
	}
	if c.MaxEntries < 0 || c.MaxBytes < 0 {
		return nil, errors.New("capacity bounds must not be negative")
	}
	if c.MaxEntries == 0 && c.MaxBytes == 0 {
		return nil, errors.New("at least one of max entries or max bytes must be set")
	}
	if c.MaxBytes > 0 && c.MaxBytes < c.MaxPayloadBytes {
		return nil, errors.New("max bytes must be able to hold at least one maximum size payload")
	}
	n := 1
	want := c.Shards
	if want <= 0 {
		want = DefaultShards
	}
	for n < want {
		n <<= 1
	}
	s := &Store{
		shards:     make([]*shard, n),
		mask:       uint64(n - 1),
		maxEntries: c.MaxEntries,
		maxBytes:   c.MaxBytes,
		maxPayload: c.MaxPayloadBytes,
		genID:      util.GenID,
		now:        time.Now,
	}
	for i := range s.shards {
		s.shards[i] = newShard()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put stores a new entry under a fresh id. The store keeps the given slices;
// callers must not reuse them. A rejected Put leaves the store unchanged.
func (s *Store) Put(ciphertext, nonce []byte, ttl time.Duration) (*domain.Entry, error) {
	size := int64(len(ciphertext) + len(nonce))
	if size > s.maxPayload {
		return nil, domain.ErrPayloadTooLarge
	}
	if ttl <= 0 {
		return nil, domain.ErrInvalidTTL
	}
	if !s.reserve(size) {
		if s.reclaim() == 0 || !s.reserve(size) {
			return nil, domain.ErrCapacityExceeded
		}
	}
	now := s.now()
	e := &domain.Entry{
		Ciphertext: ciphertext,
		Nonce:      nonce,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.genID()
		if err != nil {
			s.release(size)
			return nil, errors.Wrap(err, "generate id")
		}
		e.ID = id
		inserted, displaced := s.shardFor(id).insert(e, now)
		if displaced != nil {
			s.release(displaced.Size())
		}
		if inserted {
			return e, nil
		}
		util.StoreEvent(zerolog.WarnLevel, id).Int("attempt", attempt+1).Msg("paste id collision, regenerating")
	}
	s.release(size)
	return nil, domain.ErrIDCollision
}

// Get returns the live entry for id. Unknown, expired and consumed ids all
// yield domain.ErrNotFound.
func (s *Store) Get(id string) (*domain.Entry, error) {
	sh := s.shardFor(id)
	e := sh.get(id)
	if e == nil {
		return nil, domain.ErrNotFound
	}
	if e.ExpiredAt(s.now()) {
		if sh.removeIfSame(e) {
			s.release(e.Size())
		}
		return nil, domain.ErrNotFound
	}
	return e, nil
}

// Take returns the live entry for id and removes it in the same critical
// section, so among concurrent callers exactly one receives the entry.
func (s *Store) Take(id string) (*domain.Entry, error) {
	e := s.shardFor(id).take(id)
	if e == nil {
		return nil, domain.ErrNotFound
	}
	s.release(e.Size())
	if e.ExpiredAt(s.now()) {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

// Remove deletes id if present and reports whether anything was removed.
func (s *Store) Remove(id string) bool {
	e := s.shardFor(id).take(id)
	if e == nil {
		return false
	}
	s.release(e.Size())
	return true
}

// Sweep removes every expired entry, locking one shard at a time, and
// returns how many entries were removed.
func (s *Store) Sweep() int {
	removed := 0
	for _, sh := range s.shards {
		n, freed := sh.sweep(s.now())
		if n > 0 {
			s.entries.Add(-int64(n))
			s.bytes.Add(-freed)
			removed += n
		}
	}
	return removed
}

func (s *Store) Stats() Stats {
	return Stats{
		Entries:    s.entries.Load(),
		Bytes:      s.bytes.Load(),
		MaxEntries: s.maxEntries,
		MaxBytes:   s.maxBytes,
		Shards:     len(s.shards),
	}
}

func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.len()
	}
	return n
}

func (s *Store) shardFor(id string) *shard {
	return s.shards[shardIndex(id, s.mask)]
}

// reserve claims room for one entry of size bytes, or claims nothing.
func (s *Store) reserve(size int64) bool {
	for {
		n := s.entries.Load()
		if s.maxEntries > 0 && n >= s.maxEntries {
			return false
		}
		if s.entries.CompareAndSwap(n, n+1) {
			break
		}
	}
	for {
		b := s.bytes.Load()
		if s.maxBytes > 0 && b+size > s.maxBytes {
			s.entries.Add(-1)
			return false
		}
		if s.bytes.CompareAndSwap(b, b+size) {
			return true
		}
	}
}

func (s *Store) release(size int64) {
	s.entries.Add(-1)
	s.bytes.Add(-size)
}

// reclaim runs an out of band sweep when a write hits capacity, at most once
// per reclaimCooldown. Only expired entries are ever removed.
func (s *Store) reclaim() int {
	now := s.now().UnixNano()
	last := s.lastReclaim.Load()
	if last != 0 && now-last < int64(reclaimCooldown) {
		return 0
	}
	if !s.lastReclaim.CompareAndSwap(last, now) {
		return 0
	}
	return s.Sweep()
}
