// Package store persists telemetry history in an embedded badger database.
// Every Interval the latest received sample is inserted under its insertion
// time, so Last returns the most recent rows newest first.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/itohio/gobuck/pkg/config"
	"github.com/itohio/gobuck/pkg/telemetry"
)

// DefaultHistory is the number of rows returned when n is not positive.
const DefaultHistory = 30

// MaxHistory bounds a single Last query.
const MaxHistory = 1000

var ErrClosed = errors.New("store closed")

var keyPrefix = []byte("sample/")

// Entry is one persisted sample.
type Entry struct {
	Inserted time.Time `json:"inserted"`
	Received time.Time `json:"received"`
	Running  bool      `json:"running"`
	Setpoint float32   `json:"setpoint_volts"`
	Output   float32   `json:"output_volts"`
	Current  float32   `json:"load_current_milliamps"`
	Uptime   string    `json:"uptime"`
}

// NewEntry stamps a received sample with its insertion time.
func NewEntry(s telemetry.Sample, inserted time.Time) Entry {
	return Entry{
		Inserted: inserted,
		Received: s.Timestamp,
		Running:  s.Running,
		Setpoint: s.Setpoint,
		Output:   s.Output,
		Current:  s.Current,
		Uptime:   s.Clock.String(),
	}
}

// Latest returns the most recent sample, false when none arrived yet.
type Latest func() (telemetry.Sample, bool)

// Store is a badger backed history of telemetry samples.
type Store struct {
	db       *badger.DB
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastKey uint64
	closed  bool
}

// Open opens (or creates) the database described by cfg.
func Open(cfg config.StoreConfig) (*Store, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path != "":
		opts = badger.DefaultOptions(cfg.Path)
	default:
		return nil, fmt.Errorf("store: no path configured")
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = config.Default().Store.Interval
	}
	return &Store{db: db, interval: interval, now: time.Now}, nil
}

// Insert stores s stamped with the current time.
func (s *Store) Insert(sample telemetry.Sample) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry{}, ErrClosed
	}

	inserted := s.now()
	// Keys must stay unique and ordered even if the wall clock steps back
	key := uint64(inserted.UnixNano())
	if key <= s.lastKey {
		key = s.lastKey + 1
	}

	entry := NewEntry(sample, inserted)
	value, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(key), value)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert sample: %w", err)
	}
	s.lastKey = key
	return entry, nil
}

// Last returns up to n entries, newest first. n <= 0 selects
// DefaultHistory and n is capped at MaxHistory.
func (s *Store) Last(n int) ([]Entry, error) {
	if n <= 0 {
		n = DefaultHistory
	}
	if n > MaxHistory {
		n = MaxHistory
	}

	entries := make([]Entry, 0, n)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(encodeKey(^uint64(0))); it.Valid() && len(entries) < n; it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e Entry
			if err := json.Unmarshal(value, &e); err != nil {
				return fmt.Errorf("corrupt entry %x: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Run inserts the latest sample every interval until ctx is done. Ticks
// without a sample are skipped.
func (s *Store) Run(ctx context.Context, latest Latest) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, ok := latest()
			if !ok {
				continue
			}
			if _, err := s.Insert(sample); err != nil {
				log.Printf("Failed to persist telemetry: %v", err)
				if errors.Is(err, ErrClosed) {
					return
				}
			}
		}
	}
}

// Close syncs and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Sync(); err != nil {
		log.Printf("Failed to sync store: %v", err)
	}
	return s.db.Close()
}

func encodeKey(ts uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], ts)
	return key
}
