// Package badger is a persistent vector store on BadgerDB. Vectors survive a
// restart of the front-end, so challenges issued just before a rolling
// update still verify afterwards.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/sip/av"
)

// Put retries this many times when a concurrent Put of the same identity
// wins the transaction race.
const maxPutAttempts = 3

// Config configures the badger store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string `mapstructure:"path" yaml:"path"`

	// InMemory keeps the database in RAM, mostly for tests.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// record is the persisted value of one key.
type record struct {
	Vector  *av.Vector `json:"vector"`
	Created int64      `json:"created"` // unix nanoseconds
	Expires int64      `json:"expires"` // unix nanoseconds
}

func (r *record) expired(now time.Time) bool {
	return now.UnixNano() >= r.Expires
}

// Store implements avstore.Store on BadgerDB.
type Store struct {
	db   *badgerdb.DB
	opts avstore.Options
}

var _ avstore.Store = (*Store)(nil)

// New opens (or creates) the database described by cfg.
func New(cfg Config, opts avstore.Options) (*Store, error) {
	var bopts badgerdb.Options
	if cfg.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger vector store: path is required")
		}
		bopts = badgerdb.DefaultOptions(cfg.Path)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger vector store: %w", err)
	}

	logger.Info("Badger vector store opened", logger.KeyStoreType, "badger", "path", cfg.Path, "in_memory", cfg.InMemory)
	return &Store{db: db, opts: opts}, nil
}

// Put implements avstore.Store.
func (s *Store) Put(ctx context.Context, impi, nonce string, v *av.Vector, ttl time.Duration) error {
	if err := avstore.CheckPut(impi, nonce, v, ttl); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(func(txn *badgerdb.Txn) error {
			return s.put(txn, impi, nonce, v, ttl)
		})
		if !errors.Is(err, badgerdb.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to store vector: %w", err)
	}
	return nil
}

func (s *Store) put(txn *badgerdb.Txn, impi, nonce string, v *av.Vector, ttl time.Duration) error {
	now := time.Now()
	key := []byte(avstore.Key(impi, nonce))

	if s.opts.MaxPerIdentity > 0 {
		if err := s.enforceCap(txn, impi, key, now); err != nil {
			return err
		}
	}

	data, err := json.Marshal(&record{
		Vector:  v,
		Created: now.UnixNano(),
		Expires: now.Add(ttl).UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	// Badger expiry has second resolution; round up so the record-level
	// check is always the one that fires first.
	return txn.SetEntry(badgerdb.NewEntry(key, data).WithTTL(ttl + time.Second))
}

// enforceCap deletes expired entries of impi, then the oldest live ones,
// until one more fits. Replacing an existing key never evicts.
func (s *Store) enforceCap(txn *badgerdb.Txn, impi string, key []byte, now time.Time) error {
	type outstanding struct {
		key     []byte
		created int64
	}
	var live []outstanding

	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = []byte(avstore.IdentityPrefix(impi))
	it := txn.NewIterator(opts)

	var victims [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		if string(item.Key()) == string(key) {
			it.Close()
			return nil
		}
		var rec record
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			victims = append(victims, item.KeyCopy(nil))
			continue
		}
		if rec.expired(now) {
			victims = append(victims, item.KeyCopy(nil))
			continue
		}
		live = append(live, outstanding{key: item.KeyCopy(nil), created: rec.Created})
	}
	it.Close()

	for len(live) >= s.opts.MaxPerIdentity {
		oldest := 0
		for i := range live {
			if live[i].created < live[oldest].created {
				oldest = i
			}
		}
		victims = append(victims, live[oldest].key)
		live = append(live[:oldest], live[oldest+1:]...)
	}

	for _, k := range victims {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Take implements avstore.Store. Of two racing takes, the later commit
// fails with ErrConflict and reports not found.
func (s *Store) Take(ctx context.Context, impi, nonce string) (*av.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec record
	key := []byte(avstore.Key(impi, nonce))
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return avstore.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return fmt.Errorf("failed to decode vector: %w", err)
		}
		return txn.Delete(key)
	})

	switch {
	case err == nil:
	case errors.Is(err, avstore.ErrNotFound), errors.Is(err, badgerdb.ErrConflict):
		return nil, avstore.ErrNotFound
	default:
		return nil, fmt.Errorf("failed to take vector: %w", err)
	}

	if rec.expired(time.Now()) {
		return nil, avstore.ErrNotFound
	}
	return rec.Vector, nil
}

// Purge implements avstore.Store.
func (s *Store) Purge(ctx context.Context, impi string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(avstore.IdentityPrefix(impi))

		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		count = len(keys)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge vectors: %w", err)
	}
	return count, nil
}

// Healthcheck implements avstore.Store.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return avstore.ErrClosed
	}
	if err := s.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}
