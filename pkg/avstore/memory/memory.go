// Package memory is the in-process vector store. It is the default backend
// for a single front-end instance.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/sipauth/internal/logger"
	"github.com/marmos91/sipauth/pkg/avstore"
	"github.com/marmos91/sipauth/pkg/sip/av"
)

// DefaultCleanupInterval is how often expired entries are swept.
const DefaultCleanupInterval = 10 * time.Second

type entry struct {
	vector  *av.Vector
	expires time.Time
	seq     uint64
}

// Store keeps vectors in a map keyed by identity then nonce. The mutex is
// held only for map operations.
type Store struct {
	mu      sync.Mutex
	entries map[string]map[string]entry
	seq     uint64
	opts    avstore.Options
	closed  bool

	now func() time.Time

	stop    chan struct{}
	stopped chan struct{}
}

var _ avstore.Store = (*Store)(nil)

// New creates a memory store and starts its janitor. A non-positive
// cleanupInterval uses DefaultCleanupInterval.
func New(opts avstore.Options, cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	s := &Store{
		entries: make(map[string]map[string]entry),
		opts:    opts,
		now:     time.Now,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.janitor(cleanupInterval)
	return s
}

// Put implements avstore.Store.
func (s *Store) Put(_ context.Context, impi, nonce string, v *av.Vector, ttl time.Duration) error {
	if err := avstore.CheckPut(impi, nonce, v, ttl); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return avstore.ErrClosed
	}

	now := s.now()
	byNonce := s.entries[impi]
	if byNonce == nil {
		byNonce = make(map[string]entry)
		s.entries[impi] = byNonce
	}
	if _, replacing := byNonce[nonce]; !replacing {
		s.enforceCap(byNonce, now)
	}

	s.seq++
	byNonce[nonce] = entry{vector: v, expires: now.Add(ttl), seq: s.seq}
	return nil
}

// enforceCap drops expired entries of one identity, then the oldest ones
// until a new entry fits. Caller holds s.mu.
func (s *Store) enforceCap(byNonce map[string]entry, now time.Time) {
	if s.opts.MaxPerIdentity <= 0 || len(byNonce) < s.opts.MaxPerIdentity {
		return
	}
	for nonce, e := range byNonce {
		if !now.Before(e.expires) {
			delete(byNonce, nonce)
		}
	}
	for len(byNonce) >= s.opts.MaxPerIdentity {
		var oldest string
		var oldestSeq uint64
		for nonce, e := range byNonce {
			if oldest == "" || e.seq < oldestSeq {
				oldest, oldestSeq = nonce, e.seq
			}
		}
		delete(byNonce, oldest)
	}
}

// Take implements avstore.Store.
func (s *Store) Take(_ context.Context, impi, nonce string) (*av.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, avstore.ErrClosed
	}

	byNonce := s.entries[impi]
	e, ok := byNonce[nonce]
	if !ok {
		return nil, avstore.ErrNotFound
	}
	delete(byNonce, nonce)
	if len(byNonce) == 0 {
		delete(s.entries, impi)
	}
	if !s.now().Before(e.expires) {
		return nil, avstore.ErrNotFound
	}
	return e.vector, nil
}

// Purge implements avstore.Store.
func (s *Store) Purge(_ context.Context, impi string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, avstore.ErrClosed
	}

	n := len(s.entries[impi])
	delete(s.entries, impi)
	return n, nil
}

// Len returns the number of stored entries, expired ones included until the
// next sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, byNonce := range s.entries {
		n += len(byNonce)
	}
	return n
}

// Healthcheck implements avstore.Store.
func (s *Store) Healthcheck(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return avstore.ErrClosed
	}
	return nil
}

// Close stops the janitor and drops all entries. Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.entries = nil
	close(s.stop)
	s.mu.Unlock()

	<-s.stopped
	return nil
}

func (s *Store) janitor(interval time.Duration) {
	defer close(s.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.sweep(); n > 0 {
				logger.Debug("Expired vectors evicted", logger.KeyStoreType, "memory", logger.KeyEvicted, n)
			}
		}
	}
}

// sweep removes expired entries and returns how many it removed.
func (s *Store) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for impi, byNonce := range s.entries {
		for nonce, e := range byNonce {
			if !now.Before(e.expires) {
				delete(byNonce, nonce)
				n++
			}
		}
		if len(byNonce) == 0 {
			delete(s.entries, impi)
		}
	}
	return n
}

