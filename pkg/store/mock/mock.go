// Package mock provides an in-memory [store.TokenStore] with real TTL
// semantics for tests. Expiry is evaluated lazily against a clock
// function so tests can advance time deterministically.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/store"
)

// Compile-time check that *Store satisfies store.TokenStore.
var _ store.TokenStore = (*Store)(nil)

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Store is a thread-safe, in-memory implementation of
// [store.TokenStore]. The zero value is ready to use.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry

	// Now overrides the clock used for expiry checks. Nil means
	// time.Now.
	Now func() time.Time

	// Err, if non-nil, is returned by every operation. Use to simulate a
	// backing-store outage.
	Err error
}

// New returns an initialised [Store].
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// live returns the entry for key if present and unexpired, pruning it
// otherwise. Must be called with s.mu held.
func (s *Store) live(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

// Get implements [store.TokenStore.Get].
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	e, ok := s.live(key)
	if !ok {
		return "", store.ErrNotFound
	}
	return e.value, nil
}

// Set implements [store.TokenStore.Set].
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.entries == nil {
		s.entries = make(map[string]entry)
	}
	s.entries[key] = entry{value: value}
	return nil
}

// SetEx implements [store.TokenStore.SetEx].
func (s *Store) SetEx(_ context.Context, key string, ttl time.Duration, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.entries == nil {
		s.entries = make(map[string]entry)
	}
	s.entries[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// Exists implements [store.TokenStore.Exists].
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	_, ok := s.live(key)
	return ok, nil
}

// Delete implements [store.TokenStore.Delete].
func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Expire force-expires a key regardless of its remaining TTL. Test
// helper; not part of the TokenStore interface.
func (s *Store) Expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}
