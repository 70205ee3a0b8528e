// Package store defines the TokenStore abstraction: a thin durable
// key/value store with per-key TTL used for session liveness markers,
// order state, and conversation logs.
//
// Keys are fully partitioned by session id; callers build compound keys
// with [OrderStateKey] and [ConversationKey]. Writes are last-write-wins
// at the granularity of one full value, so no cross-process locking is
// required.
//
// All implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or its TTL
// has elapsed.
var ErrNotFound = errors.New("store: key not found")

// TokenStore is the key/value collaborator backing the session layer.
type TokenStore interface {
	// Get retrieves the value stored under key.
	// Returns [ErrNotFound] when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with no expiry.
	Set(ctx context.Context, key, value string) error

	// SetEx stores value under key and arms a TTL. A subsequent SetEx on
	// the same key replaces both the value and the remaining TTL.
	SetEx(ctx context.Context, key string, ttl time.Duration, value string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the given keys. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, keys ...string) error
}

// OrderStateKey returns the key holding the JSON-encoded order document
// for a session.
func OrderStateKey(sessionID string) string {
	return sessionID + "_order_state"
}

// ConversationKey returns the key holding the JSON-encoded conversation
// log for a session.
func ConversationKey(sessionID string) string {
	return sessionID + "_conversation"
}
