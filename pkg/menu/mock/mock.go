// Package mock provides test doubles for the menu package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/menu"
)

// Compile-time checks.
var (
	_ menu.Resolver  = (*Resolver)(nil)
	_ menu.Retriever = (*Retriever)(nil)
)

// Resolver is a map-backed [menu.Resolver]. Keys are item references.
type Resolver struct {
	mu sync.Mutex

	// Entries maps itemRef → entry returned by Resolve.
	Entries map[string]menu.Entry

	// ResolveErr, if non-nil, is returned by every Resolve call.
	ResolveErr error

	// ResolveCalls records each itemRef passed to Resolve.
	ResolveCalls []string
}

// Resolve records the call and returns the configured entry, or
// [menu.ErrUnknownItem] when the ref is absent.
func (r *Resolver) Resolve(_ context.Context, itemRef string) (menu.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResolveCalls = append(r.ResolveCalls, itemRef)
	if r.ResolveErr != nil {
		return menu.Entry{}, r.ResolveErr
	}
	e, ok := r.Entries[itemRef]
	if !ok {
		return menu.Entry{}, menu.ErrUnknownItem
	}
	return e, nil
}

// Retriever is a canned [menu.Retriever].
type Retriever struct {
	mu sync.Mutex

	// Context is returned by every RetrieveContext call.
	Context string

	// RetrieveErr, if non-nil, is returned instead.
	RetrieveErr error

	// Queries records each query passed in.
	Queries []string
}

// RetrieveContext records the call and returns Context, RetrieveErr.
func (r *Retriever) RetrieveContext(_ context.Context, query string, _ int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Queries = append(r.Queries, query)
	if r.RetrieveErr != nil {
		return "", r.RetrieveErr
	}
	return r.Context, nil
}
