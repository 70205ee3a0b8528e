// Package mock provides a test double for the generator.Provider
// interface. Pre-populate Responses with the replies the consumer
// should receive, then inspect Calls afterwards.
package mock

import (
	"context"
	"sync"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/generator"
)

// GenerateCall records a single invocation of Provider.Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the request passed to Generate.
	Req generator.Request
}

// Provider is a mock implementation of generator.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned by successive Generate calls in order.
	// Once exhausted, the last response is repeated. If empty, Generate
	// returns "".
	Responses []string

	// GenerateErr, if non-nil, is returned by every Generate call.
	GenerateErr error

	// Calls records every call to Generate.
	Calls []GenerateCall
}

var _ generator.Provider = (*Provider)(nil)

// Generate records the call and returns the next queued response.
func (p *Provider) Generate(ctx context.Context, req generator.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, GenerateCall{Ctx: ctx, Req: req})
	if p.GenerateErr != nil {
		return "", p.GenerateErr
	}
	if len(p.Responses) == 0 {
		return "", nil
	}
	i := len(p.Calls) - 1
	if i >= len(p.Responses) {
		i = len(p.Responses) - 1
	}
	return p.Responses[i], nil
}

// CallCount returns the number of Generate calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}
