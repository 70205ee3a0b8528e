// Package generator defines the response-generation interface used by
// the streaming orchestrator. A Provider turns one customer utterance,
// plus conversation history, retrieved menu context, and the current
// order state, into a single reply containing spoken text and machine
// directive blocks.
package generator

import "context"

// Message roles for conversation history entries.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the running conversation log.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a Provider needs to produce one reply.
type Request struct {
	// Query is the customer's transcribed utterance for this turn.
	Query string

	// History is the conversation so far, oldest first. The Provider
	// must not mutate it.
	History []Message

	// MenuContext is retrieved menu knowledge relevant to Query,
	// already rendered as text.
	MenuContext string

	// OrderState is the current order rendered as JSON, so the model
	// can reference existing line ids when removing items.
	OrderState string
}

// Provider generates one assistant reply per customer turn. The reply
// text may contain fenced sys and cus blocks which the caller parses
// into directives.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}
