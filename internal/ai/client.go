// Package ai defines the completion-provider contract used by the chat
// orchestrator and the recommendation composer, and provides the concrete
// Anthropic and local-daemon implementations.
package ai

import (
	"context"
)

// Message is one turn of conversation context sent to a provider.
type Message struct {
	Role    string // "user" | "assistant"
	Content string
}

// Prompt carries everything a provider needs for one completion request.
type Prompt struct {
	// System is the instruction block prepended to the conversation.
	System string

	// Messages is the ordered conversation history, oldest first. The last
	// element is the turn being answered.
	Messages []Message
}

// Completer is the interface the orchestrator races against its deadline.
// Tests inject stubs; production wires the Anthropic client, the local
// inference daemon, or a fallback chain of both.
type Completer interface {
	// Complete submits the prompt and returns the provider's text, or an
	// error on any network/API/parse failure. Implementations must honour
	// ctx cancellation promptly and must be safe to call concurrently.
	// An empty return with nil error is treated as a failure by callers.
	Complete(ctx context.Context, prompt Prompt) (string, error)
}
