package ai

import (
	"context"
	"fmt"
	"log/slog"
)

// fallbackCompleter wraps two Completer implementations. It calls the primary
// first; if that returns an error (or empty text) it logs the failure and
// tries the secondary. This gives you a cloud provider as the default with a
// local daemon as the safety net (or vice versa — the choice is made in
// main.go). The deterministic canned-response path in internal/chat sits
// below both, so the orchestrator still answers when this whole chain fails.
type fallbackCompleter struct {
	primary   Completer
	secondary Completer
	logger    *slog.Logger
}

// NewFallbackCompleter returns a Completer that calls primary and, on
// failure, falls back to secondary. Either argument may be nil — if primary
// is nil it goes straight to secondary; if secondary is nil and primary
// fails, the primary error is returned directly.
func NewFallbackCompleter(primary, secondary Completer, logger *slog.Logger) Completer {
	return &fallbackCompleter{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Complete tries the primary Completer. If it fails and a secondary is
// configured, it logs the primary error and tries the secondary.
func (f *fallbackCompleter) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if f.primary != nil {
		text, err := f.primary.Complete(ctx, prompt)
		if err == nil && text != "" {
			return text, nil
		}
		if err == nil {
			err = fmt.Errorf("ai: primary returned empty completion")
		}
		f.logger.Warn("ai: primary completer failed, trying secondary",
			"error", err,
			"messages", len(prompt.Messages),
		)
		if f.secondary == nil {
			return "", fmt.Errorf("ai: primary failed and no secondary configured: %w", err)
		}
	}

	return f.secondary.Complete(ctx, prompt)
}
