package ai_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stakesentry/stakesentry-backend/internal/ai"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

type stubCompleter struct {
	text  string
	err   error
	calls int
}

func (s *stubCompleter) Complete(_ context.Context, _ ai.Prompt) (string, error) {
	s.calls++
	return s.text, s.err
}

// discardLogger returns a *slog.Logger that silently drops all log output.
// Use this instead of nil — fallback.go calls f.logger.Warn() which panics on nil.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func prompt() ai.Prompt {
	return ai.Prompt{
		System:   "You are a staking advisor.",
		Messages: []ai.Message{{Role: "user", Content: "is my validator safe?"}},
	}
}

// ─── FallbackCompleter ────────────────────────────────────────────────────────

func TestFallbackCompleter_PrimarySucceeds_SecondaryNotCalled(t *testing.T) {
	primary := &stubCompleter{text: "primary answer"}
	secondary := &stubCompleter{text: "secondary answer"}

	c := ai.NewFallbackCompleter(primary, secondary, discardLogger())

	text, err := c.Complete(context.Background(), prompt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "primary answer" {
		t.Errorf("expected primary result, got %q", text)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary should not be called, got %d calls", secondary.calls)
	}
	if primary.calls != 1 {
		t.Errorf("primary should be called once, got %d calls", primary.calls)
	}
}

func TestFallbackCompleter_PrimaryFails_SecondaryUsed(t *testing.T) {
	primary := &stubCompleter{err: errors.New("anthropic timeout")}
	secondary := &stubCompleter{text: "secondary answer"}

	c := ai.NewFallbackCompleter(primary, secondary, discardLogger())

	text, err := c.Complete(context.Background(), prompt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "secondary answer" {
		t.Errorf("expected secondary result, got %q", text)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("expected one call each, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}
}

func TestFallbackCompleter_EmptyPrimaryTreatedAsFailure(t *testing.T) {
	primary := &stubCompleter{text: ""}
	secondary := &stubCompleter{text: "secondary answer"}

	c := ai.NewFallbackCompleter(primary, secondary, discardLogger())

	text, err := c.Complete(context.Background(), prompt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "secondary answer" {
		t.Errorf("empty primary completion should fall through, got %q", text)
	}
}

func TestFallbackCompleter_BothFail_ReturnsError(t *testing.T) {
	primary := &stubCompleter{err: errors.New("primary error")}
	secondary := &stubCompleter{err: errors.New("secondary error")}

	c := ai.NewFallbackCompleter(primary, secondary, discardLogger())

	if _, err := c.Complete(context.Background(), prompt()); err == nil {
		t.Fatal("expected error when both completers fail")
	}
}

func TestFallbackCompleter_NilPrimary_UsesSecondaryDirectly(t *testing.T) {
	secondary := &stubCompleter{text: "only secondary"}

	c := ai.NewFallbackCompleter(nil, secondary, discardLogger())

	text, err := c.Complete(context.Background(), prompt())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "only secondary" {
		t.Errorf("expected secondary result, got %q", text)
	}
	if secondary.calls != 1 {
		t.Errorf("expected 1 secondary call, got %d", secondary.calls)
	}
}

func TestFallbackCompleter_NilSecondary_PrimaryErrorBubbles(t *testing.T) {
	primaryErr := errors.New("primary blew up")
	primary := &stubCompleter{err: primaryErr}

	c := ai.NewFallbackCompleter(primary, nil, discardLogger())

	_, err := c.Complete(context.Background(), prompt())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, primaryErr) {
		t.Errorf("expected to find primaryErr in chain, got: %v", err)
	}
}
