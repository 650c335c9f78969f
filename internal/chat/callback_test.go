package chat_test

import (
	"errors"
	"testing"

	"github.com/stakesentry/stakesentry-backend/internal/chat"
)

func TestParseCallback_KnownVerbs(t *testing.T) {
	tests := []struct {
		raw      string
		wantVerb chat.Verb
		wantSlug string
	}{
		{"unstake_atlasnode", chat.VerbUnstake, "atlasnode"},
		{"redelegate_borealis", chat.VerbRedelegate, "borealis"},
		{"incidents_atlasnode", chat.VerbIncidents, "atlasnode"},
		// general_advice contains an underscore itself — must not parse as
		// verb "general" with slug "advice_atlasnode".
		{"general_advice_atlasnode", chat.VerbGeneralAdvice, "atlasnode"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cb, err := chat.ParseCallback(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cb.Verb != tt.wantVerb || cb.Slug != tt.wantSlug {
				t.Errorf("got {%q %q}, want {%q %q}", cb.Verb, cb.Slug, tt.wantVerb, tt.wantSlug)
			}
		})
	}
}

func TestParseCallback_UnknownVerbIsNotAnError(t *testing.T) {
	cb, err := chat.ParseCallback("bogus_verb_name")
	if err != nil {
		t.Fatalf("well-formed id with unknown verb must parse, got: %v", err)
	}
	if cb.Verb != "bogus" || cb.Slug != "verb_name" {
		t.Errorf("got {%q %q}, want {bogus verb_name}", cb.Verb, cb.Slug)
	}
}

func TestParseCallback_Malformed(t *testing.T) {
	for _, raw := range []string{"", "  ", "nounderscore"} {
		if _, err := chat.ParseCallback(raw); !errors.Is(err, chat.ErrUnknownCallback) {
			t.Errorf("raw=%q: err = %v, want ErrUnknownCallback", raw, err)
		}
	}
}

func TestEncodeCallback_RoundTrip(t *testing.T) {
	raw := chat.EncodeCallback(chat.VerbUnstake, "Atlas Node #1")
	if raw != "unstake_atlasnode1" {
		t.Fatalf("encoded = %q, want unstake_atlasnode1", raw)
	}
	cb, err := chat.ParseCallback(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.Verb != chat.VerbUnstake || cb.Slug != "atlasnode1" {
		t.Errorf("round trip lost data: %+v", cb)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Atlas Node", "atlasnode"},
		{"staking.zone 🚀", "stakingzone"},
		{"Node-42", "node42"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := chat.Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
