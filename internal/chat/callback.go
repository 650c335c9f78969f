package chat

import (
	"errors"
	"strings"
)

// Callback ids are the opaque action tokens behind the UI's suggestion
// buttons. The wire convention is "<verb>_<slug>"; they are parsed once here
// at the boundary into a typed value so nothing deeper in the call stack
// does string prefix checks.

// Verb is the action half of a callback id.
type Verb string

const (
	VerbUnstake       Verb = "unstake"
	VerbRedelegate    Verb = "redelegate"
	VerbIncidents     Verb = "incidents"
	VerbGeneralAdvice Verb = "general_advice"
)

// Callback is the parsed form of a callback id. An unrecognised verb is
// carried through as-is: the handler answers it with a generic "didn't
// understand" reply rather than an error, so a stale UI button can never
// break the chat.
type Callback struct {
	Verb Verb
	Slug string
}

// ErrUnknownCallback is returned for structurally malformed callback ids
// (empty, or missing the verb/slug separator). This is the caller-visible
// invariant violation; unknown-but-well-formed verbs are not an error.
var ErrUnknownCallback = errors.New("chat: unknown callback id")

// knownVerbs is checked longest-prefix-first so "general_advice_x" parses as
// the general_advice verb rather than a bogus "general" verb.
var knownVerbs = []Verb{VerbGeneralAdvice, VerbRedelegate, VerbIncidents, VerbUnstake}

// ParseCallback parses a raw callback id into its typed form.
func ParseCallback(raw string) (Callback, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.Contains(raw, "_") {
		return Callback{}, ErrUnknownCallback
	}

	for _, verb := range knownVerbs {
		if rest, ok := strings.CutPrefix(raw, string(verb)+"_"); ok {
			return Callback{Verb: verb, Slug: rest}, nil
		}
	}

	// Well-formed but unrecognised verb — keep it so the handler can answer
	// gracefully.
	verb, slug, _ := strings.Cut(raw, "_")
	return Callback{Verb: Verb(verb), Slug: slug}, nil
}

// EncodeCallback builds a callback id for a validator name:
// EncodeCallback(VerbUnstake, "Atlas Node") → "unstake_atlasnode".
func EncodeCallback(verb Verb, validatorName string) string {
	return string(verb) + "_" + Slugify(validatorName)
}

// Slugify lowercases a validator name and strips everything that is not a
// letter or digit.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
