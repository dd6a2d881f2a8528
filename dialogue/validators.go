package dialogue

import (
	"strings"

	"github.com/skilldock/skilldock/core"
)

// Validator decides whether raw reply input is acceptable and how to
// convert it to a typed value. Validators are pure functions over their
// input; rejection is a normal state-machine transition, not an error.
//
// The set is closed: accept-anything, boolean (exact or fuzzy),
// key-mapped, allow-list-or-empty, and the Optional wrapper composing any
// of the others.
type Validator interface {
	Validate(raw string) (core.Value, bool)
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Any accepts every input, passing it through as text.
type Any struct{}

// Validate accepts raw unconditionally.
func (Any) Validate(raw string) (core.Value, bool) { return core.Text(raw), true }

// Bool accepts yes/no style input and maps it to a boolean. With Fuzzy
// set, colloquial affirmations and negations anywhere in the input count;
// otherwise only an exact normalized match is accepted.
type Bool struct {
	Fuzzy bool
}

var boolExact = map[string]bool{
	"yes": true, "true": true, "1": true,
	"no": false, "false": false, "0": false,
}

var boolFuzzyAffirm = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "yup": true, "sure": true,
	"ok": true, "okay": true, "definitely": true, "absolutely": true,
	"right": true, "correct": true, "affirmative": true, "y": true,
}

var boolFuzzyNegate = map[string]bool{
	"no": true, "nope": true, "nah": true, "never": true, "negative": true,
	"wrong": true, "incorrect": true, "n": true, "none": true,
}

// Validate maps raw input to a BoolValue or rejects it.
func (v Bool) Validate(raw string) (core.Value, bool) {
	norm := normalize(raw)
	if b, ok := boolExact[norm]; ok {
		return core.Bool(b), true
	}
	if !v.Fuzzy {
		return nil, false
	}
	for _, word := range strings.Fields(norm) {
		word = strings.Trim(word, ".,!?")
		if boolFuzzyAffirm[word] {
			return core.Bool(true), true
		}
		if boolFuzzyNegate[word] {
			return core.Bool(false), true
		}
	}
	return nil, false
}

// KeyMap accepts input matching a choice key (after normalization) and
// maps it to the associated value.
type KeyMap struct {
	Choices map[string]core.Value
}

// Validate looks the normalized input up in Choices.
func (v KeyMap) Validate(raw string) (core.Value, bool) {
	val, ok := v.Choices[normalize(raw)]
	if !ok {
		return nil, false
	}
	return val, true
}

// AllowList accepts input found in the allowed set, or empty input. Both
// pass through as text (empty input as empty text).
type AllowList struct {
	Allowed []string
}

// Validate accepts empty input or a normalized member of Allowed.
func (v AllowList) Validate(raw string) (core.Value, bool) {
	norm := normalize(raw)
	if norm == "" {
		return core.Text(""), true
	}
	for _, allowed := range v.Allowed {
		if norm == normalize(allowed) {
			return core.Text(norm), true
		}
	}
	return nil, false
}

// Optional composes another validator to additionally accept empty input,
// mapping it to the null value.
type Optional struct {
	Inner Validator
}

// Validate accepts empty input as null, otherwise delegates to Inner.
func (v Optional) Validate(raw string) (core.Value, bool) {
	if normalize(raw) == "" {
		return core.Null(), true
	}
	if v.Inner == nil {
		return core.Text(raw), true
	}
	return v.Inner.Validate(raw)
}
