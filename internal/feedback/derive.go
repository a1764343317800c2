package feedback

import (
	"strings"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
)

// Derive computes the initial category of an answer from its own persisted
// value. ok is false when no feedback applies: the answer has no message id or
// carries no persisted value.
func Derive(a *answer.Answer) (c Category, ok bool) {
	if a == nil || a.MessageID == "" {
		return "", false
	}
	if a.Feedback == "" {
		return "", false
	}
	return FromPersisted(a.Feedback), true
}

// FromPersisted maps a stored feedback value to a category. Several joined
// reasons collapse to Negative; an unrecognised single value is Neutral.
func FromPersisted(value string) Category {
	if len(strings.Split(value, Separator)) > 1 {
		return Negative
	}
	if c := Category(value); c.Valid() {
		return c
	}
	return Neutral
}
