package feedback

import (
	"errors"
	"fmt"
	"strings"
)

// Category is a feedback label attached to an answer.
type Category string

const (
	Positive Category = "positive"
	Negative Category = "negative"
	Neutral  Category = "neutral"

	// Negative reasons: unhelpful
	MissingCitation        Category = "missing_citation"
	WrongCitation          Category = "wrong_citation"
	OutOfScope             Category = "out_of_scope"
	InaccurateOrIrrelevant Category = "inaccurate_or_irrelevant"
	OtherUnhelpful         Category = "other_unhelpful"

	// Negative reasons: harmful
	HateSpeech   Category = "hate_speech"
	Violent      Category = "violent"
	Sexual       Category = "sexual"
	Manipulative Category = "manipulative"
	OtherHarmful Category = "other_harmful"
)

// Separator joins multiple reasons in a persisted feedback value.
const Separator = ","

var ErrUnknownCategory = errors.New("unknown feedback category")

var known = []Category{
	Positive, Negative, Neutral,
	MissingCitation, WrongCitation, OutOfScope, InaccurateOrIrrelevant, OtherUnhelpful,
	HateSpeech, Violent, Sexual, Manipulative, OtherHarmful,
}

var knownSet = func() map[Category]struct{} {
	m := make(map[Category]struct{}, len(known))
	for _, c := range known {
		m[c] = struct{}{}
	}
	return m
}()

// Categories lists every known category.
func Categories() []Category {
	out := make([]Category, len(known))
	copy(out, known)
	return out
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := knownSet[c]
	return ok
}

func (c Category) String() string { return string(c) }

// Parse validates a single category token. Surrounding whitespace is ignored;
// the match itself is exact.
func Parse(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}
