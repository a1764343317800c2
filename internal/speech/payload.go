package speech

import (
	"encoding/json"
	"fmt"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/render"
)

// PayloadMode selects what part of an answer is sent for synthesis.
type PayloadMode string

const (
	// PayloadText sends the human-readable text: markup and citation tokens removed.
	PayloadText PayloadMode = "text"
	// PayloadParsed sends the JSON-encoded ParsedAnswer, citations included.
	PayloadParsed PayloadMode = "parsed"
)

// ParsePayloadMode validates a configured mode; empty selects PayloadText.
func ParsePayloadMode(s string) (PayloadMode, error) {
	switch PayloadMode(s) {
	case "", PayloadText:
		return PayloadText, nil
	case PayloadParsed:
		return PayloadParsed, nil
	}
	return "", fmt.Errorf("unknown speech payload mode %q", s)
}

// Text builds the synthesis input for parsed.
func (m PayloadMode) Text(parsed *answer.ParsedAnswer) (string, error) {
	if parsed == nil {
		return "", nil
	}
	if m == PayloadParsed {
		b, err := json.Marshal(parsed)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return render.PlainText(parsed.FormattedText), nil
}
