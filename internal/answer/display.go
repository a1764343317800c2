package answer

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// citationToken matches the superscript reference tokens written by the resolver.
	citationToken       = regexp.MustCompile(`\^(\d{1,3})\^`)
	spacedCitationToken = regexp.MustCompile(`[ \t]*\^\d{1,3}\^`)
	superscriptDigits   = strings.NewReplacer(
		"0", "⁰", "1", "¹", "2", "²", "3", "³", "4", "⁴",
		"5", "⁵", "6", "⁶", "7", "⁷", "8", "⁸", "9", "⁹",
	)
)

// CitationToken returns the markdown token used for citation ordinal n.
func CitationToken(n int) string {
	return "^" + strconv.Itoa(n) + "^"
}

// DisplayText renders citation tokens as Unicode superscript ordinals.
// "The sky is blue ^1^." becomes "The sky is blue ¹.".
func DisplayText(formatted string) string {
	return citationToken.ReplaceAllStringFunc(formatted, func(tok string) string {
		return superscriptDigits.Replace(strings.Trim(tok, "^"))
	})
}

// StripCitationTokens removes citation tokens together with the blanks in front of them.
func StripCitationTokens(formatted string) string {
	return spacedCitationToken.ReplaceAllString(formatted, "")
}
