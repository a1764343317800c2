package speech

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
)

func TestPayloadMode(t *testing.T) {
	parsed := &answer.ParsedAnswer{
		FormattedText: "The **sky** is blue^1^.",
		Citations:     []answer.Citation{{Index: 1, Source: "doc1", Title: "Sky"}},
	}

	mode, err := ParsePayloadMode("")
	require.NoError(t, err)
	assert.Equal(t, PayloadText, mode)

	text, err := mode.Text(parsed)
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", text)

	mode, err = ParsePayloadMode("parsed")
	require.NoError(t, err)
	text, err = mode.Text(parsed)
	require.NoError(t, err)
	assert.True(t, strings.Contains(text, `"markdownFormatText"`))
	assert.Contains(t, text, `"source":"doc1"`)

	_, err = ParsePayloadMode("ssml")
	assert.Error(t, err)

	text, err = PayloadText.Text(nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}
