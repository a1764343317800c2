package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
)

func newTestPipeline(t *testing.T, onCitation CitationHandler) *Pipeline {
	t.Helper()
	return NewPipeline(Config{OnCitation: onCitation}, zaptest.NewLogger(t))
}

func TestRenderWithoutSanitizeKeepsSourceByteIdentical(t *testing.T) {
	p := newTestPipeline(t, nil)
	parsed := &answer.ParsedAnswer{
		FormattedText: "Unsafe <script>alert(1)</script> & \"quoted\" ^1^\n\n> note",
		Citations:     []answer.Citation{{Index: 1, Source: "doc1"}},
	}

	doc, err := p.Render(parsed, Options{Sanitize: false})
	require.NoError(t, err)
	assert.Equal(t, parsed.FormattedText, doc.Source)

	doc, err = p.Render(parsed, Options{Sanitize: true})
	require.NoError(t, err)
	assert.NotContains(t, doc.Source, "script")
	assert.Contains(t, doc.Source, "^1^")
}

func TestRenderDoesNotModifyInput(t *testing.T) {
	p := newTestPipeline(t, nil)
	parsed := &answer.ParsedAnswer{
		FormattedText: "<b>x</b> ^1^ [link](https://example.com)",
		Citations:     []answer.Citation{{Index: 1, Source: "doc1", Title: "One"}},
	}
	before := *parsed
	before.Citations = append([]answer.Citation(nil), parsed.Citations...)

	doc, err := p.Render(parsed, Options{Sanitize: true})
	require.NoError(t, err)
	assert.Equal(t, before, *parsed)

	doc.Citations[0].Title = "changed"
	assert.Equal(t, "One", parsed.Citations[0].Title)
}

func TestRenderCodeBlocks(t *testing.T) {
	p := newTestPipeline(t, nil)
	md := "```python\ndef f():\n    return 1\n```\n\n```\nplain <text>\n```\n\n```klingon-script\nqapla\n```\n"

	doc, err := p.Render(&answer.ParsedAnswer{FormattedText: md}, Options{})
	require.NoError(t, err)

	require.Len(t, doc.CodeBlocks, 3)
	assert.Equal(t, CodeBlock{Language: "python", Grammar: "Python"}, doc.CodeBlocks[0])
	assert.Equal(t, CodeBlock{}, doc.CodeBlocks[1])
	assert.Equal(t, CodeBlock{Language: "klingon-script"}, doc.CodeBlocks[2])

	assert.Contains(t, doc.HTML, `<span style="`)
	assert.Contains(t, doc.HTML, "<pre><code>plain &lt;text&gt;\n</code></pre>")
	assert.Contains(t, doc.HTML, "<pre><code>qapla\n</code></pre>")
}

func TestHighlighterFallsBackToPlain(t *testing.T) {
	h := NewHighlighter("")
	var b strings.Builder
	grammar, err := h.Highlight(&b, "", "a < b")
	require.NoError(t, err)
	assert.Empty(t, grammar)
	assert.Equal(t, "<pre><code>a &lt; b</code></pre>\n", b.String())

	b.Reset()
	grammar, err = h.Highlight(&b, "language-python", "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "Python", grammar)
	assert.NotContains(t, b.String(), "<pre><code>print(1)")
}

func TestRenderLinksOpenInNewTab(t *testing.T) {
	p := newTestPipeline(t, nil)
	doc, err := p.Render(&answer.ParsedAnswer{
		FormattedText: "See [the docs](https://example.com/docs) or https://go.dev today.",
	}, Options{})
	require.NoError(t, err)

	assert.Contains(t, doc.HTML, `<a href="https://example.com/docs" target="_blank" rel="noopener noreferrer">the docs</a>`)
	assert.Contains(t, doc.HTML, `<a href="https://go.dev" target="_blank" rel="noopener noreferrer">https://go.dev</a>`)
}

func TestRenderGFMAndSuperscript(t *testing.T) {
	p := newTestPipeline(t, nil)
	md := "| a | b |\n|---|---|\n| 1 | 2 |\n\n~~old~~ E = mc^2^ and the sky is blue ^1^."
	doc, err := p.Render(&answer.ParsedAnswer{
		FormattedText: md,
		Citations:     []answer.Citation{{Index: 1, Source: "doc1"}},
	}, Options{Sanitize: true})
	require.NoError(t, err)

	assert.Contains(t, doc.HTML, "<table>")
	assert.Contains(t, doc.HTML, "<del>old</del>")
	assert.Contains(t, doc.HTML, "<sup>2</sup>")
	assert.Contains(t, doc.HTML, `data-citation-index="1"`)
	assert.NotContains(t, doc.HTML, `data-citation-index="2"`)
}

func TestActivateCitation(t *testing.T) {
	var got []answer.Citation
	p := newTestPipeline(t, func(c answer.Citation) { got = append(got, c) })

	doc, err := p.Render(&answer.ParsedAnswer{
		FormattedText: "blue ^1^",
		Citations:     []answer.Citation{{Index: 1, Source: "doc1", Title: "Sky"}},
	}, Options{})
	require.NoError(t, err)

	c, err := doc.ActivateCitation(1)
	require.NoError(t, err)
	assert.Equal(t, "doc1", c.Source)
	assert.Equal(t, []answer.Citation{c}, got)

	_, err = doc.ActivateCitation(7)
	assert.ErrorIs(t, err, ErrUnknownCitation)
	assert.Len(t, got, 1)
}

func TestRenderNilAnswer(t *testing.T) {
	doc, err := newTestPipeline(t, nil).Render(nil, Options{Sanitize: true})
	require.NoError(t, err)
	assert.Empty(t, doc.Source)
	assert.Empty(t, doc.Citations)
}

func TestRenderErrorUnwraps(t *testing.T) {
	inner := errors.New("writer closed")
	var err error = &Error{Err: inner}
	assert.ErrorIs(t, err, inner)

	var rerr *Error
	assert.True(t, errors.As(err, &rerr))
	assert.Equal(t, "render answer: writer closed", err.Error())
}

func TestSetAllowedTags(t *testing.T) {
	p := newTestPipeline(t, nil)
	assert.Equal(t, "<b>x</b>", p.Sanitize("<b>x</b>"))
	p.SetAllowedTags([]string{"i"})
	assert.Equal(t, "x", p.Sanitize("<b>x</b>"))
}
