package render

import (
	"html"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// DefaultStyle is the chroma style used for code blocks.
const DefaultStyle = "nord"

// CodeBlock describes one rendered code block.
type CodeBlock struct {
	Language string `json:"language,omitempty"` // tag as written, empty when untagged
	Grammar  string `json:"grammar,omitempty"`  // chroma lexer name, empty for plain rendering
}

// Highlighter renders code through chroma, keyed by language tag.
type Highlighter struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// NewHighlighter creates a highlighter for the named chroma style; unknown
// names fall back to chroma's default style.
func NewHighlighter(style string) *Highlighter {
	if style == "" {
		style = DefaultStyle
	}
	return &Highlighter{
		style:     styles.Get(style),
		formatter: chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4)),
	}
}

// Grammar returns the lexer for a language tag, or nil when the tag is empty
// or unknown.
func (h *Highlighter) Grammar(language string) chroma.Lexer {
	language = strings.TrimSpace(strings.TrimPrefix(language, "language-"))
	if language == "" {
		return nil
	}
	return lexers.Get(language)
}

// Highlight writes code as HTML and returns the grammar used. Without a
// grammar, or if chroma fails, the code is written escaped inside plain
// <pre><code>.
func (h *Highlighter) Highlight(w io.Writer, language, code string) (string, error) {
	if lexer := h.Grammar(language); lexer != nil {
		lexer = chroma.Coalesce(lexer)
		if it, err := lexer.Tokenise(nil, code); err == nil {
			var b strings.Builder
			if err := h.formatter.Format(&b, h.style, it); err == nil {
				_, werr := io.WriteString(w, b.String())
				return lexer.Config().Name, werr
			}
		}
	}
	_, err := io.WriteString(w, "<pre><code>"+html.EscapeString(code)+"</code></pre>\n")
	return "", err
}

// codeBlockRenderer routes fenced and indented code blocks to the highlighter.
type codeBlockRenderer struct {
	hl *Highlighter
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderCode)
	reg.Register(ast.KindCodeBlock, r.renderCode)
}

func (r *codeBlockRenderer) renderCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	_, err := r.hl.Highlight(w, codeLanguage(node, source), codeText(node, source))
	return ast.WalkSkipChildren, err
}

func codeLanguage(node ast.Node, source []byte) string {
	if fenced, ok := node.(*ast.FencedCodeBlock); ok {
		if lang := fenced.Language(source); lang != nil {
			return string(lang)
		}
	}
	return ""
}

func codeText(node ast.Node, source []byte) string {
	var b strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}
