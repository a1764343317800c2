package render

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
)

// KindSuperscript is the node kind of ^text^ spans.
var KindSuperscript = ast.NewNodeKind("Superscript")

// Superscript is an inline ^text^ span.
type Superscript struct {
	ast.BaseInline
}

func (n *Superscript) Kind() ast.NodeKind { return KindSuperscript }

func (n *Superscript) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// KindCitationRef is the node kind of resolved citation tokens.
var KindCitationRef = ast.NewNodeKind("CitationRef")

// CitationRef is a ^N^ token whose ordinal names a resolved citation.
type CitationRef struct {
	ast.BaseInline
	Citation answer.Citation
}

func (n *CitationRef) Kind() ast.NodeKind { return KindCitationRef }

func (n *CitationRef) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Index":  strconv.Itoa(n.Citation.Index),
		"Source": n.Citation.Source,
	}, nil)
}

var citationsKey = parser.NewContextKey()

// withCitations exposes the resolved citations to the superscript parser.
func withCitations(pc parser.Context, cites []answer.Citation) {
	m := make(map[int]answer.Citation, len(cites))
	for _, c := range cites {
		m[c.Index] = c
	}
	pc.Set(citationsKey, m)
}

type superscriptParser struct{}

func (p *superscriptParser) Trigger() []byte { return []byte{'^'} }

// Parse accepts ^content^ on a single line where content is non-empty and
// has no whitespace or caret. Numeric content becomes a CitationRef when the
// ordinal is a known citation, or when no citation set was provided.
func (p *superscriptParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, seg := block.PeekLine()
	if len(line) < 3 || line[0] != '^' {
		return nil
	}
	end := bytes.IndexByte(line[1:], '^')
	if end < 1 {
		return nil
	}
	content := line[1 : 1+end]
	if bytes.ContainsAny(content, " \t\r\n") {
		return nil
	}
	block.Advance(end + 2)

	if n, err := strconv.Atoi(string(content)); err == nil && isDigits(content) {
		switch known := pc.Get(citationsKey).(type) {
		case map[int]answer.Citation:
			if c, ok := known[n]; ok {
				return &CitationRef{Citation: c}
			}
		case nil:
			return &CitationRef{Citation: answer.Citation{Index: n}}
		}
	}

	node := &Superscript{}
	inner := text.NewSegment(seg.Start+1, seg.Start+1+end)
	node.AppendChild(node, ast.NewTextSegment(inner))
	return node
}

func isDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(b) > 0
}

type superscriptRenderer struct{}

func (r *superscriptRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindSuperscript, r.renderSuperscript)
	reg.Register(KindCitationRef, r.renderCitationRef)
}

func (r *superscriptRenderer) renderSuperscript(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("<sup>")
	} else {
		_, _ = w.WriteString("</sup>")
	}
	return ast.WalkContinue, nil
}

func (r *superscriptRenderer) renderCitationRef(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	c := node.(*CitationRef).Citation
	fmt.Fprintf(w,
		`<sup class="citation-ref"><a href="#citation-%d" role="button" data-citation-index="%d" aria-label="Citation %d">%d</a></sup>`,
		c.Index, c.Index, c.Index, c.Index)
	return ast.WalkSkipChildren, nil
}

// citationExtension adds ^text^ superscripts and citation references.
type citationExtension struct{}

func (e *citationExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(&superscriptParser{}, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&superscriptRenderer{}, 500),
	))
}

// Superscripts is the goldmark extension for ^text^ and citation tokens.
var Superscripts goldmark.Extender = &citationExtension{}
