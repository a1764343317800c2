package render

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
)

var plainMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM, Superscripts))

// PlainText extracts the human-readable text of a formatted answer: markup,
// raw HTML and citation tokens are dropped, one block per line.
func PlainText(markdown string) string {
	src := []byte(answer.StripCitationTokens(markdown))
	root := plainMarkdown.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *CitationRef, *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				b.WriteString(codeText(n, src))
				b.WriteByte('\n')
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			if entering {
				b.Write(node.Label(src))
			}
			return ast.WalkContinue, nil
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				switch {
				case node.HardLineBreak():
					b.WriteByte('\n')
				case node.SoftLineBreak():
					b.WriteByte(' ')
				}
			}
			return ast.WalkContinue, nil
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
			return ast.WalkContinue, nil
		}

		if !entering && n.Type() == ast.TypeBlock {
			if n.Kind() == east.KindTableCell {
				b.WriteByte(' ')
			} else {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	return tidyLines(b.String())
}

func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
