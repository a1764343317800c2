package render

import (
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var (
	attrTarget = []byte("_blank")
	attrRel    = []byte("noopener noreferrer")
)

// newTabLinks makes every link and autolink open in a new browsing context.
type newTabLinks struct{}

func (t *newTabLinks) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindLink, ast.KindAutoLink:
			n.SetAttributeString("target", attrTarget)
			n.SetAttributeString("rel", attrRel)
		}
		return ast.WalkContinue, nil
	})
}
