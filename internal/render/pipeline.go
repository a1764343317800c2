package render

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
)

var ErrUnknownCitation = errors.New("unknown citation")

// Error is a failure to render one answer. It never affects other answers.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "render answer: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// CitationHandler is invoked when a rendered citation reference is activated.
type CitationHandler func(answer.Citation)

// Options are per-render switches.
type Options struct {
	Sanitize bool
}

// Config configures a Pipeline.
type Config struct {
	AllowedTags []string
	Style       string
	OnCitation  CitationHandler
}

// Document is a rendered answer.
type Document struct {
	// Source is the markdown that was parsed: the formatted text, sanitized
	// when requested.
	Source     string
	HTML       string
	Citations  []answer.Citation
	CodeBlocks []CodeBlock

	onCitation CitationHandler
}

// ActivateCitation looks up the citation with the given display index and
// hands it to the citation handler.
func (d *Document) ActivateCitation(index int) (answer.Citation, error) {
	for _, c := range d.Citations {
		if c.Index == index {
			metrics.CitationActivations.WithLabelValues("ok").Inc()
			if d.onCitation != nil {
				d.onCitation(c)
			}
			return c, nil
		}
	}
	metrics.CitationActivations.WithLabelValues("unknown").Inc()
	return answer.Citation{}, fmt.Errorf("%w: %d", ErrUnknownCitation, index)
}

// Pipeline turns formatted answer text into HTML.
//
// Node kinds map to strategies as follows: text-like blocks and inlines use
// goldmark's HTML renderer; fenced and indented code go to the Highlighter;
// links and autolinks carry target/rel set by the newTabLinks transformer;
// ^N^ tokens naming a citation render as CitationRef anchors and any other
// ^text^ as <sup>.
type Pipeline struct {
	md         goldmark.Markdown
	sanitizer  atomic.Pointer[Sanitizer]
	hl         *Highlighter
	onCitation CitationHandler
	logger     *zap.Logger
}

// NewPipeline creates a render pipeline
func NewPipeline(cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	hl := NewHighlighter(cfg.Style)
	p := &Pipeline{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, Superscripts),
			goldmark.WithParserOptions(
				parser.WithASTTransformers(util.Prioritized(&newTabLinks{}, 100)),
			),
			goldmark.WithRendererOptions(
				renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{hl: hl}, 100)),
			),
		),
		hl:         hl,
		onCitation: cfg.OnCitation,
		logger:     logger,
	}
	p.sanitizer.Store(NewSanitizer(cfg.AllowedTags))
	return p
}

// SetAllowedTags swaps the sanitizer allow-list for subsequent renders.
func (p *Pipeline) SetAllowedTags(tags []string) {
	p.sanitizer.Store(NewSanitizer(tags))
}

// Sanitize applies the current allow-list to text.
func (p *Pipeline) Sanitize(text string) string {
	return p.sanitizer.Load().Sanitize(text)
}

// Render renders parsed. The input is never modified. Failures are returned
// as *Error.
func (p *Pipeline) Render(parsed *answer.ParsedAnswer, opts Options) (doc *Document, err error) {
	start := time.Now()
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Err: fmt.Errorf("panic: %v", r)}
			doc = nil
		}
		if err != nil {
			status = "error"
			p.logger.Error("Failed to render answer", zap.Error(err))
		}
		metrics.RendersTotal.WithLabelValues(fmt.Sprint(opts.Sanitize), status).Inc()
		metrics.RenderDuration.Observe(time.Since(start).Seconds())
	}()

	if parsed == nil {
		parsed = &answer.ParsedAnswer{}
	}
	source := parsed.FormattedText
	if opts.Sanitize {
		source = p.Sanitize(source)
	}
	src := []byte(source)

	pc := parser.NewContext()
	withCitations(pc, parsed.Citations)
	root := p.md.Parser().Parse(text.NewReader(src), parser.WithContext(pc))

	blocks := p.codeBlocks(root, src)

	var buf bytes.Buffer
	if err := p.md.Renderer().Render(&buf, src, root); err != nil {
		return nil, &Error{Err: err}
	}

	cites := make([]answer.Citation, len(parsed.Citations))
	copy(cites, parsed.Citations)

	return &Document{
		Source:     source,
		HTML:       buf.String(),
		Citations:  cites,
		CodeBlocks: blocks,
		onCitation: p.onCitation,
	}, nil
}

func (p *Pipeline) codeBlocks(root ast.Node, src []byte) []CodeBlock {
	var blocks []CodeBlock
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			lang := codeLanguage(n, src)
			block := CodeBlock{Language: lang}
			if lexer := p.hl.Grammar(lang); lexer != nil {
				block.Grammar = lexer.Config().Name
			}
			grammar := block.Grammar
			if grammar == "" {
				grammar = "none"
			}
			metrics.CodeBlocksRendered.WithLabelValues(grammar).Inc()
			blocks = append(blocks, block)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}
