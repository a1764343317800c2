package answer

import (
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/cache"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
)

const defaultParserCacheSize = 512

// Parser derives ParsedAnswers, memoized by Answer identity.
// A new *Answer always triggers a fresh resolution; the same pointer is served
// from the cache. Callers must treat Answers as immutable once parsed. Hits
// only happen for library callers that keep their *Answer and render it
// again; each HTTP render decodes a new value.
type Parser struct {
	resolver Resolver
	memo     *cache.LocalLRU[*Answer, *ParsedAnswer]
}

// NewParser creates a parser around resolver. size <= 0 uses the default.
func NewParser(resolver Resolver, size int) *Parser {
	if size <= 0 {
		size = defaultParserCacheSize
	}
	return &Parser{
		resolver: resolver,
		memo:     cache.NewLocalLRU[*Answer, *ParsedAnswer](size),
	}
}

// Parse returns the ParsedAnswer for a. A nil answer parses to an empty view.
func (p *Parser) Parse(a *Answer) *ParsedAnswer {
	if a == nil {
		return &ParsedAnswer{}
	}
	if parsed, ok := p.memo.Get(a); ok {
		metrics.ParseCacheHits.Inc()
		return parsed
	}
	metrics.ParseCacheMisses.Inc()

	text, cites := p.resolver.Resolve(a.Text, a.Citations)
	if cites == nil {
		cites = []Citation{}
	}
	parsed := &ParsedAnswer{FormattedText: text, Citations: cites}
	p.memo.Set(a, parsed, 0)
	return parsed
}
