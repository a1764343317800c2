package citations

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
)

// markerPattern matches inline markers such as [doc1] or [doc12].
var markerPattern = regexp.MustCompile(`\[(doc(\d{1,3}))\]`)

// DocResolver resolves [docN] markers against the documents delivered with an answer.
//
// A marker names a document either by ID ("doc3" matches a document whose ID is
// "doc3") or, for documents without an ID, by 1-based position. Every distinct
// resolvable marker gets the next ordinal in first-seen order and all of its
// occurrences are rewritten to the same ^N^ token. Markers that resolve to no
// document stay in the text untouched.
type DocResolver struct {
	logger *zap.Logger
}

var _ answer.Resolver = (*DocResolver)(nil)

// NewResolver creates a resolver. A nil logger disables debug output.
func NewResolver(logger *zap.Logger) *DocResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocResolver{logger: logger}
}

// Resolve implements answer.Resolver.
func (r *DocResolver) Resolve(text string, docs []answer.Document) (string, []answer.Citation) {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		metrics.CitationsResolved.Observe(0)
		return text, nil
	}

	ordinals := make(map[string]int)
	unresolved := make(map[string]bool)
	var cites []answer.Citation

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		name := strings.ToLower(text[m[2]:m[3]])
		if unresolved[name] {
			continue
		}
		n, ok := ordinals[name]
		if !ok {
			pos, _ := strconv.Atoi(text[m[4]:m[5]])
			doc, found := lookup(name, pos, docs)
			if !found {
				unresolved[name] = true
				r.logger.Debug("Citation marker left unresolved",
					zap.String("marker", name),
					zap.Int("documents", len(docs)),
				)
				continue
			}
			n = len(cites) + 1
			ordinals[name] = n
			cites = append(cites, toCitation(n, name, doc))
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(answer.CitationToken(n))
		last = m[1]
	}
	b.WriteString(text[last:])

	assignPartIndices(cites)
	metrics.CitationsResolved.Observe(float64(len(cites)))
	return b.String(), cites
}

// lookup finds the document a marker refers to: a document whose ID equals
// the marker name, otherwise the document at position N.
func lookup(name string, pos int, docs []answer.Document) (answer.Document, bool) {
	for _, d := range docs {
		if strings.EqualFold(strings.TrimSpace(d.ID), name) {
			return d, true
		}
	}
	if pos >= 1 && pos <= len(docs) {
		return docs[pos-1], true
	}
	return answer.Document{}, false
}

func toCitation(index int, name string, d answer.Document) answer.Citation {
	return answer.Citation{
		Index:    index,
		Source:   name,
		Title:    resolveTitle(d, name),
		Content:  d.Content,
		URL:      strings.TrimSpace(d.URL),
		FilePath: d.FilePath,
		ChunkID:  d.ChunkID,
	}
}

// resolveTitle falls back from the document title to its file name, URL and
// finally the marker name so every citation has something to display.
func resolveTitle(d answer.Document, name string) string {
	if t := strings.TrimSpace(d.Title); t != "" {
		return t
	}
	if d.FilePath != "" {
		return path.Base(d.FilePath)
	}
	if u := strings.TrimSpace(d.URL); u != "" {
		return u
	}
	return name
}

// assignPartIndices numbers citations that come from the same file (or URL when
// the file path is unknown) 1, 2, 3... in display order.
func assignPartIndices(cites []answer.Citation) {
	seen := make(map[string]int)
	for i := range cites {
		key := cites[i].FilePath
		if key == "" {
			key = cites[i].URL
		}
		if key == "" {
			continue
		}
		seen[key]++
		cites[i].PartIndex = seen[key]
	}
}
