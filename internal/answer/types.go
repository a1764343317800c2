package answer

import "strings"

// GeneratingPlaceholder is the text a streaming answer carries until the first
// tokens arrive.
const GeneratingPlaceholder = "Generating answer..."

// Answer is a single AI-generated answer as delivered to the chat surface.
type Answer struct {
	// MessageID is empty for ephemeral/streaming answers. Such answers can never
	// acquire persisted feedback.
	MessageID string     `json:"message_id,omitempty" yaml:"message_id,omitempty"`
	Text      string     `json:"answer" yaml:"answer"`
	Feedback  string     `json:"feedback,omitempty" yaml:"feedback,omitempty"` // single token or comma-joined list
	Citations []Document `json:"citations,omitempty" yaml:"citations,omitempty"`
}

// Generating reports whether the answer is still the streaming placeholder.
func (a *Answer) Generating() bool {
	return a != nil && strings.TrimSpace(a.Text) == GeneratingPlaceholder
}

// Document is a candidate citation document delivered with an answer.
type Document struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Content  string `json:"content,omitempty" yaml:"content,omitempty"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	FilePath string `json:"filepath,omitempty" yaml:"filepath,omitempty"`
	ChunkID  string `json:"chunk_id,omitempty" yaml:"chunk_id,omitempty"`
}

// Citation is a document resolved against an inline marker.
type Citation struct {
	Index     int    `json:"index"`  // display ordinal, 1-based, first-seen order
	Source    string `json:"source"` // marker name, e.g. "doc1"
	Title     string `json:"title,omitempty"`
	Content   string `json:"content,omitempty"`
	URL       string `json:"url,omitempty"`
	FilePath  string `json:"filepath,omitempty"`
	ChunkID   string `json:"chunk_id,omitempty"`
	PartIndex int    `json:"part_index,omitempty"` // n-th citation from the same file
}

// ParsedAnswer is the immutable derived view of an Answer.
type ParsedAnswer struct {
	FormattedText string     `json:"markdownFormatText"`
	Citations     []Citation `json:"citations"`
}

// Citation returns the citation with the given display index.
func (p *ParsedAnswer) Citation(index int) (Citation, bool) {
	if p == nil {
		return Citation{}, false
	}
	for _, c := range p.Citations {
		if c.Index == index {
			return c, true
		}
	}
	return Citation{}, false
}

// Resolver rewrites inline citation markers to reference tokens.
// Implementations must be pure: identical input yields identical output.
type Resolver interface {
	Resolve(text string, docs []Document) (string, []Citation)
}
