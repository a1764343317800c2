package render

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultAllowedTags is the HTML allow-list applied to answer text.
var DefaultAllowedTags = []string{
	"a", "abbr", "address", "area", "article", "aside", "audio",
	"b", "bdi", "bdo", "big", "blockquote", "br",
	"caption", "center", "cite", "code", "col", "colgroup",
	"dd", "del", "details", "div", "dl", "dt",
	"em", "font", "footer",
	"h1", "h2", "h3", "h4", "h5", "h6", "header", "hr",
	"i", "img", "ins", "li", "mark", "nav", "ol", "p", "pre",
	"s", "section", "small", "span", "strike", "strong", "sub", "summary", "sup",
	"table", "tbody", "td", "tfoot", "th", "thead", "tr", "tt", "u", "ul",
}

// escapeAmp doubles every ampersand so that entities already present in the
// source come back out of the HTML round trip unchanged.
var escapeAmp = strings.NewReplacer("&", "&amp;")

// The HTML serializer escapes these in text nodes. Markdown needs them back:
// ">" starts blockquotes, quotes and ampersands are plain prose. "&lt;" stays
// escaped so that text never turns into a tag.
var unescapeText = strings.NewReplacer(
	"&gt;", ">",
	"&amp;", "&",
	"&#34;", `"`,
	"&#39;", "'",
	"&#13;", "\r",
)

// Attribute values keep their escaping; only the doubled ampersands go.
var unescapeAttr = strings.NewReplacer("&amp;", "&")

// Sanitizer strips HTML elements and attributes that are not allow-listed
// from markdown source. It is text in, text out.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds a sanitizer for tags. An empty list uses
// DefaultAllowedTags.
func NewSanitizer(tags []string) *Sanitizer {
	if len(tags) == 0 {
		tags = DefaultAllowedTags
	}
	p := bluemonday.NewPolicy()
	p.AllowElements(tags...)
	p.AllowStandardURLs()
	p.AllowAttrs("href", "title").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	p.AllowAttrs("colspan", "rowspan", "align").OnElements("td", "th")
	p.AllowAttrs("dir", "lang").Globally()
	return &Sanitizer{policy: p}
}

// Sanitize returns s without disallowed markup. Sanitize(Sanitize(s)) equals
// Sanitize(s).
func (s *Sanitizer) Sanitize(text string) string {
	return restore(s.policy.Sanitize(escapeAmp.Replace(text)))
}

// restore undoes the serializer's escaping once. Sanitized output only holds
// '<' and '>' as tag delimiters, so everything outside them is text.
func restore(html string) string {
	var b strings.Builder
	b.Grow(len(html))
	for html != "" {
		open := strings.IndexByte(html, '<')
		if open < 0 {
			b.WriteString(unescapeText.Replace(html))
			break
		}
		b.WriteString(unescapeText.Replace(html[:open]))
		html = html[open:]
		end := strings.IndexByte(html, '>')
		if end < 0 {
			b.WriteString(unescapeAttr.Replace(html))
			break
		}
		b.WriteString(unescapeAttr.Replace(html[:end+1]))
		html = html[end+1:]
	}
	return b.String()
}
