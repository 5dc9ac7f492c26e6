// Package report renders the channel status message.
//
// A report is a Document: an ordered list of styled text spans. Transports
// decide how to encode the styling (MTProto entities, Bot API HTML), while
// Text and Markdown give stable renderings for logs and tests.
package report

import (
	"html"
	"strings"
)

// Style is the formatting applied to a span.
type Style int

const (
	Plain Style = iota
	Bold
	Italic
	Code
)

// Span is a run of text sharing one style.
type Span struct {
	Text  string
	Style Style
}

// Document is a styled message body.
type Document []Span

// Text returns the document without any formatting.
func (d Document) Text() string {
	var b strings.Builder
	for _, s := range d {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Markdown returns the document using ** for bold, __ for italic and
// backticks for code.
func (d Document) Markdown() string {
	var b strings.Builder
	for _, s := range d {
		switch s.Style {
		case Bold:
			b.WriteString("**" + s.Text + "**")
		case Italic:
			b.WriteString("__" + s.Text + "__")
		case Code:
			b.WriteString("`" + s.Text + "`")
		default:
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// HTML returns the document in the Telegram Bot API HTML dialect.
func (d Document) HTML() string {
	var b strings.Builder
	for _, s := range d {
		text := html.EscapeString(s.Text)
		switch s.Style {
		case Bold:
			b.WriteString("<b>" + text + "</b>")
		case Italic:
			b.WriteString("<i>" + text + "</i>")
		case Code:
			b.WriteString("<code>" + text + "</code>")
		default:
			b.WriteString(text)
		}
	}
	return b.String()
}

// builder appends spans, merging adjacent plain text.
type builder struct {
	doc Document
}

func (b *builder) add(style Style, text string) *builder {
	if text == "" {
		return b
	}
	if n := len(b.doc); n > 0 && style == Plain && b.doc[n-1].Style == Plain {
		b.doc[n-1].Text += text
		return b
	}
	b.doc = append(b.doc, Span{Text: text, Style: style})
	return b
}

func (b *builder) plain(text string) *builder  { return b.add(Plain, text) }
func (b *builder) bold(text string) *builder   { return b.add(Bold, text) }
func (b *builder) italic(text string) *builder { return b.add(Italic, text) }
func (b *builder) code(text string) *builder   { return b.add(Code, text) }
