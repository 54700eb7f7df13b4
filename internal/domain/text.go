// Package domain defines the core types and interfaces for the read-aloud
// pipeline. All other packages depend on domain; domain depends only on the
// HTML node type it hands around during extraction.
package domain

import "golang.org/x/net/html"

// TextBlock is one extracted unit of readable content.
type TextBlock struct {
	Text string

	// MultiPart is set when the block expands into several sub-texts
	// (list items, table rows, definition entries).
	MultiPart bool
	Parts     []string

	// Node is the source element. Valid only during the extraction pass
	// that produced the block.
	Node *html.Node `json:"-"`
}

// Sentence is one indexed unit of speakable text.
type Sentence struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	NewParagraph bool   `json:"startsNewParagraph"`
}

// Texts returns the plain text of each sentence.
func Texts(sentences []Sentence) []string {
	out := make([]string, len(sentences))
	for i, s := range sentences {
		out[i] = s.Text
	}
	return out
}
