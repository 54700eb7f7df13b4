// Package segment turns readable text into an indexed sentence sequence.
//
// Splitting is purely lexical: a sentence is a run of characters that are
// not '.', '!' or '?', followed by one or more of them and an optional
// closing quote, or the remaining run to the end of the paragraph.
// Abbreviations and decimal numbers are not special-cased.
package segment

import (
	"regexp"
	"strings"

	"github.com/hammamikhairi/readaloud/internal/domain"
)

// Mode selects how paragraphs are delimited.
type Mode int

const (
	// ModeBlankLine splits paragraphs on two or more consecutive newlines.
	ModeBlankLine Mode = iota
	// ModeLine treats every non-empty line as its own paragraph.
	ModeLine
)

var (
	sentenceRe  = regexp.MustCompile(`[^.!?]+[.!?]+["']?|[^.!?]+$`)
	blankLineRe = regexp.MustCompile(`\n{2,}`)
	lineRe      = regexp.MustCompile(`\r?\n`)
)

// Split segments text into sentences numbered contiguously from 0.
// Identical input always yields an identical sequence.
func Split(text string, mode Mode) []domain.Sentence {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	switch mode {
	case ModeLine:
		paragraphs = lineRe.Split(text, -1)
	default:
		paragraphs = blankLineRe.Split(text, -1)
	}

	var out []domain.Sentence
	for _, para := range paragraphs {
		first := true
		for _, s := range sentences(para) {
			out = append(out, domain.Sentence{
				Index:        len(out),
				Text:         s,
				NewParagraph: first,
			})
			first = false
		}
	}
	return out
}

// FromBlocks segments extracted blocks, one paragraph per block.
func FromBlocks(blocks []domain.TextBlock, mode Mode) []domain.Sentence {
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return Split(strings.Join(texts, "\n\n"), mode)
}

// Join rebuilds text from sentences, separating paragraphs with a blank
// line and sentences inside a paragraph with a single space. Splitting the
// result with ModeBlankLine reproduces the same sentence texts.
func Join(sentences []domain.Sentence) string {
	var b strings.Builder
	for i, s := range sentences {
		if i > 0 {
			if s.NewParagraph {
				b.WriteString("\n\n")
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// sentences splits one paragraph. A paragraph with no match at all (e.g.
// only punctuation) falls back to the whole trimmed paragraph.
func sentences(para string) []string {
	matches := sentenceRe.FindAllString(para, -1)
	if matches == nil {
		matches = []string{para}
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if t := strings.TrimSpace(m); t != "" {
			out = append(out, t)
		}
	}
	return out
}
