package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// hiddenMark is the transient attribute set on elements that are hidden
// for the duration of one block's text extraction.
const hiddenMark = "data-readaloud-hidden"

// ignoredTags never contribute readable text.
var ignoredTags = map[atom.Atom]bool{
	atom.Applet: true, atom.Area: true, atom.Audio: true, atom.Button: true,
	atom.Canvas: true, atom.Frame: true, atom.Frameset: true, atom.Head: true,
	atom.Iframe: true, atom.Img: true, atom.Input: true, atom.Map: true,
	atom.Meter: true, atom.Noscript: true, atom.Object: true, atom.Embed: true,
	atom.Option: true, atom.Progress: true, atom.Script: true, atom.Select: true,
	atom.Source: true, atom.Style: true, atom.Svg: true, atom.Textarea: true,
	atom.Title: true, atom.Track: true, atom.Video: true, atom.Math: true,
}

// blockTags start a new line in rendered text.
var blockTags = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dd: true, atom.Details: true, atom.Dialog: true, atom.Div: true,
	atom.Dl: true, atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true,
	atom.Figure: true, atom.Footer: true, atom.Form: true, atom.Header: true,
	atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.Pre: true, atom.Section: true, atom.Summary: true,
	atom.Table: true, atom.Tbody: true, atom.Thead: true, atom.Tfoot: true,
	atom.Tr: true, atom.Ul: true, atom.Caption: true,
}

// paragraphTags are separated from their neighbours by a blank line.
var paragraphTags = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
}

// isHidden reports whether an element is not rendered at all.
func isHidden(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if _, ok := attr(n, "hidden"); ok {
		return true
	}
	if _, ok := attr(n, hiddenMark); ok {
		return true
	}
	if attrVal(n, "aria-hidden") == "true" {
		return true
	}
	if n.DataAtom == atom.Template && !isShadowRoot(n) {
		return true
	}
	st := inlineStyle(n)
	return st["display"] == "none" || st["visibility"] == "hidden"
}

// skipText reports whether an element and its subtree are left out of
// rendered text.
func skipText(n *html.Node) bool {
	return n.Type == html.ElementNode && (ignoredTags[n.DataAtom] || isHidden(n))
}

// textWriter accumulates rendered text with browser-like whitespace rules:
// runs of whitespace collapse to one space, block boundaries become line
// breaks, paragraphs become blank lines.
type textWriter struct {
	b         strings.Builder
	pendingNL int
	space     bool
}

func (w *textWriter) text(s string) {
	if s == "" {
		return
	}
	collapsed := strings.Join(strings.Fields(s), " ")
	leading := isSpaceByte(s[0])
	trailing := isSpaceByte(s[len(s)-1])
	if collapsed == "" {
		w.space = w.space || leading
		return
	}
	if w.b.Len() > 0 {
		switch {
		case w.pendingNL > 0:
			w.b.WriteString(strings.Repeat("\n", w.pendingNL))
		case w.space || leading:
			w.b.WriteByte(' ')
		}
	}
	w.pendingNL = 0
	w.b.WriteString(collapsed)
	w.space = trailing
}

func (w *textWriter) pre(s string) {
	if w.b.Len() > 0 && w.pendingNL > 0 {
		w.b.WriteString(strings.Repeat("\n", w.pendingNL))
	}
	w.pendingNL = 0
	w.space = false
	w.b.WriteString(s)
}

func (w *textWriter) breakLines(n int) {
	if w.pendingNL < n {
		w.pendingNL = n
	}
	w.space = false
}

func (w *textWriter) lineBreak() {
	if w.pendingNL < 2 {
		w.pendingNL++
	}
	w.space = false
}

func (w *textWriter) String() string { return strings.TrimSpace(w.b.String()) }

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// innerText approximates HTMLElement.innerText for the subtree at n.
func innerText(n *html.Node) string {
	var w textWriter
	renderText(n, &w, false)
	return w.String()
}

func renderText(n *html.Node, w *textWriter, inPre bool) {
	switch n.Type {
	case html.TextNode:
		if inPre {
			w.pre(n.Data)
		} else {
			w.text(n.Data)
		}
		return
	case html.ElementNode:
		if skipText(n) {
			return
		}
	case html.DocumentNode:
	default:
		return
	}

	if n.DataAtom == atom.Br {
		w.lineBreak()
		return
	}

	gap := 0
	switch {
	case paragraphTags[n.DataAtom]:
		gap = 2
	case blockTags[n.DataAtom]:
		gap = 1
	}
	if gap > 0 {
		w.breakLines(gap)
	}
	if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
		w.space = true
	}

	pre := inPre || n.DataAtom == atom.Pre
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, w, pre)
	}

	if gap > 0 {
		w.breakLines(gap)
	}
}

// textLen is the rendered length in characters.
func textLen(s string) int { return utf8.RuneCountInString(s) }

// directTextLen returns the length of the longest direct text child after
// trimming.
func directTextLen(n *html.Node) int {
	max := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		if l := textLen(strings.TrimSpace(c.Data)); l > max {
			max = l
		}
	}
	return max
}

var unterminatedLine = regexp.MustCompile(`(\w)(\r?\n)`)

// repairPunctuation terminates lines that end in a word character so the
// segmenter treats them as sentences.
func repairPunctuation(s string) string {
	return unterminatedLine.ReplaceAllString(s, "$1.$2")
}
