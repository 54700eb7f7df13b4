package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// withHidden marks every descendant of root that should not be read
// (floating, fixed, ignored or noise elements) as hidden, runs fn, and
// restores the tree. Restoration happens on every exit path, including
// a panic inside fn.
func (e *Extractor) withHidden(root *html.Node, fn func() error) error {
	var marked []*html.Node
	defer func() {
		for _, n := range marked {
			removeAttr(n, hiddenMark)
		}
	}()

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if _, already := attr(c, hiddenMark); !already && e.shouldHide(c) {
				setAttr(c, hiddenMark, "")
				marked = append(marked, c)
				continue
			}
			visit(c)
		}
	}
	visit(root)

	return fn()
}

func (e *Extractor) shouldHide(n *html.Node) bool {
	return ignoredTags[n.DataAtom] || floating(n) || e.cls.rejected(n)
}

var visibleNumber = regexp.MustCompile(`^\s*\d+[.)]`)

// withNumbering injects "N. " markers into the items of every ordered or
// unordered list under root that does not already carry textual numbering, runs
// fn, and removes the markers again.
func withNumbering(root *html.Node, fn func() error) error {
	var injected []*html.Node
	defer func() {
		for _, n := range injected {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
		}
	}()

	for _, list := range findAll(root, func(n *html.Node) bool { return isElement(n, atom.Ol, atom.Ul) }) {
		items := listItems(list)
		if len(items) == 0 || visibleNumber.MatchString(innerText(items[0])) {
			continue
		}
		num, step := listStart(list, len(items))
		for _, li := range items {
			marker := &html.Node{Type: html.TextNode, Data: fmt.Sprintf("%d. ", num)}
			li.InsertBefore(marker, li.FirstChild)
			injected = append(injected, marker)
			num += step
		}
	}

	return fn()
}

func listItems(list *html.Node) []*html.Node {
	var out []*html.Node
	for _, c := range childElements(list) {
		if c.DataAtom == atom.Li {
			out = append(out, c)
		}
	}
	return out
}

// listStart honours the start and reversed attributes of <ol>. Unordered
// lists always count up from 1.
func listStart(list *html.Node, count int) (start, step int) {
	start, step = 1, 1
	if !isElement(list, atom.Ol) {
		return start, step
	}
	_, reversed := attr(list, "reversed")
	if reversed {
		start, step = count, -1
	}
	if v, ok := attr(list, "start"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			start = n
		}
	}
	return start, step
}
