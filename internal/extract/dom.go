package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ── Node helpers ─────────────────────────────────────────────────

func isElement(n *html.Node, tags ...atom.Atom) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.DataAtom == t {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrVal(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// tokens returns the class names and id of an element, lower-cased.
func tokens(n *html.Node) []string {
	var out []string
	for _, c := range strings.Fields(attrVal(n, "class")) {
		out = append(out, strings.ToLower(c))
	}
	if id := strings.TrimSpace(attrVal(n, "id")); id != "" {
		out = append(out, strings.ToLower(id))
	}
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func childElements(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// findFirst returns the first node in document order matching pred.
func findFirst(root *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if m := findFirst(c, pred); m != nil {
			return m
		}
	}
	return nil
}

// findAll returns every descendant of root (root included) matching pred,
// in document order.
func findAll(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if pred(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return out
}

func isAncestor(anc, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}

func findBody(doc *html.Node) *html.Node {
	if b := findFirst(doc, func(n *html.Node) bool { return isElement(n, atom.Body) }); b != nil {
		return b
	}
	return doc
}

// headingLevel returns 1-6 for h1-h6 and 100 for anything else.
func headingLevel(n *html.Node) int {
	switch {
	case isElement(n, atom.H1):
		return 1
	case isElement(n, atom.H2):
		return 2
	case isElement(n, atom.H3):
		return 3
	case isElement(n, atom.H4):
		return 4
	case isElement(n, atom.H5):
		return 5
	case isElement(n, atom.H6):
		return 6
	}
	return 100
}

func isHeading(n *html.Node) bool { return headingLevel(n) < 100 }

// previousNode steps backwards through the document in reverse pre-order:
// the previous sibling's deepest last descendant, or the parent.
func previousNode(n *html.Node) *html.Node {
	if n.PrevSibling != nil {
		p := n.PrevSibling
		for p.LastChild != nil {
			p = p.LastChild
		}
		return p
	}
	return n.Parent
}

// isShadowRoot reports whether n is a declarative shadow root template.
func isShadowRoot(n *html.Node) bool {
	if !isElement(n, atom.Template) {
		return false
	}
	if _, ok := attr(n, "shadowrootmode"); ok {
		return true
	}
	_, ok := attr(n, "shadowroot")
	return ok
}

// ── Style ────────────────────────────────────────────────────────

// inlineStyle parses a style attribute into lower-cased property/value
// pairs with whitespace removed.
func inlineStyle(n *html.Node) map[string]string {
	raw := attrVal(n, "style")
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, decl := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.Join(strings.Fields(v), ""))
		v = strings.TrimSuffix(v, "!important")
		out[k] = v
	}
	return out
}
