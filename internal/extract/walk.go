package extract

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hammamikhairi/readaloud/internal/domain"
)

const (
	maxFrameDepth = 4
	// minTrimSamples is how many blocks the running distribution needs
	// before a block can count as an outlier.
	minTrimSamples = 3
)

// unit is one emitted content block together with the headings that
// introduce it.
type unit struct {
	headings []domain.TextBlock
	block    domain.TextBlock
}

func (u unit) chars() int {
	n := textLen(u.block.Text)
	for _, h := range u.headings {
		n += textLen(h.Text)
	}
	return n
}

// safeWalk runs the structural walk at the high threshold, retrying at the
// low threshold with outlier trimming when too little text comes back.
// A panic anywhere in the walk is turned into an error.
func (e *Extractor) safeWalk(root *html.Node) (blocks []domain.TextBlock, err error) {
	defer func() {
		if r := recover(); r != nil {
			blocks = nil
			err = fmt.Errorf("structural walk: %v", r)
		}
	}()

	units, err := e.walk(root, highThreshold)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, u := range units {
		total += u.chars()
	}
	if total < retryBelowChars {
		e.log.Debug("only %d chars at threshold %d, retrying at %d", total, highThreshold, lowThreshold)
		units, err = e.walk(root, lowThreshold)
		if err != nil {
			return nil, err
		}
		units = trimOutliers(units)
	}

	for _, u := range units {
		blocks = append(blocks, u.headings...)
		blocks = append(blocks, u.block)
	}
	return blocks, nil
}

func (e *Extractor) walk(root *html.Node, threshold int) ([]unit, error) {
	w := &walker{e: e, threshold: threshold}
	if err := w.visit(root); err != nil {
		return nil, err
	}
	return w.units, nil
}

type walker struct {
	e         *Extractor
	threshold int
	units     []unit
	prev      *html.Node // last emitted block
	depth     int        // iframe nesting
}

func (w *walker) visit(n *html.Node) error {
	if n.Type == html.DocumentNode {
		return w.visit(findBody(n))
	}
	if n.Type != html.ElementNode {
		return nil
	}

	if isElement(n, atom.Iframe, atom.Frame) {
		return w.visitFrame(n)
	}
	if skipText(n) || w.e.cls.rejected(n) {
		return nil
	}

	switch n.DataAtom {
	case atom.Dl:
		return w.add(n, true)

	case atom.Ol, atom.Ul:
		if listHasText(n) {
			return w.add(n, true)
		}
		return w.visitChildren(n)

	case atom.Tbody:
		rows := childElements(n)
		cols := 0
		if len(rows) > 0 {
			cols = len(childElements(rows[0]))
		}
		if len(rows) > 3 || cols > 3 {
			return w.add(n, true)
		}
		for _, row := range rows {
			if err := w.visit(row); err != nil {
				return err
			}
		}
		return nil
	}

	if directTextLen(n) >= w.threshold {
		return w.add(n, false)
	}
	return w.visitChildren(n)
}

// visitChildren recurses into light-DOM children; declarative shadow roots
// are ordinary template children, so they are walked in the same pass.
func (w *walker) visitChildren(n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := w.visit(c); err != nil {
			return err
		}
	}
	return nil
}

// visitFrame descends into an iframe document. Frames that cannot be
// loaded are skipped without error.
func (w *walker) visitFrame(n *html.Node) error {
	if w.depth >= maxFrameDepth {
		return nil
	}

	var doc *html.Node
	var err error
	if srcdoc, ok := attr(n, "srcdoc"); ok {
		doc, err = html.Parse(strings.NewReader(srcdoc))
	} else if src := attrVal(n, "src"); src != "" && w.e.frames != nil {
		doc, err = w.e.frames.ResolveFrame(src)
	} else {
		return nil
	}
	if err != nil || doc == nil {
		w.e.log.Debug("skipping frame %q: %v", attrVal(n, "src"), err)
		return nil
	}

	w.depth++
	defer func() { w.depth-- }()
	return w.visit(doc)
}

// listHasText reports whether any item carries direct text or a nested
// paragraph, in which case the list is read as one block.
func listHasText(list *html.Node) bool {
	for _, li := range listItems(list) {
		if directTextLen(li) > 0 {
			return true
		}
		for _, c := range childElements(li) {
			if c.DataAtom == atom.P {
				return true
			}
		}
	}
	return false
}

// add emits n as one atomic block, preceded by its headings.
func (w *walker) add(n *html.Node, multi bool) error {
	var text string
	var parts []string
	err := w.e.withHidden(n, func() error {
		return withNumbering(n, func() error {
			text = innerText(n)
			if multi {
				parts = partTexts(n)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	text = repairPunctuation(text)
	if text == "" {
		return nil
	}

	w.units = append(w.units, unit{
		headings: w.headingsFor(n),
		block:    domain.TextBlock{Text: text, MultiPart: multi, Parts: parts, Node: n},
	})
	w.prev = n
	return nil
}

// partTexts splits a multi-part block into its items.
func partTexts(n *html.Node) []string {
	var items []*html.Node
	switch n.DataAtom {
	case atom.Ol, atom.Ul:
		items = listItems(n)
	default:
		items = childElements(n)
	}

	var parts []string
	for _, it := range items {
		if t := repairPunctuation(innerText(it)); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}

// headingsFor walks backwards from block to the previously emitted block,
// collecting headings whose level is strictly above the level found so
// far. The block's own first heading or paragraph sets the starting
// level. Results are in document order.
func (w *walker) headingsFor(block *html.Node) []domain.TextBlock {
	level := 100
	inner := findFirst(block, func(d *html.Node) bool {
		return isElement(d, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.P) && !isHidden(d)
	})
	if inner != nil {
		level = headingLevel(inner)
	}

	var found []*html.Node
	for node := previousNode(block); node != nil && level > 1; node = previousNode(node) {
		if w.prev != nil && isAncestor(w.prev, node) {
			break
		}
		if !isHeading(node) || !w.headingVisible(node) {
			continue
		}
		if l := headingLevel(node); l < level {
			found = append(found, node)
			level = l
		}
	}

	out := make([]domain.TextBlock, 0, len(found))
	for i := len(found) - 1; i >= 0; i-- {
		if t := repairPunctuation(innerText(found[i])); t != "" {
			out = append(out, domain.TextBlock{Text: t, Node: found[i]})
		}
	}
	return out
}

// headingVisible rejects headings inside hidden subtrees or page chrome.
// Headers are allowed through since article titles usually live there.
func (w *walker) headingVisible(h *html.Node) bool {
	for p := h; p != nil; p = p.Parent {
		if skipText(p) {
			return false
		}
		if p.DataAtom != atom.Header && w.e.cls.rejected(p) {
			return false
		}
	}
	return true
}

// ── Outlier trimming ─────────────────────────────────────────────

// gaussian is a running mean/variance (Welford).
type gaussian struct {
	n    int
	mean float64
	m2   float64
}

func (g *gaussian) add(x float64) {
	g.n++
	d := x - g.mean
	g.mean += d / float64(g.n)
	g.m2 += d * (x - g.mean)
}

func (g *gaussian) stdev() float64 {
	if g.n == 0 {
		return 0
	}
	return math.Sqrt(g.m2 / float64(g.n))
}

// firstOutlier returns the index of the first length exceeding the
// running mean + 2σ of everything before it, or 0 when there is none.
func firstOutlier(lengths []int) int {
	var g gaussian
	for i, l := range lengths {
		if g.n >= minTrimSamples && float64(l) > g.mean+2*g.stdev() {
			return i
		}
		g.add(float64(l))
	}
	return 0
}

// trimOutliers drops header boilerplate before the first outlier seen
// from the start and footer boilerplate after the first outlier seen from
// the end.
func trimOutliers(units []unit) []unit {
	if len(units) <= minTrimSamples {
		return units
	}

	lengths := make([]int, len(units))
	for i, u := range units {
		lengths[i] = textLen(u.block.Text)
	}
	start := firstOutlier(lengths)

	reversed := make([]int, len(lengths))
	for i, l := range lengths {
		reversed[len(lengths)-1-i] = l
	}
	end := len(units) - 1
	if j := firstOutlier(reversed); j > 0 {
		end = len(units) - 1 - j
	}

	if start > end {
		return units
	}
	return units[start : end+1]
}
