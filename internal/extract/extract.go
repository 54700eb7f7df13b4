// Package extract finds the main readable content of an HTML document and
// returns it as an ordered list of text blocks, leaving out navigation,
// advertising, menus and hidden elements.
//
// Extraction runs in two tiers. A fixed list of semantic selectors is tried
// first; if none yields enough text, container elements are scored by text
// length, paragraph count and link density. The chosen root is then walked
// structurally to produce blocks, with headings associated to the block
// they introduce. The document is left unmodified afterwards.
package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
)

// Tuning constants.
const (
	selectorMinChars       = 400
	simpleSelectorMinChars = 200
	simpleBlockMinChars    = 20
	linkDensityLimit       = 0.4
	linkDensityPenalty     = 0.2
	highThreshold          = 50
	lowThreshold           = 3
	retryBelowChars        = 1000
)

// NoTextMessage is shown when a page has nothing to read.
const NoTextMessage = "No readable text found on this page."

// FrameResolver loads the document behind an iframe. Implementations
// return an error for frames they cannot or may not read (cross-origin).
type FrameResolver interface {
	ResolveFrame(src string) (*html.Node, error)
}

// Option configures the Extractor.
type Option func(*Extractor)

// WithFrames enables descending into iframes through the given resolver.
func WithFrames(r FrameResolver) Option {
	return func(e *Extractor) {
		e.frames = r
	}
}

// WithSimple switches to the selector-only variant: a lower selector
// threshold, no scoring, and paragraph/heading/list-item blocks instead of
// the structural walk.
func WithSimple(simple bool) Option {
	return func(e *Extractor) {
		e.simple = simple
	}
}

// WithPatterns replaces the class/id glob patterns used for noise
// detection and its safe override.
func WithPatterns(noise, safe []string) Option {
	return func(e *Extractor) {
		e.noisePatterns = noise
		e.safePatterns = safe
	}
}

// selector is one entry of the semantic selector list.
type selector struct {
	name  string
	match func(*html.Node) bool
}

var contentSelectors = []selector{
	{"article", func(n *html.Node) bool { return isElement(n, atom.Article) }},
	{"main", func(n *html.Node) bool { return isElement(n, atom.Main) }},
	{"[role=main]", func(n *html.Node) bool { return isElement(n) && attrVal(n, "role") == "main" }},
	{".post-content", func(n *html.Node) bool { return isElement(n) && hasClass(n, "post-content") }},
	{".article-body", func(n *html.Node) bool { return isElement(n) && hasClass(n, "article-body") }},
	{".entry-content", func(n *html.Node) bool { return isElement(n) && hasClass(n, "entry-content") }},
	{".content", func(n *html.Node) bool { return isElement(n) && hasClass(n, "content") }},
	{"#content", func(n *html.Node) bool { return isElement(n) && attrVal(n, "id") == "content" }},
}

// Extractor pulls readable blocks out of HTML documents.
type Extractor struct {
	log           *logger.Logger
	frames        FrameResolver
	simple        bool
	noisePatterns []string
	safePatterns  []string
	cls           *classifier
}

// New creates an extractor. It fails only if a custom pattern is invalid.
func New(log *logger.Logger, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		log:           log.Named("extract"),
		noisePatterns: DefaultNoisePatterns,
		safePatterns:  DefaultSafePatterns,
	}
	for _, opt := range opts {
		opt(e)
	}
	cls, err := newClassifier(e.noisePatterns, e.safePatterns)
	if err != nil {
		return nil, err
	}
	e.cls = cls
	return e, nil
}

// Parse is a convenience that parses raw HTML and extracts from it.
func (e *Extractor) Parse(raw string) ([]domain.TextBlock, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return e.Extract(doc)
}

// Extract returns the main content of doc in reading order. If nothing
// readable is found it returns domain.ErrNoReadableText.
func (e *Extractor) Extract(doc *html.Node) ([]domain.TextBlock, error) {
	body := findBody(doc)
	root := e.selectRoot(doc, body)

	var blocks []domain.TextBlock
	var err error
	if e.simple {
		blocks = e.simpleBlocks(root)
	} else {
		blocks, err = e.safeWalk(root)
		if err != nil {
			e.log.Warn("structural walk failed, using body text: %v", err)
		}
	}
	if len(blocks) > 0 {
		e.log.Debug("extracted %d blocks", len(blocks))
		return blocks, nil
	}

	text := repairPunctuation(innerText(body))
	if text == "" {
		return nil, domain.ErrNoReadableText
	}
	e.log.Debug("falling back to body text (%d chars)", textLen(text))
	return []domain.TextBlock{{Text: text, Node: body}}, nil
}

// ExtractText returns the extracted blocks joined by blank lines.
func (e *Extractor) ExtractText(doc *html.Node) (string, error) {
	blocks, err := e.Extract(doc)
	if err != nil {
		return "", err
	}
	return JoinBlocks(blocks), nil
}

// JoinBlocks joins block texts with blank lines.
func JoinBlocks(blocks []domain.TextBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ── Root selection ───────────────────────────────────────────────

func (e *Extractor) selectRoot(doc, body *html.Node) *html.Node {
	min := selectorMinChars
	if e.simple {
		min = simpleSelectorMinChars
	}

	for _, sel := range contentSelectors {
		node := findFirst(doc, sel.match)
		if node == nil || isHidden(node) {
			continue
		}
		if l := textLen(innerText(node)); l > min {
			e.log.Debug("selector %s matched (%d chars)", sel.name, l)
			return node
		}
	}

	if e.simple {
		return body
	}
	if best := e.bestCandidate(body); best != nil {
		return best
	}
	return body
}

// bestCandidate scores container elements and returns the highest scorer,
// or nil when no candidate has any text.
func (e *Extractor) bestCandidate(body *html.Node) *html.Node {
	var best *html.Node
	bestScore := 0.0

	candidates := findAll(body, func(n *html.Node) bool {
		return isElement(n, atom.Div, atom.Section, atom.Article)
	})
	for _, c := range candidates {
		if isHidden(c) || e.cls.excluded(c) {
			continue
		}
		if s := score(c); s > bestScore {
			best, bestScore = c, s
		}
	}

	if best != nil {
		e.log.Debug("scoring picked <%s> score=%.1f", best.Data, bestScore)
	}
	return best
}

// score = length/10 + paragraphs*20, cut to a fifth for link-heavy nodes.
func score(n *html.Node) float64 {
	total := textLen(innerText(n))
	if total == 0 {
		return 0
	}

	paragraphs := 0
	linkChars := 0
	for _, d := range findAll(n, func(d *html.Node) bool { return isElement(d, atom.P, atom.A) }) {
		if d == n {
			continue
		}
		if d.DataAtom == atom.P {
			paragraphs++
		} else {
			linkChars += textLen(innerText(d))
		}
	}

	s := float64(total)/10 + float64(paragraphs)*20
	if float64(linkChars)/float64(total) > linkDensityLimit {
		s *= linkDensityPenalty
	}
	return s
}

// ── Simple variant ───────────────────────────────────────────────

func (e *Extractor) simpleBlocks(root *html.Node) []domain.TextBlock {
	nodes := findAll(root, func(n *html.Node) bool {
		return isElement(n, atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.Li)
	})

	var blocks []domain.TextBlock
	for _, n := range nodes {
		text := innerText(n)
		if textLen(text) > simpleBlockMinChars {
			blocks = append(blocks, domain.TextBlock{Text: repairPunctuation(text), Node: n})
		}
	}
	if len(nodes) == 0 {
		if text := innerText(root); text != "" {
			blocks = append(blocks, domain.TextBlock{Text: repairPunctuation(text), Node: root})
		}
	}
	return blocks
}
