package extract

import (
	"fmt"

	"github.com/gobwas/glob"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Default class/id patterns. A token matching a noise pattern marks the
// element as navigation, advertising or other chrome; a safe pattern
// overrides that verdict.
var (
	DefaultNoisePatterns = []string{
		"nav", "nav-*", "*-nav", "*navbar*", "*navigation*",
		"menu", "menu-*", "*-menu",
		"ad", "ads", "ad-*", "*-ad", "*advert*", "*sponsor*", "*promo*",
		"*sidebar*", "*footer*", "*masthead*", "*breadcrumb*",
		"*comment*", "*share*", "*social*", "*related*",
		"*cookie*", "*consent*", "*banner*", "*popup*", "*modal*",
		"*newsletter*", "*subscribe*", "skip-link*",
	}
	DefaultSafePatterns = []string{
		"*content*", "*article*", "*post*", "*entry*", "*story*", "main", "main-*",
	}
)

var noiseTags = map[atom.Atom]bool{
	atom.Nav: true, atom.Aside: true, atom.Footer: true, atom.Header: true,
	atom.Menu: true, atom.Dialog: true,
}

var noiseRoles = map[string]bool{
	"navigation": true, "banner": true, "contentinfo": true,
	"complementary": true, "menu": true, "menubar": true,
	"search": true, "dialog": true, "alert": true,
}

// classifier decides whether an element is page chrome rather than content.
type classifier struct {
	noise []glob.Glob
	safe  []glob.Glob
}

func newClassifier(noise, safe []string) (*classifier, error) {
	c := &classifier{}
	for _, p := range noise {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("noise pattern %q: %w", p, err)
		}
		c.noise = append(c.noise, g)
	}
	for _, p := range safe {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("safe pattern %q: %w", p, err)
		}
		c.safe = append(c.safe, g)
	}
	return c, nil
}

func matchAny(globs []glob.Glob, toks []string) bool {
	for _, t := range toks {
		for _, g := range globs {
			if g.Match(t) {
				return true
			}
		}
	}
	return false
}

// isNoise reports whether the element itself matches the noise set.
func (c *classifier) isNoise(n *html.Node) bool {
	if !isElement(n) {
		return false
	}
	if noiseTags[n.DataAtom] || noiseRoles[attrVal(n, "role")] {
		return true
	}
	return matchAny(c.noise, tokens(n))
}

// isSafe reports whether the element matches the safe override list.
func (c *classifier) isSafe(n *html.Node) bool {
	if isElement(n, atom.Article, atom.Main) || attrVal(n, "role") == "main" {
		return true
	}
	return matchAny(c.safe, tokens(n))
}

// excluded reports whether n is noise or nested inside noise, unless n
// itself is on the safe list.
func (c *classifier) excluded(n *html.Node) bool {
	if c.isSafe(n) {
		return false
	}
	for p := n; p != nil; p = p.Parent {
		if c.isNoise(p) {
			return true
		}
	}
	return false
}

// rejected is the walk-time check: the element itself is noise and not safe.
func (c *classifier) rejected(n *html.Node) bool {
	return c.isNoise(n) && !c.isSafe(n)
}

// floating reports elements positioned outside the normal flow, which
// are usually overlays, share bars or pull quotes.
func floating(n *html.Node) bool {
	st := inlineStyle(n)
	if st == nil {
		return false
	}
	switch st["position"] {
	case "fixed", "sticky":
		return true
	}
	switch st["float"] {
	case "left", "right":
		return true
	}
	return false
}
