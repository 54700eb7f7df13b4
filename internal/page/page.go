// Package page loads web pages for extraction: it refuses internal browser
// pages, fetches and decodes HTML, and resolves same-origin frames.
package page

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/extract"
	"github.com/hammamikhairi/readaloud/internal/logger"
)

// RestrictedMessage is shown instead of content for internal browser pages.
const RestrictedMessage = "Cannot read this internal browser page."

var restrictedPrefixes = []string{
	"chrome://",
	"edge://",
	"about:",
	"chrome-extension://",
	"view-source:",
}

// Restricted reports whether rawURL is an internal browser page that can
// never be read. An empty URL counts as restricted.
func Restricted(rawURL string) bool {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	if u == "" {
		return true
	}
	for _, p := range restrictedPrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	return false
}

// ErrNotHTML is returned for responses that are not HTML documents.
var ErrNotHTML = errors.New("not an html document")

// DefaultMaxBytes caps how much of a response body is read.
const DefaultMaxBytes = 8 << 20

// Option configures the Loader.
type Option func(*Loader)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.http = c }
}

// WithMaxBytes caps the response body size.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) { l.maxBytes = n }
}

// Loader fetches pages over HTTP.
type Loader struct {
	http     *http.Client
	maxBytes int64
	log      *logger.Logger
}

// NewLoader creates a page loader.
func NewLoader(log *logger.Logger, opts ...Option) *Loader {
	l := &Loader{
		http:     &http.Client{Timeout: 20 * time.Second},
		maxBytes: DefaultMaxBytes,
		log:      log.Named("page"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Page is a loaded document. It resolves its own frames so the extractor
// can descend into same-origin iframes.
type Page struct {
	URL *url.URL
	Doc *html.Node

	ctx    context.Context
	loader *Loader
}

// Compile-time interface check.
var _ extract.FrameResolver = (*Page)(nil)

// Load fetches and parses rawURL. Internal browser pages fail with
// domain.ErrRestrictedPage.
func (l *Loader) Load(ctx context.Context, rawURL string) (*Page, error) {
	if Restricted(rawURL) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRestrictedPage, RestrictedMessage)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	doc, final, err := l.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Page{URL: final, Doc: doc, ctx: ctx, loader: l}, nil
}

// ResolveFrame loads the document behind an iframe src, refusing anything
// that is not on the page's origin.
func (p *Page) ResolveFrame(src string) (*html.Node, error) {
	ref, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return nil, fmt.Errorf("frame src: %w", err)
	}
	u := p.URL.ResolveReference(ref)
	if !SameOrigin(p.URL, u) {
		return nil, fmt.Errorf("cross-origin frame %s", u)
	}
	doc, _, err := p.loader.fetch(p.ctx, u)
	return doc, err
}

// SameOrigin compares scheme, host and port.
func SameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		port(a) == port(b)
}

func port(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

// fetch returns the parsed document and the URL after redirects.
func (l *Loader) fetch(ctx context.Context, u *url.URL) (*html.Node, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("User-Agent", "ReadAloud/1.0")

	l.log.Debug("GET %s", u)
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("fetching %s: %s", u, resp.Status)
	}

	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "text/html" && mt != "application/xhtml+xml" {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotHTML, mt)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, l.maxBytes), ct)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding %s: %w", u, err)
	}
	doc, err := html.Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", u, err)
	}
	return doc, resp.Request.URL, nil
}
