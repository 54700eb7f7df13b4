package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hammamikhairi/readaloud/internal/config"
	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/extract"
	"github.com/hammamikhairi/readaloud/internal/logger"
	"github.com/hammamikhairi/readaloud/internal/page"
	"github.com/hammamikhairi/readaloud/internal/viewer"
)

const restrictedMessage = page.RestrictedMessage

// source says where the text comes from. A non-empty clipboard selection
// wins over the page, like a selection in the browser does.
type source struct {
	url       string
	file      string
	pdf       string
	clipboard bool
}

type document struct {
	title string
	text  string
}

func (s source) load(ctx context.Context, cfg config.Config, log *logger.Logger) (document, error) {
	if s.clipboard || (s.url == "" && s.file == "" && s.pdf == "") {
		if sel, err := clipboard.ReadAll(); err == nil && strings.TrimSpace(sel) != "" {
			log.Debug("reading clipboard selection (%d chars)", len(sel))
			return document{title: "selection", text: strings.TrimSpace(sel)}, nil
		} else if err != nil {
			log.Debug("clipboard: %v", err)
		}
		if s.url == "" && s.file == "" && s.pdf == "" {
			return document{}, domain.ErrNoReadableText
		}
	}

	switch {
	case s.pdf != "":
		return s.loadPDF(ctx, cfg, log)
	case s.file != "":
		f, err := os.Open(s.file)
		if err != nil {
			return document{}, err
		}
		defer f.Close()
		doc, err := html.Parse(f)
		if err != nil {
			return document{}, fmt.Errorf("parsing %s: %w", s.file, err)
		}
		return extractDoc(doc, nil, cfg, log, s.file)
	default:
		if page.Restricted(s.url) {
			return document{}, domain.ErrRestrictedPage
		}
		p, err := page.NewLoader(log).Load(ctx, s.url)
		if err != nil {
			return document{}, err
		}
		return extractDoc(p.Doc, p, cfg, log, s.url)
	}
}

func extractDoc(doc *html.Node, frames extract.FrameResolver, cfg config.Config, log *logger.Logger, fallbackTitle string) (document, error) {
	opts := []extract.Option{extract.WithSimple(cfg.Extract.Simple)}
	if frames != nil {
		opts = append(opts, extract.WithFrames(frames))
	}
	if len(cfg.Extract.NoisePatterns) > 0 || len(cfg.Extract.SafePatterns) > 0 {
		opts = append(opts, extract.WithPatterns(cfg.Extract.NoisePatterns, cfg.Extract.SafePatterns))
	}
	ex, err := extract.New(log, opts...)
	if err != nil {
		return document{}, err
	}

	title := titleOf(doc)
	if title == "" {
		title = fallbackTitle
	}
	text, err := ex.ExtractText(doc)
	if err != nil {
		return document{title: title}, err
	}
	return document{title: title, text: text}, nil
}

// loadPDF fetches the document, hands it to the viewer and reads the page
// the viewer is showing.
func (s source) loadPDF(ctx context.Context, cfg config.Config, log *logger.Logger) (document, error) {
	if cfg.Viewer.URL == "" {
		return document{}, fmt.Errorf("no document viewer configured (viewer.url)")
	}

	data, err := fetch(ctx, s.pdf)
	if err != nil {
		return document{}, err
	}

	t, err := viewer.DialWS(ctx, cfg.Viewer.URL, "http://localhost/", log)
	if err != nil {
		return document{}, err
	}
	defer t.Close()

	c := viewer.NewClient(ctx, t, log, viewer.WithTimeout(cfg.Viewer.Timeout))
	readyCtx, cancel := context.WithTimeout(ctx, cfg.Viewer.Timeout)
	defer cancel()
	if err := c.WaitReady(readyCtx); err != nil {
		return document{}, err
	}
	if err := c.LoadDocument(ctx, data); err != nil {
		return document{}, err
	}
	idx, err := c.CurrentIndex(ctx)
	if err != nil {
		return document{}, err
	}
	texts, err := c.Texts(ctx, idx)
	if err != nil {
		return document{}, err
	}
	text := strings.TrimSpace(strings.Join(texts, "\n\n"))
	if text == "" {
		return document{title: s.pdf}, domain.ErrNoReadableText
	}
	return document{title: fmt.Sprintf("%s (page %d)", s.pdf, idx+1), text: text}, nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func titleOf(doc *html.Node) string {
	var walk func(*html.Node) string
	walk = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title && n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := walk(c); t != "" {
				return t
			}
		}
		return ""
	}
	return walk(doc)
}
