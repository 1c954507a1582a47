package snapshot

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// Extract parses an HTML document into a snapshot. Transport fields
// (status, headers, timing, robots) are left for the caller to fill.
func Extract(body []byte, pageURL string) (*models.PageSnapshot, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	snap := &models.PageSnapshot{
		FinalURL: pageURL,
		Meta:     make(map[string]string),
		Styles:   models.ComputedStyles{SmallTextNodes: -1, SmallTapTargets: -1, HorizontalScroll: -1},
	}

	w := &walker{snap: snap, base: base, baseDomain: registrableDomain(base.Hostname())}
	w.walk(doc)

	snap.Text = extractMainText(body, doc)
	snap.WordCount = len(strings.Fields(snap.Text))
	snap.Viewport = snap.Meta["viewport"]

	return snap, nil
}

type walker struct {
	snap       *models.PageSnapshot
	base       *url.URL
	baseDomain string
	inHead     bool
}

func (w *walker) walk(n *html.Node) {
	switch n.Type {
	case html.DoctypeNode:
		w.snap.HasDoctype = true
	case html.ElementNode:
		w.element(n)
	}

	wasHead := w.inHead
	if n.Type == html.ElementNode && n.Data == "head" {
		w.inHead = true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	w.inHead = wasHead
}

func (w *walker) element(n *html.Node) {
	s := w.snap
	s.Elements++
	if attr(n, "style") != "" {
		s.InlineStyle++
	}

	switch n.Data {
	case "html":
		s.Lang = attr(n, "lang")
	case "title":
		if s.Title == "" {
			s.Title = strings.TrimSpace(textOf(n))
		}
	case "meta":
		w.meta(n)
	case "link":
		w.link(n)
	case "h1", "h2", "h3", "h4", "h5", "h6":
		s.Headings = append(s.Headings, models.Heading{
			Level: int(n.Data[1] - '0'),
			Text:  strings.TrimSpace(collapse(textOf(n))),
		})
	case "img":
		alt, hasAlt := lookupAttr(n, "alt")
		s.Images = append(s.Images, models.Image{
			Src:     attr(n, "src"),
			Alt:     strings.TrimSpace(alt),
			HasAlt:  hasAlt,
			Width:   attr(n, "width"),
			Height:  attr(n, "height"),
			Loading: strings.ToLower(attr(n, "loading")),
		})
	case "a":
		href := strings.TrimSpace(attr(n, "href"))
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		s.Links = append(s.Links, models.Link{
			Href:     w.resolve(href),
			Text:     strings.TrimSpace(collapse(textOf(n))),
			Rel:      strings.ToLower(attr(n, "rel")),
			Target:   attr(n, "target"),
			Internal: w.isInternal(href),
		})
	case "script":
		typ := strings.ToLower(attr(n, "type"))
		if typ == "application/ld+json" {
			s.JSONLD = append(s.JSONLD, strings.TrimSpace(textOf(n)))
			return
		}
		_, async := lookupAttr(n, "async")
		_, deferred := lookupAttr(n, "defer")
		s.Scripts = append(s.Scripts, models.Script{
			Src:    attr(n, "src"),
			Async:  async,
			Defer:  deferred || typ == "module",
			InHead: w.inHead,
			Type:   typ,
		})
	case "p":
		s.Paragraphs++
	}
}

func (w *walker) meta(n *html.Node) {
	s := w.snap
	if cs := attr(n, "charset"); cs != "" {
		s.Charset = strings.ToLower(cs)
		return
	}
	if strings.EqualFold(attr(n, "http-equiv"), "content-type") {
		content := strings.ToLower(attr(n, "content"))
		if i := strings.Index(content, "charset="); i >= 0 {
			s.Charset = strings.TrimSpace(content[i+len("charset="):])
		}
		return
	}
	key := strings.ToLower(attr(n, "name"))
	if key == "" {
		key = strings.ToLower(attr(n, "property"))
	}
	if key != "" {
		s.Meta[key] = strings.TrimSpace(attr(n, "content"))
	}
}

func (w *walker) link(n *html.Node) {
	s := w.snap
	rel := strings.ToLower(attr(n, "rel"))
	href := attr(n, "href")
	for _, r := range strings.Fields(rel) {
		switch r {
		case "canonical":
			s.Canonical = w.resolve(href)
		case "icon", "apple-touch-icon":
			s.HasFavicon = true
		case "stylesheet":
			s.Stylesheets = append(s.Stylesheets, w.resolve(href))
		case "alternate":
			if lang := attr(n, "hreflang"); lang != "" {
				s.Hreflangs = append(s.Hreflangs, lang)
			}
		}
	}
}

func (w *walker) resolve(ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return w.base.ResolveReference(refURL).String()
}

func (w *walker) isInternal(href string) bool {
	u, err := url.Parse(w.resolve(href))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return registrableDomain(u.Hostname()) == w.baseDomain
}

// registrableDomain returns the eTLD+1 of host, or host itself for IPs and
// single-label names.
func registrableDomain(host string) string {
	host = strings.ToLower(host)
	if strings.Count(host, ".") < 1 || strings.Trim(host, "0123456789.") == "" {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// extractMainText prefers trafilatura's main-content extraction and falls
// back to every visible text node.
func extractMainText(body []byte, doc *html.Node) string {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{})
	if err == nil && result != nil && strings.TrimSpace(result.ContentText) != "" {
		return collapse(result.ContentText)
	}
	return collapse(visibleText(doc))
}

func visibleText(n *html.Node) string {
	var b strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return b.String()
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
