package models

import "time"

// PageSnapshot is the inspected state of a target page.
// Checks read it and never modify it.
type PageSnapshot struct {
	URL         string            `json:"url"`
	FinalURL    string            `json:"final_url"`
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Title       string            `json:"title"`
	Meta        map[string]string `json:"meta"`
	Canonical   string            `json:"canonical"`
	Lang        string            `json:"lang"`
	Charset     string            `json:"charset"`
	HasDoctype  bool              `json:"has_doctype"`
	HasFavicon  bool              `json:"has_favicon"`
	Viewport    string            `json:"viewport"`
	Headings    []Heading         `json:"headings"`
	Images      []Image           `json:"images"`
	Links       []Link            `json:"links"`
	Scripts     []Script          `json:"scripts"`
	Stylesheets []string          `json:"stylesheets"`
	JSONLD      []string          `json:"json_ld"`
	Hreflangs   []string          `json:"hreflangs"`
	Text        string            `json:"text"`
	WordCount   int               `json:"word_count"`
	Paragraphs  int               `json:"paragraphs"`
	Elements    int               `json:"elements"`
	InlineStyle int               `json:"inline_styles"`
	Timing      Timing            `json:"timing"`
	Styles      ComputedStyles    `json:"styles"`
	Robots      RobotsInfo        `json:"robots"`
	FetchedAt   time.Time         `json:"fetched_at"`
}

// Heading is an h1-h6 element
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Image is an img element
type Image struct {
	Src     string `json:"src"`
	Alt     string `json:"alt"`
	HasAlt  bool   `json:"has_alt"`
	Width   string `json:"width,omitempty"`
	Height  string `json:"height,omitempty"`
	Loading string `json:"loading,omitempty"`
}

// Link is an anchor element
type Link struct {
	Href     string `json:"href"`
	Text     string `json:"text"`
	Rel      string `json:"rel,omitempty"`
	Target   string `json:"target,omitempty"`
	Internal bool   `json:"internal"`
}

// Script is a script element
type Script struct {
	Src    string `json:"src,omitempty"`
	Async  bool   `json:"async"`
	Defer  bool   `json:"defer"`
	InHead bool   `json:"in_head"`
	Type   string `json:"type,omitempty"`
}

// Timing holds load measurements; zero durations mean not measured
type Timing struct {
	TTFB          time.Duration `json:"ttfb"`
	Load          time.Duration `json:"load"`
	TransferBytes int64         `json:"transfer_bytes"`
}

// ComputedStyles holds rendered-style counters. Negative values mean the
// provider could not compute them (static HTML fetch).
type ComputedStyles struct {
	SmallTextNodes   int `json:"small_text_nodes"`
	SmallTapTargets  int `json:"small_tap_targets"`
	HorizontalScroll int `json:"horizontal_scroll"`
}

// Unknown reports whether the styles were not computed
func (c ComputedStyles) Unknown() bool {
	return c.SmallTextNodes < 0
}

// RobotsInfo summarises robots.txt for the page host
type RobotsInfo struct {
	Fetched  bool     `json:"fetched"`
	Allowed  bool     `json:"allowed"`
	Sitemaps []string `json:"sitemaps,omitempty"`
}
