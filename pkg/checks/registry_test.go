package checks

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

func goodSnapshot() *models.PageSnapshot {
	return &models.PageSnapshot{
		URL:        "https://example.com/recipes",
		FinalURL:   "https://example.com/recipes",
		StatusCode: 200,
		Headers: map[string]string{
			"Strict-Transport-Security": "max-age=31536000",
			"Content-Security-Policy":   "default-src 'self'; frame-ancestors 'self'",
			"X-Content-Type-Options":    "nosniff",
			"Referrer-Policy":           "strict-origin-when-cross-origin",
			"Content-Encoding":          "br",
			"Cache-Control":             "max-age=600",
		},
		Title: "Pantry recipes for busy weeknights",
		Meta: map[string]string{
			"description":    strings.Repeat("Plan pantry meals. ", 7),
			"og:title":       "Pantry recipes",
			"og:description": "Plan meals",
			"og:image":       "https://example.com/og.png",
			"twitter:card":   "summary",
			"theme-color":    "#fff",
		},
		Canonical:  "https://example.com/recipes",
		Lang:       "en",
		Charset:    "utf-8",
		HasDoctype: true,
		HasFavicon: true,
		Viewport:   "width=device-width, initial-scale=1",
		Headings:   []models.Heading{{Level: 1, Text: "Recipes"}, {Level: 2, Text: "Soups"}},
		Images:     []models.Image{{Src: "/a.jpg", Alt: "soup", HasAlt: true, Width: "10", Height: "10"}},
		Links:      []models.Link{{Href: "https://example.com/about", Text: "About", Internal: true}},
		Scripts:    []models.Script{{Src: "/app.js", Defer: true, InHead: true}},
		JSONLD:     []string{`{"@type":"Recipe"}`},
		Text:       strings.Repeat("pantry recipes help plan weeknight dinners ", 60),
		WordCount:  360,
		Paragraphs: 4,
		Elements:   200,
		Timing:     models.Timing{TTFB: 120 * time.Millisecond, Load: 900 * time.Millisecond, TransferBytes: 20000},
		Styles:     models.ComputedStyles{},
		Robots:     models.RobotsInfo{Fetched: true, Allowed: true, Sitemaps: []string{"https://example.com/sitemap.xml"}},
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	assert.GreaterOrEqual(t, r.Len(), 50)

	seen := make(map[string]bool)
	for _, name := range r.Names() {
		assert.False(t, seen[name], "duplicate check %s", name)
		seen[name] = true
	}
}

func TestRunAllGoodPage(t *testing.T) {
	findings := Default().RunAll(goodSnapshot())
	require.NotEmpty(t, findings)

	for _, f := range findings {
		assert.Equal(t, models.StatusPassed, f.Status, f.String())
	}
}

func TestRunAllOrderIsStable(t *testing.T) {
	r := Default()
	first := r.RunAll(goodSnapshot())
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, r.RunAll(goodSnapshot()))
	}

	names := r.Names()
	require.Len(t, first, len(names))
	for i, f := range first {
		assert.Equal(t, names[i], f.Item)
	}
}

func TestRunAllDoesNotMutateSnapshot(t *testing.T) {
	snap := goodSnapshot()
	Default().RunAll(snap)
	assert.Equal(t, goodSnapshot(), snap)
}

func TestRunAllEmptySnapshotDegradesToInfo(t *testing.T) {
	findings := Default().RunAll(&models.PageSnapshot{Styles: models.ComputedStyles{SmallTextNodes: -1, SmallTapTargets: -1, HorizontalScroll: -1}})
	require.NotEmpty(t, findings)

	byItem := make(map[string]models.Finding)
	for _, f := range findings {
		byItem[f.Item] = f
	}
	assert.Equal(t, models.StatusInfo, byItem["HTTP status"].Status)
	assert.Equal(t, models.StatusInfo, byItem["Server response time"].Status)
	assert.Equal(t, models.StatusInfo, byItem["Legible font sizes"].Status)
	assert.Equal(t, models.StatusFailed, byItem["Title tag"].Status)
	assert.Equal(t, models.StatusFailed, byItem["Viewport meta tag"].Status)
}

func TestRegistryIsolatesPanics(t *testing.T) {
	r := NewRegistry(
		Check{Name: "boom", Category: models.CategoryContent, Run: func(*models.PageSnapshot) []models.Finding {
			panic("nil deref")
		}},
		Check{Name: "ok", Category: models.CategoryContent, Run: func(*models.PageSnapshot) []models.Finding {
			return one(pass(models.CategoryContent, "ok", models.ImpactLow, "fine"))
		}},
	)

	findings := r.RunAll(&models.PageSnapshot{})
	require.Len(t, findings, 2)
	assert.Equal(t, models.StatusInfo, findings[0].Status)
	assert.Equal(t, "boom", findings[0].Item)
	assert.Equal(t, models.StatusPassed, findings[1].Status)
}

func TestRegistryForcesCategory(t *testing.T) {
	r := NewRegistry(Check{Name: "mislabelled", Category: models.CategoryMobile, Run: func(*models.PageSnapshot) []models.Finding {
		return one(models.Finding{Category: models.CategoryContent, Status: models.StatusPassed})
	}})
	findings := r.RunAll(&models.PageSnapshot{})
	require.Len(t, findings, 1)
	assert.Equal(t, models.CategoryMobile, findings[0].Category)
	assert.Equal(t, "mislabelled", findings[0].Item)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	c := Check{Name: "dup", Category: models.CategoryTechnical, Run: checkHTTPS}
	assert.Panics(t, func() { NewRegistry(c, c) })
}
