package checks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

func TestIndividualChecks(t *testing.T) {
	tests := []struct {
		name   string
		check  Func
		mutate func(*models.PageSnapshot)
		want   models.Status
	}{
		{name: "plain http", check: checkHTTPS, mutate: func(s *models.PageSnapshot) { s.FinalURL = "http://example.com/" }, want: models.StatusFailed},
		{name: "server error", check: checkStatusCode, mutate: func(s *models.PageSnapshot) { s.StatusCode = 503 }, want: models.StatusFailed},
		{name: "redirect status", check: checkStatusCode, mutate: func(s *models.PageSnapshot) { s.StatusCode = 301 }, want: models.StatusWarning},
		{name: "redirected", check: checkRedirect, mutate: func(s *models.PageSnapshot) { s.FinalURL = "https://example.com/new" }, want: models.StatusWarning},
		{name: "robots blocks", check: checkRobotsTxt, mutate: func(s *models.PageSnapshot) { s.Robots.Allowed = false }, want: models.StatusFailed},
		{name: "no robots", check: checkSitemap, mutate: func(s *models.PageSnapshot) { s.Robots.Fetched = false }, want: models.StatusInfo},
		{name: "noindex header", check: checkMetaRobots, mutate: func(s *models.PageSnapshot) { s.Headers["X-Robots-Tag"] = "noindex" }, want: models.StatusFailed},
		{name: "foreign canonical", check: checkCanonical, mutate: func(s *models.PageSnapshot) { s.Canonical = "https://example.com/other" }, want: models.StatusWarning},
		{name: "latin1", check: checkCharset, mutate: func(s *models.PageSnapshot) { s.Charset = "iso-8859-1" }, want: models.StatusWarning},
		{name: "ugly url", check: checkURLStructure, mutate: func(s *models.PageSnapshot) { s.FinalURL = "https://example.com/My_Page" }, want: models.StatusWarning},
		{name: "broken json-ld", check: checkStructuredData, mutate: func(s *models.PageSnapshot) { s.JSONLD = []string{"{"} }, want: models.StatusFailed},
		{name: "mixed content", check: checkMixedContent, mutate: func(s *models.PageSnapshot) { s.Images[0].Src = "http://cdn.example.com/a.jpg" }, want: models.StatusFailed},
		{name: "hsts over http", check: checkHSTS, mutate: func(s *models.PageSnapshot) { s.FinalURL = "http://example.com/" }, want: models.StatusInfo},
		{name: "unsafe blank", check: checkNoopener, mutate: func(s *models.PageSnapshot) {
			s.Links = append(s.Links, models.Link{Href: "https://x.org", Text: "x", Target: "_blank"})
		}, want: models.StatusWarning},
		{name: "short title", check: checkTitleLength, mutate: func(s *models.PageSnapshot) { s.Title = "Recipes" }, want: models.StatusWarning},
		{name: "two h1", check: checkSingleH1, mutate: func(s *models.PageSnapshot) {
			s.Headings = append(s.Headings, models.Heading{Level: 1, Text: "Again"})
		}, want: models.StatusWarning},
		{name: "skipped level", check: checkHeadingHierarchy, mutate: func(s *models.PageSnapshot) {
			s.Headings = []models.Heading{{Level: 1}, {Level: 3}}
		}, want: models.StatusWarning},
		{name: "missing alt", check: checkImageAlt, mutate: func(s *models.PageSnapshot) { s.Images[0].HasAlt = false }, want: models.StatusFailed},
		{name: "partial og", check: checkOpenGraph, mutate: func(s *models.PageSnapshot) { delete(s.Meta, "og:image") }, want: models.StatusWarning},
		{name: "no internal links", check: checkInternalLinks, mutate: func(s *models.PageSnapshot) { s.Links = nil }, want: models.StatusWarning},
		{name: "title equals h1", check: checkTitleH1, mutate: func(s *models.PageSnapshot) { s.Headings[0].Text = s.Title }, want: models.StatusWarning},
		{name: "slow ttfb", check: checkTTFB, mutate: func(s *models.PageSnapshot) { s.Timing.TTFB = 2 * time.Second }, want: models.StatusFailed},
		{name: "blocking scripts", check: checkRenderBlocking, mutate: func(s *models.PageSnapshot) { s.Scripts[0].Defer = false }, want: models.StatusWarning},
		{name: "huge dom", check: checkDOMSize, mutate: func(s *models.PageSnapshot) { s.Elements = 5000 }, want: models.StatusFailed},
		{name: "uncompressed", check: checkCompression, mutate: func(s *models.PageSnapshot) { delete(s.Headers, "Content-Encoding") }, want: models.StatusWarning},
		{name: "no viewport", check: checkViewportPresent, mutate: func(s *models.PageSnapshot) { s.Viewport = "" }, want: models.StatusFailed},
		{name: "fixed width", check: checkViewportWidth, mutate: func(s *models.PageSnapshot) { s.Viewport = "width=1024" }, want: models.StatusWarning},
		{name: "zoom disabled", check: checkViewportZoom, mutate: func(s *models.PageSnapshot) {
			s.Viewport = "width=device-width, user-scalable=no"
		}, want: models.StatusWarning},
		{name: "styles unknown", check: checkFontSizes, mutate: func(s *models.PageSnapshot) { s.Styles.SmallTextNodes = -1 }, want: models.StatusInfo},
		{name: "thin content", check: checkWordCount, mutate: func(s *models.PageSnapshot) { s.WordCount = 150 }, want: models.StatusWarning},
		{name: "lorem ipsum", check: checkPlaceholder, mutate: func(s *models.PageSnapshot) { s.Text = "Lorem ipsum dolor" }, want: models.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := goodSnapshot()
			require.Equal(t, models.StatusPassed, tt.check(snap)[0].Status, "baseline must pass")

			tt.mutate(snap)
			findings := tt.check(snap)
			require.Len(t, findings, 1)
			assert.Equal(t, tt.want, findings[0].Status, findings[0].Message)
			if tt.want == models.StatusWarning || tt.want == models.StatusFailed {
				assert.NotEmpty(t, findings[0].Fix)
			}
		})
	}
}
