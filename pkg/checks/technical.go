package checks

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

const tech = models.CategoryTechnical

func technicalChecks() []Check {
	return []Check{
		{Name: "HTTPS", Category: tech, Run: checkHTTPS},
		{Name: "HTTP status", Category: tech, Run: checkStatusCode},
		{Name: "Redirects", Category: tech, Run: checkRedirect},
		{Name: "robots.txt", Category: tech, Run: checkRobotsTxt},
		{Name: "XML sitemap", Category: tech, Run: checkSitemap},
		{Name: "Indexability", Category: tech, Run: checkMetaRobots},
		{Name: "Canonical URL", Category: tech, Run: checkCanonical},
		{Name: "Language attribute", Category: tech, Run: checkLang},
		{Name: "Character encoding", Category: tech, Run: checkCharset},
		{Name: "Doctype", Category: tech, Run: checkDoctype},
		{Name: "URL structure", Category: tech, Run: checkURLStructure},
		{Name: "Structured data", Category: tech, Run: checkStructuredData},
		{Name: "Favicon", Category: tech, Run: checkFavicon},
	}
}

func pageURL(s *models.PageSnapshot) string {
	if s.FinalURL != "" {
		return s.FinalURL
	}
	return s.URL
}

func checkHTTPS(s *models.PageSnapshot) []models.Finding {
	u, err := url.Parse(pageURL(s))
	if err != nil || u.Scheme == "" {
		return one(info(tech, "HTTPS", "Page URL could not be parsed"))
	}
	if u.Scheme == "https" {
		return one(pass(tech, "HTTPS", models.ImpactHigh, "Page is served over HTTPS"))
	}
	return one(fail(tech, "HTTPS", models.ImpactHigh, "Page is served over plain HTTP",
		"Install a TLS certificate and redirect all HTTP traffic to HTTPS"))
}

func checkStatusCode(s *models.PageSnapshot) []models.Finding {
	code := s.StatusCode
	switch {
	case code == 0:
		return one(info(tech, "HTTP status", "Status code was not recorded"))
	case code >= 200 && code < 300:
		return one(pass(tech, "HTTP status", models.ImpactHigh, fmt.Sprintf("Page returned %d", code)))
	case code >= 300 && code < 400:
		return one(warn(tech, "HTTP status", models.ImpactMedium, fmt.Sprintf("Page returned redirect status %d", code),
			"Link directly to the final URL"))
	default:
		return one(fail(tech, "HTTP status", models.ImpactHigh, fmt.Sprintf("Page returned error status %d", code),
			"Fix the server error or restore the missing page"))
	}
}

func checkRedirect(s *models.PageSnapshot) []models.Finding {
	if s.URL == "" || s.FinalURL == "" || utils.NormalizeURL(s.URL) == utils.NormalizeURL(s.FinalURL) {
		return one(pass(tech, "Redirects", models.ImpactLow, "No redirect before the final page"))
	}
	return one(warn(tech, "Redirects", models.ImpactLow,
		fmt.Sprintf("Requested URL redirects to %s", s.FinalURL),
		"Update internal links and sitemaps to the final URL"))
}

func checkRobotsTxt(s *models.PageSnapshot) []models.Finding {
	switch {
	case !s.Robots.Fetched:
		return one(warn(tech, "robots.txt", models.ImpactLow, "No robots.txt file was found",
			"Publish a robots.txt at the site root"))
	case !s.Robots.Allowed:
		return one(fail(tech, "robots.txt", models.ImpactHigh, "robots.txt blocks crawlers from this page",
			"Remove the Disallow rule covering this path"))
	default:
		return one(pass(tech, "robots.txt", models.ImpactHigh, "robots.txt allows crawling this page"))
	}
}

func checkSitemap(s *models.PageSnapshot) []models.Finding {
	if !s.Robots.Fetched {
		return one(info(tech, "XML sitemap", "Sitemap declaration unknown without robots.txt"))
	}
	if len(s.Robots.Sitemaps) == 0 {
		return one(warn(tech, "XML sitemap", models.ImpactMedium, "robots.txt declares no sitemap",
			"Add a Sitemap: line to robots.txt"))
	}
	return one(pass(tech, "XML sitemap", models.ImpactMedium, fmt.Sprintf("%d sitemap(s) declared", len(s.Robots.Sitemaps))))
}

func checkMetaRobots(s *models.PageSnapshot) []models.Finding {
	directives := strings.ToLower(s.Meta["robots"] + "," + s.Headers["X-Robots-Tag"])
	switch {
	case strings.Contains(directives, "noindex"):
		return one(fail(tech, "Indexability", models.ImpactHigh, "Page is marked noindex",
			"Remove noindex from the robots meta tag or X-Robots-Tag header"))
	case strings.Contains(directives, "nofollow"):
		return one(warn(tech, "Indexability", models.ImpactMedium, "Page is marked nofollow",
			"Allow crawlers to follow links unless intentionally blocked"))
	default:
		return one(pass(tech, "Indexability", models.ImpactHigh, "Page is indexable"))
	}
}

func checkCanonical(s *models.PageSnapshot) []models.Finding {
	if s.Canonical == "" {
		return one(warn(tech, "Canonical URL", models.ImpactMedium, "No canonical link element",
			`Add <link rel="canonical"> pointing to the preferred URL`))
	}
	if stripQuery(s.Canonical) != stripQuery(pageURL(s)) {
		return one(warn(tech, "Canonical URL", models.ImpactLow,
			fmt.Sprintf("Canonical points to a different URL: %s", s.Canonical),
			"Confirm the canonical target is intentional"))
	}
	return one(pass(tech, "Canonical URL", models.ImpactMedium, "Canonical URL is self-referencing"))
}

func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return utils.NormalizeURL(u.String())
}

func checkLang(s *models.PageSnapshot) []models.Finding {
	if s.Lang == "" {
		return one(warn(tech, "Language attribute", models.ImpactMedium, "html element has no lang attribute",
			`Declare the page language, e.g. <html lang="en">`))
	}
	return one(pass(tech, "Language attribute", models.ImpactMedium, fmt.Sprintf("Language declared as %q", s.Lang)))
}

func checkCharset(s *models.PageSnapshot) []models.Finding {
	switch s.Charset {
	case "":
		return one(warn(tech, "Character encoding", models.ImpactLow, "No character encoding declared",
			`Add <meta charset="utf-8"> as the first element in head`))
	case "utf-8", "utf8":
		return one(pass(tech, "Character encoding", models.ImpactLow, "UTF-8 encoding declared"))
	default:
		return one(warn(tech, "Character encoding", models.ImpactLow, fmt.Sprintf("Non UTF-8 encoding %q", s.Charset),
			"Serve the page as UTF-8"))
	}
}

func checkDoctype(s *models.PageSnapshot) []models.Finding {
	if !s.HasDoctype {
		return one(warn(tech, "Doctype", models.ImpactLow, "Document has no doctype and renders in quirks mode",
			"Start the document with <!DOCTYPE html>"))
	}
	return one(pass(tech, "Doctype", models.ImpactLow, "Doctype declared"))
}

func checkURLStructure(s *models.PageSnapshot) []models.Finding {
	u, err := url.Parse(pageURL(s))
	if err != nil {
		return one(info(tech, "URL structure", "Page URL could not be parsed"))
	}
	var problems []string
	if len(u.String()) > 115 {
		problems = append(problems, "longer than 115 characters")
	}
	if strings.Contains(u.Path, "_") {
		problems = append(problems, "uses underscores")
	}
	if strings.IndexFunc(u.Path, unicode.IsUpper) >= 0 {
		problems = append(problems, "contains uppercase letters")
	}
	if len(u.Query()) > 2 {
		problems = append(problems, "carries many query parameters")
	}
	if len(problems) > 0 {
		return one(warn(tech, "URL structure", models.ImpactLow, "URL "+strings.Join(problems, ", "),
			"Use short, lowercase, hyphenated paths"))
	}
	return one(pass(tech, "URL structure", models.ImpactLow, "URL is short and readable"))
}

func checkStructuredData(s *models.PageSnapshot) []models.Finding {
	if len(s.JSONLD) == 0 {
		return one(warn(tech, "Structured data", models.ImpactMedium, "No JSON-LD structured data found",
			"Describe the page with schema.org JSON-LD"))
	}
	for _, block := range s.JSONLD {
		if !json.Valid([]byte(block)) {
			return one(fail(tech, "Structured data", models.ImpactMedium, "A JSON-LD block is not valid JSON",
				"Fix the syntax of the structured data block"))
		}
	}
	return one(pass(tech, "Structured data", models.ImpactMedium, fmt.Sprintf("%d JSON-LD block(s) found", len(s.JSONLD))))
}

func checkFavicon(s *models.PageSnapshot) []models.Finding {
	if !s.HasFavicon {
		return one(warn(tech, "Favicon", models.ImpactLow, "No favicon link found", `Add <link rel="icon">`))
	}
	return one(pass(tech, "Favicon", models.ImpactLow, "Favicon declared"))
}
