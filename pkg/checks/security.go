package checks

import (
	"fmt"
	"strings"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

const sec = models.CategorySecurity

func securityChecks() []Check {
	return []Check{
		{Name: "HSTS", Category: sec, Run: checkHSTS},
		{Name: "Content Security Policy", Category: sec, Run: checkCSP},
		{Name: "MIME sniffing protection", Category: sec, Run: checkNoSniff},
		{Name: "Clickjacking protection", Category: sec, Run: checkFrameOptions},
		{Name: "Referrer policy", Category: sec, Run: checkReferrerPolicy},
		{Name: "Mixed content", Category: sec, Run: checkMixedContent},
		{Name: "Unsafe cross-origin links", Category: sec, Run: checkNoopener},
	}
}

func isHTTPS(s *models.PageSnapshot) bool {
	return strings.HasPrefix(strings.ToLower(pageURL(s)), "https://")
}

func checkHSTS(s *models.PageSnapshot) []models.Finding {
	if !isHTTPS(s) {
		return one(info(sec, "HSTS", "HSTS only applies to pages served over HTTPS"))
	}
	if s.Headers["Strict-Transport-Security"] == "" {
		return one(warn(sec, "HSTS", models.ImpactMedium, "Strict-Transport-Security header missing",
			"Send Strict-Transport-Security: max-age=31536000; includeSubDomains"))
	}
	return one(pass(sec, "HSTS", models.ImpactMedium, "HSTS enabled"))
}

func checkCSP(s *models.PageSnapshot) []models.Finding {
	if s.Headers["Content-Security-Policy"] == "" {
		return one(warn(sec, "Content Security Policy", models.ImpactMedium, "Content-Security-Policy header missing",
			"Define a Content-Security-Policy restricting script sources"))
	}
	return one(pass(sec, "Content Security Policy", models.ImpactMedium, "Content-Security-Policy present"))
}

func checkNoSniff(s *models.PageSnapshot) []models.Finding {
	if !strings.EqualFold(s.Headers["X-Content-Type-Options"], "nosniff") {
		return one(warn(sec, "MIME sniffing protection", models.ImpactLow, "X-Content-Type-Options is not nosniff",
			"Send X-Content-Type-Options: nosniff"))
	}
	return one(pass(sec, "MIME sniffing protection", models.ImpactLow, "nosniff enabled"))
}

func checkFrameOptions(s *models.PageSnapshot) []models.Finding {
	if s.Headers["X-Frame-Options"] != "" || strings.Contains(s.Headers["Content-Security-Policy"], "frame-ancestors") {
		return one(pass(sec, "Clickjacking protection", models.ImpactLow, "Framing is restricted"))
	}
	return one(warn(sec, "Clickjacking protection", models.ImpactLow, "Page can be framed by any origin",
		"Send X-Frame-Options: SAMEORIGIN or a frame-ancestors directive"))
}

func checkReferrerPolicy(s *models.PageSnapshot) []models.Finding {
	if s.Headers["Referrer-Policy"] == "" {
		return one(warn(sec, "Referrer policy", models.ImpactLow, "Referrer-Policy header missing",
			"Send Referrer-Policy: strict-origin-when-cross-origin"))
	}
	return one(pass(sec, "Referrer policy", models.ImpactLow, "Referrer-Policy present"))
}

func checkMixedContent(s *models.PageSnapshot) []models.Finding {
	if !isHTTPS(s) {
		return one(info(sec, "Mixed content", "Mixed content only applies to pages served over HTTPS"))
	}
	insecure := 0
	for _, sc := range s.Scripts {
		if strings.HasPrefix(sc.Src, "http://") {
			insecure++
		}
	}
	for _, css := range s.Stylesheets {
		if strings.HasPrefix(css, "http://") {
			insecure++
		}
	}
	for _, img := range s.Images {
		if strings.HasPrefix(img.Src, "http://") {
			insecure++
		}
	}
	if insecure > 0 {
		return one(fail(sec, "Mixed content", models.ImpactHigh, fmt.Sprintf("%d resource(s) loaded over HTTP", insecure),
			"Load every script, stylesheet and image over HTTPS"))
	}
	return one(pass(sec, "Mixed content", models.ImpactHigh, "All resources load over HTTPS"))
}

func checkNoopener(s *models.PageSnapshot) []models.Finding {
	unsafe := 0
	for _, l := range s.Links {
		if l.Target == "_blank" && !l.Internal && !strings.Contains(l.Rel, "noopener") && !strings.Contains(l.Rel, "noreferrer") {
			unsafe++
		}
	}
	if unsafe > 0 {
		return one(warn(sec, "Unsafe cross-origin links", models.ImpactLow,
			fmt.Sprintf("%d external link(s) open a new tab without rel=noopener", unsafe),
			`Add rel="noopener noreferrer" to target="_blank" links`))
	}
	return one(pass(sec, "Unsafe cross-origin links", models.ImpactLow, "External links are isolated"))
}
