package checks

import (
	"fmt"
	"strings"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

const perf = models.CategoryPerformance

func performanceChecks() []Check {
	return []Check{
		{Name: "Server response time", Category: perf, Run: checkTTFB},
		{Name: "Page load time", Category: perf, Run: checkLoadTime},
		{Name: "Page weight", Category: perf, Run: checkPageSize},
		{Name: "Script count", Category: perf, Run: checkScriptCount},
		{Name: "Render-blocking scripts", Category: perf, Run: checkRenderBlocking},
		{Name: "Stylesheet count", Category: perf, Run: checkStylesheetCount},
		{Name: "Image lazy loading", Category: perf, Run: checkLazyLoading},
		{Name: "Image dimensions", Category: perf, Run: checkImageDimensions},
		{Name: "DOM size", Category: perf, Run: checkDOMSize},
		{Name: "Compression", Category: perf, Run: checkCompression},
		{Name: "Caching", Category: perf, Run: checkCaching},
	}
}

func checkTTFB(s *models.PageSnapshot) []models.Finding {
	ttfb := s.Timing.TTFB
	switch {
	case ttfb <= 0:
		return one(info(perf, "Server response time", "Time to first byte was not measured"))
	case ttfb < 600*time.Millisecond:
		return one(pass(perf, "Server response time", models.ImpactHigh, fmt.Sprintf("TTFB %s", ttfb.Round(time.Millisecond))))
	case ttfb < 1500*time.Millisecond:
		return one(warn(perf, "Server response time", models.ImpactHigh, fmt.Sprintf("TTFB is slow (%s)", ttfb.Round(time.Millisecond)),
			"Cache rendered pages or move closer to users with a CDN"))
	default:
		return one(fail(perf, "Server response time", models.ImpactHigh, fmt.Sprintf("TTFB is very slow (%s)", ttfb.Round(time.Millisecond)),
			"Profile the backend and add caching"))
	}
}

func checkLoadTime(s *models.PageSnapshot) []models.Finding {
	load := s.Timing.Load
	switch {
	case load <= 0:
		return one(info(perf, "Page load time", "Load time was not measured"))
	case load < 2500*time.Millisecond:
		return one(pass(perf, "Page load time", models.ImpactHigh, fmt.Sprintf("Loaded in %s", load.Round(time.Millisecond))))
	case load < 4*time.Second:
		return one(warn(perf, "Page load time", models.ImpactHigh, fmt.Sprintf("Load time needs improvement (%s)", load.Round(time.Millisecond)),
			"Reduce payload size and defer non-critical work"))
	default:
		return one(fail(perf, "Page load time", models.ImpactHigh, fmt.Sprintf("Load time is poor (%s)", load.Round(time.Millisecond)),
			"Reduce payload size and defer non-critical work"))
	}
}

func checkPageSize(s *models.PageSnapshot) []models.Finding {
	size := s.Timing.TransferBytes
	switch {
	case size <= 0:
		return one(info(perf, "Page weight", "Transfer size was not measured"))
	case size < 1500*1024:
		return one(pass(perf, "Page weight", models.ImpactMedium, fmt.Sprintf("HTML weighs %d KB", size/1024)))
	case size < 3000*1024:
		return one(warn(perf, "Page weight", models.ImpactMedium, fmt.Sprintf("HTML is heavy (%d KB)", size/1024),
			"Trim inline data and markup"))
	default:
		return one(fail(perf, "Page weight", models.ImpactMedium, fmt.Sprintf("HTML is very heavy (%d KB)", size/1024),
			"Trim inline data and markup"))
	}
}

func checkScriptCount(s *models.PageSnapshot) []models.Finding {
	n := 0
	for _, sc := range s.Scripts {
		if sc.Src != "" {
			n++
		}
	}
	switch {
	case n <= 15:
		return one(pass(perf, "Script count", models.ImpactMedium, fmt.Sprintf("%d external script(s)", n)))
	case n <= 30:
		return one(warn(perf, "Script count", models.ImpactMedium, fmt.Sprintf("%d external scripts", n),
			"Bundle scripts and drop unused ones"))
	default:
		return one(fail(perf, "Script count", models.ImpactMedium, fmt.Sprintf("%d external scripts", n),
			"Bundle scripts and drop unused ones"))
	}
}

func checkRenderBlocking(s *models.PageSnapshot) []models.Finding {
	blocking := 0
	for _, sc := range s.Scripts {
		if sc.InHead && sc.Src != "" && !sc.Async && !sc.Defer {
			blocking++
		}
	}
	switch {
	case blocking == 0:
		return one(pass(perf, "Render-blocking scripts", models.ImpactHigh, "No render-blocking scripts"))
	case blocking <= 2:
		return one(warn(perf, "Render-blocking scripts", models.ImpactHigh, fmt.Sprintf("%d render-blocking script(s) in head", blocking),
			"Add async or defer to scripts in head"))
	default:
		return one(fail(perf, "Render-blocking scripts", models.ImpactHigh, fmt.Sprintf("%d render-blocking scripts in head", blocking),
			"Add async or defer to scripts in head"))
	}
}

func checkStylesheetCount(s *models.PageSnapshot) []models.Finding {
	n := len(s.Stylesheets)
	switch {
	case n <= 5:
		return one(pass(perf, "Stylesheet count", models.ImpactLow, fmt.Sprintf("%d stylesheet(s)", n)))
	case n <= 10:
		return one(warn(perf, "Stylesheet count", models.ImpactLow, fmt.Sprintf("%d stylesheets", n),
			"Combine stylesheets"))
	default:
		return one(fail(perf, "Stylesheet count", models.ImpactLow, fmt.Sprintf("%d stylesheets", n),
			"Combine stylesheets"))
	}
}

func checkLazyLoading(s *models.PageSnapshot) []models.Finding {
	if len(s.Images) <= 3 {
		return one(pass(perf, "Image lazy loading", models.ImpactLow, "Few images on the page"))
	}
	for _, img := range s.Images {
		if img.Loading == "lazy" {
			return one(pass(perf, "Image lazy loading", models.ImpactLow, "Offscreen images are lazy loaded"))
		}
	}
	return one(warn(perf, "Image lazy loading", models.ImpactLow, fmt.Sprintf("None of %d images are lazy loaded", len(s.Images)),
		`Add loading="lazy" to below-the-fold images`))
}

func checkImageDimensions(s *models.PageSnapshot) []models.Finding {
	missing := 0
	for _, img := range s.Images {
		if img.Width == "" || img.Height == "" {
			missing++
		}
	}
	if missing > 0 {
		return one(warn(perf, "Image dimensions", models.ImpactMedium, fmt.Sprintf("%d image(s) lack width and height", missing),
			"Set explicit dimensions to avoid layout shift"))
	}
	return one(pass(perf, "Image dimensions", models.ImpactMedium, "All images declare dimensions"))
}

func checkDOMSize(s *models.PageSnapshot) []models.Finding {
	switch {
	case s.Elements <= 1500:
		return one(pass(perf, "DOM size", models.ImpactMedium, fmt.Sprintf("%d elements", s.Elements)))
	case s.Elements <= 3000:
		return one(warn(perf, "DOM size", models.ImpactMedium, fmt.Sprintf("Large DOM (%d elements)", s.Elements),
			"Simplify markup and paginate long lists"))
	default:
		return one(fail(perf, "DOM size", models.ImpactMedium, fmt.Sprintf("Excessive DOM (%d elements)", s.Elements),
			"Simplify markup and paginate long lists"))
	}
}

func checkCompression(s *models.PageSnapshot) []models.Finding {
	enc := strings.ToLower(s.Headers["Content-Encoding"])
	if strings.Contains(enc, "gzip") || strings.Contains(enc, "br") || strings.Contains(enc, "zstd") {
		return one(pass(perf, "Compression", models.ImpactMedium, fmt.Sprintf("Response compressed with %s", enc)))
	}
	return one(warn(perf, "Compression", models.ImpactMedium, "Response is not compressed",
		"Enable gzip or brotli on the server"))
}

func checkCaching(s *models.PageSnapshot) []models.Finding {
	cc := strings.ToLower(s.Headers["Cache-Control"])
	if cc == "" || strings.Contains(cc, "no-store") {
		return one(warn(perf, "Caching", models.ImpactLow, "Response is not cacheable",
			"Send a Cache-Control header with a max-age"))
	}
	return one(pass(perf, "Caching", models.ImpactLow, "Cache-Control: "+cc))
}
