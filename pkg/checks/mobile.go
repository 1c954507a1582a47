package checks

import (
	"fmt"
	"strings"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

const mobile = models.CategoryMobile

func mobileChecks() []Check {
	return []Check{
		{Name: "Viewport meta tag", Category: mobile, Run: checkViewportPresent},
		{Name: "Responsive viewport", Category: mobile, Run: checkViewportWidth},
		{Name: "Pinch zoom", Category: mobile, Run: checkViewportZoom},
		{Name: "Legible font sizes", Category: mobile, Run: checkFontSizes},
		{Name: "Tap targets", Category: mobile, Run: checkTapTargets},
		{Name: "Content fits viewport", Category: mobile, Run: checkHorizontalScroll},
		{Name: "Touch icon", Category: mobile, Run: checkTouchIcon},
	}
}

func checkViewportPresent(s *models.PageSnapshot) []models.Finding {
	if s.Viewport == "" {
		return one(fail(mobile, "Viewport meta tag", models.ImpactHigh, "No viewport meta tag",
			`Add <meta name="viewport" content="width=device-width, initial-scale=1">`))
	}
	return one(pass(mobile, "Viewport meta tag", models.ImpactHigh, "Viewport meta tag present"))
}

func viewportDirectives(v string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' }) {
		k, val, _ := strings.Cut(part, "=")
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(val))
	}
	return out
}

func checkViewportWidth(s *models.PageSnapshot) []models.Finding {
	if s.Viewport == "" {
		return one(info(mobile, "Responsive viewport", "No viewport to evaluate"))
	}
	if viewportDirectives(s.Viewport)["width"] != "device-width" {
		return one(warn(mobile, "Responsive viewport", models.ImpactHigh, "Viewport width is not device-width",
			"Use width=device-width so the layout adapts to the screen"))
	}
	return one(pass(mobile, "Responsive viewport", models.ImpactHigh, "Viewport adapts to device width"))
}

func checkViewportZoom(s *models.PageSnapshot) []models.Finding {
	if s.Viewport == "" {
		return one(info(mobile, "Pinch zoom", "No viewport to evaluate"))
	}
	d := viewportDirectives(s.Viewport)
	if d["user-scalable"] == "no" || d["user-scalable"] == "0" || d["maximum-scale"] == "1" || d["maximum-scale"] == "1.0" {
		return one(warn(mobile, "Pinch zoom", models.ImpactMedium, "Viewport disables zooming",
			"Remove user-scalable=no and maximum-scale=1"))
	}
	return one(pass(mobile, "Pinch zoom", models.ImpactMedium, "Users can zoom"))
}

func checkFontSizes(s *models.PageSnapshot) []models.Finding {
	if s.Styles.Unknown() {
		return one(info(mobile, "Legible font sizes", "Computed styles unavailable"))
	}
	if s.Styles.SmallTextNodes > 0 {
		return one(warn(mobile, "Legible font sizes", models.ImpactMedium,
			fmt.Sprintf("%d text block(s) render below 12px", s.Styles.SmallTextNodes),
			"Use a base font size of at least 16px"))
	}
	return one(pass(mobile, "Legible font sizes", models.ImpactMedium, "Text is legible on mobile"))
}

func checkTapTargets(s *models.PageSnapshot) []models.Finding {
	if s.Styles.SmallTapTargets < 0 {
		return one(info(mobile, "Tap targets", "Computed styles unavailable"))
	}
	if s.Styles.SmallTapTargets > 0 {
		return one(warn(mobile, "Tap targets", models.ImpactMedium,
			fmt.Sprintf("%d tap target(s) are smaller than 48px", s.Styles.SmallTapTargets),
			"Enlarge buttons and links and space them apart"))
	}
	return one(pass(mobile, "Tap targets", models.ImpactMedium, "Tap targets are adequately sized"))
}

func checkHorizontalScroll(s *models.PageSnapshot) []models.Finding {
	if s.Styles.HorizontalScroll < 0 {
		return one(info(mobile, "Content fits viewport", "Computed styles unavailable"))
	}
	if s.Styles.HorizontalScroll > 0 {
		return one(fail(mobile, "Content fits viewport", models.ImpactHigh, "Content is wider than the viewport",
			"Constrain fixed-width elements with max-width: 100%"))
	}
	return one(pass(mobile, "Content fits viewport", models.ImpactHigh, "No horizontal scrolling"))
}

func checkTouchIcon(s *models.PageSnapshot) []models.Finding {
	if s.Meta["theme-color"] == "" {
		return one(warn(mobile, "Touch icon", models.ImpactLow, "No theme-color meta tag",
			`Add <meta name="theme-color"> to style the mobile browser chrome`))
	}
	return one(pass(mobile, "Touch icon", models.ImpactLow, "theme-color declared"))
}
