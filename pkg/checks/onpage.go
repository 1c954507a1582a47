package checks

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

const onPage = models.CategoryOnPage

func onPageChecks() []Check {
	return []Check{
		{Name: "Title tag", Category: onPage, Run: checkTitlePresent},
		{Name: "Title length", Category: onPage, Run: checkTitleLength},
		{Name: "Meta description", Category: onPage, Run: checkDescriptionPresent},
		{Name: "Meta description length", Category: onPage, Run: checkDescriptionLength},
		{Name: "H1 heading", Category: onPage, Run: checkH1Present},
		{Name: "Single H1", Category: onPage, Run: checkSingleH1},
		{Name: "Heading hierarchy", Category: onPage, Run: checkHeadingHierarchy},
		{Name: "Image alt text", Category: onPage, Run: checkImageAlt},
		{Name: "Open Graph tags", Category: onPage, Run: checkOpenGraph},
		{Name: "Twitter card", Category: onPage, Run: checkTwitterCard},
		{Name: "Internal links", Category: onPage, Run: checkInternalLinks},
		{Name: "Anchor text", Category: onPage, Run: checkAnchorText},
		{Name: "Title and H1 overlap", Category: onPage, Run: checkTitleH1},
		{Name: "Topic in title", Category: onPage, Run: checkTopicInTitle},
	}
}

func checkTitlePresent(s *models.PageSnapshot) []models.Finding {
	if strings.TrimSpace(s.Title) == "" {
		return one(fail(onPage, "Title tag", models.ImpactHigh, "Page has no title",
			"Add a unique, descriptive <title>"))
	}
	return one(pass(onPage, "Title tag", models.ImpactHigh, "Title present"))
}

func checkTitleLength(s *models.PageSnapshot) []models.Finding {
	n := utf8.RuneCountInString(s.Title)
	switch {
	case n == 0:
		return one(info(onPage, "Title length", "No title to measure"))
	case n < 30:
		return one(warn(onPage, "Title length", models.ImpactMedium, fmt.Sprintf("Title is short (%d characters)", n),
			"Aim for 30-60 characters"))
	case n > 60:
		return one(warn(onPage, "Title length", models.ImpactMedium, fmt.Sprintf("Title may be truncated (%d characters)", n),
			"Keep titles under 60 characters"))
	default:
		return one(pass(onPage, "Title length", models.ImpactMedium, fmt.Sprintf("Title length is %d characters", n)))
	}
}

func checkDescriptionPresent(s *models.PageSnapshot) []models.Finding {
	if s.Meta["description"] == "" {
		return one(fail(onPage, "Meta description", models.ImpactMedium, "Page has no meta description",
			"Write a compelling meta description"))
	}
	return one(pass(onPage, "Meta description", models.ImpactMedium, "Meta description present"))
}

func checkDescriptionLength(s *models.PageSnapshot) []models.Finding {
	n := utf8.RuneCountInString(s.Meta["description"])
	switch {
	case n == 0:
		return one(info(onPage, "Meta description length", "No meta description to measure"))
	case n < 120:
		return one(warn(onPage, "Meta description length", models.ImpactLow, fmt.Sprintf("Description is short (%d characters)", n),
			"Aim for 120-160 characters"))
	case n > 160:
		return one(warn(onPage, "Meta description length", models.ImpactLow, fmt.Sprintf("Description may be truncated (%d characters)", n),
			"Keep descriptions under 160 characters"))
	default:
		return one(pass(onPage, "Meta description length", models.ImpactLow, fmt.Sprintf("Description length is %d characters", n)))
	}
}

func countLevel(s *models.PageSnapshot, level int) int {
	n := 0
	for _, h := range s.Headings {
		if h.Level == level {
			n++
		}
	}
	return n
}

func checkH1Present(s *models.PageSnapshot) []models.Finding {
	if countLevel(s, 1) == 0 {
		return one(fail(onPage, "H1 heading", models.ImpactHigh, "Page has no H1 heading",
			"Add one H1 describing the page topic"))
	}
	return one(pass(onPage, "H1 heading", models.ImpactHigh, "H1 present"))
}

func checkSingleH1(s *models.PageSnapshot) []models.Finding {
	n := countLevel(s, 1)
	if n > 1 {
		return one(warn(onPage, "Single H1", models.ImpactMedium, fmt.Sprintf("Page has %d H1 headings", n),
			"Use a single H1 and demote the rest"))
	}
	return one(pass(onPage, "Single H1", models.ImpactMedium, "No competing H1 headings"))
}

func checkHeadingHierarchy(s *models.PageSnapshot) []models.Finding {
	if len(s.Headings) == 0 {
		return one(info(onPage, "Heading hierarchy", "Page has no headings"))
	}
	prev := 0
	for _, h := range s.Headings {
		if prev > 0 && h.Level > prev+1 {
			return one(warn(onPage, "Heading hierarchy", models.ImpactLow,
				fmt.Sprintf("Heading level jumps from H%d to H%d", prev, h.Level),
				"Nest headings without skipping levels"))
		}
		prev = h.Level
	}
	return one(pass(onPage, "Heading hierarchy", models.ImpactLow, "Headings are properly nested"))
}

func checkImageAlt(s *models.PageSnapshot) []models.Finding {
	missing := 0
	for _, img := range s.Images {
		if !img.HasAlt {
			missing++
		}
	}
	if missing > 0 {
		return one(fail(onPage, "Image alt text", models.ImpactMedium,
			fmt.Sprintf("%d of %d images have no alt attribute", missing, len(s.Images)),
			"Describe every meaningful image with alt text"))
	}
	return one(pass(onPage, "Image alt text", models.ImpactMedium, "All images have alt attributes"))
}

func checkOpenGraph(s *models.PageSnapshot) []models.Finding {
	var missing []string
	for _, tag := range []string{"og:title", "og:description", "og:image"} {
		if s.Meta[tag] == "" {
			missing = append(missing, tag)
		}
	}
	switch len(missing) {
	case 0:
		return one(pass(onPage, "Open Graph tags", models.ImpactLow, "Open Graph tags complete"))
	case 3:
		return one(fail(onPage, "Open Graph tags", models.ImpactLow, "No Open Graph tags",
			"Add og:title, og:description and og:image for link previews"))
	default:
		return one(warn(onPage, "Open Graph tags", models.ImpactLow, "Missing "+strings.Join(missing, ", "),
			"Complete the Open Graph tag set"))
	}
}

func checkTwitterCard(s *models.PageSnapshot) []models.Finding {
	if s.Meta["twitter:card"] == "" {
		return one(warn(onPage, "Twitter card", models.ImpactLow, "No twitter:card meta tag",
			`Add <meta name="twitter:card" content="summary_large_image">`))
	}
	return one(pass(onPage, "Twitter card", models.ImpactLow, "Twitter card declared"))
}

func checkInternalLinks(s *models.PageSnapshot) []models.Finding {
	internal := 0
	for _, l := range s.Links {
		if l.Internal {
			internal++
		}
	}
	if internal == 0 {
		return one(warn(onPage, "Internal links", models.ImpactMedium, "Page links to no other page on the site",
			"Link to related pages to spread authority"))
	}
	return one(pass(onPage, "Internal links", models.ImpactMedium, fmt.Sprintf("%d internal link(s)", internal)))
}

func checkAnchorText(s *models.PageSnapshot) []models.Finding {
	empty := 0
	for _, l := range s.Links {
		if l.Text == "" {
			empty++
		}
	}
	if empty > 0 {
		return one(warn(onPage, "Anchor text", models.ImpactLow, fmt.Sprintf("%d link(s) have no anchor text", empty),
			"Give every link descriptive text or an aria-label"))
	}
	return one(pass(onPage, "Anchor text", models.ImpactLow, "All links have anchor text"))
}

func checkTitleH1(s *models.PageSnapshot) []models.Finding {
	if s.Title == "" || countLevel(s, 1) == 0 {
		return one(info(onPage, "Title and H1 overlap", "Title or H1 missing"))
	}
	for _, h := range s.Headings {
		if h.Level == 1 && strings.EqualFold(strings.TrimSpace(h.Text), strings.TrimSpace(s.Title)) {
			return one(warn(onPage, "Title and H1 overlap", models.ImpactLow, "H1 repeats the title verbatim",
				"Use the H1 to add context beyond the title"))
		}
	}
	return one(pass(onPage, "Title and H1 overlap", models.ImpactLow, "Title and H1 complement each other"))
}

func checkTopicInTitle(s *models.PageSnapshot) []models.Finding {
	topics := utils.ExtractKeywords(s.Text, 3)
	if len(topics) == 0 || s.Title == "" {
		return one(info(onPage, "Topic in title", "Not enough text to determine the page topic"))
	}
	title := strings.ToLower(s.Title)
	for _, t := range topics {
		if strings.Contains(title, t) {
			return one(pass(onPage, "Topic in title", models.ImpactMedium, fmt.Sprintf("Title mentions main topic %q", t)))
		}
	}
	return one(warn(onPage, "Topic in title", models.ImpactMedium,
		fmt.Sprintf("Title does not mention the main topics (%s)", strings.Join(topics, ", ")),
		"Work the primary keyword into the title"))
}
