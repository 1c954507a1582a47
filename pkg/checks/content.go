package checks

import (
	"fmt"
	"strings"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

const content = models.CategoryContent

func contentChecks() []Check {
	return []Check{
		{Name: "Word count", Category: content, Run: checkWordCount},
		{Name: "Text to HTML ratio", Category: content, Run: checkTextRatio},
		{Name: "Paragraph structure", Category: content, Run: checkParagraphs},
		{Name: "Placeholder text", Category: content, Run: checkPlaceholder},
		{Name: "Reading time", Category: content, Run: checkReadingTime},
	}
}

func checkWordCount(s *models.PageSnapshot) []models.Finding {
	switch {
	case s.WordCount >= 300:
		return one(pass(content, "Word count", models.ImpactMedium, fmt.Sprintf("%d words of main content", s.WordCount)))
	case s.WordCount >= 100:
		return one(warn(content, "Word count", models.ImpactMedium, fmt.Sprintf("Thin content (%d words)", s.WordCount),
			"Expand the page with useful, relevant content"))
	default:
		return one(fail(content, "Word count", models.ImpactMedium, fmt.Sprintf("Very thin content (%d words)", s.WordCount),
			"Add at least 300 words of substantive content"))
	}
}

func checkTextRatio(s *models.PageSnapshot) []models.Finding {
	if s.Timing.TransferBytes <= 0 {
		return one(info(content, "Text to HTML ratio", "Transfer size was not measured"))
	}
	ratio := float64(len(s.Text)) / float64(s.Timing.TransferBytes)
	if ratio < 0.1 {
		return one(warn(content, "Text to HTML ratio", models.ImpactLow, fmt.Sprintf("Text is %.0f%% of the HTML", ratio*100),
			"Reduce markup bloat or add more text"))
	}
	return one(pass(content, "Text to HTML ratio", models.ImpactLow, fmt.Sprintf("Text is %.0f%% of the HTML", ratio*100)))
}

func checkParagraphs(s *models.PageSnapshot) []models.Finding {
	if s.Paragraphs == 0 {
		return one(warn(content, "Paragraph structure", models.ImpactLow, "No paragraph elements",
			"Structure body copy into <p> paragraphs"))
	}
	return one(pass(content, "Paragraph structure", models.ImpactLow, fmt.Sprintf("%d paragraph(s)", s.Paragraphs)))
}

func checkPlaceholder(s *models.PageSnapshot) []models.Finding {
	if strings.Contains(strings.ToLower(s.Text), "lorem ipsum") {
		return one(fail(content, "Placeholder text", models.ImpactMedium, "Page contains lorem ipsum placeholder text",
			"Replace placeholder copy before publishing"))
	}
	return one(pass(content, "Placeholder text", models.ImpactMedium, "No placeholder text"))
}

func checkReadingTime(s *models.PageSnapshot) []models.Finding {
	if s.WordCount == 0 {
		return one(info(content, "Reading time", "No text to measure"))
	}
	return one(pass(content, "Reading time", models.ImpactLow,
		fmt.Sprintf("About %d minute(s) to read", utils.CalculateReadingTime(s.Text))))
}
