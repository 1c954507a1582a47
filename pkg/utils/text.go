package utils

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Common stop words for text processing
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "will": true, "with": true,
	"this": true, "but": true, "they": true, "have": true, "had": true, "you": true,
	"were": true, "been": true, "their": true, "she": true, "which": true, "do": true,
	"or": true, "if": true, "not": true, "what": true, "there": true, "can": true,
	"out": true, "up": true, "one": true, "about": true, "more": true, "so": true,
	"said": true, "when": true, "some": true, "into": true, "them": true, "then": true,
	"two": true, "how": true, "her": true, "than": true, "first": true, "way": true,
	"even": true, "back": true, "any": true, "over": true, "where": true, "just": true,
	"your": true, "our": true, "all": true, "we": true, "us": true,
}

var invalidFilename = regexp.MustCompile(`[<>:"/\\|?*]`)

// ExtractKeywords returns the most frequent non-stop-words in text.
// Ties are broken alphabetically so the result is deterministic.
func ExtractKeywords(text string, limit int) []string {
	wordCount := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if len(word) > 2 && !stopWords[word] {
			wordCount[word]++
		}
	}

	type kv struct {
		Key   string
		Value int
	}
	sorted := make([]kv, 0, len(wordCount))
	for k, v := range wordCount {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		return sorted[i].Key < sorted[j].Key
	})

	keywords := make([]string, 0, limit)
	for i := 0; i < limit && i < len(sorted); i++ {
		keywords = append(keywords, sorted[i].Key)
	}
	return keywords
}

// TruncateText truncates text to a maximum length, preserving word boundaries
func TruncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}

	truncated := text[:maxLength]
	lastSpace := strings.LastIndex(truncated, " ")

	if lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}

// NormalizeURL normalizes a URL for consistent comparison
func NormalizeURL(url string) string {
	// Remove fragment
	if idx := strings.Index(url, "#"); idx > 0 {
		url = url[:idx]
	}

	// Remove trailing slash
	url = strings.TrimSuffix(url, "/")

	// Convert to lowercase for scheme and host part
	if idx := strings.Index(url, "://"); idx > 0 {
		protocol := strings.ToLower(url[:idx+3])
		rest := url[idx+3:]

		if slashIdx := strings.Index(rest, "/"); slashIdx > 0 {
			domain := strings.ToLower(rest[:slashIdx])
			path := rest[slashIdx:]
			url = protocol + domain + path
		} else {
			url = protocol + strings.ToLower(rest)
		}
	}

	return url
}

// SanitizeFilename removes invalid characters from a filename
func SanitizeFilename(filename string) string {
	filename = invalidFilename.ReplaceAllString(filename, "_")

	// Remove control characters
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filename)

	// Limit length
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	return cleaned
}

// CalculateReadingTime estimates reading time in minutes
func CalculateReadingTime(text string) int {
	wordsPerMinute := 200
	wordCount := len(strings.Fields(text))
	minutes := wordCount / wordsPerMinute

	if minutes < 1 {
		return 1
	}

	return minutes
}
