package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

func sampleRecord() *models.AuditRecord {
	return &models.AuditRecord{
		ID:          "a1",
		TargetURL:   "https://example.com/",
		TriggeredBy: models.TriggeredManual,
		Timestamp:   time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
		Findings: []models.Finding{
			{Category: models.CategoryOnPage, Item: "title", Status: models.StatusPassed, Impact: models.ImpactHigh, Message: "Title present"},
			{Category: models.CategorySecurity, Item: "hsts", Status: models.StatusFailed, Impact: models.ImpactMedium, Message: "Missing HSTS, \"strict\" mode off", Fix: "Send Strict-Transport-Security"},
			{Category: models.CategoryPerformance, Item: "ttfb", Status: models.StatusWarning, Impact: models.ImpactHigh, Message: "Slow first byte"},
		},
		Scores: models.CategoryScores{Technical: 50, OnPage: 100, Performance: 50, Mobile: 100, Accessibility: 100, Overall: 74},
		Totals: models.Totals{Checked: 3, Passed: 1, Warned: 1, Failed: 1},
	}
}

func TestJSON(t *testing.T) {
	out, err := JSON(sampleRecord())
	require.NoError(t, err)

	var back models.AuditRecord
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "a1", back.ID)
	assert.Equal(t, 74, back.Scores.Overall)
	assert.Len(t, back.Findings, 3)
}

func TestCSV(t *testing.T) {
	out, err := CSV(sampleRecord())
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{
		"a1", "https://example.com/", "2026-03-01T06:00:00Z", "manual",
		"security", "50", "hsts", "failed", "medium", "Missing HSTS, \"strict\" mode off", "Send Strict-Transport-Security",
	}, rows[2])
	assert.Equal(t, "100", rows[1][5])
}

func TestCSVWithoutFindings(t *testing.T) {
	rec := &models.AuditRecord{ID: "empty", Scores: models.CategoryScores{Overall: 100}}
	out, err := CSV(rec)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "overall", rows[1][4])
	assert.Equal(t, "100", rows[1][5])
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(sampleRecord()))
	assert.Contains(t, md, "# SEO Audit for https://example.com/")
	assert.Contains(t, md, "**Overall Grade:** C (74/100)")
	assert.Contains(t, md, "| Performance | 50 | F |")
	assert.Less(t, strings.Index(md, "### hsts"), strings.Index(md, "### ttfb"), "failures come before warnings")
	assert.NotContains(t, md, "### title")
}

func TestHTMLEscapes(t *testing.T) {
	rec := sampleRecord()
	rec.Findings[1].Message = "<script>alert(1)</script>"
	out, err := HTML(rec)
	require.NoError(t, err)

	page := string(out)
	assert.Contains(t, page, `<span class="grade">C</span>`)
	assert.NotContains(t, page, "<script>alert(1)</script>")
	assert.Contains(t, page, "&lt;script&gt;")
}

func TestRender(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatHTML} {
		out, err := Render(sampleRecord(), f)
		require.NoError(t, err, f)
		assert.NotEmpty(t, out, f)
	}
	_, err := Render(sampleRecord(), Format("pdf"))
	assert.Error(t, err)
}
