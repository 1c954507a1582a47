// Package reporter exports audit records as JSON, CSV, Markdown or HTML.
package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/scoring"
)

// Format is an export format
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// CSVHeader is the first row of every CSV export
var CSVHeader = []string{
	"audit_id", "target_url", "timestamp", "triggered_by",
	"category", "category_score", "item", "status", "impact", "message", "fix",
}

// Render writes rec in the given format
func Render(rec *models.AuditRecord, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return JSON(rec)
	case FormatCSV:
		return CSV(rec)
	case FormatMarkdown:
		return Markdown(rec), nil
	case FormatHTML:
		return HTML(rec)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// JSON renders the full record
func JSON(rec *models.AuditRecord) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// CSV flattens the record into one row per finding. A record without
// findings yields a single row carrying the overall score.
func CSV(rec *models.AuditRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return nil, err
	}

	prefix := []string{rec.ID, rec.TargetURL, rec.Timestamp.UTC().Format(time.RFC3339), string(rec.TriggeredBy)}
	if len(rec.Findings) == 0 {
		row := append(append([]string{}, prefix...), "overall", strconv.Itoa(rec.Scores.Overall), "", "", "", "", "")
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	for _, f := range rec.Findings {
		row := append(append([]string{}, prefix...),
			string(f.Category),
			categoryScore(rec.Scores, f.Category),
			f.Item,
			string(f.Status),
			string(f.Impact),
			f.Message,
			f.Fix,
		)
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// categoryScore returns the score a finding's category contributes to.
// Security feeds technical and content feeds on-page.
func categoryScore(s models.CategoryScores, c models.Category) string {
	switch c {
	case models.CategoryTechnical, models.CategorySecurity:
		return strconv.Itoa(s.Technical)
	case models.CategoryOnPage, models.CategoryContent:
		return strconv.Itoa(s.OnPage)
	case models.CategoryPerformance:
		return strconv.Itoa(s.Performance)
	case models.CategoryMobile:
		return strconv.Itoa(s.Mobile)
	default:
		return ""
	}
}

type scoreRow struct {
	Label string
	Score int
}

func scoreRows(s models.CategoryScores) []scoreRow {
	return []scoreRow{
		{"Technical SEO", s.Technical},
		{"On-Page", s.OnPage},
		{"Performance", s.Performance},
		{"Mobile", s.Mobile},
		{"Accessibility", s.Accessibility},
	}
}

// issues returns failed findings first, then warnings
func issues(rec *models.AuditRecord) []models.Finding {
	var failed, warned []models.Finding
	for _, f := range rec.Findings {
		switch f.Status {
		case models.StatusFailed:
			failed = append(failed, f)
		case models.StatusWarning:
			warned = append(warned, f)
		}
	}
	return append(failed, warned...)
}

// Markdown renders a human readable summary
func Markdown(rec *models.AuditRecord) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# SEO Audit for %s\n\n", rec.TargetURL)
	fmt.Fprintf(&buf, "*Audited on %s (%s)*\n\n", rec.Timestamp.UTC().Format("January 2, 2006 15:04 MST"), rec.TriggeredBy)

	fmt.Fprintf(&buf, "**Overall Grade:** %s (%d/100)\n\n", scoring.Grade(rec.Scores.Overall), rec.Scores.Overall)

	fmt.Fprintf(&buf, "## Scores\n\n")
	fmt.Fprintf(&buf, "| Category | Score | Grade |\n")
	fmt.Fprintf(&buf, "|----------|-------|-------|\n")
	for _, row := range scoreRows(rec.Scores) {
		fmt.Fprintf(&buf, "| %s | %d | %s |\n", row.Label, row.Score, scoring.Grade(row.Score))
	}
	fmt.Fprintf(&buf, "| **Overall** | **%d** | **%s** |\n\n", rec.Scores.Overall, scoring.Grade(rec.Scores.Overall))

	t := rec.Totals
	fmt.Fprintf(&buf, "%d checks: %d passed, %d warnings, %d failed\n\n", t.Checked, t.Passed, t.Warned, t.Failed)

	if list := issues(rec); len(list) > 0 {
		fmt.Fprintf(&buf, "## Issues\n\n")
		for _, f := range list {
			fmt.Fprintf(&buf, "### %s\n", f.Item)
			fmt.Fprintf(&buf, "- **Category:** %s\n", f.Category)
			fmt.Fprintf(&buf, "- **Status:** %s\n", f.Status)
			fmt.Fprintf(&buf, "- **Impact:** %s\n", f.Impact)
			fmt.Fprintf(&buf, "- **Description:** %s\n", f.Message)
			if f.Fix != "" {
				fmt.Fprintf(&buf, "- **Fix:** %s\n", f.Fix)
			}
			fmt.Fprintf(&buf, "\n")
		}
	}

	return buf.Bytes()
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"grade": scoring.Grade,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>SEO Audit - {{.Record.TargetURL}}</title>
    <style>
        body { font-family: system-ui, sans-serif; color: #222; max-width: 960px; margin: 0 auto; padding: 16px; }
        header { border-bottom: 3px solid #4a5bd4; margin-bottom: 1.5rem; }
        section { margin-bottom: 1.5rem; }
        .scores { display: flex; flex-wrap: wrap; gap: 0.75rem; }
        .score { flex: 1 1 140px; text-align: center; padding: 0.75rem; background: #f1f3f8; border-radius: 6px; }
        .score b { display: block; font-size: 1.6rem; }
        .grade { padding: 0.2rem 0.6rem; background: #4a5bd4; color: #fff; border-radius: 4px; font-weight: bold; }
        .finding { border-left: 4px solid #e0a800; padding: 0.5rem 1rem; margin: 0.75rem 0; }
        .finding.high { border-left-color: #c82333; }
        .finding.low { border-left-color: #218838; }
    </style>
</head>
<body>
    <header>
        <h1>SEO Audit for {{.Record.TargetURL}}</h1>
        <p>Audited on {{.Record.Timestamp.Format "January 2, 2006 15:04"}}</p>
    </header>

    <section>
        <h2>Summary</h2>
        <p>Overall Grade: <span class="grade">{{grade .Record.Scores.Overall}}</span> {{.Record.Scores.Overall}}/100</p>

        <div class="scores">
            {{range .Scores}}
            <div class="score"><b>{{.Score}}</b>{{.Label}} ({{grade .Score}})</div>
            {{end}}
        </div>
        <p>{{.Record.Totals.Checked}} checks: {{.Record.Totals.Passed}} passed, {{.Record.Totals.Warned}} warnings, {{.Record.Totals.Failed}} failed</p>
    </section>

    {{if .Issues}}
    <section>
        <h2>Issues</h2>
        {{range .Issues}}
        <div class="finding {{.Impact}}">
            <h4>{{.Item}} <small>{{.Category}} / {{.Status}}</small></h4>
            <p>{{.Message}}</p>
            {{if .Fix}}<p><small>Fix: {{.Fix}}</small></p>{{end}}
        </div>
        {{end}}
    </section>
    {{end}}
</body>
</html>
`))

// HTML renders a standalone page
func HTML(rec *models.AuditRecord) ([]byte, error) {
	var buf bytes.Buffer
	err := htmlTemplate.Execute(&buf, struct {
		Record *models.AuditRecord
		Scores []scoreRow
		Issues []models.Finding
	}{rec, scoreRows(rec.Scores), issues(rec)})
	if err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}
