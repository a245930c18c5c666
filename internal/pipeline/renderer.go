package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/mopscov/internal/analyze"
	"github.com/ppiankov/mopscov/internal/matrix"
	"github.com/ppiankov/mopscov/internal/model"
)

const (
	utf8BOM          = "\ufeff"
	timestampLayout  = "20060102_150405"
	maxMissingListed = 20
)

// Renderer writes coverage outputs into one directory
type Renderer struct {
	outputDir string
	now       func() time.Time
}

// NewRenderer creates a renderer. now defaults to time.Now and stamps filenames.
func NewRenderer(outputDir string, now func() time.Time) *Renderer {
	if now == nil {
		now = time.Now
	}
	return &Renderer{outputDir: outputDir, now: now}
}

// Outputs lists the files written by WriteAll
type Outputs struct {
	MatrixCSV string
	Metadata  string
	JSON      string
	Markdown  string
}

type matrixMetadata struct {
	GeneratedAt time.Time           `json:"generated_at"`
	MatrixFile  string              `json:"matrix_file"`
	Columns     []string            `json:"columns"`
	Stats       model.CoverageStats `json:"stats"`
}

// WriteAll writes the matrix CSV with its metadata sidecar plus the JSON and
// Markdown analysis reports
func (r *Renderer) WriteAll(m *matrix.Matrix, report *analyze.AnalysisReport, narrative string) (*Outputs, error) {
	csvPath, metaPath, err := r.WriteMatrix(m)
	if err != nil {
		return nil, err
	}
	jsonPath, mdPath, err := r.WriteReports(report, narrative)
	if err != nil {
		return nil, err
	}
	return &Outputs{MatrixCSV: csvPath, Metadata: metaPath, JSON: jsonPath, Markdown: mdPath}, nil
}

// WriteReports writes mops_analysis_<timestamp>.json and .md
func (r *Renderer) WriteReports(report *analyze.AnalysisReport, narrative string) (string, string, error) {
	stamp := r.now().Format(timestampLayout)

	jsonPath := filepath.Join(r.outputDir, fmt.Sprintf("mops_analysis_%s.json", stamp))
	if err := r.RenderJSON(report, jsonPath); err != nil {
		return "", "", err
	}

	mdPath := filepath.Join(r.outputDir, fmt.Sprintf("mops_analysis_%s.md", stamp))
	if err := r.RenderMarkdown(report, narrative, mdPath); err != nil {
		return "", "", err
	}
	return jsonPath, mdPath, nil
}

// WriteMatrix writes mops_matrix_<timestamp>.csv (UTF-8 with BOM so
// spreadsheet tools detect the encoding) and its _metadata.json sidecar
func (r *Renderer) WriteMatrix(m *matrix.Matrix) (string, string, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output directory: %w", err)
	}

	now := r.now()
	csvPath := filepath.Join(r.outputDir, fmt.Sprintf("mops_matrix_%s.csv", now.Format(timestampLayout)))
	f, err := os.Create(csvPath)
	if err != nil {
		return "", "", fmt.Errorf("create matrix csv: %w", err)
	}
	if err := WriteMatrixCSV(f, m); err != nil {
		_ = f.Close()
		return "", "", err
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("close matrix csv: %w", err)
	}

	metaPath := strings.TrimSuffix(csvPath, ".csv") + "_metadata.json"
	meta := matrixMetadata{
		GeneratedAt: now,
		MatrixFile:  filepath.Base(csvPath),
		Columns:     m.Header(),
		Stats:       m.Stats,
	}
	if err := writeJSON(metaPath, meta); err != nil {
		return "", "", err
	}
	return csvPath, metaPath, nil
}

// WriteMatrixCSV writes the BOM-prefixed matrix CSV to w
func WriteMatrixCSV(w io.Writer, m *matrix.Matrix) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write matrix csv: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(m.Records()); err != nil {
		return fmt.Errorf("write matrix csv: %w", err)
	}
	return nil
}

// RenderJSON writes the analysis report as indented JSON
func (r *Renderer) RenderJSON(report *analyze.AnalysisReport, path string) error {
	return writeJSON(path, report)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RenderMarkdown writes a human-readable analysis report. narrative is the
// optional LLM summary and is omitted when empty.
func (r *Renderer) RenderMarkdown(report *analyze.AnalysisReport, narrative, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(MarkdownReport(report, narrative)), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

// MarkdownReport renders the analysis report as Markdown
func MarkdownReport(report *analyze.AnalysisReport, narrative string) string {
	var b strings.Builder
	s := report.Stats

	b.WriteString("# MOPS Coverage Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Companies | %d |\n", s.TotalCompanies)
	fmt.Fprintf(&b, "| Companies with reports | %d |\n", s.CompaniesWithReports)
	fmt.Fprintf(&b, "| Quarter columns | %d |\n", s.TotalQuarters)
	fmt.Fprintf(&b, "| Filled cells | %d / %d |\n", s.FilledCells, s.PossibleCells)
	fmt.Fprintf(&b, "| Coverage | %.1f%% |\n", s.CoveragePercentage)
	fmt.Fprintf(&b, "| Multi-type cells | %d |\n", s.CellsWithMultipleTypes)
	fmt.Fprintf(&b, "| Quality score | %.1f / 10 |\n", report.QualityScore)
	b.WriteString("\n")

	if narrative != "" {
		b.WriteString("## Narrative\n\n")
		b.WriteString(strings.TrimSpace(narrative))
		b.WriteString("\n\n")
	}

	writeList(&b, "Insights", report.Insights)

	if len(s.ReportTypeDistribution) > 0 {
		b.WriteString("## Report Types\n\n| Type | Count |\n|---|---|\n")
		types := make([]string, 0, len(s.ReportTypeDistribution))
		for t := range s.ReportTypeDistribution {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(&b, "| %s | %d |\n", t, s.ReportTypeDistribution[t])
		}
		b.WriteString("\n")
	}

	if len(report.MissingReports) > 0 {
		b.WriteString("## Missing Reports\n\n")
		b.WriteString("| Company | Name | Priority | Missing | Expected |\n|---|---|---|---|---|\n")
		for _, mr := range capMissing(report.MissingReports) {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
				mr.CompanyID, mr.CompanyName, mr.Priority, len(mr.MissingQuarters), mr.ExpectedTypes)
		}
		if len(report.MissingReports) > maxMissingListed {
			fmt.Fprintf(&b, "\n...and %d more\n", len(report.MissingReports)-maxMissingListed)
		}
		b.WriteString("\n")
	}

	if len(report.Suggestions) > 0 {
		b.WriteString("## Download Suggestions\n\n```\n")
		for _, line := range report.Suggestions {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}

	if len(report.FutureCandidates) > 0 {
		b.WriteString("## Future-Dated Candidates\n\n| Company | Quarter | File | Months ahead |\n|---|---|---|---|\n")
		for _, fc := range report.FutureCandidates {
			flag := ""
			if fc.Suspicious {
				flag = " ⚠"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %d%s |\n", fc.CompanyID, fc.Quarter, fc.Filename, fc.MonthsAhead, flag)
		}
		b.WriteString("\n")
	}

	if len(report.Temporal.IrregularCompanies) > 0 {
		b.WriteString("## Irregular Filers\n\n")
		for _, id := range report.Temporal.IrregularCompanies {
			c := report.Temporal.Companies[id]
			fmt.Fprintf(&b, "- %s: %d of %d quarters (%.2f)\n", id, c.ObservedQuarters, c.ExpectedQuarters, c.Ratio)
		}
		b.WriteString("\n")
	}

	if report.StockChanges != nil && report.StockChanges.HasChanges() {
		b.WriteString("## Stock List Changes\n\n")
		fmt.Fprintf(&b, "Added %d, removed %d, unchanged %d\n\n",
			len(report.StockChanges.Added), len(report.StockChanges.Removed), report.StockChanges.Unchanged)
	}

	if len(report.Signals) > 0 {
		b.WriteString("## Signals\n\n")
		for _, sig := range report.Signals {
			fmt.Fprintf(&b, "- **%s** (%s): %s\n", sig.Type, sig.Severity, sig.Description)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func capMissing(items []model.MissingReport) []model.MissingReport {
	if len(items) > maxMissingListed {
		return items[:maxMissingListed]
	}
	return items
}

// PrintSummary writes the terminal summary of an analysis
func PrintSummary(w io.Writer, report *analyze.AnalysisReport) {
	s := report.Stats
	banner := strings.Repeat("═", 60)

	fmt.Fprintln(w, banner)
	fmt.Fprintln(w, "MOPS coverage summary")
	fmt.Fprintln(w, banner)
	fmt.Fprintf(w, "Companies:        %d (%d with reports)\n", s.TotalCompanies, s.CompaniesWithReports)
	fmt.Fprintf(w, "Quarter columns:  %d\n", s.TotalQuarters)
	fmt.Fprintf(w, "Coverage:         %.1f%% (%d/%d cells)\n", s.CoveragePercentage, s.FilledCells, s.PossibleCells)
	fmt.Fprintf(w, "Quality score:    %.1f/10\n", report.QualityScore)
	if s.MostCommonCombination != "" {
		fmt.Fprintf(w, "Top combination:  %s\n", s.MostCommonCombination)
	}
	if len(s.FutureQuarters) > 0 {
		fmt.Fprintf(w, "Future quarters:  %s\n", strings.Join(s.FutureQuarters, ", "))
	}

	if len(report.Insights) > 0 {
		fmt.Fprintln(w)
		for _, insight := range report.Insights {
			fmt.Fprintf(w, "  • %s\n", insight)
		}
	}

	if len(report.Suggestions) > 0 {
		fmt.Fprintln(w)
		for _, line := range report.Suggestions {
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintln(w, banner)
}
