package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/mopscov/internal/analyze"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize writes a coverage narrative from the analysis findings
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SummarizeRequest contains the input for LLM summarization
type SummarizeRequest struct {
	// Report is the coverage analysis to narrate
	Report analyze.AnalysisReport

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the LLM's summary output
type SummarizeResponse struct {
	Summary    string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai" or "" (disabled)
	Provider string

	Model   string
	APIKey  string
	BaseURL string // Any OpenAI-compatible endpoint

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 600,
	}
}

// Prompt list caps
const (
	promptMissing     = 10
	promptSuggestions = 12
	promptSignals     = 5
)

// BuildPrompt constructs the default prompt. Every figure in it comes from
// the analysis; the model is told not to add any of its own.
func BuildPrompt(report analyze.AnalysisReport) string {
	s := report.Stats
	var b strings.Builder

	b.WriteString(`You are summarizing a coverage report of Taiwan listed companies' quarterly financial statements downloaded from MOPS.

RULES:
1. Use ONLY the figures and company codes given below. Do not estimate or invent numbers.
2. Do not speculate about why a company has not filed.
3. Individual (A12/A13) reports are preferred over consolidated (AI1/A1L) ones.
4. Write 3-5 sentences of plain prose, then at most three recommended next steps.

`)
	b.WriteString("Coverage:\n")
	fmt.Fprintf(&b, "- Companies: %d (%d with at least one report)\n", s.TotalCompanies, s.CompaniesWithReports)
	fmt.Fprintf(&b, "- Quarter columns: %d\n", s.TotalQuarters)
	fmt.Fprintf(&b, "- Filled cells: %d of %d (%.1f%%)\n", s.FilledCells, s.PossibleCells, s.CoveragePercentage)
	fmt.Fprintf(&b, "- Cells with multiple report types: %d\n", s.CellsWithMultipleTypes)
	fmt.Fprintf(&b, "- Quality score: %.1f/10\n", report.QualityScore)
	if len(s.FutureQuarters) > 0 {
		fmt.Fprintf(&b, "- Future-dated quarter columns: %s\n", strings.Join(s.FutureQuarters, ", "))
	}

	if len(report.Insights) > 0 {
		b.WriteString("\nInsights:\n")
		for _, insight := range report.Insights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
	}

	if len(report.MissingReports) > 0 {
		fmt.Fprintf(&b, "\nMissing reports (%d companies, most urgent first):\n", len(report.MissingReports))
		for i, mr := range report.MissingReports {
			if i >= promptMissing {
				fmt.Fprintf(&b, "... and %d more\n", len(report.MissingReports)-promptMissing)
				break
			}
			fmt.Fprintf(&b, "- %s %s: %d quarters missing, priority %s, expected %s\n",
				mr.CompanyID, mr.CompanyName, len(mr.MissingQuarters), mr.Priority, mr.ExpectedTypes)
		}
	}

	if len(report.Signals) > 0 {
		b.WriteString("\nSignals:\n")
		for i, sig := range report.Signals {
			if i >= promptSignals {
				break
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", sig.Type, sig.Severity, sig.Description)
		}
	}

	if len(report.Suggestions) > 0 {
		b.WriteString("\nSuggestions already computed:\n")
		for i, line := range report.Suggestions {
			if i >= promptSuggestions {
				break
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// flaggedCompanies lists every company code the analysis names
func flaggedCompanies(report analyze.AnalysisReport) []string {
	seen := make(map[string]bool)
	var codes []string
	add := func(code string) {
		if code != "" && !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	for _, mr := range report.MissingReports {
		add(mr.CompanyID)
	}
	for _, fc := range report.FutureCandidates {
		add(fc.CompanyID)
	}
	for _, id := range report.Temporal.IrregularCompanies {
		add(id)
	}
	return codes
}
