package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/analyze"
)

// Summary is the optional narrative attached to a coverage report. It never
// feeds back into the computed metrics.
type Summary struct {
	Enabled     bool      `json:"enabled"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	Text        string    `json:"text,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Summarizer wraps a provider with graceful degradation: provider failures
// become warnings, never errors
type Summarizer struct {
	provider Provider
	config   Config
	logger   *zap.Logger
}

// NewSummarizer creates a summarizer. A config without a provider yields a
// disabled summarizer.
func NewSummarizer(config Config, logger *zap.Logger) (*Summarizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider, err := NewProvider(config, logger)
	if err != nil {
		return nil, err
	}
	return &Summarizer{provider: provider, config: config, logger: logger}, nil
}

// IsEnabled reports whether a provider is configured
func (s *Summarizer) IsEnabled() bool {
	return s.provider != nil
}

// ProviderName returns the configured provider name, or ""
func (s *Summarizer) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// GenerateSummary narrates the analysis. It returns nil when disabled.
func (s *Summarizer) GenerateSummary(ctx context.Context, report analyze.AnalysisReport) (*Summary, error) {
	if s.provider == nil {
		return nil, nil
	}

	summary := &Summary{
		Provider:    s.provider.Name(),
		Model:       s.config.Model,
		GeneratedAt: time.Now(),
	}

	if !s.provider.IsAvailable(ctx) {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("LLM provider %s is not available", s.provider.Name()))
		return summary, nil
	}
	summary.Enabled = true

	resp, err := s.provider.Summarize(ctx, SummarizeRequest{
		Report:    report,
		Model:     s.config.Model,
		MaxTokens: s.config.MaxTokens,
	})
	if err != nil {
		s.logger.Warn("narrative generation failed", zap.Error(err))
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("Narrative generation failed: %v", err))
		return summary, nil
	}

	summary.Text = resp.Summary
	if resp.Model != "" {
		summary.Model = resp.Model
	}
	summary.Warnings = append(summary.Warnings, fmt.Sprintf("Tokens used: %d", resp.TokensUsed))

	flagged := flaggedCompanies(report)
	if len(flagged) > 0 {
		mentioned := 0
		for _, code := range flagged {
			if strings.Contains(resp.Summary, code) {
				mentioned++
			}
		}
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("Mentions %d of %d flagged companies", mentioned, len(flagged)))
	}

	return summary, nil
}
