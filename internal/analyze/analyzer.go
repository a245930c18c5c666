package analyze

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/matrix"
	"github.com/ppiankov/mopscov/internal/model"
)

// recentQuarters is how many trailing quarters count as "recent" for priority
const recentQuarters = 2

// irregularBelow is the consistency ratio under which a company is irregular
const irregularBelow = 0.5

// Suggestion list caps
const (
	maxNewCompanySuggestions   = 5
	maxRecentMissingSuggestion = 10
	maxConsolidatedSuggestions = 5
	maxFutureWarnings          = 3
)

// AnalysisReport gathers every analyzer finding for one matrix
type AnalysisReport struct {
	GeneratedAt      time.Time               `json:"generated_at"`
	Stats            model.CoverageStats     `json:"stats"`
	QualityScore     float64                 `json:"quality_score"` // 0-10
	Insights         []string                `json:"insights"`
	MissingReports   []model.MissingReport   `json:"missing_reports"`
	Suggestions      []string                `json:"suggestions"`
	Temporal         model.TemporalReport    `json:"temporal"`
	FutureCandidates []model.FutureCandidate `json:"future_candidates,omitempty"`
	StockChanges     *model.StockListChanges `json:"stock_changes,omitempty"`
	Signals          []model.Signal          `json:"signals"`
}

// Analyzer turns a matrix and its candidates into prioritized findings.
// It never mutates the matrix or its cells.
type Analyzer struct {
	cfg    model.AnalysisConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer. now defaults to time.Now.
func NewAnalyzer(cfg model.AnalysisConfig, now func() time.Time, logger *zap.Logger) *Analyzer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, now: now, logger: logger}
}

// Analyze runs every analysis and derives diagnostic signals
func (a *Analyzer) Analyze(m *matrix.Matrix, candidates map[string][]model.ReportCandidate, changes *model.StockListChanges) *AnalysisReport {
	missing := a.MissingReports(m, candidates)
	temporal := a.TemporalConsistency(candidates)
	future := a.FutureQuarters(candidates)

	report := &AnalysisReport{
		GeneratedAt:      a.now(),
		Stats:            m.Stats,
		QualityScore:     QualityScore(m.Stats, temporal),
		Insights:         Insights(m.Stats, missing, temporal),
		MissingReports:   missing,
		Suggestions:      a.DownloadSuggestions(m, candidates, changes),
		Temporal:         temporal,
		FutureCandidates: future,
		StockChanges:     changes,
	}
	report.Signals = a.signals(report, consolidatedOnly(candidates))

	a.logger.Info("analysis complete",
		zap.Float64("quality_score", report.QualityScore),
		zap.Int("companies_missing", len(missing)),
		zap.Int("irregular", len(temporal.IrregularCompanies)),
		zap.Int("future_candidates", len(future)))

	return report
}

// recent returns the current quarter and the ones right before it
func (a *Analyzer) recent() []model.QuarterKey {
	q := model.CurrentQuarter(a.now())
	keys := make([]model.QuarterKey, 0, recentQuarters)
	for i := 0; i < recentQuarters; i++ {
		keys = append(keys, q)
		q = q.Prev()
	}
	return keys
}

// MissingReports lists empty quarter columns per company, most urgent first
func (a *Analyzer) MissingReports(m *matrix.Matrix, candidates map[string][]model.ReportCandidate) []model.MissingReport {
	recent := make(map[model.QuarterKey]bool, recentQuarters)
	for _, q := range a.recent() {
		recent[q] = true
	}

	var out []model.MissingReport
	for _, row := range m.Rows {
		var quarters []string
		missingRecent := false
		for i, q := range m.Quarters {
			if row.Values[i] != matrix.EmptyCell {
				continue
			}
			quarters = append(quarters, q.String())
			if recent[q] {
				missingRecent = true
			}
		}
		if len(quarters) == 0 {
			continue
		}

		history := candidates[row.Company.Code]
		priority := model.PriorityLow
		switch {
		case len(history) == 0 || missingRecent:
			priority = model.PriorityHigh
		case len(quarters) > 3:
			priority = model.PriorityMedium
		}

		family := ExpectedFamily(history)
		out = append(out, model.MissingReport{
			CompanyID:       row.Company.Code,
			CompanyName:     row.Company.Name,
			MissingQuarters: quarters,
			Priority:        priority,
			ExpectedFamily:  family,
			ExpectedTypes:   expectedTypes(family),
			HasHistory:      len(history) > 0,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank(); ri != rj {
			return ri < rj
		}
		return len(out[i].MissingQuarters) > len(out[j].MissingQuarters)
	})

	a.logger.Debug("missing reports identified", zap.Int("companies", len(out)))
	return out
}

// ExpectedFamily predicts which report family a company files. Without
// history the individual family is assumed; with history that holds neither
// individual nor consolidated types the family is unknown ("").
func ExpectedFamily(history []model.ReportCandidate) model.Category {
	if len(history) == 0 {
		return model.CategoryIndividual
	}
	hasConsolidated := false
	for _, c := range history {
		switch model.LookupReportType(c.ReportType).Category {
		case model.CategoryIndividual:
			return model.CategoryIndividual
		case model.CategoryConsolidated:
			hasConsolidated = true
		}
	}
	if hasConsolidated {
		return model.CategoryConsolidated
	}
	return ""
}

func expectedTypes(family model.Category) string {
	if family == "" {
		return "unknown"
	}
	return strings.Join(model.TypesInCategory(family), "/")
}

// consolidatedOnly lists companies holding consolidated but no individual types
func consolidatedOnly(candidates map[string][]model.ReportCandidate) []string {
	var ids []string
	for id, list := range candidates {
		if len(list) > 0 && ExpectedFamily(list) == model.CategoryConsolidated {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// DownloadSuggestions produces ordered, free-text recommendations
func (a *Analyzer) DownloadSuggestions(m *matrix.Matrix, candidates map[string][]model.ReportCandidate, changes *model.StockListChanges) []string {
	var out []string

	names := make(map[string]string, len(m.Rows))
	for _, row := range m.Rows {
		names[row.Company.Code] = row.Company.Name
	}
	nameOf := func(id string) string {
		if name, ok := names[id]; ok && name != "" {
			return name
		}
		return "unknown"
	}

	// 1. Newly added companies without any coverage
	if changes != nil {
		var fresh []model.Company
		for _, c := range changes.Added {
			if len(candidates[c.Code]) == 0 {
				fresh = append(fresh, c)
			}
		}
		if len(fresh) > 0 {
			out = append(out, "New companies:")
			for _, c := range capList(fresh, maxNewCompanySuggestions) {
				out = append(out, fmt.Sprintf("  • %s (%s): download all available quarters", c.Code, c.Name))
			}
		}
	}

	// 2. Missing recent quarters
	columns := make(map[model.QuarterKey]int, len(m.Quarters))
	for i, q := range m.Quarters {
		columns[q] = i
	}
	var recentMissing []string
	for _, row := range m.Rows {
		for _, q := range a.recent() {
			i, ok := columns[q]
			if ok && row.Values[i] == matrix.EmptyCell {
				recentMissing = append(recentMissing,
					fmt.Sprintf("  • %s (%s): %s - most recent quarter missing", row.Company.Code, row.Company.Name, q))
			}
		}
	}
	if len(recentMissing) > 0 {
		out = append(out, "High priority missing reports:")
		out = append(out, capList(recentMissing, maxRecentMissingSuggestion)...)
	}

	// 3. Consolidated-only companies
	if ids := consolidatedOnly(candidates); len(ids) > 0 {
		out = append(out, "Individual reports preferred (only consolidated on file):")
		individual := strings.Join(model.TypesInCategory(model.CategoryIndividual), "/")
		for _, id := range capList(ids, maxConsolidatedSuggestions) {
			out = append(out, fmt.Sprintf("  • %s (%s): download %s individual reports first", id, nameOf(id), individual))
		}
	}

	// 4. Suspicious future-dated candidates
	var warnings []string
	for _, f := range a.FutureQuarters(candidates) {
		if f.Suspicious {
			warnings = append(warnings, fmt.Sprintf("  • %s is %d months ahead (%s)", f.Filename, f.MonthsAhead, f.Quarter))
		}
	}
	if len(warnings) > 0 {
		out = append(out, "Future quarter warnings:")
		out = append(out, capList(warnings, maxFutureWarnings)...)
	}

	// 5. Bulk download when many companies have nothing at all
	empty := 0
	for _, row := range m.Rows {
		if len(candidates[row.Company.Code]) == 0 {
			empty++
		}
	}
	if empty > a.cfg.BulkDownloadThreshold {
		out = append(out,
			"Bulk download:",
			fmt.Sprintf("  • %d companies have no reports at all, download them in bulk", empty),
			fmt.Sprintf("  • start with the %d most recent quarters, then backfill history", recentQuarters))
	}

	return out
}

func capList[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// TemporalConsistency measures how regularly each company files. The ratio
// is observed distinct quarters over the quarters spanned from the earliest
// to the latest observation; fewer than two distinct quarters scores 0.
func (a *Analyzer) TemporalConsistency(candidates map[string][]model.ReportCandidate) model.TemporalReport {
	report := model.TemporalReport{
		Companies:           make(map[string]model.ConsistencyResult),
		QuarterDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0},
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := 0.0
	for _, id := range ids {
		seen := make(map[model.QuarterKey]bool)
		for _, c := range candidates[id] {
			key := c.Key()
			if !key.Valid() {
				continue
			}
			seen[key] = true
			report.QuarterDistribution[key.Quarter]++
		}
		if len(seen) == 0 {
			continue
		}

		keys := make([]model.QuarterKey, 0, len(seen))
		for k := range seen {
			keys = append(keys, k)
		}
		model.SortDescending(keys)
		latest, earliest := keys[0], keys[len(keys)-1]

		result := model.ConsistencyResult{
			CompanyID:        id,
			ObservedQuarters: len(keys),
			ExpectedQuarters: latest.Index() - earliest.Index() + 1,
			Earliest:         earliest.String(),
			Latest:           latest.String(),
		}
		if len(keys) >= 2 {
			result.Ratio = float64(result.ObservedQuarters) / float64(result.ExpectedQuarters)
		}
		result.Irregular = result.Ratio < irregularBelow
		if result.Irregular {
			report.IrregularCompanies = append(report.IrregularCompanies, id)
		}

		report.Companies[id] = result
		total += result.Ratio
	}

	if len(report.Companies) > 0 {
		report.AverageConsistency = total / float64(len(report.Companies))
	}
	return report
}

// FutureQuarters lists candidates dated after the current quarter. Those more
// than the configured number of months ahead are flagged suspicious.
func (a *Analyzer) FutureQuarters(candidates map[string][]model.ReportCandidate) []model.FutureCandidate {
	current := model.CurrentQuarter(a.now())

	var out []model.FutureCandidate
	for id, list := range candidates {
		for _, c := range list {
			key := c.Key()
			if !key.Valid() || !key.After(current) {
				continue
			}
			months := (key.Index() - current.Index()) * 3
			out = append(out, model.FutureCandidate{
				CompanyID:   id,
				Quarter:     key.String(),
				Filename:    c.Filename,
				MonthsAhead: months,
				Suspicious:  months > a.cfg.WarnThresholdMonths,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MonthsAhead != out[j].MonthsAhead {
			return out[i].MonthsAhead > out[j].MonthsAhead
		}
		return out[i].Filename < out[j].Filename
	})
	return out
}

// QualityScore rates the data set from 0 to 10:
// coverage/100*5 + average consistency*3 + companies-with-data ratio*2
func QualityScore(stats model.CoverageStats, temporal model.TemporalReport) float64 {
	score := stats.CoveragePercentage / 100 * 5
	score += temporal.AverageConsistency * 3
	if stats.TotalCompanies > 0 {
		score += float64(stats.CompaniesWithReports) / float64(stats.TotalCompanies) * 2
	}
	score = math.Min(score, 10)
	return math.Round(score*10) / 10
}

// Insights summarizes the analysis in a few sentences
func Insights(stats model.CoverageStats, missing []model.MissingReport, temporal model.TemporalReport) []string {
	var out []string

	switch pct := stats.CoveragePercentage; {
	case pct > 80:
		out = append(out, fmt.Sprintf("Overall coverage is good (%.1f%%)", pct))
	case pct > 50:
		out = append(out, fmt.Sprintf("Coverage is moderate (%.1f%%), room for improvement", pct))
	default:
		out = append(out, fmt.Sprintf("Coverage is low (%.1f%%), substantial backfill needed", pct))
	}

	high := 0
	for _, m := range missing {
		if m.Priority == model.PriorityHigh {
			high++
		}
	}
	if high > 0 {
		out = append(out, fmt.Sprintf("%d companies need priority downloads", high))
	}

	if code, n := mostCommonType(stats.ReportTypeDistribution); n > 0 {
		out = append(out, fmt.Sprintf("Most common report type: %s (%d reports)", code, n))
	}

	individual, consolidated := 0, 0
	for code, n := range stats.ReportTypeDistribution {
		switch model.LookupReportType(code).Category {
		case model.CategoryIndividual:
			individual += n
		case model.CategoryConsolidated:
			consolidated += n
		}
	}
	if individual+consolidated > 0 {
		if individual > consolidated {
			out = append(out, fmt.Sprintf("Individual reports dominate (%d/%d)", individual, individual+consolidated))
		} else {
			out = append(out, "Consolidated reports dominate, backfill individual reports")
		}
	}

	if n := len(temporal.IrregularCompanies); n > 0 {
		out = append(out, fmt.Sprintf("%d companies file irregularly", n))
	}

	return out
}

func mostCommonType(distribution map[string]int) (string, int) {
	best, count := "", 0
	for code, n := range distribution {
		if n > count || (n == count && code < best) {
			best, count = code, n
		}
	}
	return best, count
}

// signals derives diagnostic signals with their supporting data
func (a *Analyzer) signals(r *AnalysisReport, consolidatedIDs []string) []model.Signal {
	var signals []model.Signal

	severity := model.SeverityInfo
	if r.Stats.CoveragePercentage < 50 {
		severity = model.SeverityCritical
	} else if r.Stats.CoveragePercentage <= 80 {
		severity = model.SeverityWarning
	}
	signals = append(signals, model.Signal{
		Type:        model.SignalCoverage,
		Severity:    severity,
		Description: fmt.Sprintf("Coverage: %.1f%% of cells filled", r.Stats.CoveragePercentage),
		Data: map[string]interface{}{
			"filled_cells":   r.Stats.FilledCells,
			"possible_cells": r.Stats.PossibleCells,
			"coverage_pct":   r.Stats.CoveragePercentage,
			"formula":        "filled_cells / (companies * quarters) * 100",
		},
	})

	high := 0
	for _, m := range r.MissingReports {
		if m.Priority == model.PriorityHigh {
			high++
		}
	}
	if high > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalMissingRecent,
			Severity:    model.SeverityWarning,
			Description: fmt.Sprintf("%d companies missing recent quarters", high),
			Data:        map[string]interface{}{"companies": high},
		})
	}

	if len(consolidatedIDs) > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalConsolidatedOnly,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("%d companies hold only consolidated reports", len(consolidatedIDs)),
			Data:        map[string]interface{}{"companies": consolidatedIDs},
		})
	}

	if len(r.FutureCandidates) > 0 {
		suspicious := 0
		for _, f := range r.FutureCandidates {
			if f.Suspicious {
				suspicious++
			}
		}
		severity := model.SeverityWarning
		if suspicious > 0 {
			severity = model.SeverityCritical
		}
		signals = append(signals, model.Signal{
			Type:        model.SignalFutureQuarter,
			Severity:    severity,
			Description: fmt.Sprintf("%d reports dated after the current quarter", len(r.FutureCandidates)),
			Data: map[string]interface{}{
				"candidates":       len(r.FutureCandidates),
				"suspicious":       suspicious,
				"warn_after_month": a.cfg.WarnThresholdMonths,
			},
		})
	}

	if n := len(r.Temporal.IrregularCompanies); n > 0 {
		signals = append(signals, model.Signal{
			Type:        model.SignalIrregularFiling,
			Severity:    model.SeverityInfo,
			Description: fmt.Sprintf("%d companies file irregularly", n),
			Data: map[string]interface{}{
				"companies":           r.Temporal.IrregularCompanies,
				"average_consistency": r.Temporal.AverageConsistency,
				"threshold":           irregularBelow,
			},
		})
	}

	if r.StockChanges != nil && r.StockChanges.HasChanges() {
		severity := model.SeverityInfo
		if r.StockChanges.LargeChange {
			severity = model.SeverityWarning
		}
		signals = append(signals, model.Signal{
			Type:        model.SignalStockListChange,
			Severity:    severity,
			Description: fmt.Sprintf("Stock list changed: +%d -%d", len(r.StockChanges.Added), len(r.StockChanges.Removed)),
			Data: map[string]interface{}{
				"added":     len(r.StockChanges.Added),
				"removed":   len(r.StockChanges.Removed),
				"unchanged": r.StockChanges.Unchanged,
				"threshold": a.cfg.ChangeThreshold,
			},
		})
	}

	return signals
}
