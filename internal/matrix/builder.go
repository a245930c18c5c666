package matrix

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/model"
)

// Identity column headers of the matrix
const (
	ColumnCode = "代號"
	ColumnName = "名稱"
)

type cellKey struct {
	companyID string
	quarter   model.QuarterKey
}

// Row is one company line of the matrix
type Row struct {
	Company model.Company `json:"company"`
	Values  []string      `json:"values"` // One rendered value per quarter column
}

// Matrix is the company x quarter coverage grid. It is immutable once built.
type Matrix struct {
	Quarters []model.QuarterKey  `json:"quarters"` // Most recent first
	Rows     []Row               `json:"rows"`
	Stats    model.CoverageStats `json:"stats"`

	cells map[cellKey]*Cell
}

// Header returns the column names: code, name, then quarter keys
func (m *Matrix) Header() []string {
	header := []string{ColumnCode, ColumnName}
	for _, q := range m.Quarters {
		header = append(header, q.String())
	}
	return header
}

// Records returns the header followed by one record per row
func (m *Matrix) Records() [][]string {
	records := make([][]string, 0, len(m.Rows)+1)
	records = append(records, m.Header())
	for _, row := range m.Rows {
		record := append([]string{row.Company.Code, row.Company.Name}, row.Values...)
		records = append(records, record)
	}
	return records
}

// Cell returns the accumulated cell, or nil when nothing was found there
func (m *Matrix) Cell(companyID string, quarter model.QuarterKey) *Cell {
	return m.cells[cellKey{companyID: companyID, quarter: quarter}]
}

// Builder assembles coverage matrices
type Builder struct {
	cfg    model.MatrixConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewBuilder creates a builder. now defaults to time.Now and decides the
// trailing window and which quarters count as future.
func NewBuilder(cfg model.MatrixConfig, now func() time.Time, logger *zap.Logger) *Builder {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, now: now, logger: logger}
}

// Build composes one cell per (company, quarter) and derives statistics.
// Every reference company gets a full row even without any candidates.
func (b *Builder) Build(companies []model.Company, candidates map[string][]model.ReportCandidate) *Matrix {
	now := b.now()
	current := model.CurrentQuarter(now)
	opts := RenderOptionsFromConfig(b.cfg)

	cells := make(map[cellKey]*Cell)
	discovered := make(map[model.QuarterKey]bool)

	for companyID, list := range candidates {
		for _, c := range list {
			key := c.Key()
			if !key.Valid() || c.ReportType == "" {
				b.logger.Warn("candidate dropped", zap.String("company_id", companyID), zap.String("filename", c.Filename))
				continue
			}
			ck := cellKey{companyID: companyID, quarter: key}
			cell, ok := cells[ck]
			if !ok {
				cell = NewCell()
				cells[ck] = cell
			}
			cell.Absorb(c)
			discovered[key] = true
		}
	}

	quarters := b.quarterColumns(current, discovered)

	m := &Matrix{
		Quarters: quarters,
		Rows:     make([]Row, 0, len(companies)),
		cells:    cells,
	}
	for _, company := range companies {
		row := Row{Company: company, Values: make([]string, len(quarters))}
		for i, q := range quarters {
			row.Values[i] = cells[cellKey{companyID: company.Code, quarter: q}].Render(opts)
		}
		m.Rows = append(m.Rows, row)
	}

	m.Stats = b.stats(m, companies, candidates, current, now)

	b.logger.Info("matrix built",
		zap.Int("companies", len(companies)),
		zap.Int("quarters", len(quarters)),
		zap.Float64("coverage_pct", m.Stats.CoveragePercentage))

	return m
}

// quarterColumns is the union of discovered quarters and the trailing
// window ending at the current quarter, most recent first
func (b *Builder) quarterColumns(current model.QuarterKey, discovered map[model.QuarterKey]bool) []model.QuarterKey {
	set := make(map[model.QuarterKey]bool, len(discovered))
	for q := range discovered {
		set[q] = true
	}

	for year := current.Year; year > current.Year-b.cfg.MaxYears; year-- {
		for quarter := 4; quarter >= 1; quarter-- {
			q := model.QuarterKey{Year: year, Quarter: quarter}
			if q.After(current) {
				continue
			}
			set[q] = true
		}
	}

	quarters := make([]model.QuarterKey, 0, len(set))
	for q := range set {
		quarters = append(quarters, q)
	}
	model.SortDescending(quarters)
	return quarters
}

func (b *Builder) stats(m *Matrix, companies []model.Company, candidates map[string][]model.ReportCandidate, current model.QuarterKey, now time.Time) model.CoverageStats {
	stats := model.CoverageStats{
		TotalCompanies:         len(companies),
		TotalQuarters:          len(m.Quarters),
		PossibleCells:          len(companies) * len(m.Quarters),
		ReportTypeDistribution: make(map[string]int),
		ReportTypeCombinations: make(map[string]int),
		CategoryDistribution:   make(map[string]int),
		GeneratedAt:            now,
	}

	reference := make(map[string]bool, len(companies))
	for _, company := range companies {
		reference[company.Code] = true

		hasReports := false
		for _, q := range m.Quarters {
			cell := m.Cell(company.Code, q)
			if cell.Empty() {
				continue
			}
			hasReports = true
			stats.FilledCells++

			cats := cell.Categories()
			if len(cats) == 1 {
				stats.CategoryDistribution[string(cats[0])+"_only"]++
			} else {
				stats.CategoryDistribution["mixed"]++
			}

			types := cell.Types()
			if len(types) > 1 {
				stats.CellsWithMultipleTypes++
				stats.ReportTypeCombinations[strings.Join(types, b.cfg.Separator)]++
				stats.MultiTypeCells = append(stats.MultiTypeCells, model.CellRef{
					CompanyID: company.Code,
					Quarter:   q.String(),
					Types:     types,
				})
			}
		}
		if hasReports {
			stats.CompaniesWithReports++
		}
	}

	if stats.PossibleCells > 0 {
		stats.CoveragePercentage = float64(stats.FilledCells) / float64(stats.PossibleCells) * 100
	}

	for companyID, list := range candidates {
		if !reference[companyID] {
			if len(list) > 0 {
				stats.OrphanCompanies = append(stats.OrphanCompanies, companyID)
			}
			continue
		}
		for _, c := range list {
			if c.ReportType != "" && c.Key().Valid() {
				stats.ReportTypeDistribution[c.ReportType]++
			}
		}
	}
	sort.Strings(stats.OrphanCompanies)

	best := 0
	for combo, n := range stats.ReportTypeCombinations {
		if n > best || (n == best && combo < stats.MostCommonCombination) {
			best = n
			stats.MostCommonCombination = combo
		}
	}

	for _, q := range m.Quarters {
		if q.After(current) {
			stats.FutureQuarters = append(stats.FutureQuarters, q.String())
		}
	}

	return stats
}
