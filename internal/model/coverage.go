package model

import "time"

// ExtractionTally counts routine data messiness observed while extracting pages
type ExtractionTally struct {
	PagesFetched int `json:"pages_fetched"`
	PagesFailed  int `json:"pages_failed"`
	RowsSkipped  int `json:"rows_skipped"`  // Missing filename, quarter or description
	RowsRejected int `json:"rows_rejected"` // Classifier said not a target
	Unclassified int `json:"unclassified"`  // Target rows without a type code
}

// Add merges another tally into t
func (t *ExtractionTally) Add(other ExtractionTally) {
	t.PagesFetched += other.PagesFetched
	t.PagesFailed += other.PagesFailed
	t.RowsSkipped += other.RowsSkipped
	t.RowsRejected += other.RowsRejected
	t.Unclassified += other.Unclassified
}

// CellRef points at one matrix cell holding more than one report type
type CellRef struct {
	CompanyID string   `json:"company_id"`
	Quarter   string   `json:"quarter"`
	Types     []string `json:"types"`
}

// CoverageStats is the read-only summary derived from a coverage matrix
type CoverageStats struct {
	TotalCompanies         int            `json:"total_companies"`
	CompaniesWithReports   int            `json:"companies_with_reports"`
	TotalQuarters          int            `json:"total_quarters"`
	FilledCells            int            `json:"filled_cells"`
	PossibleCells          int            `json:"possible_cells"`
	CoveragePercentage     float64        `json:"coverage_percentage"`
	ReportTypeDistribution map[string]int `json:"report_type_distribution"`
	ReportTypeCombinations map[string]int `json:"report_type_combinations"`
	MostCommonCombination  string         `json:"most_common_combination,omitempty"`
	CategoryDistribution   map[string]int `json:"category_distribution"`
	CellsWithMultipleTypes int            `json:"cells_with_multiple_types"`
	MultiTypeCells         []CellRef      `json:"multi_type_cells,omitempty"`
	FutureQuarters         []string       `json:"future_quarters,omitempty"`
	OrphanCompanies        []string       `json:"orphan_companies,omitempty"` // Candidates present, not in the reference list
	GeneratedAt            time.Time      `json:"generated_at"`
}

// Priority of a missing-report finding
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for sorting, high first
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// MissingReport lists the empty quarters of one company
type MissingReport struct {
	CompanyID       string   `json:"company_id"`
	CompanyName     string   `json:"company_name"`
	MissingQuarters []string `json:"missing_quarters"`
	Priority        Priority `json:"priority"`
	ExpectedFamily  Category `json:"expected_family,omitempty"`
	ExpectedTypes   string   `json:"expected_types"` // e.g. "A12/A13", or "unknown"
	HasHistory      bool     `json:"has_history"`
}

// ConsistencyResult is the filing regularity of one company
type ConsistencyResult struct {
	CompanyID        string  `json:"company_id"`
	ObservedQuarters int     `json:"observed_quarters"`
	ExpectedQuarters int     `json:"expected_quarters"`
	Ratio            float64 `json:"ratio"`
	Irregular        bool    `json:"irregular"`
	Earliest         string  `json:"earliest,omitempty"`
	Latest           string  `json:"latest,omitempty"`
}

// TemporalReport aggregates consistency over all companies
type TemporalReport struct {
	Companies           map[string]ConsistencyResult `json:"companies"`
	AverageConsistency  float64                      `json:"average_consistency"`
	IrregularCompanies  []string                     `json:"irregular_companies"`
	QuarterDistribution map[int]int                  `json:"quarter_distribution"` // Candidates per quarter number
}

// FutureCandidate is a candidate dated after the current quarter
type FutureCandidate struct {
	CompanyID   string `json:"company_id"`
	Quarter     string `json:"quarter"`
	Filename    string `json:"filename"`
	MonthsAhead int    `json:"months_ahead"`
	Suspicious  bool   `json:"suspicious"`
}

// StockListChanges describes drift between two reference company lists
type StockListChanges struct {
	Added       []Company `json:"added"`
	Removed     []Company `json:"removed"`
	Unchanged   int       `json:"unchanged"`
	LargeChange bool      `json:"large_change"`
}

// HasChanges reports whether anything was added or removed
func (c StockListChanges) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0
}

// DownloadStatus is the outcome of one download attempt
type DownloadStatus string

const (
	DownloadSuccess    DownloadStatus = "success"
	DownloadSkipped    DownloadStatus = "skipped"    // Existing file large enough
	DownloadSuspicious DownloadStatus = "suspicious" // Saved but unusually small
	DownloadFailed     DownloadStatus = "failed"
)

// DownloadRecord is one journaled download outcome
type DownloadRecord struct {
	Filename   string         `json:"filename"`
	Quarter    string         `json:"quarter"`
	ReportType string         `json:"report_type"`
	Path       string         `json:"path,omitempty"`
	Size       int64          `json:"size"`
	Status     DownloadStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
}

// Discovery is everything found for one company and year
type Discovery struct {
	CompanyID  string            `json:"company_id"`
	Year       int               `json:"year"`
	Candidates []ReportCandidate `json:"candidates"`
	Tally      ExtractionTally   `json:"tally"`
	PageErrors []string          `json:"page_errors,omitempty"` // One entry per failed page
	NoData     bool              `json:"no_data"`               // Every fetched page said "no data"
}
