package model

import (
	"sort"
	"strings"
)

// Category groups report types by how useful they are for coverage tracking
type Category string

const (
	CategoryIndividual   Category = "individual"   // Standalone entity statements (個別/個體)
	CategoryConsolidated Category = "consolidated" // Parent + subsidiaries (合併)
	CategoryGeneric      Category = "generic"      // Generic IFRS filings
	CategoryEnglish      Category = "english"      // English editions, never targeted
	CategoryOther        Category = "other"        // Anything unrecognized
)

// PriorityLowest is the priority of unrecognized types and of an empty cell
const PriorityLowest = 9

// CategoryOrder is the display order used by categorized rendering
var CategoryOrder = []Category{
	CategoryIndividual,
	CategoryConsolidated,
	CategoryGeneric,
	CategoryOther,
	CategoryEnglish,
}

// ReportTypeInfo is one entry of the report-type table
type ReportTypeInfo struct {
	Category Category `json:"category"`
	Priority int      `json:"priority"`
}

var reportTypes = map[string]ReportTypeInfo{
	"A12": {CategoryIndividual, 1},
	"A13": {CategoryIndividual, 1},
	"AI1": {CategoryConsolidated, 2},
	"A1L": {CategoryConsolidated, 2},
	"A10": {CategoryGeneric, 3},
	"A11": {CategoryGeneric, 3},
	"AIA": {CategoryEnglish, 9},
	"AE2": {CategoryEnglish, 9},
}

// LookupReportType returns the category and priority for a type code.
// Unknown codes map to other/9.
func LookupReportType(code string) ReportTypeInfo {
	if info, ok := reportTypes[strings.ToUpper(code)]; ok {
		return info
	}
	return ReportTypeInfo{Category: CategoryOther, Priority: PriorityLowest}
}

// TypesInCategory lists the known type codes of a category, sorted
func TypesInCategory(cat Category) []string {
	var codes []string
	for code, info := range reportTypes {
		if info.Category == cat {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// ReportCandidate is one discovered document reference
type ReportCandidate struct {
	CompanyID         string   `json:"company_id"`
	Year              int      `json:"year"`    // Western calendar year
	Quarter           int      `json:"quarter"` // 1-4
	ReportType        string   `json:"report_type"`
	Filename          string   `json:"filename"`
	DownloadReference string   `json:"download_reference,omitempty"`
	RawSize           int64    `json:"raw_size"`
	UploadDate        string   `json:"upload_date,omitempty"`
	Description       string   `json:"description,omitempty"`
	Category          Category `json:"category"`
	Priority          int      `json:"priority"`
}

// NewReportCandidate builds a candidate with category and priority derived
// from the report type table
func NewReportCandidate(companyID string, year, quarter int, reportType, filename string) ReportCandidate {
	info := LookupReportType(reportType)
	return ReportCandidate{
		CompanyID:  companyID,
		Year:       year,
		Quarter:    quarter,
		ReportType: strings.ToUpper(reportType),
		Filename:   filename,
		Category:   info.Category,
		Priority:   info.Priority,
	}
}

// Key returns the quarter key this candidate belongs to
func (c ReportCandidate) Key() QuarterKey {
	return QuarterKey{Year: c.Year, Quarter: c.Quarter}
}

// Signal is a diagnostic finding with transparent supporting data
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// SignalType classifies a diagnostic signal
type SignalType string

const (
	SignalCoverage         SignalType = "coverage"          // Filled cells ratio
	SignalMissingRecent    SignalType = "missing_recent"    // Recent quarters without reports
	SignalConsolidatedOnly SignalType = "consolidated_only" // Individual reports preferred but absent
	SignalFutureQuarter    SignalType = "future_quarter"    // Reports dated after run time
	SignalIrregularFiling  SignalType = "irregular_filing"  // Sporadic quarterly history
	SignalStockListChange  SignalType = "stock_list_change" // Reference list drift
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
