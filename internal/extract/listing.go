package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/classify"
	"github.com/ppiankov/mopscov/internal/model"
)

const (
	headerIdentifierMarker = "證券代號"
	headerFileMarker       = "電子檔案"
	minDataCells           = 8
	quarterColumn          = 1
)

// Pages answering a query with no filings carry one of these
var noDataMarkers = []string{"查無所需資料", "查無資料"}

var quarterMarkers = []struct {
	marker  string
	quarter int
}{
	{"第一季", 1}, {"第二季", 2}, {"第三季", 3}, {"第四季", 4},
	{"第1季", 1}, {"第2季", 2}, {"第3季", 3}, {"第4季", 4},
	{"Q1", 1}, {"Q2", 2}, {"Q3", 3}, {"Q4", 4},
}

var sizePattern = regexp.MustCompile(`^[\d,]+$`)

// PageResult is what one listing page yielded
type PageResult struct {
	Candidates []model.ReportCandidate `json:"candidates"`
	Tally      model.ExtractionTally   `json:"tally"`
	NoData     bool                    `json:"no_data"` // Portal answered "no filings"
}

// PageExtractor turns a MOPS listing page into report candidates
type PageExtractor struct {
	classifier *classify.Classifier
	baseURL    string
	logger     *zap.Logger
}

// NewPageExtractor creates an extractor. baseURL is used to resolve download
// references; a nil logger discards diagnostics.
func NewPageExtractor(classifier *classify.Classifier, baseURL string, logger *zap.Logger) *PageExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageExtractor{
		classifier: classifier,
		baseURL:    baseURL,
		logger:     logger,
	}
}

// rowFields holds what could be located in one table row
type rowFields struct {
	quarterText string
	description string
	fileCell    *goquery.Selection
	sizeText    string
	dateText    string
}

// Extract parses one listing page for a known company and western year.
// Rows missing required fields are skipped and counted; only a page without
// any recognizable listing table fails with model.ErrParsing.
func (e *PageExtractor) Extract(markup, companyID string, year int) (*PageResult, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, fmt.Errorf("%w: empty page", model.ErrParsing)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParsing, err)
	}

	log := e.logger.With(zap.String("company_id", companyID), zap.Int("year", year))
	result := &PageResult{Candidates: []model.ReportCandidate{}}
	seen := make(map[string]bool)
	tablesFound := 0

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() == 0 || !isListingHeader(rows.First()) {
			return
		}
		tablesFound++
		log.Debug("listing table found", zap.Int("rows", rows.Length()-1))

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			candidate, ok := e.extractRow(row, companyID, year, &result.Tally, log)
			if !ok || seen[candidate.Filename] {
				return
			}
			seen[candidate.Filename] = true
			result.Candidates = append(result.Candidates, candidate)
		})
	})

	if tablesFound == 0 {
		text := doc.Text()
		for _, marker := range noDataMarkers {
			if strings.Contains(text, marker) {
				result.NoData = true
				log.Info("portal reports no filings")
				return result, nil
			}
		}
		return nil, fmt.Errorf("%w: no listing table with %s/%s header", model.ErrParsing, headerIdentifierMarker, headerFileMarker)
	}

	log.Info("page extracted",
		zap.Int("targets", len(result.Candidates)),
		zap.Int("rejected", result.Tally.RowsRejected),
		zap.Int("skipped", result.Tally.RowsSkipped),
		zap.Int("unclassified", result.Tally.Unclassified))

	return result, nil
}

func (e *PageExtractor) extractRow(row *goquery.Selection, companyID string, year int, tally *model.ExtractionTally, log *zap.Logger) (model.ReportCandidate, bool) {
	cells := row.Find("td")
	if cells.Length() < minDataCells {
		// Spacer and sub-header rows
		return model.ReportCandidate{}, false
	}

	fields := locateFields(cells)

	filename, href := fileInfo(fields.fileCell)
	if filename == "" {
		tally.RowsSkipped++
		log.Debug("row skipped: no pdf link")
		return model.ReportCandidate{}, false
	}

	if fields.description == "" {
		tally.RowsSkipped++
		log.Debug("row skipped: no description", zap.String("filename", filename))
		return model.ReportCandidate{}, false
	}

	verdict := e.classifier.Classify(fields.description, filename)
	if !verdict.IsTarget {
		tally.RowsRejected++
		log.Debug("report rejected",
			zap.String("filename", filename),
			zap.String("description", fields.description),
			zap.String("bucket", string(classify.RejectionCategory(fields.description))),
			zap.String("reason", verdict.Reason))
		return model.ReportCandidate{}, false
	}

	quarter := quarterFromText(fields.quarterText)
	if quarter == 0 {
		tally.RowsSkipped++
		log.Warn("row skipped: no quarter marker",
			zap.String("filename", filename),
			zap.String("text", fields.quarterText))
		return model.ReportCandidate{}, false
	}

	if verdict.ReportType == "" {
		tally.Unclassified++
		log.Warn("target report without type code", zap.String("filename", filename))
		return model.ReportCandidate{}, false
	}

	candidate := model.NewReportCandidate(companyID, year, quarter, verdict.ReportType, filename)
	candidate.Category = verdict.Category
	candidate.Priority = verdict.Priority
	candidate.DownloadReference = ResolveDownloadReference(e.baseURL, href)
	candidate.RawSize = parseSize(fields.sizeText)
	candidate.UploadDate = fields.dateText
	candidate.Description = fields.description

	log.Info("target report",
		zap.Int("quarter", quarter),
		zap.String("filename", filename),
		zap.String("reason", verdict.Reason))

	return candidate, true
}

func isListingHeader(header *goquery.Selection) bool {
	var parts []string
	header.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		parts = append(parts, strings.TrimSpace(cell.Text()))
	})
	text := strings.Join(parts, " ")
	return strings.Contains(text, headerIdentifierMarker) && strings.Contains(text, headerFileMarker)
}

// locateFields identifies row fields by content, since column positions
// drift between portal versions. Later cells win.
func locateFields(cells *goquery.Selection) rowFields {
	var f rowFields
	cells.Each(func(i int, cell *goquery.Selection) {
		text := strings.TrimSpace(cell.Text())
		if i == quarterColumn {
			f.quarterText = text
		}
		if strings.Contains(text, "IFRSs") || strings.Contains(text, "財務報告") {
			f.description = text
		}
		if cell.Find("a").Length() > 0 {
			inner, _ := cell.Html()
			if strings.Contains(inner, ".pdf") || strings.Contains(inner, "readfile") {
				f.fileCell = cell
			}
		}
		if sizePattern.MatchString(text) {
			f.sizeText = text
		}
		if strings.Contains(text, "/") && len(text) > 8 {
			f.dateText = text
		}
	})
	return f
}

func fileInfo(cell *goquery.Selection) (filename, href string) {
	if cell == nil {
		return "", ""
	}
	link := cell.Find("a").First()
	href, _ = link.Attr("href")
	return filenameFromLink(link.Text(), href), href
}

func quarterFromText(text string) int {
	for _, qm := range quarterMarkers {
		if strings.Contains(text, qm.marker) {
			return qm.quarter
		}
	}
	return 0
}

func parseSize(text string) int64 {
	n, err := strconv.ParseInt(strings.ReplaceAll(text, ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
