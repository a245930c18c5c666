package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/ppiankov/mopscov/internal/matrix"
	"github.com/ppiankov/mopscov/internal/model"
)

const valueInputOption = "USER_ENTERED"

// SheetsPublisher uploads the matrix and a statistics summary to a Google
// spreadsheet. Formatting is left to the sheet owner.
type SheetsPublisher struct {
	svc           *gsheets.Service
	spreadsheetID string
	worksheet     string
	summary       string
	now           func() time.Time
	logger        *zap.Logger
}

// NewSheetsPublisher creates a publisher. Without client options the
// configured service-account credentials file is used.
func NewSheetsPublisher(ctx context.Context, cfg model.SheetsConfig, logger *zap.Logger, opts ...option.ClientOption) (*SheetsPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id not set")
	}
	if len(opts) == 0 {
		if cfg.CredentialsFile == "" {
			return nil, fmt.Errorf("credentials file not set")
		}
		opts = []option.ClientOption{
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(gsheets.SpreadsheetsScope),
		}
	}

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &SheetsPublisher{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     cfg.Worksheet,
		summary:       cfg.SummaryWorksheet,
		now:           time.Now,
		logger:        logger,
	}, nil
}

// Publish replaces the worksheet contents with the matrix and, when a summary
// worksheet is configured, writes the statistics there
func (p *SheetsPublisher) Publish(ctx context.Context, m *matrix.Matrix, stats model.CoverageStats) (string, error) {
	titles := []string{p.worksheet}
	if p.summary != "" {
		titles = append(titles, p.summary)
	}
	if err := p.ensureWorksheets(ctx, titles); err != nil {
		return "", err
	}

	if err := p.replace(ctx, p.worksheet, matrixValues(m)); err != nil {
		return "", err
	}
	if p.summary != "" {
		if err := p.replace(ctx, p.summary, summaryValues(stats, p.now())); err != nil {
			return "", err
		}
	}

	p.logger.Info("matrix published",
		zap.String("spreadsheet_id", p.spreadsheetID),
		zap.String("worksheet", p.worksheet),
		zap.Int("rows", len(m.Rows)))

	return "https://docs.google.com/spreadsheets/d/" + p.spreadsheetID, nil
}

// ensureWorksheets adds any missing worksheet in one batchUpdate
func (p *SheetsPublisher) ensureWorksheets(ctx context.Context, titles []string) error {
	ss, err := p.svc.Spreadsheets.Get(p.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}

	existing := make(map[string]bool, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	var requests []*gsheets.Request
	for _, title := range titles {
		if existing[title] {
			continue
		}
		requests = append(requests, &gsheets.Request{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{Title: title},
			},
		})
	}
	if len(requests) == 0 {
		return nil
	}

	_, err = p.svc.Spreadsheets.BatchUpdate(p.spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add worksheets: %w", err)
	}
	p.logger.Info("worksheets added", zap.Int("count", len(requests)))
	return nil
}

func (p *SheetsPublisher) replace(ctx context.Context, title string, values [][]interface{}) error {
	sheetRange := quoteTitle(title)
	if _, err := p.svc.Spreadsheets.Values.Clear(p.spreadsheetID, sheetRange, &gsheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", title, err)
	}

	_, err := p.svc.Spreadsheets.Values.Update(p.spreadsheetID, sheetRange+"!A1", &gsheets.ValueRange{
		Values: values,
	}).ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", title, err)
	}
	return nil
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// matrixValues converts matrix records to sheet rows. Codes with a leading
// zero are forced to text so the sheet keeps them.
func matrixValues(m *matrix.Matrix) [][]interface{} {
	records := m.Records()
	values := make([][]interface{}, len(records))
	for i, record := range records {
		row := make([]interface{}, len(record))
		for j, v := range record {
			if i > 0 && j == 0 && strings.HasPrefix(v, "0") {
				v = "'" + v
			}
			row[j] = v
		}
		values[i] = row
	}
	return values
}

func summaryValues(stats model.CoverageStats, now time.Time) [][]interface{} {
	values := [][]interface{}{
		{"統計項目", "數值"},
		{"總公司數", stats.TotalCompanies},
		{"有報告公司數", stats.CompaniesWithReports},
		{"季度欄數", stats.TotalQuarters},
		{"已填格數", stats.FilledCells},
		{"覆蓋率", fmt.Sprintf("%.1f%%", stats.CoveragePercentage)},
		{"多類型格數", stats.CellsWithMultipleTypes},
		{"最常見組合", stats.MostCommonCombination},
		{"未來季度", strings.Join(stats.FutureQuarters, ", ")},
		{"更新時間", now.Format("2006-01-02 15:04:05")},
		{},
		{"報告類型", "數量"},
	}

	types := make([]string, 0, len(stats.ReportTypeDistribution))
	for t := range stats.ReportTypeDistribution {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		values = append(values, []interface{}{t, stats.ReportTypeDistribution[t]})
	}
	return values
}
