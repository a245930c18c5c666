package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/analyze"
	"github.com/ppiankov/mopscov/internal/llm"
	"github.com/ppiankov/mopscov/internal/matrix"
	"github.com/ppiankov/mopscov/internal/model"
	"github.com/ppiankov/mopscov/internal/pipeline"
	"github.com/ppiankov/mopscov/internal/scan"
	"github.com/ppiankov/mopscov/internal/sheets"
	"github.com/ppiankov/mopscov/internal/stocklist"
)

var (
	matrixStockList string
	outputDir       string
	showAll         bool
	categorized     bool
	maxDisplay      int
	separator       string
	maxYears        int
	publishSheets   bool
	spreadsheetID   string
	llmEnabled      bool
	llmModel        string
	matrixTimeout   time.Duration
)

// matrixCmd represents the matrix command
var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Build the company × quarter coverage matrix from downloaded reports",
	Long: `Matrix scans the downloads directory, builds the coverage matrix against
the stock list, and analyzes what is missing:
- Missing reports by priority, with download suggestions
- Filing regularity and future-dated reports
- Stock list changes since the previous run

Outputs mops_matrix_<ts>.csv (with a _metadata.json sidecar),
mops_analysis_<ts>.json and mops_analysis_<ts>.md in the output directory.

Example:
  mopscov matrix
  mopscov matrix --downloads ./pdfs --stock-list stocks.csv --categorized
  mopscov matrix --show-all=false --max-years 2
  mopscov matrix --sheets --spreadsheet-id 1AbC... --llm`,
	Args: cobra.NoArgs,
	RunE: runMatrix,
}

func init() {
	rootCmd.AddCommand(matrixCmd)

	matrixCmd.Flags().StringVar(&downloadsDir, "downloads", "", "downloads directory (default from config)")
	matrixCmd.Flags().StringVar(&matrixStockList, "stock-list", "", "company list CSV (default from config)")
	matrixCmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (default from config)")

	// Render flags
	matrixCmd.Flags().BoolVar(&showAll, "show-all", true, "show every report type in a cell (false: best only)")
	matrixCmd.Flags().BoolVar(&categorized, "categorized", false, "group cell types by category")
	matrixCmd.Flags().IntVar(&maxDisplay, "max-display", 5, "max types shown per cell before truncation")
	matrixCmd.Flags().StringVar(&separator, "separator", "/", "separator between types in a cell")
	matrixCmd.Flags().IntVar(&maxYears, "max-years", 3, "years of quarter columns")

	// Publishing flags
	matrixCmd.Flags().BoolVar(&publishSheets, "sheets", false, "publish to Google Sheets (falls back to CSV)")
	matrixCmd.Flags().StringVar(&spreadsheetID, "spreadsheet-id", "", "Google Sheets spreadsheet id")

	// LLM flags
	matrixCmd.Flags().BoolVar(&llmEnabled, "llm", false, "add an LLM coverage narrative")
	matrixCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name")
	matrixCmd.Flags().DurationVar(&matrixTimeout, "timeout", 5*time.Minute, "overall timeout")
}

func applyMatrixFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if downloadsDir != "" {
		cfg.Paths.DownloadsDir = downloadsDir
	}
	if matrixStockList != "" {
		cfg.Paths.StockList = matrixStockList
	}
	if outputDir != "" {
		cfg.Paths.OutputDir = outputDir
	}
	if flags.Changed("show-all") {
		cfg.Matrix.ShowAll = showAll
	}
	if flags.Changed("categorized") {
		cfg.Matrix.Categorized = categorized
	}
	if flags.Changed("max-display") {
		cfg.Matrix.MaxDisplayItems = maxDisplay
	}
	if flags.Changed("separator") {
		cfg.Matrix.Separator = separator
	}
	if flags.Changed("max-years") {
		cfg.Matrix.MaxYears = maxYears
	}
	if spreadsheetID != "" {
		cfg.Sheets.SpreadsheetID = spreadsheetID
	}
	if llmEnabled && cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if !llmEnabled {
		cfg.LLM.Provider = ""
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
}

func runMatrix(cmd *cobra.Command, args []string) error {
	s, err := setup(func(cfg *model.Config) { applyMatrixFlags(cmd, cfg) })
	if err != nil {
		return err
	}
	defer s.close()
	cfg := s.cfg

	ctx, cancel := context.WithTimeout(cmd.Context(), matrixTimeout)
	defer cancel()

	printBanner("mopscov Coverage Matrix")

	// Candidates from disk
	fmt.Fprintf(os.Stderr, "⚙️  Scanning %s...\n", cfg.Paths.DownloadsDir)
	scanned, err := scan.NewScanner(s.logger).Scan(cfg.Paths.DownloadsDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ %d PDFs for %d companies (%d skipped)\n", scanned.Files, len(scanned.Candidates), len(scanned.Skipped))

	// Reference company list
	companies, changes, err := referenceCompanies(cfg, scanned.Candidates, s.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ %d companies in the reference list\n", len(companies))
	if changes != nil && changes.HasChanges() {
		fmt.Fprintf(os.Stderr, "✓ Stock list changed: %d added, %d removed\n", len(changes.Added), len(changes.Removed))
	}

	// Matrix and analysis
	m := matrix.NewBuilder(cfg.Matrix, nil, s.logger).Build(companies, scanned.Candidates)
	report := analyze.NewAnalyzer(cfg.Analysis, nil, s.logger).Analyze(m, scanned.Candidates, changes)
	fmt.Fprintf(os.Stderr, "✓ Built %d × %d matrix\n", len(m.Rows), len(m.Quarters))

	narrative := generateNarrative(ctx, cfg, report, s.logger)

	// Outputs
	renderer := pipeline.NewRenderer(cfg.Paths.OutputDir, nil)
	if publishSheets {
		if err := publishMatrix(ctx, cfg, renderer, m, s.logger); err != nil {
			return err
		}
		jsonPath, mdPath, err := renderer.WriteReports(report, narrative)
		if err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n✓ Wrote %s\n", jsonPath, mdPath)
	} else {
		outputs, err := renderer.WriteAll(m, report, narrative)
		if err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n✓ Wrote %s\n✓ Wrote %s\n", outputs.MatrixCSV, outputs.JSON, outputs.Markdown)
	}

	fmt.Fprintf(os.Stderr, "\n")
	pipeline.PrintSummary(os.Stderr, report)
	return nil
}

// referenceCompanies loads the stock list and compares it with the previous
// run's snapshot. Without a stock list the scanned companies are the
// reference and no change detection happens.
func referenceCompanies(cfg model.Config, candidates map[string][]model.ReportCandidate, logger *zap.Logger) ([]model.Company, *model.StockListChanges, error) {
	if cfg.Paths.StockList == "" {
		return scannedCompanies(candidates), nil, nil
	}
	loaded, err := stocklist.Load(cfg.Paths.StockList, logger)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "✗ Stock list %s not found, using scanned companies\n", cfg.Paths.StockList)
			return scannedCompanies(candidates), nil, nil
		}
		return nil, nil, err
	}

	snapshot := stocklist.SnapshotPath(cfg.Paths.OutputDir)
	previous, err := stocklist.LoadSnapshot(snapshot)
	if err != nil {
		logger.Warn("previous stock list snapshot unreadable", zap.String("path", snapshot), zap.Error(err))
	}

	var changes *model.StockListChanges
	if previous != nil {
		c := stocklist.DetectChanges(loaded.Companies, previous, cfg.Analysis.ChangeThreshold)
		changes = &c
	}
	if err := stocklist.Save(snapshot, loaded.Companies); err != nil {
		logger.Warn("stock list snapshot not saved", zap.String("path", snapshot), zap.Error(err))
	}
	return loaded.Companies, changes, nil
}

func scannedCompanies(candidates map[string][]model.ReportCandidate) []model.Company {
	companies := make([]model.Company, 0, len(candidates))
	for code := range candidates {
		companies = append(companies, model.Company{Code: code})
	}
	sort.Slice(companies, func(i, j int) bool { return companies[i].Code < companies[j].Code })
	return companies
}

// publishMatrix sends the matrix to Google Sheets, falling back to the local
// CSV. A CSV backup is still written after a successful publish when
// configured.
func publishMatrix(ctx context.Context, cfg model.Config, renderer *pipeline.Renderer, m *matrix.Matrix, logger *zap.Logger) error {
	fallback := sheets.NewCSVPublisher(renderer)

	var primary sheets.Publisher
	publisher, err := sheets.NewSheetsPublisher(ctx, cfg.Sheets, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Google Sheets unavailable: %v\n", err)
	} else {
		primary = publisher
	}

	location, err := sheets.PublishWithFallback(ctx, primary, fallback, m, m.Stats, logger)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Matrix published: %s\n", location)

	if primary != nil && location != "" && cfg.Output.CSVBackup {
		if csvPath, _, err := renderer.WriteMatrix(m); err != nil {
			fmt.Fprintf(os.Stderr, "✗ CSV backup: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "✓ CSV backup: %s\n", csvPath)
		}
	}
	return nil
}

// generateNarrative returns the optional LLM narrative. Failures degrade to
// an empty narrative with warnings on stderr.
func generateNarrative(ctx context.Context, cfg model.Config, report *analyze.AnalysisReport, logger *zap.Logger) string {
	if cfg.LLM.Provider == "" {
		return ""
	}

	summarizer, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ LLM: %v\n", err)
		return ""
	}

	fmt.Fprintf(os.Stderr, "⚙️  Generating narrative with %s...\n", summarizer.ProviderName())
	summary, err := summarizer.GenerateSummary(ctx, *report)
	if err != nil || summary == nil {
		return ""
	}
	for _, w := range summary.Warnings {
		fmt.Fprintf(os.Stderr, "  %s\n", w)
	}
	if summary.Text != "" {
		fmt.Fprintf(os.Stderr, "✓ Narrative generated using %s/%s\n", summary.Provider, summary.Model)
	}
	return summary.Text
}
