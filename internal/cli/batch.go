package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/mopscov/internal/journal"
	"github.com/ppiankov/mopscov/internal/model"
	"github.com/ppiankov/mopscov/internal/stocklist"
	"github.com/ppiankov/mopscov/internal/worker"
)

var (
	batchStockList string
	batchYear      int
	batchQuarters  []int
	batchDownload  bool
	concurrency    int
	batchTimeout   time.Duration
	batchLimit     int
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Discover many companies from a stock list in parallel",
	Long: `Batch reads a company list CSV (代號/名稱 columns, UTF-8 or Big5) and
discovers every company concurrently through the worker pool. A company
that fails is reported and never stops the batch.

With --download every discovered report is downloaded and each company's
session is recorded in the download journal.

Example:
  mopscov batch --stock-list StockID_TWSE_TPEX.csv --year 2024
  mopscov batch --year 2024 --quarter 2 --download --concurrency 4
  mopscov batch --year 2023 --limit 20 --timeout 30m`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchStockList, "stock-list", "", "company list CSV (default from config)")
	batchCmd.Flags().IntVar(&batchYear, "year", 0, "western calendar year to discover")
	batchCmd.Flags().IntSliceVarP(&batchQuarters, "quarter", "q", nil, "quarter(s) to request, 1-4 (default: whole year)")
	batchCmd.Flags().BoolVar(&batchDownload, "download", false, "download discovered reports")
	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent company workers (default from config)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", time.Hour, "total timeout for batch processing")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "only process the first N companies")
	batchCmd.Flags().StringVar(&downloadsDir, "downloads", "", "downloads directory (default from config)")
	_ = batchCmd.MarkFlagRequired("year")
	addHTTPFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	s, err := setup(func(cfg *model.Config) {
		applyHTTPFlags(cmd, cfg)
		if batchStockList != "" {
			cfg.Paths.StockList = batchStockList
		}
		if concurrency > 0 {
			cfg.Concurrency.Workers = concurrency
		}
		if downloadsDir != "" {
			cfg.Paths.DownloadsDir = downloadsDir
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	loaded, err := stocklist.Load(s.cfg.Paths.StockList, s.logger)
	if err != nil {
		return err
	}
	companies := loaded.Companies
	if batchLimit > 0 && batchLimit < len(companies) {
		companies = companies[:batchLimit]
	}

	printBanner("mopscov Batch Discovery")
	fmt.Fprintf(os.Stderr, "  Stock list:   %s (%s, %d companies)\n", s.cfg.Paths.StockList, loaded.Encoding, len(loaded.Companies))
	fmt.Fprintf(os.Stderr, "  Year:         %d\n", batchYear)
	fmt.Fprintf(os.Stderr, "  Quarters:     %s\n", describeQuarters(batchQuarters))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", s.cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Download:     %v\n", batchDownload)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if len(loaded.Invalid) > 0 || len(loaded.Duplicates) > 0 {
		fmt.Fprintf(os.Stderr, "  Dropped:      %d invalid, %d duplicate codes\n", len(loaded.Invalid), len(loaded.Duplicates))
	}
	fmt.Fprintf(os.Stderr, "\n")

	fmt.Fprintf(os.Stderr, "⚙️  Discovering %d companies with %d workers...\n\n", len(companies), s.cfg.Concurrency.Workers)
	processor := worker.NewBatchProcessor(s.pipeline, s.cfg.Concurrency.Workers, s.logger)
	results := processor.ProcessCompanies(ctx, companies, batchYear, batchQuarters)

	successCount, failureCount, noData := 0, 0, 0
	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s %s: %v\n", result.Company.Code, result.Company.Name, result.Error)
			continue
		}
		successCount++
		if result.Discovery.NoData {
			noData++
		}
		fmt.Fprintf(os.Stderr, "✓ %s %s: %d reports\n", result.Company.Code, result.Company.Name, len(result.Discovery.Candidates))
	}

	candidates, tally := worker.Candidates(results)
	totalReports := 0
	for _, list := range candidates {
		totalReports += len(list)
	}

	if batchDownload && totalReports > 0 {
		fmt.Fprintf(os.Stderr, "\n⚙️  Downloading %d reports into %s...\n", totalReports, s.cfg.Paths.DownloadsDir)
		downloader := s.downloader()
		for _, result := range results {
			if result.Discovery == nil || len(result.Discovery.Candidates) == 0 {
				continue
			}
			startedAt := time.Now()
			records, err := downloader.DownloadAll(ctx, result.Discovery.Candidates)
			if err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: download interrupted: %v\n", result.Company.Code, err)
				break
			}
			printDownloads(records)
			if err := recordSession(ctx, s, journal.NewSession(result.Company.Code, batchYear, records, startedAt)); err != nil {
				return err
			}
		}
	}

	// Summary
	printBanner("Batch Complete")
	fmt.Fprintf(os.Stderr, "  Total:     %d companies\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d (%d with no data)\n", successCount, noData)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Reports:   %d\n", totalReports)
	fmt.Fprintf(os.Stderr, "  Pages:     %d fetched, %d failed\n", tally.PagesFetched, tally.PagesFailed)
	fmt.Fprintf(os.Stderr, "  Rows:      %d rejected, %d skipped, %d unclassified\n", tally.RowsRejected, tally.RowsSkipped, tally.Unclassified)
	fmt.Fprintf(os.Stderr, "\n")

	return ctx.Err()
}

func describeQuarters(qs []int) string {
	if len(qs) == 0 {
		return "whole year"
	}
	return fmt.Sprint(qs)
}
