package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/journal"
	"github.com/ppiankov/mopscov/internal/model"
)

var (
	quarters        []int
	doDownload      bool
	discoverJSON    bool
	discoverTimeout time.Duration
	strictMode      bool
	downloadsDir    string
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover <company_id> <year>",
	Short: "Discover the financial reports of one company",
	Long: `Discover fetches the MOPS listing pages of one company and year,
classifies every row, and prints the target reports it found.

Without --quarter the whole year is requested in a single page.

Example:
  mopscov discover 2330 2024
  mopscov discover 2330 2024 --quarter 1 --quarter 2
  mopscov discover 2330 2024 --download
  mopscov discover 2330 2024 --json > 2330.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscover(cmd, args, doDownload)
	},
}

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <company_id> <year>",
	Short: "Discover and download the financial reports of one company",
	Long: `Download is discover followed by downloading every target report into
<downloads>/<company_id>/YYYYQQ_COMPANYID_TYPE.pdf. Existing files larger
than 100KB are skipped. The session is recorded in the download journal.

Example:
  mopscov download 2330 2024
  mopscov download 2330 2024 --quarter 4 --downloads ./pdfs`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiscover(cmd, args, true)
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(downloadCmd)

	for _, cmd := range []*cobra.Command{discoverCmd, downloadCmd} {
		cmd.Flags().IntSliceVarP(&quarters, "quarter", "q", nil, "quarter(s) to request, 1-4 (default: whole year)")
		cmd.Flags().DurationVar(&discoverTimeout, "timeout", 5*time.Minute, "overall timeout")
		cmd.Flags().BoolVar(&strictMode, "strict", false, "strict classification (A12/A13 only)")
		cmd.Flags().StringVar(&downloadsDir, "downloads", "", "downloads directory (default from config)")
		addHTTPFlags(cmd)
	}
	discoverCmd.Flags().BoolVar(&doDownload, "download", false, "download the discovered reports")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "print the discovery as JSON on stdout")
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0, &model.ValidationError{Field: "year", Value: s, Reason: "not a number"}
	}
	return year, nil
}

func runDiscover(cmd *cobra.Command, args []string, download bool) error {
	companyID := args[0]
	year, err := parseYear(args[1])
	if err != nil {
		return err
	}

	s, err := setup(func(cfg *model.Config) {
		applyHTTPFlags(cmd, cfg)
		if cmd.Flags().Changed("strict") {
			cfg.Classifier.Strict = strictMode
		}
		if downloadsDir != "" {
			cfg.Paths.DownloadsDir = downloadsDir
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout)
	defer cancel()

	if verbose {
		fmt.Fprintf(os.Stderr, "⚙️  Discovering %s %d (quarters: %v)\n", companyID, year, quarters)
	}

	discovery, err := s.pipeline.DiscoverCompany(ctx, companyID, year, quarters)
	if err != nil {
		return fmt.Errorf("discover failed: %w", err)
	}

	if discoverJSON && !download {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(discovery)
	}

	printDiscovery(discovery)

	if !download || len(discovery.Candidates) == 0 {
		return nil
	}

	startedAt := time.Now()
	fmt.Fprintf(os.Stderr, "⚙️  Downloading %d reports into %s...\n", len(discovery.Candidates), s.cfg.Paths.DownloadsDir)
	records, err := s.downloader().DownloadAll(ctx, discovery.Candidates)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	printDownloads(records)

	return recordSession(ctx, s, journal.NewSession(companyID, year, records, startedAt))
}

func printDiscovery(d *model.Discovery) {
	fmt.Fprintf(os.Stderr, "\n")
	if d.NoData {
		fmt.Fprintf(os.Stderr, "✓ %s %d: MOPS has no data for this period\n", d.CompanyID, d.Year)
		return
	}

	fmt.Fprintf(os.Stderr, "✓ %s %d: %d target reports (%d pages, %d rows rejected)\n",
		d.CompanyID, d.Year, len(d.Candidates), d.Tally.PagesFetched, d.Tally.RowsRejected)
	for _, pageErr := range d.PageErrors {
		fmt.Fprintf(os.Stderr, "✗ page %s\n", pageErr)
	}

	for _, c := range d.Candidates {
		fmt.Printf("%d Q%d  %-4s  %-28s  %10d  %s\n", c.Year, c.Quarter, c.ReportType, c.Filename, c.RawSize, c.UploadDate)
	}
}

func printDownloads(records []model.DownloadRecord) {
	for _, r := range records {
		switch r.Status {
		case model.DownloadSuccess:
			fmt.Fprintf(os.Stderr, "✓ %s (%d bytes)\n", r.Filename, r.Size)
		case model.DownloadSkipped:
			fmt.Fprintf(os.Stderr, "✓ %s already downloaded\n", r.Filename)
		case model.DownloadSuspicious:
			fmt.Fprintf(os.Stderr, "⚠️  %s suspicious: %s\n", r.Filename, r.Error)
		default:
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", r.Filename, r.Error)
		}
	}
}

// recordSession journals one company's downloads. A journal failure is
// reported but does not undo the downloads.
func recordSession(ctx context.Context, s *stack, session journal.Session) error {
	store, err := journal.Open(ctx, s.cfg.Journal, s.cfg.Paths.DownloadsDir, s.logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Record(ctx, session); err != nil {
		s.logger.Warn("journal record failed", zap.String("company_id", session.CompanyID), zap.Error(err))
		fmt.Fprintf(os.Stderr, "✗ Journal: %v\n", err)
		return nil
	}

	sum := session.Summary
	fmt.Fprintf(os.Stderr, "✓ Journal %s: %d success, %d skipped, %d suspicious, %d failed\n",
		session.ID, sum.Success, sum.Skipped, sum.Suspicious, sum.Failed)
	return nil
}
