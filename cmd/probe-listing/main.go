// Probe program that runs a saved MOPS listing page through strict and
// flexible classification side by side. Useful when the portal changes its
// table layout or descriptions.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ppiankov/mopscov/internal/classify"
	"github.com/ppiankov/mopscov/internal/extract"
	"github.com/ppiankov/mopscov/internal/model"
	"github.com/ppiankov/mopscov/internal/pipeline"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "usage: probe-listing <page.html> <company_id> <year>\n")
		os.Exit(2)
	}
	path, companyID := os.Args[1], os.Args[2]
	year, err := strconv.Atoi(os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ year: %v\n", err)
		os.Exit(2)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
	// Saved pages carry no Content-Type; anything not valid UTF-8 is read as Big5
	markup := pipeline.DecodePage(raw, "")
	base := model.DefaultConfig().HTTP.BaseURL

	fmt.Printf("=== Listing probe: %s (%s %d) ===\n\n", path, companyID, year)

	for _, strict := range []bool{true, false} {
		mode := "flexible"
		if strict {
			mode = "strict"
		}
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("Mode: %s\n", mode)

		extractor := extract.NewPageExtractor(classify.NewClassifier(strict), base, nil)
		result, err := extractor.Extract(markup, companyID, year)
		if err != nil {
			fmt.Printf("✗ %v\n\n", err)
			continue
		}
		if result.NoData {
			fmt.Printf("✓ Page says no data\n\n")
			continue
		}

		t := result.Tally
		fmt.Printf("✓ %d candidates (%d rejected, %d skipped, %d unclassified)\n",
			len(result.Candidates), t.RowsRejected, t.RowsSkipped, t.Unclassified)
		for _, c := range result.Candidates {
			fmt.Printf("  Q%d  %-4s  %-12s  %s\n", c.Quarter, c.ReportType, c.Category, c.Filename)
			fmt.Printf("        %s\n", c.DownloadReference)
		}
		fmt.Println()
	}
}
