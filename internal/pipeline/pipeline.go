package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/classify"
	"github.com/ppiankov/mopscov/internal/extract"
	"github.com/ppiankov/mopscov/internal/model"
)

// Pipeline discovers report candidates for companies: fetch the listing
// pages, extract and classify rows, dedupe by filename
type Pipeline struct {
	pages     PageFetcher
	extractor *extract.PageExtractor
	now       func() time.Time
	logger    *zap.Logger
}

// NewPipeline creates a pipeline over the given page source
func NewPipeline(cfg model.Config, pages PageFetcher, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier := classify.NewClassifier(cfg.Classifier.Strict)
	return &Pipeline{
		pages:     pages,
		extractor: extract.NewPageExtractor(classifier, cfg.HTTP.BaseURL, logger),
		now:       time.Now,
		logger:    logger,
	}
}

// DiscoverCompany fetches one listing page per requested quarter, or a
// single whole-year page when quarters is empty. A failing page is recorded
// in the result and never aborts the company; an error is returned only for
// invalid input, cancellation, or when every page failed.
func (p *Pipeline) DiscoverCompany(ctx context.Context, companyID string, year int, quarters []int) (*model.Discovery, error) {
	if err := model.ValidateCompanyID(companyID); err != nil {
		return nil, err
	}
	if err := model.ValidateYear(year, p.now()); err != nil {
		return nil, err
	}

	requests := make([]model.PageRequest, 0, len(quarters)+1)
	if len(quarters) == 0 {
		requests = append(requests, model.NewPageRequest(companyID, year, 0))
	}
	for _, q := range quarters {
		if err := model.ValidateQuarter(q); err != nil {
			return nil, err
		}
		requests = append(requests, model.NewPageRequest(companyID, year, q))
	}

	log := p.logger.With(zap.String("company_id", companyID), zap.Int("year", year))
	discovery := &model.Discovery{
		CompanyID:  companyID,
		Year:       year,
		Candidates: []model.ReportCandidate{},
	}
	seen := make(map[string]bool)
	emptyPages := 0

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := p.pages.FetchPage(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.pageFailed(discovery, req, err, log)
			continue
		}
		discovery.Tally.PagesFetched++

		if strings.TrimSpace(page) == "" {
			emptyPages++
			continue
		}

		result, err := p.extractor.Extract(page, companyID, year)
		if err != nil {
			p.pageFailed(discovery, req, err, log)
			continue
		}
		discovery.Tally.Add(result.Tally)
		if result.NoData {
			emptyPages++
			continue
		}

		for _, c := range result.Candidates {
			if seen[c.Filename] {
				continue
			}
			seen[c.Filename] = true
			discovery.Candidates = append(discovery.Candidates, c)
		}
	}

	if len(discovery.PageErrors) == len(requests) {
		return nil, fmt.Errorf("all %d pages failed for %s/%d: %s",
			len(requests), companyID, year, strings.Join(discovery.PageErrors, "; "))
	}

	discovery.NoData = len(discovery.Candidates) == 0 && emptyPages > 0 &&
		emptyPages+len(discovery.PageErrors) == len(requests)

	log.Info("company discovered",
		zap.Int("candidates", len(discovery.Candidates)),
		zap.Int("pages", discovery.Tally.PagesFetched),
		zap.Int("failed_pages", discovery.Tally.PagesFailed),
		zap.Bool("no_data", discovery.NoData))

	return discovery, nil
}

func (p *Pipeline) pageFailed(d *model.Discovery, req model.PageRequest, err error, log *zap.Logger) {
	d.Tally.PagesFailed++
	d.PageErrors = append(d.PageErrors, fmt.Sprintf("%s: %v", req, err))

	if errors.Is(err, model.ErrParsing) {
		log.Warn("listing page unparseable", zap.String("request", req.String()), zap.Error(err))
		return
	}
	log.Warn("listing page fetch failed", zap.String("request", req.String()), zap.Error(err))
}
