package worker

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/ppiankov/mopscov/internal/model"
)

// Discoverer finds the report candidates of one company
type Discoverer interface {
	DiscoverCompany(ctx context.Context, companyID string, year int, quarters []int) (*model.Discovery, error)
}

// CompanyJob discovers one company
type CompanyJob struct {
	Index      int
	Company    model.Company
	Year       int
	Quarters   []int
	Discoverer Discoverer
}

// Execute runs the discovery
func (j *CompanyJob) Execute(ctx context.Context) Result {
	discovery, err := j.Discoverer.DiscoverCompany(ctx, j.Company.Code, j.Year, j.Quarters)
	return &CompanyResult{
		Index:     j.Index,
		Company:   j.Company,
		Discovery: discovery,
		Error:     err,
	}
}

// CompanyResult is the outcome of one CompanyJob
type CompanyResult struct {
	Index     int
	Company   model.Company
	Discovery *model.Discovery
	Error     error
}

// GetError returns the discovery error, if any
func (r *CompanyResult) GetError() error {
	return r.Error
}

// BatchProcessor discovers many companies concurrently
type BatchProcessor struct {
	discoverer  Discoverer
	concurrency int
	logger      *zap.Logger
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(discoverer Discoverer, concurrency int, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		discoverer:  discoverer,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ProcessCompanies discovers every company and returns one result per
// company in input order. A cancelled context leaves the rest unsubmitted.
func (b *BatchProcessor) ProcessCompanies(ctx context.Context, companies []model.Company, year int, quarters []int) []*CompanyResult {
	if len(companies) == 0 {
		return []*CompanyResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for i, company := range companies {
		pool.Submit(&CompanyJob{
			Index:      i,
			Company:    company,
			Year:       year,
			Quarters:   quarters,
			Discoverer: b.discoverer,
		})
	}

	results := pool.Wait()

	out := make([]*CompanyResult, 0, len(results))
	failed := 0
	for _, r := range results {
		cr := r.(*CompanyResult)
		if cr.Error != nil {
			failed++
			b.logger.Warn("company discovery failed", zap.String("company_id", cr.Company.Code), zap.Error(cr.Error))
		}
		out = append(out, cr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })

	b.logger.Info("batch complete",
		zap.Int("companies", len(companies)),
		zap.Int("completed", len(out)),
		zap.Int("failed", failed))

	return out
}

// Candidates flattens successful results into the map the matrix builder takes
func Candidates(results []*CompanyResult) (map[string][]model.ReportCandidate, model.ExtractionTally) {
	out := make(map[string][]model.ReportCandidate)
	var tally model.ExtractionTally
	for _, r := range results {
		if r.Discovery == nil {
			continue
		}
		tally.Add(r.Discovery.Tally)
		if len(r.Discovery.Candidates) > 0 {
			out[r.Company.Code] = append(out[r.Company.Code], r.Discovery.Candidates...)
		}
	}
	return out, tally
}
