package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ppiankov/mopscov/internal/model"
)

// mockDiscoverer returns one A12 candidate per requested quarter
type mockDiscoverer struct {
	failFor string
}

func (m *mockDiscoverer) DiscoverCompany(ctx context.Context, companyID string, year int, quarters []int) (*model.Discovery, error) {
	time.Sleep(5 * time.Millisecond) // Simulate network
	if companyID == m.failFor {
		return nil, errors.New("listing unavailable")
	}
	d := &model.Discovery{CompanyID: companyID, Year: year}
	for _, q := range quarters {
		name := fmt.Sprintf("%d%02d_%s_A12.pdf", year, q, companyID)
		d.Candidates = append(d.Candidates, model.NewReportCandidate(companyID, year, q, "A12", name))
	}
	d.Tally.PagesFetched = len(quarters)
	return d, nil
}

func companies(n int) []model.Company {
	out := make([]model.Company, n)
	for i := range out {
		out[i] = model.Company{Code: fmt.Sprintf("%04d", 1101+i), Name: fmt.Sprintf("company %d", i)}
	}
	return out
}

func TestBatchProcessor_ProcessCompanies_InputOrder(t *testing.T) {
	processor := NewBatchProcessor(&mockDiscoverer{}, 4, nil)
	input := companies(25)

	results := processor.ProcessCompanies(context.Background(), input, 2024, []int{1, 2})

	if len(results) != len(input) {
		t.Fatalf("expected %d results, got %d", len(input), len(results))
	}
	for i, r := range results {
		if r.Company != input[i] {
			t.Errorf("result %d: expected %s, got %s", i, input[i].Code, r.Company.Code)
		}
		if r.Error != nil {
			t.Errorf("unexpected error for %s: %v", r.Company.Code, r.Error)
		}
		if r.Discovery == nil || len(r.Discovery.Candidates) != 2 {
			t.Errorf("expected 2 candidates for %s", r.Company.Code)
		}
	}
}

func TestBatchProcessor_ProcessCompanies_PartialFailure(t *testing.T) {
	processor := NewBatchProcessor(&mockDiscoverer{failFor: "1102"}, 2, nil)

	results := processor.ProcessCompanies(context.Background(), companies(3), 2024, []int{1})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[1].GetError() == nil {
		t.Error("expected error for 1102")
	}
	if results[1].Discovery != nil {
		t.Error("expected nil discovery on error")
	}
	if results[0].GetError() != nil || results[2].GetError() != nil {
		t.Error("a failing company must not affect the others")
	}

	candidates, tally := Candidates(results)
	if len(candidates) != 2 {
		t.Errorf("expected 2 companies with candidates, got %d", len(candidates))
	}
	if _, ok := candidates["1102"]; ok {
		t.Error("failed company should have no candidates")
	}
	if tally.PagesFetched != 2 {
		t.Errorf("expected 2 pages in tally, got %d", tally.PagesFetched)
	}
}

func TestBatchProcessor_ProcessCompanies_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockDiscoverer{}, 2, nil)

	results := processor.ProcessCompanies(context.Background(), nil, 2024, nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_ProcessCompanies_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewBatchProcessor(&mockDiscoverer{}, 2, nil)
	results := processor.ProcessCompanies(ctx, companies(50), 2024, []int{1})
	if len(results) >= 50 {
		t.Errorf("expected a cancelled batch to stop early, got %d results", len(results))
	}
}

func TestCompanyResult_GetError(t *testing.T) {
	r1 := &CompanyResult{Company: model.Company{Code: "2330"}}
	if r1.GetError() != nil {
		t.Errorf("expected nil error, got %v", r1.GetError())
	}

	expected := errors.New("discovery failed")
	r2 := &CompanyResult{Company: model.Company{Code: "2330"}, Error: expected}
	if r2.GetError() != expected {
		t.Errorf("expected %v, got %v", expected, r2.GetError())
	}
}
