package model

import "fmt"

// PageRequest identifies one MOPS listing page
type PageRequest struct {
	CompanyID string `json:"company_id"`
	ROCYear   int    `json:"roc_year"`
	Quarter   *int   `json:"quarter,omitempty"` // nil requests the whole year
}

// NewPageRequest builds a request from a western year. quarter 0 means the
// whole year.
func NewPageRequest(companyID string, year, quarter int) PageRequest {
	req := PageRequest{CompanyID: companyID, ROCYear: ToROCYear(year)}
	if quarter > 0 {
		q := quarter
		req.Quarter = &q
	}
	return req
}

// String renders the request for logs and cache keys
func (r PageRequest) String() string {
	if r.Quarter == nil {
		return fmt.Sprintf("%s/%d", r.CompanyID, r.ROCYear)
	}
	return fmt.Sprintf("%s/%d/Q%d", r.CompanyID, r.ROCYear, *r.Quarter)
}
