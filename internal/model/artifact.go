package model

import (
	"fmt"
	"regexp"
	"strconv"
)

var artifactPattern = regexp.MustCompile(`^(\d{4})(\d{2})_(\d{4})_([A-Z0-9]+)\.pdf$`)

const (
	minArtifactYear = 2020
	maxArtifactYear = 2030
)

// Artifact is a downloaded report named YYYYQQ_COMPANYID_TYPE.pdf
type Artifact struct {
	Year       int    `json:"year"`
	Quarter    int    `json:"quarter"`
	CompanyID  string `json:"company_id"`
	ReportType string `json:"report_type"`
}

// ParseArtifactName parses an artifact filename, rejecting anything that
// does not have the exact shape or falls outside the accepted ranges
func ParseArtifactName(name string) (Artifact, error) {
	m := artifactPattern.FindStringSubmatch(name)
	if m == nil {
		return Artifact{}, &ValidationError{Field: "filename", Value: name, Reason: "expected YYYYQQ_COMPANYID_TYPE.pdf"}
	}

	year, _ := strconv.Atoi(m[1])
	quarter, _ := strconv.Atoi(m[2])

	if year < minArtifactYear || year > maxArtifactYear {
		return Artifact{}, &ValidationError{Field: "filename", Value: name, Reason: "year must be between 2020 and 2030"}
	}
	if quarter < 1 || quarter > 4 {
		return Artifact{}, &ValidationError{Field: "filename", Value: name, Reason: "quarter must be 1-4"}
	}

	return Artifact{
		Year:       year,
		Quarter:    quarter,
		CompanyID:  m[3],
		ReportType: m[4],
	}, nil
}

// Filename renders the canonical artifact filename
func (a Artifact) Filename() string {
	return fmt.Sprintf("%04d%02d_%s_%s.pdf", a.Year, a.Quarter, a.CompanyID, a.ReportType)
}

// Candidate converts the artifact into a report candidate
func (a Artifact) Candidate() ReportCandidate {
	return NewReportCandidate(a.CompanyID, a.Year, a.Quarter, a.ReportType, a.Filename())
}
