package model

import (
	"regexp"
	"strconv"
	"time"
)

// ROCEpoch is the offset between western and Republic of China (民國) years
const ROCEpoch = 1911

const (
	minWesternYear = 1912
	maxWesternYear = 2030
)

var companyIDPattern = regexp.MustCompile(`^\d{4}$`)

// Company is one entry of the reference company list
type Company struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ValidateCompanyID accepts exactly four digits
func ValidateCompanyID(id string) error {
	if !companyIDPattern.MatchString(id) {
		return &ValidationError{Field: "company_id", Value: id, Reason: "must be 4 digits"}
	}
	return nil
}

// ValidateYear accepts western years 1912-2030 that are not in the future
func ValidateYear(year int, now time.Time) error {
	v := strconv.Itoa(year)
	if year < minWesternYear || year > maxWesternYear {
		return &ValidationError{Field: "year", Value: v, Reason: "must be between 1912 and 2030"}
	}
	if year > now.Year() {
		return &ValidationError{Field: "year", Value: v, Reason: "cannot be in the future"}
	}
	return nil
}

// ValidateQuarter accepts 1-4
func ValidateQuarter(quarter int) error {
	if quarter < 1 || quarter > 4 {
		return &ValidationError{Field: "quarter", Value: strconv.Itoa(quarter), Reason: "must be 1-4"}
	}
	return nil
}

// ToROCYear converts a western year to an ROC year (2024 -> 113)
func ToROCYear(year int) int {
	return year - ROCEpoch
}

// FromROCYear converts an ROC year to a western year (113 -> 2024)
func FromROCYear(rocYear int) int {
	return rocYear + ROCEpoch
}
