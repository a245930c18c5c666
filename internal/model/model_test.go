package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArtifactName(t *testing.T) {
	a, err := ParseArtifactName("202401_2330_AI1.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2024, a.Year)
	assert.Equal(t, 1, a.Quarter)
	assert.Equal(t, "2330", a.CompanyID)
	assert.Equal(t, "AI1", a.ReportType)
	assert.Equal(t, "202401_2330_AI1.pdf", a.Filename())
}

func TestParseArtifactName_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
	}{
		{"malformed year-quarter", "20240_2330_AI1.pdf"},
		{"quarter five", "202405_2330_AI1.pdf"},
		{"quarter zero", "202400_2330_AI1.pdf"},
		{"year too early", "201904_2330_A12.pdf"},
		{"year too late", "203101_2330_A12.pdf"},
		{"three digit company", "202401_233_AI1.pdf"},
		{"five digit company", "202401_23300_AI1.pdf"},
		{"lowercase type", "202401_2330_ai1.pdf"},
		{"wrong extension", "202401_2330_AI1.PDF"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArtifactName(tt.filename)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestArtifactCandidate(t *testing.T) {
	a, err := ParseArtifactName("202303_2317_A12.pdf")
	require.NoError(t, err)

	c := a.Candidate()
	assert.Equal(t, CategoryIndividual, c.Category)
	assert.Equal(t, 1, c.Priority)
	assert.Equal(t, QuarterKey{Year: 2023, Quarter: 3}, c.Key())
}

func TestLookupReportType(t *testing.T) {
	assert.Equal(t, ReportTypeInfo{CategoryIndividual, 1}, LookupReportType("A12"))
	assert.Equal(t, ReportTypeInfo{CategoryConsolidated, 2}, LookupReportType("a1l"))
	assert.Equal(t, ReportTypeInfo{CategoryGeneric, 3}, LookupReportType("A10"))
	assert.Equal(t, ReportTypeInfo{CategoryEnglish, 9}, LookupReportType("AIA"))
	assert.Equal(t, ReportTypeInfo{CategoryOther, PriorityLowest}, LookupReportType("ZZ9"))
	assert.Equal(t, []string{"A12", "A13"}, TypesInCategory(CategoryIndividual))
}

func TestQuarterKey(t *testing.T) {
	k := QuarterKey{Year: 2024, Quarter: 1}
	assert.Equal(t, "2024 Q1", k.String())
	assert.Equal(t, QuarterKey{Year: 2023, Quarter: 4}, k.Prev())
	assert.True(t, k.After(k.Prev()))
	assert.False(t, k.Prev().After(k))

	parsed, err := ParseQuarterKey("2024 Q1")
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseQuarterKey("2024 Q7")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ParseQuarterKey("2024-Q1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCurrentQuarter(t *testing.T) {
	assert.Equal(t, QuarterKey{2025, 1}, CurrentQuarter(time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, QuarterKey{2025, 2}, CurrentQuarter(time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, QuarterKey{2025, 4}, CurrentQuarter(time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)))
}

func TestSortDescending(t *testing.T) {
	keys := []QuarterKey{{2023, 4}, {2024, 2}, {2024, 1}, {2022, 3}}
	SortDescending(keys)
	assert.Equal(t, []QuarterKey{{2024, 2}, {2024, 1}, {2023, 4}, {2022, 3}}, keys)
}

func TestValidateCompanyID(t *testing.T) {
	assert.NoError(t, ValidateCompanyID("2330"))
	assert.ErrorIs(t, ValidateCompanyID("233"), ErrValidation)
	assert.ErrorIs(t, ValidateCompanyID("23a0"), ErrValidation)
	assert.ErrorIs(t, ValidateCompanyID(""), ErrValidation)
}

func TestValidateYear(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, ValidateYear(2024, now))
	assert.NoError(t, ValidateYear(2025, now))
	assert.ErrorIs(t, ValidateYear(2026, now), ErrValidation)
	assert.ErrorIs(t, ValidateYear(1911, now), ErrValidation)
}

func TestROCConversion(t *testing.T) {
	assert.Equal(t, 113, ToROCYear(2024))
	assert.Equal(t, 2024, FromROCYear(113))
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Matrix.MaxYears = 0
	assert.ErrorIs(t, cfg.Validate(), ErrValidation)

	cfg = DefaultConfig()
	cfg.Journal.Backend = "postgres"
	assert.Error(t, cfg.Validate(), "postgres backend needs a database url")

	cfg.Journal.DatabaseURL = "postgres://localhost/mops"
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	assert.Error(t, cfg.Validate())
}

func TestExtractionTally_Add(t *testing.T) {
	total := ExtractionTally{PagesFetched: 1, RowsSkipped: 2}
	total.Add(ExtractionTally{PagesFetched: 2, PagesFailed: 1, Unclassified: 3})
	assert.Equal(t, ExtractionTally{PagesFetched: 3, PagesFailed: 1, RowsSkipped: 2, Unclassified: 3}, total)
}
