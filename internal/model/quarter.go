package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// QuarterKey identifies a reporting quarter (western year + quarter number)
type QuarterKey struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// String renders the key as "2024 Q1"
func (k QuarterKey) String() string {
	return fmt.Sprintf("%d Q%d", k.Year, k.Quarter)
}

// Index is a monotonic ordinal, useful for distances between quarters
func (k QuarterKey) Index() int {
	return k.Year*4 + (k.Quarter - 1)
}

// After reports whether k is chronologically later than other
func (k QuarterKey) After(other QuarterKey) bool {
	return k.Index() > other.Index()
}

// Prev returns the preceding quarter
func (k QuarterKey) Prev() QuarterKey {
	if k.Quarter <= 1 {
		return QuarterKey{Year: k.Year - 1, Quarter: 4}
	}
	return QuarterKey{Year: k.Year, Quarter: k.Quarter - 1}
}

// Valid reports whether the quarter number is in 1-4
func (k QuarterKey) Valid() bool {
	return k.Quarter >= 1 && k.Quarter <= 4
}

// ParseQuarterKey parses "2024 Q1" back into a key
func ParseQuarterKey(s string) (QuarterKey, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 || !strings.HasPrefix(parts[1], "Q") {
		return QuarterKey{}, &ValidationError{Field: "quarter_key", Value: s, Reason: "expected \"YYYY QN\""}
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return QuarterKey{}, &ValidationError{Field: "quarter_key", Value: s, Reason: "year is not numeric"}
	}
	quarter, err := strconv.Atoi(strings.TrimPrefix(parts[1], "Q"))
	if err != nil {
		return QuarterKey{}, &ValidationError{Field: "quarter_key", Value: s, Reason: "quarter is not numeric"}
	}

	key := QuarterKey{Year: year, Quarter: quarter}
	if !key.Valid() {
		return QuarterKey{}, &ValidationError{Field: "quarter_key", Value: s, Reason: "quarter must be 1-4"}
	}
	return key, nil
}

// CurrentQuarter returns the calendar quarter containing t
func CurrentQuarter(t time.Time) QuarterKey {
	return QuarterKey{Year: t.Year(), Quarter: (int(t.Month())-1)/3 + 1}
}

// SortDescending orders keys most recent first
func SortDescending(keys []QuarterKey) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].After(keys[j])
	})
}
