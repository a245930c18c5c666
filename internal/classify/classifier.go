package classify

import (
	"regexp"
	"strings"

	"github.com/ppiankov/mopscov/internal/model"
)

// Primary target phrases found in MOPS listing descriptions
var targetPhrases = []string{
	"IFRSs個別財報",
	"IFRSs個體財報",
	"IFRSs合併財報",
}

// Excluded markers win over everything else
var excludedKeywords = []string{
	"英文版",
	"AIA.pdf",
	"AE2.pdf",
}

// Broader phrases accepted only in flexible mode
var flexibleTargets = []struct {
	phrase   string
	category model.Category
}{
	{"IFRSs合併財報", model.CategoryConsolidated},
	{"財務報告書", model.CategoryOther},
}

var filenamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(A12)\.pdf$`),
	regexp.MustCompile(`(A13)\.pdf$`),
	regexp.MustCompile(`(AI1)\.pdf$`),
	regexp.MustCompile(`(A1[0-9])\.pdf$`),
}

var typeCodePattern = regexp.MustCompile(`_([A-Z0-9]+)\.pdf$`)

// Result is the outcome of classifying one description/filename pair
type Result struct {
	IsTarget   bool           `json:"is_target"`
	Category   model.Category `json:"category"`
	Priority   int            `json:"priority"`
	ReportType string         `json:"report_type,omitempty"` // Empty when the filename has no type code
	Reason     string         `json:"reason"`
}

// Classifier decides whether a listed report is wanted. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	strict bool
}

// NewClassifier creates a classifier; strict disables the flexible fallback tier
func NewClassifier(strict bool) *Classifier {
	return &Classifier{strict: strict}
}

// Strict reports whether the flexible tier is disabled
func (c *Classifier) Strict() bool {
	return c.strict
}

// Classify applies the ordered rules; the first match wins
func (c *Classifier) Classify(description, filename string) Result {
	description = strings.TrimSpace(description)
	filename = strings.TrimSpace(filename)

	if description == "" {
		return Result{Category: model.CategoryOther, Priority: model.PriorityLowest, Reason: "empty description"}
	}

	for _, kw := range excludedKeywords {
		if strings.Contains(description, kw) || strings.Contains(filename, kw) {
			return Result{
				Category:   model.CategoryEnglish,
				Priority:   model.PriorityLowest,
				ReportType: ReportTypeFromFilename(filename),
				Reason:     "excluded keyword: " + kw,
			}
		}
	}

	for _, phrase := range targetPhrases {
		if strings.Contains(description, phrase) {
			code := ReportTypeFromFilename(filename)
			if code == "" {
				return Result{
					IsTarget: true,
					Category: model.CategoryOther,
					Priority: model.PriorityLowest,
					Reason:   "target phrase " + phrase + ", no type code in filename",
				}
			}
			info := model.LookupReportType(code)
			return Result{
				IsTarget:   true,
				Category:   info.Category,
				Priority:   info.Priority,
				ReportType: code,
				Reason:     "target phrase: " + phrase,
			}
		}
	}

	for _, re := range filenamePatterns {
		if m := re.FindStringSubmatch(filename); m != nil {
			info := model.LookupReportType(m[1])
			return Result{
				IsTarget:   true,
				Category:   info.Category,
				Priority:   info.Priority,
				ReportType: m[1],
				Reason:     "filename pattern: " + re.String(),
			}
		}
	}

	if !c.strict {
		for _, ft := range flexibleTargets {
			if strings.Contains(description, ft.phrase) {
				priority := model.PriorityLowest
				if ft.category == model.CategoryConsolidated {
					priority = 2
				}
				return Result{
					IsTarget:   true,
					Category:   ft.category,
					Priority:   priority,
					ReportType: ReportTypeFromFilename(filename),
					Reason:     "flexible target: " + ft.phrase,
				}
			}
		}
	}

	return Result{Category: model.CategoryOther, Priority: model.PriorityLowest, Reason: "no matching criteria"}
}

// RejectionCategory buckets a rejected row for diagnostics
func RejectionCategory(description string) model.Category {
	switch {
	case strings.Contains(description, "英文版"):
		return model.CategoryEnglish
	case strings.Contains(description, "合併"):
		return model.CategoryConsolidated
	default:
		return model.CategoryOther
	}
}

// ReportTypeFromFilename extracts the trailing type code ("..._AI1.pdf" -> "AI1")
func ReportTypeFromFilename(filename string) string {
	if m := typeCodePattern.FindStringSubmatch(filename); m != nil {
		return m[1]
	}
	return ""
}
