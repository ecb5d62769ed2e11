package enums

import "strings"

// RiskCategory is the overall risk grade assigned to a title-search report.
type RiskCategory string

const (
	RiskCategoryLow      RiskCategory = "LOW"
	RiskCategoryModerate RiskCategory = "MODERATE"
	RiskCategoryHigh     RiskCategory = "HIGH"
	RiskCategorySevere   RiskCategory = "SEVERE"
)

var validRiskCategories = []RiskCategory{
	RiskCategoryLow,
	RiskCategoryModerate,
	RiskCategoryHigh,
	RiskCategorySevere,
}

func (r RiskCategory) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RiskCategory.
func (r RiskCategory) IsValid() bool {
	for _, candidate := range validRiskCategories {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRiskCategory resolves raw model output to a RiskCategory, matching
// case-insensitively. Unmatched input grades conservatively as HIGH.
func ParseRiskCategory(value string) RiskCategory {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validRiskCategories {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate
		}
	}
	return RiskCategoryHigh
}
