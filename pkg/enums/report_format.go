package enums

import "strings"

// ReportFormat selects the presentation style of a generated title report.
type ReportFormat string

const (
	ReportFormatStandard       ReportFormat = "STANDARD"
	ReportFormatDetailed       ReportFormat = "DETAILED"
	ReportFormatBankSubmission ReportFormat = "BANK_SUBMISSION"
)

var validReportFormats = []ReportFormat{
	ReportFormatStandard,
	ReportFormatDetailed,
	ReportFormatBankSubmission,
}

func (f ReportFormat) String() string {
	return string(f)
}

// IsValid reports whether the value is a known ReportFormat.
func (f ReportFormat) IsValid() bool {
	for _, candidate := range validReportFormats {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseReportFormat resolves client input to a ReportFormat, matching
// case-insensitively. Unmatched or empty input resolves to STANDARD.
func ParseReportFormat(value string) ReportFormat {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validReportFormats {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate
		}
	}
	return ReportFormatStandard
}
