package enums

// UsageType names a metered dimension of AI usage. Each dimension maps to a
// cap on the user's plan.
type UsageType string

const (
	UsageTypeSTRGeneration           UsageType = "STR_GENERATION"
	UsageTypeInputTokens             UsageType = "INPUT_TOKENS"
	UsageTypeOutputTokens            UsageType = "OUTPUT_TOKENS"
	UsageTypeFileSizePerDocument     UsageType = "FILE_SIZE_PER_DOCUMENT"
	UsageTypeFileSizeTotalPerProject UsageType = "FILE_SIZE_TOTAL_PER_PROJECT"
)

var validUsageTypes = []UsageType{
	UsageTypeSTRGeneration,
	UsageTypeInputTokens,
	UsageTypeOutputTokens,
	UsageTypeFileSizePerDocument,
	UsageTypeFileSizeTotalPerProject,
}

func (u UsageType) String() string {
	return string(u)
}

// IsValid reports whether the value is a known UsageType.
func (u UsageType) IsValid() bool {
	for _, candidate := range validUsageTypes {
		if candidate == u {
			return true
		}
	}
	return false
}

// IsCumulative reports whether the dimension accumulates over a billing
// window. Per-document and per-project size checks are point-in-time limits
// and are never recorded against the ledger.
func (u UsageType) IsCumulative() bool {
	switch u {
	case UsageTypeSTRGeneration, UsageTypeInputTokens, UsageTypeOutputTokens:
		return true
	}
	return false
}
