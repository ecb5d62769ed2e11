package enums

import "strings"

// Scenario describes the property situation a project is investigating.
// It drives which documents are required for a complete title chain.
type Scenario string

const (
	ScenarioUnknown           Scenario = "UNKNOWN"
	ScenarioFlatInSociety     Scenario = "FLAT_IN_SOCIETY"
	ScenarioIndependentHouse  Scenario = "INDEPENDENT_HOUSE"
	ScenarioInheritedProperty Scenario = "INHERITED_PROPERTY"
	ScenarioUnderConstruction Scenario = "UNDER_CONSTRUCTION"
	ScenarioAgriculturalLand  Scenario = "AGRICULTURAL_LAND"
)

var validScenarios = []Scenario{
	ScenarioUnknown,
	ScenarioFlatInSociety,
	ScenarioIndependentHouse,
	ScenarioInheritedProperty,
	ScenarioUnderConstruction,
	ScenarioAgriculturalLand,
}

// defaultRequiredDocuments is the fallback list used when the scenario is
// unknown or has no dedicated list.
var defaultRequiredDocuments = []DocumentType{
	DocumentTypeSaleDeed,
	DocumentTypeMutationEntry,
	DocumentTypePropertyTaxReceipt,
	DocumentTypeEncumbranceCertificate,
}

var scenarioDocuments = map[Scenario][]DocumentType{
	ScenarioFlatInSociety: {
		DocumentTypeSaleDeed,
		DocumentTypeSocietyShareCertificate,
		DocumentTypeOccupancyCertificate,
		DocumentTypeMutationEntry,
		DocumentTypePropertyTaxReceipt,
		DocumentTypeEncumbranceCertificate,
	},
	ScenarioIndependentHouse: {
		DocumentTypeSaleDeed,
		DocumentTypeBuildingPlanApproval,
		DocumentTypeMutationEntry,
		DocumentTypePropertyTaxReceipt,
		DocumentTypeEncumbranceCertificate,
	},
	ScenarioInheritedProperty: {
		DocumentTypeSaleDeed,
		DocumentTypeLegalHeirCertificate,
		DocumentTypeDeathCertificate,
		DocumentTypeMutationEntry,
		DocumentTypeEncumbranceCertificate,
	},
	ScenarioUnderConstruction: {
		DocumentTypeSaleAgreement,
		DocumentTypeAllotmentLetter,
		DocumentTypeRERACertificate,
		DocumentTypeBuildingPlanApproval,
		DocumentTypeEncumbranceCertificate,
	},
	ScenarioAgriculturalLand: {
		DocumentTypeSaleDeed,
		DocumentTypeSevenTwelveExtract,
		DocumentTypeMutationEntry,
		DocumentTypeEncumbranceCertificate,
	},
}

// String returns the literal string for the scenario.
func (s Scenario) String() string {
	return string(s)
}

// IsValid reports whether the value is a known Scenario.
func (s Scenario) IsValid() bool {
	for _, candidate := range validScenarios {
		if candidate == s {
			return true
		}
	}
	return false
}

// RequiredDocuments returns the document types a project under this scenario
// must contain for its title chain to be complete. Scenarios without a
// dedicated list fall back to the default set.
func (s Scenario) RequiredDocuments() []DocumentType {
	source, ok := scenarioDocuments[s]
	if !ok {
		source = defaultRequiredDocuments
	}
	required := make([]DocumentType, len(source))
	copy(required, source)
	return required
}

// ParseScenario resolves raw classifier output to a Scenario, matching
// case-insensitively. Unmatched input resolves to ScenarioUnknown.
func ParseScenario(value string) Scenario {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validScenarios {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate
		}
	}
	return ScenarioUnknown
}
