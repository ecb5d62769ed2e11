package enums

import "strings"

// DocumentType is one label from the closed classification vocabulary for
// title-search documents. Anything the classifier cannot place lands on
// DocumentTypeOther.
type DocumentType string

const (
	DocumentTypeSaleDeed                DocumentType = "Sale Deed"
	DocumentTypeGiftDeed                DocumentType = "Gift Deed"
	DocumentTypeWill                    DocumentType = "Will"
	DocumentTypeSaleAgreement           DocumentType = "Sale Agreement"
	DocumentTypeAllotmentLetter         DocumentType = "Allotment Letter"
	DocumentTypePossessionLetter        DocumentType = "Possession Letter"
	DocumentTypeMutationEntry           DocumentType = "Mutation Entry"
	DocumentTypePropertyTaxReceipt      DocumentType = "Property Tax Receipt"
	DocumentTypeEncumbranceCertificate  DocumentType = "Encumbrance Certificate"
	DocumentTypeOccupancyCertificate    DocumentType = "Occupancy Certificate"
	DocumentTypeSocietyShareCertificate DocumentType = "Society Share Certificate"
	DocumentTypeBuildingPlanApproval    DocumentType = "Building Plan Approval"
	DocumentTypeRERACertificate         DocumentType = "RERA Certificate"
	DocumentTypeLegalHeirCertificate    DocumentType = "Legal Heir Certificate"
	DocumentTypeDeathCertificate        DocumentType = "Death Certificate"
	DocumentTypeSevenTwelveExtract      DocumentType = "7/12 Extract"
	DocumentTypePowerOfAttorney         DocumentType = "Power of Attorney"
	DocumentTypeOther                   DocumentType = "Other"
)

var validDocumentTypes = []DocumentType{
	DocumentTypeSaleDeed,
	DocumentTypeGiftDeed,
	DocumentTypeWill,
	DocumentTypeSaleAgreement,
	DocumentTypeAllotmentLetter,
	DocumentTypePossessionLetter,
	DocumentTypeMutationEntry,
	DocumentTypePropertyTaxReceipt,
	DocumentTypeEncumbranceCertificate,
	DocumentTypeOccupancyCertificate,
	DocumentTypeSocietyShareCertificate,
	DocumentTypeBuildingPlanApproval,
	DocumentTypeRERACertificate,
	DocumentTypeLegalHeirCertificate,
	DocumentTypeDeathCertificate,
	DocumentTypeSevenTwelveExtract,
	DocumentTypePowerOfAttorney,
	DocumentTypeOther,
}

// String returns the literal string for the document type.
func (d DocumentType) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DocumentType.
func (d DocumentType) IsValid() bool {
	for _, candidate := range validDocumentTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// DocumentTypes returns the full classification vocabulary.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(validDocumentTypes))
	copy(out, validDocumentTypes)
	return out
}

// NormalizeDocumentType resolves raw classifier output to a vocabulary entry,
// matching case-insensitively. Unmatched or empty input resolves to
// DocumentTypeOther rather than failing.
func NormalizeDocumentType(value string) DocumentType {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validDocumentTypes {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate
		}
	}
	return DocumentTypeOther
}
