package enums

import "fmt"

// DocumentStatus describes the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusUploading   DocumentStatus = "uploading"
	DocumentStatusUploaded    DocumentStatus = "uploaded"
	DocumentStatusExtracting  DocumentStatus = "extracting"
	DocumentStatusClassifying DocumentStatus = "classifying"
	DocumentStatusProcessed   DocumentStatus = "processed"
	DocumentStatusUnsupported DocumentStatus = "unsupported"
	DocumentStatusError       DocumentStatus = "error"
)

var validDocumentStatuses = []DocumentStatus{
	DocumentStatusUploading,
	DocumentStatusUploaded,
	DocumentStatusExtracting,
	DocumentStatusClassifying,
	DocumentStatusProcessed,
	DocumentStatusUnsupported,
	DocumentStatusError,
}

// String returns the literal string for the status.
func (d DocumentStatus) String() string {
	return string(d)
}

// IsValid reports whether the status is known.
func (d DocumentStatus) IsValid() bool {
	for _, candidate := range validDocumentStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further pipeline work applies to the document.
func (d DocumentStatus) IsTerminal() bool {
	switch d {
	case DocumentStatusProcessed, DocumentStatusUnsupported, DocumentStatusError:
		return true
	default:
		return false
	}
}

// IsTransient reports whether the status only makes sense while a pipeline
// job is in flight. Transient statuses cannot survive a restart.
func (d DocumentStatus) IsTransient() bool {
	switch d {
	case DocumentStatusUploading, DocumentStatusUploaded, DocumentStatusExtracting, DocumentStatusClassifying:
		return true
	default:
		return false
	}
}

// ParseDocumentStatus converts raw input into a DocumentStatus.
func ParseDocumentStatus(value string) (DocumentStatus, error) {
	for _, candidate := range validDocumentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document status %q", value)
}
