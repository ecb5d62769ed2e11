package projects

import (
	"time"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/pkg/enums"
)

// Project is one title-search matter and everything derived for it.
type Project struct {
	ID                   uuid.UUID            `json:"id"`
	UserID               uuid.UUID            `json:"user_id"`
	Name                 string               `json:"name"`
	Address              string               `json:"address,omitempty"`
	Client               string               `json:"client,omitempty"`
	SearchPeriod         string               `json:"search_period,omitempty"`
	Scenario             enums.Scenario       `json:"scenario"`
	MissingDocuments     []enums.DocumentType `json:"missing_documents"`
	AdvocateInstructions string               `json:"advocate_instructions,omitempty"`
	Documents            []*Document          `json:"documents"`
	Report               *Report              `json:"report,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// Document is one uploaded file and its processing state. Content holds the
// raw bytes only while the document is in flight; it is never serialized.
type Document struct {
	ID            uuid.UUID            `json:"id"`
	FileName      string               `json:"file_name"`
	MIMEType      string               `json:"mime_type"`
	SizeBytes     int64                `json:"size_bytes"`
	Content       []byte               `json:"-"`
	Status        enums.DocumentStatus `json:"status"`
	Progress      int                  `json:"progress,omitempty"`
	ExtractedText string               `json:"extracted_text,omitempty"`
	DocTypes      []enums.DocumentType `json:"doc_types"`
	ErrorMessage  string               `json:"error_message,omitempty"`
	UploadedAt    time.Time            `json:"uploaded_at"`
}

// Report is the generated title-search report attached to a project.
type Report struct {
	Content      string             `json:"content"`
	Summary      string             `json:"summary"`
	RiskCategory enums.RiskCategory `json:"risk_category"`
	RiskFlags    []string           `json:"risk_flags"`
	Format       enums.ReportFormat `json:"format"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// HasDocType reports whether the document already carries the given label.
func (d *Document) HasDocType(docType enums.DocumentType) bool {
	for _, existing := range d.DocTypes {
		if existing == docType {
			return true
		}
	}
	return false
}

// ProcessedText returns the extracted text of every processed document,
// paired with its filename for prompt labeling.
func (p *Project) ProcessedText() []LabeledText {
	var chunks []LabeledText
	for _, doc := range p.Documents {
		if doc.Status == enums.DocumentStatusProcessed && doc.ExtractedText != "" {
			chunks = append(chunks, LabeledText{FileName: doc.FileName, Text: doc.ExtractedText})
		}
	}
	return chunks
}

// PresentDocTypes returns the union of labels across all documents,
// deduplicated in first-seen order.
func (p *Project) PresentDocTypes() []enums.DocumentType {
	seen := make(map[enums.DocumentType]struct{})
	var out []enums.DocumentType
	for _, doc := range p.Documents {
		for _, docType := range doc.DocTypes {
			if _, ok := seen[docType]; ok {
				continue
			}
			seen[docType] = struct{}{}
			out = append(out, docType)
		}
	}
	return out
}

// TotalUploadBytes sums the stored size of every document on the project.
func (p *Project) TotalUploadBytes() int64 {
	var total int64
	for _, doc := range p.Documents {
		total += doc.SizeBytes
	}
	return total
}

// FindDocument returns the document with the given id, or nil.
func (p *Project) FindDocument(docID uuid.UUID) *Document {
	for _, doc := range p.Documents {
		if doc.ID == docID {
			return doc
		}
	}
	return nil
}

// LabeledText is a filename-tagged chunk of extracted text.
type LabeledText struct {
	FileName string
	Text     string
}
