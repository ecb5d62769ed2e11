package projects

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/GoldenRal/modSTR/pkg/enums"
)

// interruptedMessage marks documents that were mid-pipeline when the process
// stopped; the queue itself is not persisted.
const interruptedMessage = "processing interrupted"

type snapshotDocument struct {
	ID            string   `json:"id"`
	FileName      string   `json:"file_name"`
	MIMEType      string   `json:"mime_type"`
	SizeBytes     int64    `json:"size_bytes"`
	Status        string   `json:"status"`
	Progress      int      `json:"progress,omitempty"`
	ExtractedText string   `json:"extracted_text,omitempty"`
	DocTypes      []string `json:"doc_types,omitempty"`
	// DocType is the legacy single-label field, migrated into DocTypes on load.
	DocType      string    `json:"docType,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type snapshotReport struct {
	Content      string    `json:"content"`
	Summary      string    `json:"summary"`
	RiskCategory string    `json:"risk_category"`
	RiskFlags    []string  `json:"risk_flags,omitempty"`
	Format       string    `json:"format"`
	GeneratedAt  time.Time `json:"generated_at"`
}

type snapshotProject struct {
	ID                   string            `json:"id"`
	UserID               string            `json:"user_id"`
	Name                 string            `json:"name"`
	Address              string            `json:"address,omitempty"`
	Client               string            `json:"client,omitempty"`
	SearchPeriod         string            `json:"search_period,omitempty"`
	Scenario             string            `json:"scenario"`
	MissingDocuments     []string          `json:"missing_documents,omitempty"`
	AdvocateInstructions string            `json:"advocate_instructions,omitempty"`
	Documents            []json.RawMessage `json:"documents,omitempty"`
	Report               *snapshotReport   `json:"report,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// encodeSnapshot serializes a user's projects. File bytes are transient and
// never included.
func encodeSnapshot(projects []*Project) ([]byte, error) {
	out := make([]snapshotProject, 0, len(projects))
	for _, project := range projects {
		entry := snapshotProject{
			ID:                   project.ID.String(),
			UserID:               project.UserID.String(),
			Name:                 project.Name,
			Address:              project.Address,
			Client:               project.Client,
			SearchPeriod:         project.SearchPeriod,
			Scenario:             project.Scenario.String(),
			MissingDocuments:     docTypeStrings(project.MissingDocuments),
			AdvocateInstructions: project.AdvocateInstructions,
			CreatedAt:            project.CreatedAt,
			UpdatedAt:            project.UpdatedAt,
		}
		for _, doc := range project.Documents {
			raw, err := json.Marshal(snapshotDocument{
				ID:            doc.ID.String(),
				FileName:      doc.FileName,
				MIMEType:      doc.MIMEType,
				SizeBytes:     doc.SizeBytes,
				Status:        doc.Status.String(),
				Progress:      doc.Progress,
				ExtractedText: doc.ExtractedText,
				DocTypes:      docTypeStrings(doc.DocTypes),
				ErrorMessage:  doc.ErrorMessage,
				UploadedAt:    doc.UploadedAt,
			})
			if err != nil {
				return nil, fmt.Errorf("encode document %s: %w", doc.ID, err)
			}
			entry.Documents = append(entry.Documents, raw)
		}
		if project.Report != nil {
			entry.Report = &snapshotReport{
				Content:      project.Report.Content,
				Summary:      project.Report.Summary,
				RiskCategory: project.Report.RiskCategory.String(),
				RiskFlags:    project.Report.RiskFlags,
				Format:       project.Report.Format.String(),
				GeneratedAt:  project.Report.GeneratedAt,
			}
		}
		out = append(out, entry)
	}
	return json.Marshal(out)
}

// decodeSnapshot rebuilds a user's projects from a stored snapshot. Every
// entry is validated independently: a malformed project or document is
// dropped and reported without discarding the rest.
func decodeSnapshot(data []byte) ([]*Project, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var rawProjects []json.RawMessage
	if err := json.Unmarshal(data, &rawProjects); err != nil {
		return nil, fmt.Errorf("snapshot is not a project array: %w", err)
	}

	var (
		projects []*Project
		errs     error
	)
	for i, raw := range rawProjects {
		var entry snapshotProject
		if err := json.Unmarshal(raw, &entry); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("project entry %d: %w", i, err))
			continue
		}
		projectID, err := uuid.Parse(entry.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("project entry %d: missing or invalid id", i))
			continue
		}
		userID, _ := uuid.Parse(entry.UserID)

		project := &Project{
			ID:                   projectID,
			UserID:               userID,
			Name:                 entry.Name,
			Address:              entry.Address,
			Client:               entry.Client,
			SearchPeriod:         entry.SearchPeriod,
			Scenario:             enums.ParseScenario(entry.Scenario),
			MissingDocuments:     parseDocTypes(entry.MissingDocuments),
			AdvocateInstructions: entry.AdvocateInstructions,
			CreatedAt:            entry.CreatedAt,
			UpdatedAt:            entry.UpdatedAt,
		}

		for j, rawDoc := range entry.Documents {
			doc, err := decodeSnapshotDocument(rawDoc)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("project %s document %d: %w", projectID, j, err))
				continue
			}
			project.Documents = append(project.Documents, doc)
		}

		if entry.Report != nil {
			project.Report = &Report{
				Content:      entry.Report.Content,
				Summary:      entry.Report.Summary,
				RiskCategory: enums.ParseRiskCategory(entry.Report.RiskCategory),
				RiskFlags:    entry.Report.RiskFlags,
				Format:       enums.ParseReportFormat(entry.Report.Format),
				GeneratedAt:  entry.Report.GeneratedAt,
			}
		}

		projects = append(projects, project)
	}
	return projects, errs
}

func decodeSnapshotDocument(raw json.RawMessage) (*Document, error) {
	var entry snapshotDocument
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	docID, err := uuid.Parse(entry.ID)
	if err != nil {
		return nil, fmt.Errorf("missing or invalid id")
	}

	status := enums.DocumentStatus(entry.Status)
	if !status.IsValid() {
		status = enums.DocumentStatusError
	}

	doc := &Document{
		ID:            docID,
		FileName:      entry.FileName,
		MIMEType:      entry.MIMEType,
		SizeBytes:     entry.SizeBytes,
		Status:        status,
		Progress:      entry.Progress,
		ExtractedText: entry.ExtractedText,
		DocTypes:      parseDocTypes(entry.DocTypes),
		ErrorMessage:  entry.ErrorMessage,
		UploadedAt:    entry.UploadedAt,
	}

	// Legacy single-label field.
	if entry.DocType != "" {
		migrated := enums.NormalizeDocumentType(entry.DocType)
		if !doc.HasDocType(migrated) {
			doc.DocTypes = append(doc.DocTypes, migrated)
		}
	}

	// In-flight work does not survive a restart.
	if doc.Status.IsTransient() {
		doc.Status = enums.DocumentStatusError
		doc.ErrorMessage = interruptedMessage
		doc.Progress = 0
	}

	return doc, nil
}

func docTypeStrings(docTypes []enums.DocumentType) []string {
	if len(docTypes) == 0 {
		return nil
	}
	out := make([]string, len(docTypes))
	for i, docType := range docTypes {
		out[i] = docType.String()
	}
	return out
}

func parseDocTypes(values []string) []enums.DocumentType {
	var out []enums.DocumentType
	for _, value := range values {
		out = append(out, enums.NormalizeDocumentType(value))
	}
	return out
}
