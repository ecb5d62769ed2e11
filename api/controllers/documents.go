package controllers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/api/responses"
	"github.com/GoldenRal/modSTR/api/validators"
	"github.com/GoldenRal/modSTR/internal/pipeline"
	"github.com/GoldenRal/modSTR/internal/projects"
	"github.com/GoldenRal/modSTR/internal/quota"
	"github.com/GoldenRal/modSTR/pkg/enums"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// multipartMemoryLimit caps how much of the upload is buffered in memory
// before spilling to temp files.
const multipartMemoryLimit = 32 << 20

// DocumentStore is the slice of the project store the document endpoints need.
type DocumentStore interface {
	GetProject(ctx context.Context, userID, projectID uuid.UUID) (*projects.Project, error)
	AddDocument(ctx context.Context, userID, projectID uuid.UUID, doc *projects.Document) (*projects.Document, error)
	DeleteDocument(ctx context.Context, userID, projectID, docID uuid.UUID) error
	AssignDocumentType(ctx context.Context, userID, projectID, docID uuid.UUID, docType enums.DocumentType) error
}

// DocumentUploader starts the staged upload of a stored document.
type DocumentUploader interface {
	Begin(ctx context.Context, job pipeline.Job)
}

// AllowanceChecker gates uploads against the caller's plan caps.
type AllowanceChecker interface {
	CheckAllowance(ctx context.Context, userID uuid.UUID, usageType enums.UsageType, value int64) (quota.Decision, error)
}

// UploadDocument accepts a multipart file, gates it against the plan's size
// caps, stores it, and kicks off the staged upload.
func UploadDocument(store DocumentStore, uploader DocumentUploader, allowance AllowanceChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		projectID, ok := pathUUID(w, r, logg, "projectId")
		if !ok {
			return
		}

		project, err := store.GetProject(r.Context(), userID, projectID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body"))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file field is required"))
			return
		}
		defer file.Close()

		if header.Size <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "uploaded file is empty"))
			return
		}

		if !allowUpload(w, r, allowance, logg, userID, enums.UsageTypeFileSizePerDocument, header.Size) {
			return
		}
		if !allowUpload(w, r, allowance, logg, userID, enums.UsageTypeFileSizeTotalPerProject, project.TotalUploadBytes()+header.Size) {
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read uploaded file"))
			return
		}

		doc, err := store.AddDocument(r.Context(), userID, projectID, &projects.Document{
			FileName:  filepath.Base(header.Filename),
			MIMEType:  uploadMIMEType(header, content),
			SizeBytes: header.Size,
			Content:   content,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// The staged upload outlives this request.
		uploader.Begin(context.WithoutCancel(r.Context()), pipeline.Job{
			UserID:     userID,
			ProjectID:  projectID,
			DocumentID: doc.ID,
			EnqueuedAt: time.Now().UTC(),
		})

		responses.WriteSuccessStatus(w, http.StatusAccepted, doc)
	}
}

// DeleteDocument removes one document from a project.
func DeleteDocument(store DocumentStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		projectID, ok := pathUUID(w, r, logg, "projectId")
		if !ok {
			return
		}
		docID, ok := pathUUID(w, r, logg, "documentId")
		if !ok {
			return
		}

		if err := store.DeleteDocument(r.Context(), userID, projectID, docID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

type assignDocumentTypeRequest struct {
	DocumentType string `json:"document_type" validate:"required"`
}

// AssignDocumentType sets a manual classification label on a document.
func AssignDocumentType(store DocumentStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		projectID, ok := pathUUID(w, r, logg, "projectId")
		if !ok {
			return
		}
		docID, ok := pathUUID(w, r, logg, "documentId")
		if !ok {
			return
		}

		var payload assignDocumentTypeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		docType := enums.DocumentType(strings.TrimSpace(payload.DocumentType))
		if err := store.AssignDocumentType(r.Context(), userID, projectID, docID, docType); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "assigned"})
	}
}

func allowUpload(w http.ResponseWriter, r *http.Request, allowance AllowanceChecker, logg *logger.Logger, userID uuid.UUID, usageType enums.UsageType, value int64) bool {
	decision, err := allowance.CheckAllowance(r.Context(), userID, usageType, value)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return false
	}
	if !decision.Allowed {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeQuota, decision.Message).
			WithDetails(decision))
		return false
	}
	return true
}

func uploadMIMEType(header *multipart.FileHeader, content []byte) string {
	if contentType := header.Header.Get("Content-Type"); contentType != "" {
		return contentType
	}
	return http.DetectContentType(content)
}
