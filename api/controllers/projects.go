package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/api/middleware"
	"github.com/GoldenRal/modSTR/api/responses"
	"github.com/GoldenRal/modSTR/api/validators"
	"github.com/GoldenRal/modSTR/internal/projects"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// ProjectStore is the slice of the project store the project endpoints need.
type ProjectStore interface {
	CreateProject(ctx context.Context, userID uuid.UUID, input projects.CreateProjectInput) (*projects.Project, error)
	ListProjects(ctx context.Context, userID uuid.UUID) ([]*projects.Project, error)
	GetProject(ctx context.Context, userID, projectID uuid.UUID) (*projects.Project, error)
	DeleteProject(ctx context.Context, userID, projectID uuid.UUID) error
}

type createProjectRequest struct {
	Name                 string `json:"name" validate:"required,max=200"`
	Address              string `json:"address" validate:"max=500"`
	Client               string `json:"client" validate:"max=200"`
	SearchPeriod         string `json:"search_period" validate:"max=100"`
	AdvocateInstructions string `json:"advocate_instructions" validate:"max=2000"`
}

// CreateProject registers a new title-search project for the caller.
func CreateProject(store ProjectStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var payload createProjectRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		project, err := store.CreateProject(r.Context(), userID, projects.CreateProjectInput{
			Name:                 payload.Name,
			Address:              payload.Address,
			Client:               payload.Client,
			SearchPeriod:         payload.SearchPeriod,
			AdvocateInstructions: payload.AdvocateInstructions,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, project)
	}
}

// ListProjects returns the caller's projects, newest first.
func ListProjects(store ProjectStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		list, err := store.ListProjects(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"projects": list})
	}
}

// GetProject returns one project with its documents and report.
func GetProject(store ProjectStore, logg *logger.Logger) http.HandlerFunc {
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
		responses.WriteSuccess(w, project)
	}
}

// DeleteProject removes a project and everything attached to it.
func DeleteProject(store ProjectStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		projectID, ok := pathUUID(w, r, logg, "projectId")
		if !ok {
			return
		}

		if err := store.DeleteProject(r.Context(), userID, projectID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, logg *logger.Logger, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param))
		return uuid.Nil, false
	}
	return id, true
}
