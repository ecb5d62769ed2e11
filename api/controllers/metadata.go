package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/api/responses"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// MetadataDeriver runs an on-demand metadata derivation for a project.
type MetadataDeriver interface {
	DeriveNow(ctx context.Context, userID, projectID uuid.UUID) error
}

// DeriveMetadata triggers a synchronous metadata derivation. A derivation
// already in flight for the project surfaces as a conflict.
func DeriveMetadata(deriver MetadataDeriver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		projectID, ok := pathUUID(w, r, logg, "projectId")
		if !ok {
			return
		}

		if err := deriver.DeriveNow(r.Context(), userID, projectID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "derived"})
	}
}
