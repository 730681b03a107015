package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/api/middleware"
	"github.com/angelmondragon/churnguard-backend/api/responses"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
)

func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}
