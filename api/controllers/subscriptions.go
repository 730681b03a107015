package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/api/responses"
	"github.com/angelmondragon/churnguard-backend/api/validators"
	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
	"github.com/angelmondragon/churnguard-backend/pkg/pagination"
)

type AtRiskLister interface {
	ListAtRisk(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.CustomerSubscription, string, error)
}

// AtRiskSubscriptions lists the caller's imported subscriptions that are
// failing payment or set to cancel.
func AtRiskSubscriptions(repo AtRiskLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription store unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := repo.ListAtRisk(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list at-risk subscriptions"))
			return
		}
		responses.WritePage(w, rows, next)
	}
}
