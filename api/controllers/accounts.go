package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/api/responses"
	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
)

// AccountService provisions and reads the caller's billing account.
type AccountService interface {
	Provision(ctx context.Context, id uuid.UUID) (*models.Account, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// AccountProvision creates the caller's demo account on first call and
// returns the existing one afterwards.
func AccountProvision(svc AccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "account service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		account, created, err := svc.Provision(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, account)
	}
}

// AccountGet returns the caller's billing account.
func AccountGet(svc AccountService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "account service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		account, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}
