package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/api/responses"
	"github.com/angelmondragon/churnguard-backend/api/validators"
	"github.com/angelmondragon/churnguard-backend/internal/imports"
	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
	"github.com/angelmondragon/churnguard-backend/pkg/pagination"
)

const (
	csvFormField         = "file"
	multipartMemoryLimit = 8 << 20
)

// ImportStarter kicks off imports that finish after the response is sent.
type ImportStarter interface {
	StartCSV(ctx context.Context, userID uuid.UUID, document []byte) (*models.ImportBatch, error)
	StartProviderSync(ctx context.Context, userID uuid.UUID, src imports.ProviderSource) (*models.ImportBatch, error)
}

// ImportReader reads the caller's import batches.
type ImportReader interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*models.ImportBatch, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ImportBatch, string, error)
}

// ProviderSourceFactory opens the tenant's billing provider with their key.
type ProviderSourceFactory func(apiKey string) (imports.ProviderSource, error)

type stripeImportRequest struct {
	APIKey string `json:"api_key" validate:"required,restricted_key,max=255"`
}

// ImportCSVUpload accepts a multipart CSV upload and returns the processing
// batch with 202.
func ImportCSVUpload(starter ImportStarter, maxUpload int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if starter == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "import service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		if maxUpload > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		}
		document, err := readUpload(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		batch, err := starter.StartCSV(r.Context(), userID, document)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, batch)
	}
}

// ImportStripeSync starts a sync from the caller's Stripe account using a
// restricted key that is never stored.
func ImportStripeSync(starter ImportStarter, open ProviderSourceFactory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if starter == nil || open == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "import service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var body stripeImportRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		src, err := open(strings.TrimSpace(body.APIKey))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe api key"))
			return
		}

		batch, err := starter.StartProviderSync(r.Context(), userID, src)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, batch)
	}
}

// ImportList pages through the caller's import batches, newest first.
func ImportList(reader ImportReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "import service unavailable"))
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

		rows, next, err := reader.List(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, rows, next)
	}
}

// ImportDetail returns one batch; clients poll it until the status is terminal.
func ImportDetail(reader ImportReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "import service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		batchID, err := uuid.Parse(chi.URLParam(r, "batchId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid batch id"))
			return
		}

		batch, err := reader.Get(r.Context(), userID, batchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

func readUpload(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return nil, uploadError(err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile(csvFormField)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "multipart field \"file\" is required")
	}
	defer file.Close()

	document, err := io.ReadAll(file)
	if err != nil {
		return nil, uploadError(err)
	}
	if len(strings.TrimSpace(string(document))) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "uploaded file is empty")
	}
	return document, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "uploaded file is too large").
			WithDetails(map[string]any{"max_bytes": tooLarge.Limit})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart upload")
}
