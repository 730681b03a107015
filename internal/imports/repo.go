package imports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
	"github.com/angelmondragon/churnguard-backend/pkg/pagination"
)

// ErrBatchNotFound is returned when a batch does not exist for the tenant.
var ErrBatchNotFound = errors.New("import batch not found")

// Repository persists ImportBatch rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts a new batch in processing state.
func (r *Repository) Create(ctx context.Context, batch *models.ImportBatch) error {
	batch.Status = enums.ImportBatchStatusProcessing
	return r.db.WithContext(ctx).Create(batch).Error
}

// AddProgress bumps record_count while the batch is still processing.
func (r *Repository) AddProgress(ctx context.Context, id uuid.UUID, n int) error {
	return r.db.WithContext(ctx).
		Model(&models.ImportBatch{}).
		Where("id = ? AND status = ?", id, enums.ImportBatchStatusProcessing).
		Update("record_count", gorm.Expr("record_count + ?", n)).Error
}

// MarkTerminal moves a processing batch to status. It reports false when the
// batch was already terminal, so the transition happens at most once.
func (r *Repository) MarkTerminal(ctx context.Context, id uuid.UUID, status enums.ImportBatchStatus, message *string, at time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, errors.New("terminal status required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.ImportBatch{}).
		Where("id = ? AND status = ?", id, enums.ImportBatchStatusProcessing).
		Updates(map[string]any{
			"status":        status,
			"error_message": message,
			"completed_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Get loads one batch owned by userID.
func (r *Repository) Get(ctx context.Context, userID, id uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// List pages through a tenant's batches, newest first.
func (r *Repository) List(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ImportBatch, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	var rows []models.ImportBatch
	err = query.Scopes(pagination.Keyset(cursor, params.Limit)).Find(&rows).Error
	if err != nil {
		return nil, "", err
	}
	page, next := pagination.Paginate(rows, params.Limit, func(b models.ImportBatch) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})
	return page, next, nil
}

// FailStale fails batches that have been processing since before cutoff.
func (r *Repository) FailStale(ctx context.Context, cutoff, now time.Time, message string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ImportBatch{}).
		Where("status = ? AND started_at < ?", enums.ImportBatchStatusProcessing, cutoff).
		Updates(map[string]any{
			"status":        enums.ImportBatchStatusFailed,
			"error_message": message,
			"completed_at":  now,
		})
	return res.RowsAffected, res.Error
}
