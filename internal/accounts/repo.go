package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
)

// Repository exposes account and processed-event persistence.
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

// FindByID loads an account by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByProviderCustomerID loads the account linked to a provider customer.
func (r *Repository) FindByProviderCustomerID(ctx context.Context, customerID string) (*models.Account, error) {
	return r.findOne(ctx, "provider_customer_id = ?", customerID)
}

// FindByProviderSubscriptionID loads the account tracking a provider subscription.
func (r *Repository) FindByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*models.Account, error) {
	return r.findOne(ctx, "provider_subscription_id = ?", subscriptionID)
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where(query, arg).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// CreateIfMissing inserts account unless a row with the same id exists, then
// returns the stored row. created reports whether this call inserted it.
func (r *Repository) CreateIfMissing(ctx context.Context, account models.Account) (*models.Account, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&account)
	if res.Error != nil {
		return nil, false, res.Error
	}
	stored, err := r.FindByID(ctx, account.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, res.RowsAffected == 1, nil
}

// CompareAndSwap writes next only when the stored cursor still equals
// expectedLastEventID. It reports whether the row was updated.
func (r *Repository) CompareAndSwap(ctx context.Context, next models.Account, expectedLastEventID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ? AND last_processed_event_id = ?", next.ID, expectedLastEventID).
		Updates(next.MutableColumns())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ProcessedEventExists reports whether an audit row exists for eventID.
func (r *Repository) ProcessedEventExists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedWebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertProcessedEvent records an audit row. A row that already exists is
// left untouched.
func (r *Repository) InsertProcessedEvent(ctx context.Context, row *models.ProcessedWebhookEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(row).Error
}

// DeleteProcessedEventsBefore prunes audit rows processed before cutoff.
func (r *Repository) DeleteProcessedEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&models.ProcessedWebhookEvent{})
	return res.RowsAffected, res.Error
}
