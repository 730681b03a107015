package customers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
	"github.com/angelmondragon/churnguard-backend/pkg/pagination"
)

var naturalKey = []clause.Column{{Name: "provider_id"}, {Name: "user_id"}}

// Repository persists imported customers and their subscriptions.
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

// UpsertCustomers inserts rows or refreshes existing ones on (provider_id, user_id).
func (r *Repository) UpsertCustomers(ctx context.Context, rows []models.Customer) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   naturalKey,
			DoUpdates: clause.AssignmentColumns([]string{"email", "name", "source", "metadata", "updated_at"}),
		}).
		Create(&rows).Error
}

// UpsertSubscriptions inserts rows or refreshes existing ones on (provider_id, user_id).
func (r *Repository) UpsertSubscriptions(ctx context.Context, rows []models.CustomerSubscription) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: naturalKey,
			DoUpdates: clause.AssignmentColumns([]string{
				"customer_provider_id", "plan_name", "status", "amount", "currency",
				"billing_interval", "started_at", "current_period_end",
				"cancel_at_period_end", "canceled_at", "source", "updated_at",
			}),
		}).
		Create(&rows).Error
}

// Counts reports how many customers and subscriptions a tenant has stored.
func (r *Repository) Counts(ctx context.Context, userID uuid.UUID) (customers, subscriptions int64, err error) {
	if err = r.db.WithContext(ctx).Model(&models.Customer{}).Where("user_id = ?", userID).Count(&customers).Error; err != nil {
		return 0, 0, err
	}
	if err = r.db.WithContext(ctx).Model(&models.CustomerSubscription{}).Where("user_id = ?", userID).Count(&subscriptions).Error; err != nil {
		return 0, 0, err
	}
	return customers, subscriptions, nil
}

// ListAtRisk pages through subscriptions that are failing payment or set to
// cancel, newest first.
func (r *Repository) ListAtRisk(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.CustomerSubscription, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("(status IN ? OR cancel_at_period_end = ?)", []enums.SubscriptionStatus{
			enums.SubscriptionStatusPastDue,
			enums.SubscriptionStatusUnpaid,
		}, true)

	var rows []models.CustomerSubscription
	err = query.Scopes(pagination.Keyset(cursor, params.Limit)).Find(&rows).Error
	if err != nil {
		return nil, "", err
	}

	page, next := pagination.Paginate(rows, params.Limit, func(row models.CustomerSubscription) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}
