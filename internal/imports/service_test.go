package imports

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/churnguard-backend/internal/customers"
	"github.com/angelmondragon/churnguard-backend/pkg/db"
	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/pagination"
)

var fixedNow = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

const sampleCSV = `customer_id,email,name,subscription_id,plan,status,amount,currency,interval,current_period_end
cus_1,ana@example.com,Ana,sub_1,Growth,active,49.00,usd,month,2026-05-01
cus_2,BEN@example.com,Ben,sub_2,Scale,past_due,99,usd,month,2026-04-20
cus_3,cy@example.com,Cy,,,,,,,
`

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Customer{}, &models.CustomerSubscription{}, &models.ImportBatch{}))
	return conn
}

func newTestService(t *testing.T, batchSize int) (*Service, *gorm.DB) {
	t.Helper()
	conn := openTestDB(t)
	svc, err := NewService(ServiceParams{
		TxRunner:  db.Wrap(conn),
		Batches:   NewRepository(conn),
		Customers: customers.NewRepository(conn),
		BatchSize: batchSize,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc, conn
}

func countRows(t *testing.T, conn *gorm.DB, model any, userID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(model).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func TestImportCSVCompletesBatch(t *testing.T) {
	svc, conn := newTestService(t, 2)
	userID := uuid.New()

	batch, err := svc.ImportCSV(context.Background(), userID, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.NotNil(t, batch)

	assert.Equal(t, enums.ImportBatchStatusCompleted, batch.Status)
	assert.Equal(t, 3, batch.RecordCount)
	assert.Nil(t, batch.ErrorMessage)
	require.NotNil(t, batch.CompletedAt)
	assert.Equal(t, int64(3), countRows(t, conn, &models.Customer{}, userID))
	assert.Equal(t, int64(2), countRows(t, conn, &models.CustomerSubscription{}, userID))

	var sub models.CustomerSubscription
	require.NoError(t, conn.Where("provider_id = ?", "sub_2").First(&sub).Error)
	assert.Equal(t, enums.SubscriptionStatusPastDue, sub.Status)
	assert.Equal(t, "99", sub.Amount.String())
	assert.Equal(t, "cus_2", sub.CustomerProviderID)
}

func TestImportCSVTwiceKeepsCounts(t *testing.T) {
	svc, conn := newTestService(t, 10)
	userID := uuid.New()

	_, err := svc.ImportCSV(context.Background(), userID, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	second, err := svc.ImportCSV(context.Background(), userID, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, enums.ImportBatchStatusCompleted, second.Status)
	assert.Equal(t, int64(3), countRows(t, conn, &models.Customer{}, userID))
	assert.Equal(t, int64(2), countRows(t, conn, &models.CustomerSubscription{}, userID))
}

func TestImportCSVKeepsTenantsApart(t *testing.T) {
	svc, conn := newTestService(t, 10)
	first, second := uuid.New(), uuid.New()

	_, err := svc.ImportCSV(context.Background(), first, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	_, err = svc.ImportCSV(context.Background(), second, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, int64(3), countRows(t, conn, &models.Customer{}, first))
	assert.Equal(t, int64(3), countRows(t, conn, &models.Customer{}, second))
}

func TestImportCSVUpdatesExistingRows(t *testing.T) {
	svc, conn := newTestService(t, 10)
	userID := uuid.New()

	_, err := svc.ImportCSV(context.Background(), userID, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	update := "customer_id,subscription_id,status,amount\ncus_1,sub_1,canceled,0\n"
	_, err = svc.ImportCSV(context.Background(), userID, strings.NewReader(update))
	require.NoError(t, err)

	var sub models.CustomerSubscription
	require.NoError(t, conn.Where("provider_id = ? AND user_id = ?", "sub_1", userID).First(&sub).Error)
	assert.Equal(t, enums.SubscriptionStatusCanceled, sub.Status)
}

func TestImportCSVDuplicateKeysInOneBatchKeepLast(t *testing.T) {
	svc, conn := newTestService(t, 10)
	userID := uuid.New()
	doc := "customer_id,name\ncus_1,First\ncus_1,Second\n"

	batch, err := svc.ImportCSV(context.Background(), userID, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, batch.RecordCount)

	var customer models.Customer
	require.NoError(t, conn.Where("provider_id = ?", "cus_1").First(&customer).Error)
	require.NotNil(t, customer.Name)
	assert.Equal(t, "Second", *customer.Name)
	assert.Equal(t, int64(1), countRows(t, conn, &models.Customer{}, userID))
}

func TestImportCSVInvalidRowFailsBatchAndKeepsCommittedChunks(t *testing.T) {
	svc, conn := newTestService(t, 2)
	userID := uuid.New()
	doc := strings.Join([]string{
		"customer_id,email",
		"cus_1,a@example.com",
		"cus_2,b@example.com",
		"cus_3,c@example.com",
		"cus_4,not-an-email",
	}, "\n") + "\n"

	batch, err := svc.ImportCSV(context.Background(), userID, strings.NewReader(doc))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	require.NotNil(t, batch)

	assert.Equal(t, enums.ImportBatchStatusFailed, batch.Status)
	assert.Equal(t, 2, batch.RecordCount)
	require.NotNil(t, batch.ErrorMessage)
	assert.Contains(t, *batch.ErrorMessage, "line 5")
	assert.Contains(t, *batch.ErrorMessage, "email must be a valid email")
	assert.Equal(t, int64(2), countRows(t, conn, &models.Customer{}, userID))
}

func TestImportCSVMissingCustomerColumnFails(t *testing.T) {
	svc, _ := newTestService(t, 10)

	batch, err := svc.ImportCSV(context.Background(), uuid.New(), strings.NewReader("email\na@example.com\n"))
	require.Error(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, enums.ImportBatchStatusFailed, batch.Status)
	assert.Equal(t, 0, batch.RecordCount)
	require.NotNil(t, batch.ErrorMessage)
	assert.Contains(t, *batch.ErrorMessage, "customer_id")
}

func TestImportCSVCancelledContextStillReachesTerminalStatus(t *testing.T) {
	svc, _ := newTestService(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	batch, err := svc.Start(ctx, uuid.New(), enums.ImportSourceCSV)
	require.NoError(t, err)
	cancel()

	err = svc.RunCSV(ctx, batch, strings.NewReader(sampleCSV))
	require.Error(t, err)

	stored, err := svc.Get(context.Background(), batch.UserID, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ImportBatchStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "import timed out", *stored.ErrorMessage)
}

func TestStartRejectsNilUser(t *testing.T) {
	svc, _ := newTestService(t, 10)
	_, err := svc.Start(context.Background(), uuid.Nil, enums.ImportSourceCSV)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

type stubProvider struct {
	customers     []*stripe.Customer
	subscriptions []*stripe.Subscription
	subsErr       error
}

func (s stubProvider) Customers(context.Context) iter.Seq2[*stripe.Customer, error] {
	return func(yield func(*stripe.Customer, error) bool) {
		for _, c := range s.customers {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (s stubProvider) Subscriptions(context.Context) iter.Seq2[*stripe.Subscription, error] {
	return func(yield func(*stripe.Subscription, error) bool) {
		for _, sub := range s.subscriptions {
			if !yield(sub, nil) {
				return
			}
		}
		if s.subsErr != nil {
			yield(nil, s.subsErr)
		}
	}
}

func providerFixture() stubProvider {
	return stubProvider{
		customers: []*stripe.Customer{
			{ID: "cus_a", Email: "A@Example.com ", Name: "Acme", Metadata: map[string]string{"tier": "gold"}},
			{ID: "cus_b", Email: "b@example.com"},
			{ID: "cus_c"},
		},
		subscriptions: []*stripe.Subscription{
			{
				ID:       "sub_a",
				Customer: &stripe.Customer{ID: "cus_a"},
				Status:   stripe.SubscriptionStatusActive,
				Currency: stripe.CurrencyUSD,
				Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
					Quantity: 2,
					Price: &stripe.Price{
						ID:         "price_growth",
						LookupKey:  "growth_monthly",
						UnitAmount: 2450,
						Recurring:  &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalMonth},
					},
				}}},
			},
		},
	}
}

func TestSyncProviderCopiesCustomersThenSubscriptions(t *testing.T) {
	svc, conn := newTestService(t, 2)
	userID := uuid.New()

	batch, err := svc.SyncProvider(context.Background(), userID, providerFixture())
	require.NoError(t, err)

	assert.Equal(t, enums.ImportBatchStatusCompleted, batch.Status)
	assert.Equal(t, enums.ImportSourceProviderSync, batch.Source)
	assert.Equal(t, 4, batch.RecordCount)
	assert.Equal(t, int64(3), countRows(t, conn, &models.Customer{}, userID))

	var sub models.CustomerSubscription
	require.NoError(t, conn.Where("provider_id = ?", "sub_a").First(&sub).Error)
	assert.Equal(t, "cus_a", sub.CustomerProviderID)
	assert.Equal(t, "49", sub.Amount.String())
	require.NotNil(t, sub.PlanName)
	assert.Equal(t, "growth_monthly", *sub.PlanName)
	require.NotNil(t, sub.BillingInterval)
	assert.Equal(t, enums.BillingIntervalMonth, *sub.BillingInterval)
}

func TestSyncProviderListingFailureFailsBatch(t *testing.T) {
	svc, conn := newTestService(t, 10)
	userID := uuid.New()
	src := providerFixture()
	src.subsErr = errors.New("stripe unavailable")

	batch, err := svc.SyncProvider(context.Background(), userID, src)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	assert.Equal(t, enums.ImportBatchStatusFailed, batch.Status)
	assert.Equal(t, 3, batch.RecordCount)
	assert.Equal(t, int64(3), countRows(t, conn, &models.Customer{}, userID))
	require.NotNil(t, batch.ErrorMessage)
	assert.NotContains(t, *batch.ErrorMessage, "stripe unavailable")
}

func TestGetAndListAreTenantScoped(t *testing.T) {
	svc, _ := newTestService(t, 10)
	owner := uuid.New()
	batch, err := svc.ImportCSV(context.Background(), owner, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), uuid.New(), batch.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	rows, next, err := svc.List(context.Background(), owner, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, rows, 1)
	assert.Equal(t, batch.ID, rows[0].ID)
}
