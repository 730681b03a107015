package imports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/angelmondragon/churnguard-backend/internal/customers"
	"github.com/angelmondragon/churnguard-backend/pkg/db"
	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
	"github.com/angelmondragon/churnguard-backend/pkg/metrics"
	"github.com/angelmondragon/churnguard-backend/pkg/pagination"
)

const (
	defaultBatchSize   = 100
	terminalWriteLimit = 10 * time.Second
)

type ServiceParams struct {
	TxRunner  db.TxRunner
	Batches   *Repository
	Customers *customers.Repository
	Metrics   *metrics.ImportMetrics
	Logger    *logger.Logger
	BatchSize int
	Now       func() time.Time
}

// Service runs bulk customer imports. Rows are committed in bounded batches,
// each in its own transaction; a failure stops the run and fails the
// ImportBatch while keeping what was already committed.
type Service struct {
	tx        db.TxRunner
	batches   *Repository
	customers *customers.Repository
	metrics   *metrics.ImportMetrics
	logger    *logger.Logger
	batchSize int
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Batches == nil {
		return nil, fmt.Errorf("import batch repository required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	s := &Service{
		tx:        params.TxRunner,
		batches:   params.Batches,
		customers: params.Customers,
		metrics:   params.Metrics,
		logger:    params.Logger,
		batchSize: params.BatchSize,
		now:       params.Now,
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Start records a new processing batch for userID.
func (s *Service) Start(ctx context.Context, userID uuid.UUID, source enums.ImportSource) (*models.ImportBatch, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !source.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown import source %q", source)
	}
	batch := &models.ImportBatch{
		UserID:    userID,
		Source:    source,
		StartedAt: s.now().UTC(),
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create import batch")
	}
	return batch, nil
}

// ImportCSV runs a complete CSV import and returns the terminal batch.
func (s *Service) ImportCSV(ctx context.Context, userID uuid.UUID, r io.Reader) (*models.ImportBatch, error) {
	batch, err := s.Start(ctx, userID, enums.ImportSourceCSV)
	if err != nil {
		return nil, err
	}
	runErr := s.RunCSV(ctx, batch, r)
	return s.reload(ctx, batch), runErr
}

// SyncProvider runs a complete provider sync and returns the terminal batch.
func (s *Service) SyncProvider(ctx context.Context, userID uuid.UUID, src ProviderSource) (*models.ImportBatch, error) {
	batch, err := s.Start(ctx, userID, enums.ImportSourceProviderSync)
	if err != nil {
		return nil, err
	}
	runErr := s.RunProviderSync(ctx, batch, src)
	return s.reload(ctx, batch), runErr
}

// RunCSV streams records from r into storage for an already started batch.
func (s *Service) RunCSV(ctx context.Context, batch *models.ImportBatch, r io.Reader) error {
	ctx = s.logger.WithFields(ctx, map[string]any{"import_batch_id": batch.ID.String(), "source": batch.Source.String()})

	src, err := newCSVSource(r)
	if err != nil {
		return s.fail(ctx, batch, 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
	}

	committed := 0
	pending := make([]Record, 0, s.batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		custs := make([]models.Customer, 0, len(pending))
		subs := make([]models.CustomerSubscription, 0, len(pending))
		for _, rec := range pending {
			customer, sub, err := rec.toModels(batch.UserID, batch.Source)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("line %d: %v", rec.Line, err))
			}
			custs = append(custs, customer)
			if sub != nil {
				subs = append(subs, *sub)
			}
		}
		if err := s.commit(ctx, batch, custs, subs, len(pending)); err != nil {
			return err
		}
		committed += len(pending)
		pending = pending[:0]
		return nil
	}

	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.fail(ctx, batch, committed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
		}
		if err := rec.Validate(); err != nil {
			return s.fail(ctx, batch, committed, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
		}
		pending = append(pending, rec)
		if len(pending) >= s.batchSize {
			if err := flush(); err != nil {
				return s.fail(ctx, batch, committed, err)
			}
		}
	}
	if err := flush(); err != nil {
		return s.fail(ctx, batch, committed, err)
	}
	return s.complete(ctx, batch, committed)
}

// RunProviderSync copies every customer, then every subscription, from src.
func (s *Service) RunProviderSync(ctx context.Context, batch *models.ImportBatch, src ProviderSource) error {
	ctx = s.logger.WithFields(ctx, map[string]any{"import_batch_id": batch.ID.String(), "source": batch.Source.String()})
	if src == nil {
		return s.fail(ctx, batch, 0, pkgerrors.New(pkgerrors.CodeValidation, "provider source required"))
	}

	committed := 0
	custs := make([]models.Customer, 0, s.batchSize)
	for customer, err := range src.Customers(ctx) {
		if err != nil {
			return s.fail(ctx, batch, committed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing customers from the billing provider failed"))
		}
		custs = append(custs, customerFromStripe(batch.UserID, customer))
		if len(custs) >= s.batchSize {
			if err := s.commit(ctx, batch, custs, nil, len(custs)); err != nil {
				return s.fail(ctx, batch, committed, err)
			}
			committed += len(custs)
			custs = custs[:0]
		}
	}
	if err := s.commit(ctx, batch, custs, nil, len(custs)); err != nil {
		return s.fail(ctx, batch, committed, err)
	}
	committed += len(custs)

	subs := make([]models.CustomerSubscription, 0, s.batchSize)
	for sub, err := range src.Subscriptions(ctx) {
		if err != nil {
			return s.fail(ctx, batch, committed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing subscriptions from the billing provider failed"))
		}
		subs = append(subs, subscriptionFromStripe(batch.UserID, sub))
		if len(subs) >= s.batchSize {
			if err := s.commit(ctx, batch, nil, subs, len(subs)); err != nil {
				return s.fail(ctx, batch, committed, err)
			}
			committed += len(subs)
			subs = subs[:0]
		}
	}
	if err := s.commit(ctx, batch, nil, subs, len(subs)); err != nil {
		return s.fail(ctx, batch, committed, err)
	}
	committed += len(subs)

	return s.complete(ctx, batch, committed)
}

// commit upserts one bounded batch and its progress in a single transaction.
func (s *Service) commit(ctx context.Context, batch *models.ImportBatch, custs []models.Customer, subs []models.CustomerSubscription, records int) error {
	if records == 0 {
		return nil
	}
	custs = lastByKey(custs, func(c models.Customer) string { return c.ProviderID })
	subs = lastByKey(subs, func(s models.CustomerSubscription) string { return s.ProviderID })

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.customers.WithTx(tx)
		if err := repo.UpsertCustomers(ctx, custs); err != nil {
			return err
		}
		if err := repo.UpsertSubscriptions(ctx, subs); err != nil {
			return err
		}
		return s.batches.WithTx(tx).AddProgress(ctx, batch.ID, records)
	})
	if err != nil {
		s.logger.Error(ctx, "import batch commit failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving imported records failed")
	}
	source := batch.Source.String()
	s.metrics.AddRows(source, "customer", len(custs))
	s.metrics.AddRows(source, "subscription", len(subs))
	return nil
}

func (s *Service) complete(ctx context.Context, batch *models.ImportBatch, committed int) error {
	ok, err := s.markTerminal(ctx, batch, enums.ImportBatchStatusCompleted, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete import batch")
	}
	if ok {
		s.metrics.IncBatch(batch.Source.String(), enums.ImportBatchStatusCompleted.String())
	}
	s.logger.Info(s.logger.WithField(ctx, "records", committed), "import completed")
	return nil
}

// fail marks the batch failed with a tenant-facing message and returns cause.
func (s *Service) fail(ctx context.Context, batch *models.ImportBatch, committed int, cause error) error {
	message := failureMessage(ctx, cause, committed)
	if _, err := s.markTerminal(ctx, batch, enums.ImportBatchStatusFailed, &message); err != nil {
		s.logger.Error(ctx, "could not mark import batch failed", err)
	} else {
		s.metrics.IncBatch(batch.Source.String(), enums.ImportBatchStatusFailed.String())
	}
	s.logger.Warn(s.logger.WithFields(ctx, map[string]any{"records": committed, "reason": message}), "import failed")
	return cause
}

// markTerminal survives a cancelled request context so a timed out import
// still reaches a terminal status.
func (s *Service) markTerminal(ctx context.Context, batch *models.ImportBatch, status enums.ImportBatchStatus, message *string) (bool, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteLimit)
	defer cancel()
	return s.batches.MarkTerminal(writeCtx, batch.ID, status, message, s.now().UTC())
}

func (s *Service) reload(ctx context.Context, batch *models.ImportBatch) *models.ImportBatch {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteLimit)
	defer cancel()
	stored, err := s.batches.Get(readCtx, batch.UserID, batch.ID)
	if err != nil {
		return batch
	}
	return stored
}

// Get returns one of the tenant's batches.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.ImportBatch, error) {
	batch, err := s.batches.Get(ctx, userID, id)
	if errors.Is(err, ErrBatchNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "import batch not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load import batch")
	}
	return batch, nil
}

// List pages through the tenant's batches.
func (s *Service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ImportBatch, string, error) {
	rows, next, err := s.batches.List(ctx, userID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return rows, next, nil
}

func failureMessage(ctx context.Context, cause error, committed int) string {
	reason := "import failed"
	if typed := pkgerrors.As(cause); typed != nil {
		reason = typed.Message()
	}
	if ctx.Err() != nil {
		reason = "import timed out"
	}
	if committed > 0 {
		return fmt.Sprintf("%s (%d records imported before the failure)", reason, committed)
	}
	return reason
}

// lastByKey drops earlier duplicates so one upsert never touches a key twice.
func lastByKey[T any](rows []T, key func(T) string) []T {
	if len(rows) < 2 {
		return rows
	}
	reversed := lo.Reverse(append([]T(nil), rows...))
	return lo.Reverse(lo.UniqBy(reversed, key))
}
