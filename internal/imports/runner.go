package imports

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/churnguard-backend/pkg/db/models"
	"github.com/angelmondragon/churnguard-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/churnguard-backend/pkg/errors"
	"github.com/angelmondragon/churnguard-backend/pkg/logger"
)

const defaultRunTimeout = 15 * time.Minute

// ErrRunnerClosed is returned by Start* once Wait has begun.
var ErrRunnerClosed = pkgerrors.New(pkgerrors.CodeDependency, "import runner is shutting down")

// Runner starts imports on behalf of a request and finishes them in the
// background, so the caller gets the processing batch back immediately.
type Runner struct {
	svc     *Service
	timeout time.Duration
	logger  *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewRunner(svc *Service, timeout time.Duration, logg *logger.Logger) (*Runner, error) {
	if svc == nil {
		return nil, fmt.Errorf("import service required")
	}
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Runner{svc: svc, timeout: timeout, logger: logg}, nil
}

// StartCSV records a batch and imports document in the background. The
// document is fully buffered because the request body does not outlive the
// handler.
func (r *Runner) StartCSV(ctx context.Context, userID uuid.UUID, document []byte) (*models.ImportBatch, error) {
	if err := r.reserve(); err != nil {
		return nil, err
	}
	batch, err := r.svc.Start(ctx, userID, enums.ImportSourceCSV)
	if err != nil {
		r.wg.Done()
		return nil, err
	}
	snapshot := *batch
	r.detach(ctx, batch, func(runCtx context.Context) error {
		return r.svc.RunCSV(runCtx, batch, bytes.NewReader(document))
	})
	return &snapshot, nil
}

// StartProviderSync records a batch and syncs src in the background.
func (r *Runner) StartProviderSync(ctx context.Context, userID uuid.UUID, src ProviderSource) (*models.ImportBatch, error) {
	if err := r.reserve(); err != nil {
		return nil, err
	}
	batch, err := r.svc.Start(ctx, userID, enums.ImportSourceProviderSync)
	if err != nil {
		r.wg.Done()
		return nil, err
	}
	snapshot := *batch
	r.detach(ctx, batch, func(runCtx context.Context) error {
		return r.svc.RunProviderSync(runCtx, batch, src)
	})
	return &snapshot, nil
}

// reserve counts an import in before its batch exists, so Wait never races
// a WaitGroup.Add from zero. The caller owns one wg.Done.
func (r *Runner) reserve() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	return nil
}

// Wait stops new imports from starting, then blocks until every detached
// import has finished or ctx ends.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) detach(ctx context.Context, batch *models.ImportBatch, run func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				r.logger.Error(runCtx, "import panicked", err)
				_ = r.svc.fail(runCtx, batch, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "import failed"))
			}
		}()
		if err := run(runCtx); err != nil {
			r.logger.Debug(r.logger.WithField(runCtx, "import_batch_id", batch.ID.String()), "detached import ended with error")
		}
	}()
}
