package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/churnguard-backend/pkg/logger"
)

const (
	defaultImportStaleAfter = time.Hour
	importInterruptedReason = "import interrupted"
)

type ImportSweeperJobParams struct {
	Logger     *logger.Logger
	Repository staleBatchRepo
	StaleAfter time.Duration
}

type staleBatchRepo interface {
	FailStale(ctx context.Context, cutoff, now time.Time, message string) (int64, error)
}

// NewImportSweeperJob fails import batches left in processing by a process
// that died mid-run.
func NewImportSweeperJob(params ImportSweeperJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("import batch repository required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultImportStaleAfter
	}
	return &importSweeperJob{
		logg:       params.Logger,
		repo:       params.Repository,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

type importSweeperJob struct {
	logg       *logger.Logger
	repo       staleBatchRepo
	staleAfter time.Duration
	now        func() time.Time
}

func (j *importSweeperJob) Name() string { return "import-batch-sweeper" }

func (j *importSweeperJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.staleAfter)
	failed, err := j.repo.FailStale(ctx, cutoff, now, importInterruptedReason)
	if err != nil {
		return fmt.Errorf("fail stale import batches: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"batches_failed": failed,
		"stale_after_s":  int64(j.staleAfter.Seconds()),
	})
	if failed > 0 {
		j.logg.Warn(logCtx, "stale import batches marked failed")
		return nil
	}
	j.logg.Info(logCtx, "import batch sweep complete")
	return nil
}
