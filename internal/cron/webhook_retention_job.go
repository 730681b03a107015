package cron

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/churnguard-backend/pkg/logger"
)

const (
	defaultRetentionDays = 90
	// Stripe redelivers for up to three days; the audit rows must outlive that.
	minRetentionDays = 7
)

type WebhookRetentionJobParams struct {
	Logger     *logger.Logger
	Repository processedEventRepo
	Retention  int
}

type processedEventRepo interface {
	DeleteProcessedEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewWebhookRetentionJob prunes processed_webhook_events rows older than the
// retention window. Zero means the default; anything below the floor is raised.
func NewWebhookRetentionJob(params WebhookRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("webhook retention: logger required")
	case params.Repository == nil:
		return nil, errors.New("webhook retention: repository required")
	}
	days := params.Retention
	if days == 0 {
		days = defaultRetentionDays
	}
	days = max(days, minRetentionDays)
	return &webhookRetentionJob{
		logg: params.Logger,
		repo: params.Repository,
		days: days,
		now:  time.Now,
	}, nil
}

type webhookRetentionJob struct {
	logg *logger.Logger
	repo processedEventRepo
	days int
	now  func() time.Time
}

func (j *webhookRetentionJob) Name() string { return "webhook-event-retention" }

func (j *webhookRetentionJob) cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.days)
}

func (j *webhookRetentionJob) Run(ctx context.Context) error {
	cutoff := j.cutoff()
	deleted, err := j.repo.DeleteProcessedEventsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return nil
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff.Format(time.RFC3339),
		"retention_days": j.days,
		"rows_deleted":   deleted,
	}), "pruned processed webhook events")
	return nil
}
