package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pickflow-backend/internal/quotesync"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

type tenantsSyncer interface {
	SyncAllTenants(ctx context.Context) (quotesync.TenantsSummary, error)
}

// QuoteSyncJobParams configure the scheduled quote sync.
type QuoteSyncJobParams struct {
	Logger   *logger.Logger
	Syncer   tenantsSyncer
	Interval time.Duration
}

// NewQuoteSyncJob builds the job that pulls open quotes for every connected tenant.
func NewQuoteSyncJob(params QuoteSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("quote syncer required")
	}
	if params.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	return &quoteSyncJob{logg: params.Logger, syncer: params.Syncer, interval: params.Interval}, nil
}

type quoteSyncJob struct {
	logg     *logger.Logger
	syncer   tenantsSyncer
	interval time.Duration
}

func (j *quoteSyncJob) Name() string            { return "quote-sync" }
func (j *quoteSyncJob) Interval() time.Duration { return j.interval }

func (j *quoteSyncJob) Run(ctx context.Context) error {
	summary, err := j.syncer.SyncAllTenants(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"tenants":         summary.Tenants,
		"synced":          summary.Synced,
		"failed":          summary.Failed,
		"skipped":         summary.Skipped,
		"reauth_required": summary.ReauthRequired,
		"aborted":         summary.Aborted,
	})
	if err != nil {
		return err
	}
	j.logg.Info(logCtx, "quote sync loop complete")
	if summary.Aborted > 0 {
		return fmt.Errorf("%d of %d tenant syncs aborted", summary.Aborted, summary.Tenants)
	}
	return nil
}
