package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	product "github.com/angelmondragon/pickflow-backend/internal/products"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

type connectedTenants interface {
	ListConnected(ctx context.Context) ([]models.Tenant, error)
}

type catalogRefresher interface {
	RefreshFromProvider(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (product.CatalogResult, error)
}

// CatalogRefreshJobParams configure the scheduled product refresh.
type CatalogRefreshJobParams struct {
	Logger   *logger.Logger
	Tenants  connectedTenants
	Catalog  catalogRefresher
	Interval time.Duration
}

// NewCatalogRefreshJob builds the job that refreshes linked products of every
// connected tenant from its provider.
func NewCatalogRefreshJob(params CatalogRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant lister required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog refresher required")
	}
	if params.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	return &catalogRefreshJob{
		logg:     params.Logger,
		tenants:  params.Tenants,
		catalog:  params.Catalog,
		interval: params.Interval,
	}, nil
}

type catalogRefreshJob struct {
	logg     *logger.Logger
	tenants  connectedTenants
	catalog  catalogRefresher
	interval time.Duration
}

func (j *catalogRefreshJob) Name() string            { return "catalog-refresh" }
func (j *catalogRefreshJob) Interval() time.Duration { return j.interval }

// Run refreshes every tenant. Tenants needing reauthorisation are logged and
// skipped; other failures are combined.
func (j *catalogRefreshJob) Run(ctx context.Context) error {
	tenants, err := j.tenants.ListConnected(ctx)
	if err != nil {
		return fmt.Errorf("list connected tenants: %w", err)
	}

	var errs []error
	refreshed := 0
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if tenant.Provider == nil {
			continue
		}
		tenantCtx := j.logg.WithTenantID(ctx, tenant.ID.String())
		res, err := j.catalog.RefreshFromProvider(tenantCtx, tenant.ID, *tenant.Provider)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeReauthRequired) {
				j.logg.Warn(tenantCtx, "catalog refresh skipped; tenant must reconnect")
				continue
			}
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant.ID, err))
			continue
		}
		refreshed++
		j.logg.Info(j.logg.WithFields(tenantCtx, map[string]any{
			"updated":  res.Updated,
			"archived": res.Archived,
			"failed":   res.Failed,
		}), "catalog refreshed")
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{"tenants": len(tenants), "refreshed": refreshed}), "catalog refresh loop complete")
	return multierr.Combine(errs...)
}
