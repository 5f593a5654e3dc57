package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/api/responses"
	"github.com/angelmondragon/pickflow-backend/internal/quotesync"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

type TenantFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

type QuoteSyncer interface {
	SyncAllPendingQuotes(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (quotesync.Result, error)
}

// SyncQuotes imports every open quote of the caller's connected provider and
// returns the tally.
func SyncQuotes(syncer QuoteSyncer, tenants TenantFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncer == nil || tenants == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := connectedProvider(r.Context(), tenants, tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := syncer.SyncAllPendingQuotes(r.Context(), tenantID, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func connectedProvider(ctx context.Context, tenants TenantFinder, tenantID uuid.UUID) (enums.Provider, error) {
	tenant, err := tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
	}
	if tenant.Provider == nil || tenant.RemoteAccountID == nil {
		return "", pkgerrors.New(pkgerrors.CodeReauthRequired, "no accounting provider connected")
	}
	return *tenant.Provider, nil
}
