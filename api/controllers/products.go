package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/pickflow-backend/api/responses"
	"github.com/angelmondragon/pickflow-backend/api/validators"
	productsvc "github.com/angelmondragon/pickflow-backend/internal/products"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
	"github.com/angelmondragon/pickflow-backend/pkg/pagination"
)

// ListProducts pages through the tenant catalog. Archived products are hidden
// unless ?archived=true.
func ListProducts(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := productsvc.ListProductsInput{
			TenantID: tenantID,
			Search:   validators.SearchQuery(r),
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		input.IncludeArchived, err = validators.ParseQueryBool(r, "archived", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListProducts(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SyncCatalog upserts every provider item into the catalog.
func SyncCatalog(svc productsvc.Service, tenants TenantFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		result, err := svc.SyncCatalog(r.Context(), tenantID, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RefreshCatalog is SyncCatalog plus archiving of products the provider no
// longer returns.
func RefreshCatalog(svc productsvc.Service, tenants TenantFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		result, err := svc.RefreshFromProvider(r.Context(), tenantID, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
