package product

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/pkg/db"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
	"github.com/angelmondragon/pickflow-backend/pkg/pagination"
)

// refreshChunkSize bounds the id list of one bulk item query.
const refreshChunkSize = 30

// Service keeps the local catalog in step with the provider's items.
type Service interface {
	// ApplyRemoteItem upserts the product linked to item. Inactive items archive it.
	ApplyRemoteItem(ctx context.Context, tenantID uuid.UUID, item providers.RemoteItem) (ApplyOutcome, error)
	ArchiveRemoteItem(ctx context.Context, tenantID uuid.UUID, remoteItemID string) (ApplyOutcome, error)
	SyncCatalog(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (CatalogResult, error)
	RefreshFromProvider(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (CatalogResult, error)
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error)
}

type ServiceParams struct {
	Repo      *Repository
	DB        *db.Client
	Tokens    providers.TokenSource
	Providers providers.Registry
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	dbClient  *db.Client
	tokens    providers.TokenSource
	providers providers.Registry
	logg      *logger.Logger
}

// NewService constructs a product service instance.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token source required")
	}
	if len(params.Providers) == 0 {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		dbClient:  params.DB,
		tokens:    params.Tokens,
		providers: params.Providers,
		logg:      params.Logger,
	}, nil
}

func (s *service) ApplyRemoteItem(ctx context.Context, tenantID uuid.UUID, item providers.RemoteItem) (ApplyOutcome, error) {
	if strings.TrimSpace(item.ID) == "" {
		return ApplyOutcome{}, pkgerrors.New(pkgerrors.CodeValidation, "remote item id is required")
	}

	var outcome ApplyOutcome
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.FindByRemoteItemID(ctx, tenantID, item.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product by remote id")
		}

		if !item.Active {
			if existing == nil {
				outcome = ApplyOutcome{Action: ActionIgnored}
				return nil
			}
			outcome = ApplyOutcome{ProductID: existing.ID, Action: ActionArchived}
			if existing.IsArchived {
				return nil
			}
			existing.IsArchived = true
			if err := repo.Update(ctx, existing); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive product")
			}
			return nil
		}

		if existing == nil {
			sku := catalogSKU(item)
			if sku == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "remote item has neither sku nor name").
					WithDetails(map[string]any{"remote_item_id": item.ID})
			}
			bySKU, err := repo.FindBySKU(ctx, tenantID, sku)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				product := &models.Product{TenantID: tenantID, SKU: sku}
				applyRemoteFields(product, item)
				if err := repo.Create(ctx, product); err != nil {
					return writeError(err, "create product")
				}
				outcome = ApplyOutcome{ProductID: product.ID, Action: ActionCreated}
				return nil
			case err != nil:
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product by sku")
			case bySKU.RemoteItemID != nil && *bySKU.RemoteItemID != item.ID:
				return pkgerrors.New(pkgerrors.CodeConflict, "sku is linked to another remote item").
					WithDetails(map[string]any{"sku": sku, "remote_item_id": item.ID})
			}
			existing = bySKU
			outcome.Action = ActionLinked
		}

		applyRemoteFields(existing, item)
		if sku := strings.TrimSpace(item.SKU); sku != "" && sku != existing.SKU {
			other, err := repo.FindBySKU(ctx, tenantID, sku)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				existing.SKU = sku
			case err != nil:
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check sku")
			case other.ID != existing.ID:
				outcome.SKUConflict = true
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"tenant_id":        tenantID.String(),
					"product_id":       existing.ID.String(),
					"remote_item_id":   item.ID,
					"kept_sku":         existing.SKU,
					"rejected_sku":     sku,
					"conflicting_with": other.ID.String(),
				})
				s.logg.Warn(logCtx, "remote sku collides with another product; keeping existing sku")
			}
		}
		if err := repo.Update(ctx, existing); err != nil {
			return writeError(err, "update product")
		}
		outcome.ProductID = existing.ID
		if outcome.Action == "" {
			outcome.Action = ActionUpdated
		}
		return nil
	})
	if err != nil {
		return ApplyOutcome{}, err
	}
	return outcome, nil
}

func (s *service) ArchiveRemoteItem(ctx context.Context, tenantID uuid.UUID, remoteItemID string) (ApplyOutcome, error) {
	rows, err := s.repo.ArchiveByRemoteItemID(ctx, tenantID, remoteItemID)
	if err != nil {
		return ApplyOutcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive product")
	}
	if rows == 0 {
		return ApplyOutcome{Action: ActionIgnored}, nil
	}
	return ApplyOutcome{Action: ActionArchived}, nil
}

func (s *service) SyncCatalog(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (CatalogResult, error) {
	var result CatalogResult
	client, err := s.providers.For(provider)
	if err != nil {
		return result, err
	}
	token, err := s.tokens.GetValidToken(ctx, tenantID, provider)
	if err != nil {
		return result, err
	}

	ctx = s.logg.WithTenant(ctx, tenantID.String(), provider.String())
	items, err := client.ListItems(ctx, token)
	if err != nil {
		return result, err
	}
	for _, item := range items {
		s.applyInto(ctx, &result, tenantID, item)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"created":   result.Created,
		"updated":   result.Updated,
		"archived":  result.Archived,
		"conflicts": result.Conflicts,
		"failed":    result.Failed,
	}), "catalog sync finished")
	return result, nil
}

func (s *service) RefreshFromProvider(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (CatalogResult, error) {
	var result CatalogResult
	client, err := s.providers.For(provider)
	if err != nil {
		return result, err
	}
	ids, err := s.repo.ListLinkedRemoteIDs(ctx, tenantID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list linked products")
	}
	if len(ids) == 0 {
		return result, nil
	}
	token, err := s.tokens.GetValidToken(ctx, tenantID, provider)
	if err != nil {
		return result, err
	}

	ctx = s.logg.WithTenant(ctx, tenantID.String(), provider.String())
	for chunk := range slices.Chunk(ids, refreshChunkSize) {
		items, err := client.ItemsByIDs(ctx, token, chunk)
		if err != nil {
			result.Failed += len(chunk)
			s.logg.Error(s.logg.WithField(ctx, "chunk_size", len(chunk)), "bulk item fetch failed", err)
			continue
		}

		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			seen[item.ID] = struct{}{}
			s.applyInto(ctx, &result, tenantID, item)
		}
		for _, id := range chunk {
			if _, ok := seen[id]; ok {
				continue
			}
			outcome, err := s.ArchiveRemoteItem(ctx, tenantID, id)
			if err != nil {
				result.Failed++
				continue
			}
			result.record(outcome)
		}
	}
	return result, nil
}

func (s *service) applyInto(ctx context.Context, result *CatalogResult, tenantID uuid.UUID, item providers.RemoteItem) {
	outcome, err := s.ApplyRemoteItem(ctx, tenantID, item)
	if err != nil {
		result.Failed++
		s.logg.Error(s.logg.WithField(ctx, "remote_item_id", item.ID), "apply remote item failed", err)
		return
	}
	result.record(outcome)
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	rows, next, err := s.repo.List(ctx, productListQuery(input))
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return &ProductListResult{Products: out, NextCursor: next}, nil
}

// writeError maps a lost race on the unique (tenant, sku) or remote id index
// to a conflict.
func writeError(err error, action string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, action+": product already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func catalogSKU(item providers.RemoteItem) string {
	if sku := strings.TrimSpace(item.SKU); sku != "" {
		return sku
	}
	return strings.TrimSpace(item.Name)
}

func applyRemoteFields(product *models.Product, item providers.RemoteItem) {
	remoteID := item.ID
	product.RemoteItemID = &remoteID
	if name := strings.TrimSpace(item.Name); name != "" {
		product.Name = name
	}
	product.Price = item.Price
	product.QtyOnHand = item.QtyOnHand
	product.TaxCodeRef = nil
	if item.TaxCodeRef != "" {
		taxCode := item.TaxCodeRef
		product.TaxCodeRef = &taxCode
	}
	product.IsArchived = false
}
