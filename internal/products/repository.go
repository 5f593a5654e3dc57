package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/pagination"
)

// Repository handles product persistence. Every lookup is tenant scoped.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to product operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a new product.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	if product == nil {
		return fmt.Errorf("product is required")
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(product).Error
}

// Update saves every column of the product.
func (r *Repository) Update(ctx context.Context, product *models.Product) error {
	if product == nil {
		return fmt.Errorf("product is required")
	}
	return r.db.WithContext(ctx).Save(product).Error
}

// FindByID loads a product owned by the tenant.
func (r *Repository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByRemoteItemID loads the product linked to a remote item, archived or not.
func (r *Repository) FindByRemoteItemID(ctx context.Context, tenantID uuid.UUID, remoteItemID string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND remote_item_id = ?", tenantID, remoteItemID).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindBySKU loads a product by its catalog SKU.
func (r *Repository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sku = ?", tenantID, sku).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindActiveByRemoteItemIDs returns the non-archived products linked to any of
// the remote item ids.
func (r *Repository) FindActiveByRemoteItemIDs(ctx context.Context, tenantID uuid.UUID, remoteItemIDs []string) ([]models.Product, error) {
	if len(remoteItemIDs) == 0 {
		return nil, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_archived = ? AND remote_item_id IN ?", tenantID, false, remoteItemIDs).
		Find(&rows).Error
	return rows, err
}

// ListLinkedRemoteIDs returns the remote item ids of every non-archived linked product.
func (r *Repository) ListLinkedRemoteIDs(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("tenant_id = ? AND is_archived = ? AND remote_item_id IS NOT NULL", tenantID, false).
		Order("remote_item_id ASC").
		Pluck("remote_item_id", &ids).Error
	return ids, err
}

// ArchiveByRemoteItemID flags the linked product as archived and reports how
// many rows changed.
func (r *Repository) ArchiveByRemoteItemID(ctx context.Context, tenantID uuid.UUID, remoteItemID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("tenant_id = ? AND remote_item_id = ? AND is_archived = ?", tenantID, remoteItemID, false).
		Update("is_archived", true)
	return res.RowsAffected, res.Error
}

type productListQuery struct {
	TenantID        uuid.UUID
	IncludeArchived bool
	Search          string
	Pagination      pagination.Params
}

// List returns a cursor page of the tenant's products, newest first.
func (r *Repository) List(ctx context.Context, query productListQuery) ([]models.Product, string, error) {
	page, err := pagination.Scope(query.Pagination)
	if err != nil {
		return nil, "", err
	}

	qb := r.db.WithContext(ctx).Model(&models.Product{}).Where("tenant_id = ?", query.TenantID)
	if !query.IncludeArchived {
		qb = qb.Where("is_archived = ?", false)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(name) LIKE ? OR LOWER(sku) LIKE ?)", pattern, pattern)
	}

	var rows []models.Product
	if err := qb.Scopes(page).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	rows, next := pagination.Trim(rows, query.Pagination.Limit, func(m models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return rows, next, nil
}
