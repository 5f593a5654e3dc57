package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	"github.com/angelmondragon/pickflow-backend/pkg/pagination"
)

// remoteColumns are the quote columns owned by the provider. Status and notes
// are local and never appear here.
var remoteColumns = []string{
	"quote_number",
	"customer_remote_id",
	"customer_name",
	"total_amount",
	"sync_token",
	"remote_updated_at",
	"updated_at",
}

// Repository handles quote and quote item persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to quote operations.
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

// FindByID loads a tenant's quote with its items.
func (r *Repository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("name ASC")
		}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// FindByRemoteID loads a quote by its natural key, with items.
func (r *Repository) FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteQuoteID string) (*models.Quote, error) {
	var quote models.Quote
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND remote_quote_id = ?", tenantID, remoteQuoteID).
		First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// StatusesByRemoteIDs maps remote quote ids to the local status of the quotes
// already stored. Unknown ids are absent from the result.
func (r *Repository) StatusesByRemoteIDs(ctx context.Context, tenantID uuid.UUID, remoteQuoteIDs []string) (map[string]enums.QuoteStatus, error) {
	out := make(map[string]enums.QuoteStatus, len(remoteQuoteIDs))
	if len(remoteQuoteIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		RemoteQuoteID string
		Status        enums.QuoteStatus
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Select("remote_quote_id, status").
		Where("tenant_id = ? AND remote_quote_id IN ?", tenantID, remoteQuoteIDs).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RemoteQuoteID] = row.Status
	}
	return out, nil
}

// UpsertRemote looks the quote up by its natural key and either refreshes the
// provider-owned columns of that row or inserts a new one. It returns the
// stored row.
func (r *Repository) UpsertRemote(ctx context.Context, quote *models.Quote) (*models.Quote, error) {
	if quote == nil {
		return nil, fmt.Errorf("quote is required")
	}
	conn := r.db.WithContext(ctx)

	var existing models.Quote
	err := conn.
		Where("tenant_id = ? AND remote_quote_id = ?", quote.TenantID, quote.RemoteQuoteID).
		First(&existing).Error
	switch {
	case err == nil:
		quote.ID = existing.ID
		if err := conn.Model(&existing).
			Select(remoteColumns).
			Updates(quote).Error; err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if quote.ID == uuid.Nil {
			quote.ID = uuid.New()
		}
		if quote.Status == "" {
			quote.Status = enums.QuoteStatusPending
		}
		if err := conn.Omit("Items").Create(quote).Error; err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	var stored models.Quote
	if err := conn.Where("id = ?", quote.ID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// ReplaceItems deletes every item of the quote and inserts items in their place.
func (r *Repository) ReplaceItems(ctx context.Context, quoteID uuid.UUID, items []models.QuoteItem) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("quote_id = ?", quoteID).Delete(&models.QuoteItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return conn.Create(&items).Error
}

type quoteListQuery struct {
	TenantID   uuid.UUID
	Statuses   []enums.QuoteStatus
	Search     string
	Pagination pagination.Params
}

// List returns a cursor page of quotes, newest first, without items.
func (r *Repository) List(ctx context.Context, query quoteListQuery) ([]models.Quote, string, error) {
	page, err := pagination.Scope(query.Pagination)
	if err != nil {
		return nil, "", err
	}

	qb := r.db.WithContext(ctx).Model(&models.Quote{}).Where("tenant_id = ?", query.TenantID)
	if len(query.Statuses) > 0 {
		qb = qb.Where("status IN ?", query.Statuses)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(customer_name) LIKE ? OR LOWER(quote_number) LIKE ?)", pattern, pattern)
	}

	var rows []models.Quote
	if err := qb.Scopes(page).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	rows, next := pagination.Trim(rows, query.Pagination.Limit, func(m models.Quote) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return rows, next, nil
}

// UpdateStatus moves the quote to next only if its status is one of from.
// It reports whether a row changed.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, next enums.QuoteStatus, from ...enums.QuoteStatus) (bool, error) {
	qb := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("tenant_id = ? AND id = ?", tenantID, id)
	if len(from) > 0 {
		qb = qb.Where("status IN ?", from)
	}
	res := qb.Update("status", next)
	return res.RowsAffected > 0, res.Error
}

// SetStatusForIDs moves every listed quote to status.
func (r *Repository) SetStatusForIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, status enums.QuoteStatus) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Update("status", status).Error
}

// UpdateNotes writes the given note columns.
func (r *Repository) UpdateNotes(ctx context.Context, tenantID, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// FindItem loads one item of a quote.
func (r *Repository) FindItem(ctx context.Context, quoteID, itemID uuid.UUID) (*models.QuoteItem, error) {
	var item models.QuoteItem
	if err := r.db.WithContext(ctx).
		Where("quote_id = ? AND id = ?", quoteID, itemID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItemPicking writes picking progress for an item, refusing any
// increase over the stored quantity.
func (r *Repository) UpdateItemPicking(ctx context.Context, itemID uuid.UUID, qty int, status enums.PickingStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.QuoteItem{}).
		Where("id = ? AND picking_qty >= ?", itemID, qty).
		Updates(map[string]any{"picking_qty": qty, "picking_status": status})
	return res.RowsAffected > 0, res.Error
}

// DeleteByIDs removes the tenant's quotes with their items and run placements.
func (r *Repository) DeleteByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	conn := r.db.WithContext(ctx)

	var owned []uuid.UUID
	if err := conn.Model(&models.Quote{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Pluck("id", &owned).Error; err != nil {
		return 0, err
	}
	if len(owned) == 0 {
		return 0, nil
	}
	if err := conn.Where("quote_id IN ?", owned).Delete(&models.RunItem{}).Error; err != nil {
		return 0, err
	}
	if err := conn.Where("quote_id IN ?", owned).Delete(&models.QuoteItem{}).Error; err != nil {
		return 0, err
	}
	res := conn.Where("tenant_id = ? AND id IN ?", tenantID, owned).Delete(&models.Quote{})
	return res.RowsAffected, res.Error
}
