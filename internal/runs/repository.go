package runs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

// Repository handles runs, their placements and the quote status changes that
// go with them.
type Repository struct {
	db *gorm.DB
}

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

func (r *Repository) Create(ctx context.Context, run *models.Run) error {
	if run == nil {
		return fmt.Errorf("run is required")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = enums.RunStatusPending
	}
	return r.db.WithContext(ctx).Omit("Items").Create(run).Error
}

// FindByID loads a tenant's run with placements in priority order.
func (r *Repository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Run, error) {
	var run models.Run
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("priority ASC")
		}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns the tenant's runs, newest first. An empty status matches all.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, status enums.RunStatus) ([]models.Run, error) {
	qb := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("priority ASC")
		}).
		Where("tenant_id = ?", tenantID)
	if status != "" {
		qb = qb.Where("status = ?", status)
	}
	var rows []models.Run
	err := qb.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

// MaxPriority returns the highest placement priority in the run, or 0.
func (r *Repository) MaxPriority(ctx context.Context, runID uuid.UUID) (int, error) {
	var highest sql.NullInt64
	if err := r.db.WithContext(ctx).
		Model(&models.RunItem{}).
		Select("MAX(priority)").
		Where("run_id = ?", runID).
		Row().Scan(&highest); err != nil {
		return 0, err
	}
	return int(highest.Int64), nil
}

func (r *Repository) AddItems(ctx context.Context, items []models.RunItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// RemovePlacements deletes any placement of the quotes, in any run.
func (r *Repository) RemovePlacements(ctx context.Context, quoteIDs []uuid.UUID) error {
	if len(quoteIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("quote_id IN ?", quoteIDs).Delete(&models.RunItem{}).Error
}

// UpdateStatus moves the run to next only if it is still in from.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, from, next enums.RunStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Run{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, id, from).
		Update("status", next)
	return res.RowsAffected > 0, res.Error
}

// Delete removes the run and its placements.
func (r *Repository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("run_id = ?", id).Delete(&models.RunItem{}).Error; err != nil {
		return err
	}
	return conn.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.Run{}).Error
}

// Quotes loads the tenant's quotes with the given ids.
func (r *Repository) Quotes(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]models.Quote, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Quote
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&rows).Error
	return rows, err
}

// SetQuoteStatus moves the listed quotes to status. When from is given only
// quotes currently in one of those statuses change.
func (r *Repository) SetQuoteStatus(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, status enums.QuoteStatus, from ...enums.QuoteStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	qb := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids)
	if len(from) > 0 {
		qb = qb.Where("status IN ?", from)
	}
	res := qb.Update("status", status)
	return res.RowsAffected, res.Error
}
