package tenants

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

// Repository handles tenant persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to tenant operations.
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

// Create persists a new tenant row.
func (r *Repository) Create(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant is required")
	}
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(tenant).Error
}

// FindByID loads a tenant by its UUID. The token blob is never selected.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).
		Omit("token_blob").
		Where("id = ?", id).
		First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByRemoteAccount resolves the tenant connected to a provider account
// (QBO realm id or Xero tenant id).
func (r *Repository) FindByRemoteAccount(ctx context.Context, provider enums.Provider, remoteAccountID string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).
		Omit("token_blob").
		Where("provider = ? AND remote_account_id = ? AND token_blob IS NOT NULL", provider, remoteAccountID).
		First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

// ListConnected returns every tenant with a live provider connection.
func (r *Repository) ListConnected(ctx context.Context) ([]models.Tenant, error) {
	var rows []models.Tenant
	err := r.db.WithContext(ctx).
		Omit("token_blob").
		Where("provider IS NOT NULL AND token_blob IS NOT NULL AND token_blob <> ''").
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
