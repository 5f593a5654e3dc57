package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

// Tenant is one customer business. It holds at most one provider connection;
// TokenBlob is the encrypted TokenData for that connection.
type Tenant struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string          `gorm:"column:name;not null"`
	Provider        *enums.Provider `gorm:"column:provider;type:accounting_provider"`
	RemoteAccountID *string         `gorm:"column:remote_account_id"`
	TokenBlob       *string         `gorm:"column:token_blob"`
	TokenUpdatedAt  *time.Time      `gorm:"column:token_updated_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// IsConnected reports whether the tenant has a live provider connection.
func (t *Tenant) IsConnected() bool {
	return t != nil && t.Provider != nil && t.TokenBlob != nil && *t.TokenBlob != ""
}
