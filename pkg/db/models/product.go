package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry keyed by (tenant, sku) and linked to the remote item.
type Product struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID     uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null"`
	SKU          string          `gorm:"column:sku;not null"`
	Name         string          `gorm:"column:name;not null"`
	RemoteItemID *string         `gorm:"column:remote_item_id"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(14,4);not null"`
	QtyOnHand    decimal.Decimal `gorm:"column:qty_on_hand;type:numeric(14,4);not null"`
	TaxCodeRef   *string         `gorm:"column:tax_code_ref"`
	IsArchived   bool            `gorm:"column:is_archived;not null;default:false"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
