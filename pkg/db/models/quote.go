package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

// Quote mirrors a remote estimate for picking.
type Quote struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID         uuid.UUID         `gorm:"column:tenant_id;type:uuid;not null"`
	RemoteQuoteID    string            `gorm:"column:remote_quote_id;not null"`
	QuoteNumber      string            `gorm:"column:quote_number;not null;default:''"`
	CustomerRemoteID string            `gorm:"column:customer_remote_id;not null"`
	CustomerName     string            `gorm:"column:customer_name;not null"`
	Status           enums.QuoteStatus `gorm:"column:status;type:quote_status;not null;default:'pending'"`
	TotalAmount      decimal.Decimal   `gorm:"column:total_amount;type:numeric(14,2);not null"`
	SyncToken        *string           `gorm:"column:sync_token"`
	PickerNote       *string           `gorm:"column:picker_note"`
	AdminNote        *string           `gorm:"column:admin_note"`
	RemoteUpdatedAt  time.Time         `gorm:"column:remote_updated_at;not null"`
	Items            []QuoteItem       `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
