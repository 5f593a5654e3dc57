package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

// QuoteItem is one product line of a quote. Rows are replaced wholesale on every
// reconciliation so they carry no timestamps of their own.
type QuoteItem struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	QuoteID       uuid.UUID           `gorm:"column:quote_id;type:uuid;not null"`
	ProductID     uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	RemoteItemID  string              `gorm:"column:remote_item_id;not null"`
	Name          string              `gorm:"column:name;not null"`
	SKU           string              `gorm:"column:sku;not null"`
	OriginalQty   int                 `gorm:"column:original_qty;not null"`
	PickingQty    int                 `gorm:"column:picking_qty;not null"`
	PickingStatus enums.PickingStatus `gorm:"column:picking_status;type:picking_status;not null"`
	UnitPrice     decimal.Decimal     `gorm:"column:unit_price;type:numeric(14,4);not null"`
	TaxCodeRef    *string             `gorm:"column:tax_code_ref"`
}
