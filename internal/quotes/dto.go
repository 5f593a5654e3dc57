package quotes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	"github.com/angelmondragon/pickflow-backend/pkg/pagination"
)

type QuoteItemDTO struct {
	ID            uuid.UUID           `json:"id"`
	ProductID     uuid.UUID           `json:"product_id"`
	RemoteItemID  string              `json:"remote_item_id"`
	Name          string              `json:"name"`
	SKU           string              `json:"sku"`
	OriginalQty   int                 `json:"original_qty"`
	PickingQty    int                 `json:"picking_qty"`
	PickingStatus enums.PickingStatus `json:"picking_status"`
	UnitPrice     decimal.Decimal     `json:"unit_price"`
	TaxCodeRef    *string             `json:"tax_code_ref,omitempty"`
}

type QuoteDTO struct {
	ID               uuid.UUID         `json:"id"`
	RemoteQuoteID    string            `json:"remote_quote_id"`
	QuoteNumber      string            `json:"quote_number"`
	CustomerRemoteID string            `json:"customer_remote_id"`
	CustomerName     string            `json:"customer_name"`
	Status           enums.QuoteStatus `json:"status"`
	TotalAmount      decimal.Decimal   `json:"total_amount"`
	PickerNote       *string           `json:"picker_note,omitempty"`
	AdminNote        *string           `json:"admin_note,omitempty"`
	RemoteUpdatedAt  time.Time         `json:"remote_updated_at"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Items            []QuoteItemDTO    `json:"items,omitempty"`
}

type QuoteListResult struct {
	Quotes     []QuoteDTO `json:"quotes"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ListQuotesInput filters the quote list. An empty Statuses matches all.
type ListQuotesInput struct {
	TenantID   uuid.UUID
	Statuses   []enums.QuoteStatus
	Search     string
	Pagination pagination.Params
}

// NotesInput updates only the notes that are set.
type NotesInput struct {
	PickerNote *string `json:"picker_note"`
	AdminNote  *string `json:"admin_note"`
}

type PickingInput struct {
	PickingQty int                 `json:"picking_qty" validate:"gte=0"`
	Status     enums.PickingStatus `json:"picking_status" validate:"required"`
}

func itemFromModel(item models.QuoteItem) QuoteItemDTO {
	return QuoteItemDTO{
		ID:            item.ID,
		ProductID:     item.ProductID,
		RemoteItemID:  item.RemoteItemID,
		Name:          item.Name,
		SKU:           item.SKU,
		OriginalQty:   item.OriginalQty,
		PickingQty:    item.PickingQty,
		PickingStatus: item.PickingStatus,
		UnitPrice:     item.UnitPrice,
		TaxCodeRef:    item.TaxCodeRef,
	}
}

// FromModel maps a quote row, and any loaded items, to its DTO.
func FromModel(q models.Quote) QuoteDTO {
	dto := QuoteDTO{
		ID:               q.ID,
		RemoteQuoteID:    q.RemoteQuoteID,
		QuoteNumber:      q.QuoteNumber,
		CustomerRemoteID: q.CustomerRemoteID,
		CustomerName:     q.CustomerName,
		Status:           q.Status,
		TotalAmount:      q.TotalAmount,
		PickerNote:       q.PickerNote,
		AdminNote:        q.AdminNote,
		RemoteUpdatedAt:  q.RemoteUpdatedAt,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}
	for _, item := range q.Items {
		dto.Items = append(dto.Items, itemFromModel(item))
	}
	return dto
}
