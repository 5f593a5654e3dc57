package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/pagination"
)

// ProductDTO is the catalog entry returned to clients.
type ProductDTO struct {
	ID           uuid.UUID       `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	RemoteItemID *string         `json:"remote_item_id,omitempty"`
	Price        decimal.Decimal `json:"price"`
	QtyOnHand    decimal.Decimal `json:"qty_on_hand"`
	TaxCodeRef   *string         `json:"tax_code_ref,omitempty"`
	IsArchived   bool            `json:"is_archived"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProductListResult is one cursor page of products.
type ProductListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// ListProductsInput captures the list filters.
type ListProductsInput struct {
	TenantID        uuid.UUID
	IncludeArchived bool
	Search          string
	Pagination      pagination.Params
}

// ApplyAction names what an item upsert did to the catalog.
type ApplyAction string

const (
	ActionCreated  ApplyAction = "created"
	ActionLinked   ApplyAction = "linked"
	ActionUpdated  ApplyAction = "updated"
	ActionArchived ApplyAction = "archived"
	ActionIgnored  ApplyAction = "ignored"
)

// ApplyOutcome reports the result of applying one remote item.
type ApplyOutcome struct {
	ProductID   uuid.UUID
	Action      ApplyAction
	SKUConflict bool
}

// CatalogResult tallies a catalog sync or refresh.
type CatalogResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Archived  int `json:"archived"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}

func (r *CatalogResult) record(outcome ApplyOutcome) {
	switch outcome.Action {
	case ActionCreated:
		r.Created++
	case ActionLinked, ActionUpdated:
		r.Updated++
	case ActionArchived:
		r.Archived++
	}
	if outcome.SKUConflict {
		r.Conflicts++
	}
}

// FromModel maps a product row to its DTO.
func FromModel(p models.Product) ProductDTO {
	return ProductDTO{
		ID:           p.ID,
		SKU:          p.SKU,
		Name:         p.Name,
		RemoteItemID: p.RemoteItemID,
		Price:        p.Price,
		QtyOnHand:    p.QtyOnHand,
		TaxCodeRef:   p.TaxCodeRef,
		IsArchived:   p.IsArchived,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
