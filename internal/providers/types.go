package providers

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineKind classifies a remote quote line.
type LineKind string

const (
	LineKindItem     LineKind = "item"
	LineKindSubtotal LineKind = "subtotal"
	LineKindOther    LineKind = "other"
)

type RemoteCustomer struct {
	ID     string
	Name   string
	Active bool
}

type RemoteLine struct {
	LineID       string
	Kind         LineKind
	RemoteItemID string
	ItemName     string
	Description  string
	Qty          decimal.Decimal
	UnitPrice    decimal.Decimal
	TaxCodeRef   string
}

// DisplayName is the best human label for the line's product.
func (l RemoteLine) DisplayName() string {
	if l.ItemName != "" {
		return l.ItemName
	}
	if l.Description != "" {
		return l.Description
	}
	return l.RemoteItemID
}

// RemoteQuote is a provider estimate or quote in canonical shape.
type RemoteQuote struct {
	ID           string
	Number       string
	SyncToken    string
	Status       string
	CustomerID   string
	CustomerName string
	Total        decimal.Decimal
	UpdatedAt    time.Time
	Lines        []RemoteLine

	// source is the provider payload the quote was decoded from, kept so writes
	// can round-trip fields this shape does not model.
	source any
}

type RemoteItem struct {
	ID         string
	SKU        string
	Name       string
	Active     bool
	Price      decimal.Decimal
	QtyOnHand  decimal.Decimal
	TaxCodeRef string
	UpdatedAt  time.Time
}
