package qbo

import (
	"time"

	"github.com/shopspring/decimal"
)

// Auth identifies the company file and bearer token for one call.
type Auth struct {
	AccessToken string
	RealmID     string
}

// Ref is a QBO entity reference.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// MetaData carries the server-side timestamps of an entity.
type MetaData struct {
	CreateTime      time.Time `json:"CreateTime"`
	LastUpdatedTime time.Time `json:"LastUpdatedTime"`
}

type Customer struct {
	ID          string   `json:"Id"`
	SyncToken   string   `json:"SyncToken"`
	DisplayName string   `json:"DisplayName"`
	CompanyName string   `json:"CompanyName,omitempty"`
	Active      bool     `json:"Active"`
	MetaData    MetaData `json:"MetaData"`
}

type Item struct {
	ID              string          `json:"Id"`
	SyncToken       string          `json:"SyncToken"`
	Name            string          `json:"Name"`
	Sku             string          `json:"Sku,omitempty"`
	Type            string          `json:"Type,omitempty"`
	Active          bool            `json:"Active"`
	UnitPrice       decimal.Decimal `json:"UnitPrice"`
	QtyOnHand       decimal.Decimal `json:"QtyOnHand"`
	SalesTaxCodeRef *Ref            `json:"SalesTaxCodeRef,omitempty"`
	MetaData        MetaData        `json:"MetaData"`
}

const (
	LineDetailSalesItem = "SalesItemLineDetail"
	LineDetailSubTotal  = "SubTotalLineDetail"
	LineDetailDiscount  = "DiscountLineDetail"
	LineDetailGroup     = "GroupLineDetail"

	// EstimateStatusPending is the TxnStatus of an open estimate.
	EstimateStatusPending = "Pending"
)

type SalesItemLineDetail struct {
	ItemRef    Ref              `json:"ItemRef"`
	Qty        decimal.Decimal  `json:"Qty"`
	UnitPrice  *decimal.Decimal `json:"UnitPrice,omitempty"`
	TaxCodeRef *Ref             `json:"TaxCodeRef,omitempty"`
}

type Line struct {
	ID                  string               `json:"Id,omitempty"`
	LineNum             int                  `json:"LineNum,omitempty"`
	Description         string               `json:"Description,omitempty"`
	Amount              decimal.Decimal      `json:"Amount"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

type Estimate struct {
	ID          string          `json:"Id"`
	SyncToken   string          `json:"SyncToken"`
	DocNumber   string          `json:"DocNumber,omitempty"`
	TxnStatus   string          `json:"TxnStatus,omitempty"`
	CustomerRef Ref             `json:"CustomerRef"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	Line        []Line          `json:"Line"`
	MetaData    MetaData        `json:"MetaData"`
	Sparse      bool            `json:"sparse,omitempty"`
}

// FaultError is one entry of a QBO fault response.
type FaultError struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
	Element string `json:"element,omitempty"`
}

type Fault struct {
	Type   string       `json:"type"`
	Errors []FaultError `json:"Error"`
}
