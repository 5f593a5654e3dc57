package xero

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Auth identifies the organisation and bearer token for one call.
type Auth struct {
	AccessToken string
	TenantID    string
}

// Connection is one organisation the token has been granted access to.
type Connection struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	TenantType string `json:"tenantType"`
	TenantName string `json:"tenantName"`
}

type Contact struct {
	ContactID     string `json:"ContactID"`
	Name          string `json:"Name"`
	ContactStatus string `json:"ContactStatus,omitempty"`
	IsCustomer    bool   `json:"IsCustomer,omitempty"`
}

type ItemDetails struct {
	UnitPrice   decimal.Decimal `json:"UnitPrice"`
	TaxType     string          `json:"TaxType,omitempty"`
	AccountCode string          `json:"AccountCode,omitempty"`
}

type Item struct {
	ItemID               string           `json:"ItemID"`
	Code                 string           `json:"Code"`
	Name                 string           `json:"Name"`
	IsSold               bool             `json:"IsSold"`
	IsTrackedAsInventory bool             `json:"IsTrackedAsInventory"`
	QuantityOnHand       *decimal.Decimal `json:"QuantityOnHand,omitempty"`
	SalesDetails         *ItemDetails     `json:"SalesDetails,omitempty"`
	UpdatedDateUTC       Date             `json:"UpdatedDateUTC"`
}

// LineItemRef is the item summary Xero embeds in quote lines.
type LineItemRef struct {
	ItemID string `json:"ItemID"`
	Code   string `json:"Code,omitempty"`
	Name   string `json:"Name,omitempty"`
}

type LineItem struct {
	LineItemID  string           `json:"LineItemID,omitempty"`
	ItemCode    string           `json:"ItemCode,omitempty"`
	Item        *LineItemRef     `json:"Item,omitempty"`
	Description string           `json:"Description,omitempty"`
	Quantity    decimal.Decimal  `json:"Quantity"`
	UnitAmount  decimal.Decimal  `json:"UnitAmount"`
	LineAmount  *decimal.Decimal `json:"LineAmount,omitempty"`
	TaxType     string           `json:"TaxType,omitempty"`
}

const (
	QuoteStatusDraft = "DRAFT"
	QuoteStatusSent  = "SENT"
)

type Quote struct {
	QuoteID        string          `json:"QuoteID"`
	QuoteNumber    string          `json:"QuoteNumber,omitempty"`
	Status         string          `json:"Status,omitempty"`
	Contact        Contact         `json:"Contact"`
	Date           *Date           `json:"Date,omitempty"`
	Total          decimal.Decimal `json:"Total"`
	LineItems      []LineItem      `json:"LineItems"`
	UpdatedDateUTC Date            `json:"UpdatedDateUTC"`
}

// Date decodes Xero's "/Date(1573755038314+0000)/" timestamps as well as plain
// ISO values.
type Date struct {
	time.Time
}

var msDatePattern = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

func (d *Date) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		d.Time = time.Time{}
		return nil
	}
	if m := msDatePattern.FindStringSubmatch(raw); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return fmt.Errorf("parse xero date %q: %w", raw, err)
		}
		d.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse xero date %q", raw)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf(`"/Date(%d+0000)/"`, d.UnixMilli())), nil
}
