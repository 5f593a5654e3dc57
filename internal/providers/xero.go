package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	"github.com/angelmondragon/pickflow-backend/pkg/xero"
)

// Quotes in these statuses are still open for picking.
var xeroOpenQuoteStatuses = []string{xero.QuoteStatusDraft, xero.QuoteStatusSent}

type xeroAPI interface {
	Contacts(ctx context.Context, auth xero.Auth, where string) ([]xero.Contact, error)
	Quotes(ctx context.Context, auth xero.Auth, contactID, status string) ([]xero.Quote, error)
	Quote(ctx context.Context, auth xero.Auth, id string) (*xero.Quote, error)
	UpdateQuote(ctx context.Context, auth xero.Auth, quote xero.Quote) (*xero.Quote, error)
	Items(ctx context.Context, auth xero.Auth, where string) ([]xero.Item, error)
	Item(ctx context.Context, auth xero.Auth, id string) (*xero.Item, error)
}

// Xero adapts the Xero accounting client.
type Xero struct {
	api xeroAPI
}

func NewXero(api xeroAPI) *Xero {
	return &Xero{api: api}
}

func (x *Xero) Provider() enums.Provider { return enums.ProviderXero }

func (x *Xero) auth(token tokens.TokenData) (xero.Auth, error) {
	if err := requireProvider(token, enums.ProviderXero); err != nil {
		return xero.Auth{}, err
	}
	return xero.Auth{AccessToken: token.AccessToken(), TenantID: token.RemoteAccountID()}, nil
}

func (x *Xero) ListCustomers(ctx context.Context, token tokens.TokenData) ([]RemoteCustomer, error) {
	return x.contacts(ctx, token, `ContactStatus=="ACTIVE"&&IsCustomer==true`)
}

func (x *Xero) FindCustomersByName(ctx context.Context, token tokens.TokenData, name string) ([]RemoteCustomer, error) {
	return x.contacts(ctx, token, fmt.Sprintf(`Name==%q`, name))
}

func (x *Xero) contacts(ctx context.Context, token tokens.TokenData, where string) ([]RemoteCustomer, error) {
	auth, err := x.auth(token)
	if err != nil {
		return nil, err
	}
	contacts, err := x.api.Contacts(ctx, auth, where)
	if err != nil {
		return nil, err
	}
	out := make([]RemoteCustomer, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, RemoteCustomer{ID: c.ContactID, Name: c.Name, Active: c.ContactStatus == "" || c.ContactStatus == "ACTIVE"})
	}
	return out, nil
}

func (x *Xero) ListOpenQuotes(ctx context.Context, token tokens.TokenData, customerID string) ([]RemoteQuote, error) {
	auth, err := x.auth(token)
	if err != nil {
		return nil, err
	}
	var raw []xero.Quote
	for _, status := range xeroOpenQuoteStatuses {
		quotes, err := x.api.Quotes(ctx, auth, customerID, status)
		if err != nil {
			return nil, err
		}
		raw = append(raw, quotes...)
	}
	codes, err := x.itemIDsByCode(ctx, auth, raw...)
	if err != nil {
		return nil, err
	}
	out := make([]RemoteQuote, 0, len(raw))
	for i := range raw {
		out = append(out, xeroQuote(&raw[i], codes))
	}
	return out, nil
}

func (x *Xero) FetchQuote(ctx context.Context, token tokens.TokenData, id string) (*RemoteQuote, error) {
	auth, err := x.auth(token)
	if err != nil {
		return nil, err
	}
	q, err := x.api.Quote(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	codes, err := x.itemIDsByCode(ctx, auth, *q)
	if err != nil {
		return nil, err
	}
	out := xeroQuote(q, codes)
	return &out, nil
}

// UpdateQuoteQuantities rewrites line quantities. Xero has no optimistic
// concurrency token, so this never reports ErrStaleObject.
func (x *Xero) UpdateQuoteQuantities(ctx context.Context, token tokens.TokenData, quote *RemoteQuote, picked map[string]decimal.Decimal) (*RemoteQuote, error) {
	auth, err := x.auth(token)
	if err != nil {
		return nil, err
	}
	src, ok := quote.source.(*xero.Quote)
	if !ok || src == nil {
		return nil, fmt.Errorf("quote %s was not fetched from xero", quote.ID)
	}

	next := xero.Quote{
		QuoteID:   src.QuoteID,
		Contact:   xero.Contact{ContactID: src.Contact.ContactID},
		Date:      src.Date,
		LineItems: append([]xero.LineItem(nil), src.LineItems...),
	}
	for i, qty := range distribute(quote.Lines, picked) {
		line := next.LineItems[i]
		line.Quantity = qty
		line.LineAmount = nil
		next.LineItems[i] = line
	}

	updated, err := x.api.UpdateQuote(ctx, auth, next)
	if err != nil {
		return nil, err
	}
	codes, err := x.itemIDsByCode(ctx, auth, *updated)
	if err != nil {
		return nil, err
	}
	out := xeroQuote(updated, codes)
	return &out, nil
}

func (x *Xero) ListItems(ctx context.Context, token tokens.TokenData) ([]RemoteItem, error) {
	return x.items(ctx, token, "")
}

func (x *Xero) ItemsByIDs(ctx context.Context, token tokens.TokenData, ids []string) ([]RemoteItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(ids))
	for _, id := range ids {
		clauses = append(clauses, fmt.Sprintf(`ItemID==Guid(%q)`, id))
	}
	return x.items(ctx, token, strings.Join(clauses, " OR "))
}

func (x *Xero) items(ctx context.Context, token tokens.TokenData, where string) ([]RemoteItem, error) {
	auth, err := x.auth(token)
	if err != nil {
		return nil, err
	}
	items, err := x.api.Items(ctx, auth, where)
	if err != nil {
		return nil, err
	}
	out := make([]RemoteItem, 0, len(items))
	for i := range items {
		out = append(out, xeroItem(&items[i]))
	}
	return out, nil
}

func (x *Xero) FetchItem(ctx context.Context, token tokens.TokenData, id string) (*RemoteItem, error) {
	auth, err := x.auth(token)
	if err != nil {
		return nil, err
	}
	item, err := x.api.Item(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	out := xeroItem(item)
	return &out, nil
}

// itemIDsByCode resolves item codes for lines that arrived without an embedded
// item reference.
func (x *Xero) itemIDsByCode(ctx context.Context, auth xero.Auth, quotes ...xero.Quote) (map[string]xero.Item, error) {
	seen := map[string]struct{}{}
	var clauses []string
	for _, q := range quotes {
		for _, l := range q.LineItems {
			if l.ItemCode == "" || (l.Item != nil && l.Item.ItemID != "") {
				continue
			}
			if _, ok := seen[l.ItemCode]; ok {
				continue
			}
			seen[l.ItemCode] = struct{}{}
			clauses = append(clauses, fmt.Sprintf(`Code==%q`, l.ItemCode))
		}
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	items, err := x.api.Items(ctx, auth, strings.Join(clauses, " OR "))
	if err != nil {
		return nil, err
	}
	out := make(map[string]xero.Item, len(items))
	for _, item := range items {
		out[item.Code] = item
	}
	return out, nil
}

func xeroQuote(q *xero.Quote, byCode map[string]xero.Item) RemoteQuote {
	lines := make([]RemoteLine, 0, len(q.LineItems))
	for _, l := range q.LineItems {
		line := RemoteLine{
			LineID:      l.LineItemID,
			Kind:        LineKindOther,
			Description: l.Description,
			Qty:         l.Quantity,
			UnitPrice:   l.UnitAmount,
			TaxCodeRef:  l.TaxType,
		}
		switch {
		case l.Item != nil && l.Item.ItemID != "":
			line.Kind = LineKindItem
			line.RemoteItemID = l.Item.ItemID
			line.ItemName = l.Item.Name
		case l.ItemCode != "":
			line.Kind = LineKindItem
			if item, ok := byCode[l.ItemCode]; ok {
				line.RemoteItemID = item.ItemID
				line.ItemName = item.Name
			} else {
				line.ItemName = l.ItemCode
			}
		}
		lines = append(lines, line)
	}
	return RemoteQuote{
		ID:           q.QuoteID,
		Number:       q.QuoteNumber,
		Status:       q.Status,
		CustomerID:   q.Contact.ContactID,
		CustomerName: q.Contact.Name,
		Total:        q.Total,
		UpdatedAt:    q.UpdatedDateUTC.Time,
		Lines:        lines,
		source:       q,
	}
}

func xeroItem(item *xero.Item) RemoteItem {
	out := RemoteItem{
		ID:        item.ItemID,
		SKU:       item.Code,
		Name:      item.Name,
		Active:    item.IsSold,
		UpdatedAt: item.UpdatedDateUTC.Time,
	}
	if item.SalesDetails != nil {
		out.Price = item.SalesDetails.UnitPrice
		out.TaxCodeRef = item.SalesDetails.TaxType
	}
	if item.QuantityOnHand != nil {
		out.QtyOnHand = *item.QuantityOnHand
	}
	return out
}
