package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	"github.com/angelmondragon/pickflow-backend/pkg/qbo"
)

type qboAPI interface {
	QueryCustomers(ctx context.Context, auth qbo.Auth, where string) ([]qbo.Customer, error)
	QueryEstimates(ctx context.Context, auth qbo.Auth, where string) ([]qbo.Estimate, error)
	QueryItems(ctx context.Context, auth qbo.Auth, where string) ([]qbo.Item, error)
	GetEstimate(ctx context.Context, auth qbo.Auth, id string) (*qbo.Estimate, error)
	GetItem(ctx context.Context, auth qbo.Auth, id string) (*qbo.Item, error)
	UpdateEstimate(ctx context.Context, auth qbo.Auth, estimate qbo.Estimate) (*qbo.Estimate, error)
}

// QBO adapts the QuickBooks Online client.
type QBO struct {
	api qboAPI
}

func NewQBO(api qboAPI) *QBO {
	return &QBO{api: api}
}

func (q *QBO) Provider() enums.Provider { return enums.ProviderQBO }

func (q *QBO) auth(token tokens.TokenData) (qbo.Auth, error) {
	if err := requireProvider(token, enums.ProviderQBO); err != nil {
		return qbo.Auth{}, err
	}
	return qbo.Auth{AccessToken: token.AccessToken(), RealmID: token.RemoteAccountID()}, nil
}

func (q *QBO) ListCustomers(ctx context.Context, token tokens.TokenData) ([]RemoteCustomer, error) {
	return q.queryCustomers(ctx, token, qbo.Equals("Active", "true"))
}

func (q *QBO) FindCustomersByName(ctx context.Context, token tokens.TokenData, name string) ([]RemoteCustomer, error) {
	return q.queryCustomers(ctx, token, qbo.Equals("DisplayName", name))
}

func (q *QBO) queryCustomers(ctx context.Context, token tokens.TokenData, where string) ([]RemoteCustomer, error) {
	auth, err := q.auth(token)
	if err != nil {
		return nil, err
	}
	customers, err := q.api.QueryCustomers(ctx, auth, where)
	if err != nil {
		return nil, err
	}
	out := make([]RemoteCustomer, 0, len(customers))
	for _, c := range customers {
		out = append(out, RemoteCustomer{ID: c.ID, Name: c.DisplayName, Active: c.Active})
	}
	return out, nil
}

func (q *QBO) ListOpenQuotes(ctx context.Context, token tokens.TokenData, customerID string) ([]RemoteQuote, error) {
	auth, err := q.auth(token)
	if err != nil {
		return nil, err
	}
	estimates, err := q.api.QueryEstimates(ctx, auth, qbo.And(
		qbo.Equals("CustomerRef", customerID),
		qbo.Equals("TxnStatus", qbo.EstimateStatusPending),
	))
	if err != nil {
		return nil, err
	}
	out := make([]RemoteQuote, 0, len(estimates))
	for i := range estimates {
		out = append(out, qboQuote(&estimates[i]))
	}
	return out, nil
}

func (q *QBO) FetchQuote(ctx context.Context, token tokens.TokenData, id string) (*RemoteQuote, error) {
	auth, err := q.auth(token)
	if err != nil {
		return nil, err
	}
	est, err := q.api.GetEstimate(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	quote := qboQuote(est)
	return &quote, nil
}

func (q *QBO) UpdateQuoteQuantities(ctx context.Context, token tokens.TokenData, quote *RemoteQuote, picked map[string]decimal.Decimal) (*RemoteQuote, error) {
	auth, err := q.auth(token)
	if err != nil {
		return nil, err
	}
	est, ok := quote.source.(*qbo.Estimate)
	if !ok || est == nil {
		return nil, fmt.Errorf("quote %s was not fetched from qbo", quote.ID)
	}

	next := *est
	next.Line = append([]qbo.Line(nil), est.Line...)
	for i, qty := range distribute(quote.Lines, picked) {
		line := next.Line[i]
		detail := *line.SalesItemLineDetail
		unit := line.Amount
		if detail.UnitPrice != nil {
			unit = *detail.UnitPrice
		} else if !detail.Qty.IsZero() {
			unit = line.Amount.Div(detail.Qty)
		}
		detail.Qty = qty
		line.SalesItemLineDetail = &detail
		line.Amount = unit.Mul(qty).Round(2)
		next.Line[i] = line
	}

	updated, err := q.api.UpdateEstimate(ctx, auth, next)
	if err != nil {
		if errors.Is(err, qbo.ErrStaleObject) {
			return nil, fmt.Errorf("%w: %w", ErrStaleObject, err)
		}
		return nil, err
	}
	result := qboQuote(updated)
	return &result, nil
}

func (q *QBO) ListItems(ctx context.Context, token tokens.TokenData) ([]RemoteItem, error) {
	return q.queryItems(ctx, token, "Active IN (true, false)")
}

func (q *QBO) ItemsByIDs(ctx context.Context, token tokens.TokenData, ids []string) ([]RemoteItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return q.queryItems(ctx, token, qbo.And(qbo.In("Id", ids), "Active IN (true, false)"))
}

func (q *QBO) queryItems(ctx context.Context, token tokens.TokenData, where string) ([]RemoteItem, error) {
	auth, err := q.auth(token)
	if err != nil {
		return nil, err
	}
	items, err := q.api.QueryItems(ctx, auth, where)
	if err != nil {
		return nil, err
	}
	out := make([]RemoteItem, 0, len(items))
	for i := range items {
		out = append(out, qboItem(&items[i]))
	}
	return out, nil
}

func (q *QBO) FetchItem(ctx context.Context, token tokens.TokenData, id string) (*RemoteItem, error) {
	auth, err := q.auth(token)
	if err != nil {
		return nil, err
	}
	item, err := q.api.GetItem(ctx, auth, id)
	if err != nil {
		return nil, err
	}
	out := qboItem(item)
	return &out, nil
}

func qboQuote(est *qbo.Estimate) RemoteQuote {
	lines := make([]RemoteLine, 0, len(est.Line))
	for _, l := range est.Line {
		line := RemoteLine{LineID: l.ID, Description: l.Description, Kind: LineKindOther}
		switch {
		case l.DetailType == qbo.LineDetailSubTotal:
			line.Kind = LineKindSubtotal
		case l.DetailType == qbo.LineDetailSalesItem && l.SalesItemLineDetail != nil:
			d := l.SalesItemLineDetail
			line.Kind = LineKindItem
			line.RemoteItemID = d.ItemRef.Value
			line.ItemName = d.ItemRef.Name
			line.Qty = d.Qty
			if d.UnitPrice != nil {
				line.UnitPrice = *d.UnitPrice
			} else if !d.Qty.IsZero() {
				line.UnitPrice = l.Amount.Div(d.Qty)
			}
			if d.TaxCodeRef != nil {
				line.TaxCodeRef = d.TaxCodeRef.Value
			}
		}
		lines = append(lines, line)
	}
	return RemoteQuote{
		ID:           est.ID,
		Number:       est.DocNumber,
		SyncToken:    est.SyncToken,
		Status:       est.TxnStatus,
		CustomerID:   est.CustomerRef.Value,
		CustomerName: est.CustomerRef.Name,
		Total:        est.TotalAmt,
		UpdatedAt:    est.MetaData.LastUpdatedTime,
		Lines:        lines,
		source:       est,
	}
}

func qboItem(item *qbo.Item) RemoteItem {
	out := RemoteItem{
		ID:        item.ID,
		SKU:       item.Sku,
		Name:      item.Name,
		Active:    item.Active,
		Price:     item.UnitPrice,
		QtyOnHand: item.QtyOnHand,
		UpdatedAt: item.MetaData.LastUpdatedTime,
	}
	if item.SalesTaxCodeRef != nil {
		out.TaxCodeRef = item.SalesTaxCodeRef.Value
	}
	return out
}
