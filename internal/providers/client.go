package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
)

// ErrStaleObject reports a write rejected because the remote object changed
// since it was read.
var ErrStaleObject = errors.New("remote object changed since it was read")

// Client is the provider-neutral request surface. Implementations do not cache
// or retry.
type Client interface {
	Provider() enums.Provider
	ListCustomers(ctx context.Context, token tokens.TokenData) ([]RemoteCustomer, error)
	FindCustomersByName(ctx context.Context, token tokens.TokenData, name string) ([]RemoteCustomer, error)
	ListOpenQuotes(ctx context.Context, token tokens.TokenData, customerID string) ([]RemoteQuote, error)
	FetchQuote(ctx context.Context, token tokens.TokenData, id string) (*RemoteQuote, error)
	// UpdateQuoteQuantities writes picked quantities, keyed by remote item id,
	// back onto quote. quote must come from FetchQuote.
	UpdateQuoteQuantities(ctx context.Context, token tokens.TokenData, quote *RemoteQuote, picked map[string]decimal.Decimal) (*RemoteQuote, error)
	ListItems(ctx context.Context, token tokens.TokenData) ([]RemoteItem, error)
	FetchItem(ctx context.Context, token tokens.TokenData, id string) (*RemoteItem, error)
	ItemsByIDs(ctx context.Context, token tokens.TokenData, ids []string) ([]RemoteItem, error)
}

// TokenSource hands out valid provider credentials.
type TokenSource interface {
	GetValidToken(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (tokens.TokenData, error)
}

// Registry resolves the client for a provider.
type Registry map[enums.Provider]Client

// NewRegistry indexes clients by provider.
func NewRegistry(clients ...Client) Registry {
	reg := Registry{}
	for _, c := range clients {
		reg[c.Provider()] = c
	}
	return reg
}

// For returns the client for provider.
func (r Registry) For(provider enums.Provider) (Client, error) {
	c, ok := r[provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no client for provider %q", provider))
	}
	return c, nil
}

func requireProvider(token tokens.TokenData, provider enums.Provider) error {
	if token.Provider != provider {
		return pkgerrors.New(pkgerrors.CodeReauthRequired, fmt.Sprintf("credential is for %q, not %q", token.Provider, provider))
	}
	return nil
}

// distribute spreads picked totals per item over the lines carrying that item,
// filling each line up to its ordered quantity in order. Any remainder lands on
// the last line for the item.
func distribute(lines []RemoteLine, picked map[string]decimal.Decimal) map[int]decimal.Decimal {
	remaining := make(map[string]decimal.Decimal, len(picked))
	for k, v := range picked {
		remaining[k] = v
	}
	lastIndex := map[string]int{}
	for i, line := range lines {
		if line.Kind == LineKindItem {
			lastIndex[line.RemoteItemID] = i
		}
	}

	out := map[int]decimal.Decimal{}
	for i, line := range lines {
		if line.Kind != LineKindItem {
			continue
		}
		left, ok := remaining[line.RemoteItemID]
		if !ok {
			continue
		}
		qty := decimal.Min(left, line.Qty)
		if lastIndex[line.RemoteItemID] == i {
			qty = left
		}
		if qty.IsNegative() {
			qty = decimal.Zero
		}
		out[i] = qty
		remaining[line.RemoteItemID] = left.Sub(qty)
	}
	return out
}
