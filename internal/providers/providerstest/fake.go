// Package providerstest provides an in-memory providers.Client for tests.
package providerstest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
)

// Update records one UpdateQuoteQuantities call.
type Update struct {
	QuoteID string
	Picked  map[string]decimal.Decimal
}

// Fake serves canned provider data and records every call. It is safe for
// concurrent use once populated.
type Fake struct {
	Kind enums.Provider

	Customers  []providers.RemoteCustomer
	OpenQuotes map[string][]providers.RemoteQuote
	Quotes     map[string]*providers.RemoteQuote
	Items      map[string]providers.RemoteItem

	ListCustomersErr error
	ListQuotesErr    map[string]error
	FetchQuoteErr    map[string]error
	ItemsByIDsErr    error

	// UpdateErrs are returned by successive UpdateQuoteQuantities calls.
	UpdateErrs []error

	mu             sync.Mutex
	fetchCalls     map[string]int
	updates        []Update
	itemsByIDsArgs [][]string
	inflight       atomic.Int32
	maxInflight    atomic.Int32
}

// New returns an empty fake for provider.
func New(kind enums.Provider) *Fake {
	return &Fake{
		Kind:          kind,
		OpenQuotes:    map[string][]providers.RemoteQuote{},
		Quotes:        map[string]*providers.RemoteQuote{},
		Items:         map[string]providers.RemoteItem{},
		ListQuotesErr: map[string]error{},
		FetchQuoteErr: map[string]error{},
		fetchCalls:    map[string]int{},
	}
}

// AddQuote registers quote as open for its customer and fetchable by id.
func (f *Fake) AddQuote(quote providers.RemoteQuote) {
	f.OpenQuotes[quote.CustomerID] = append(f.OpenQuotes[quote.CustomerID], quote)
	q := quote
	f.Quotes[quote.ID] = &q
}

func (f *Fake) Provider() enums.Provider { return f.Kind }

func (f *Fake) ListCustomers(ctx context.Context, token tokens.TokenData) ([]providers.RemoteCustomer, error) {
	if f.ListCustomersErr != nil {
		return nil, f.ListCustomersErr
	}
	return append([]providers.RemoteCustomer(nil), f.Customers...), nil
}

func (f *Fake) FindCustomersByName(ctx context.Context, token tokens.TokenData, name string) ([]providers.RemoteCustomer, error) {
	var out []providers.RemoteCustomer
	for _, c := range f.Customers {
		if strings.EqualFold(c.Name, name) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *Fake) ListOpenQuotes(ctx context.Context, token tokens.TokenData, customerID string) ([]providers.RemoteQuote, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.maxInflight.Load()
		if n <= peak || f.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}
	if err := f.ListQuotesErr[customerID]; err != nil {
		return nil, err
	}
	return append([]providers.RemoteQuote(nil), f.OpenQuotes[customerID]...), nil
}

func (f *Fake) FetchQuote(ctx context.Context, token tokens.TokenData, id string) (*providers.RemoteQuote, error) {
	f.mu.Lock()
	f.fetchCalls[id]++
	f.mu.Unlock()

	if err := f.FetchQuoteErr[id]; err != nil {
		return nil, err
	}
	q, ok := f.Quotes[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("quote %s not found", id))
	}
	clone := *q
	clone.Lines = append([]providers.RemoteLine(nil), q.Lines...)
	return &clone, nil
}

func (f *Fake) UpdateQuoteQuantities(ctx context.Context, token tokens.TokenData, quote *providers.RemoteQuote, picked map[string]decimal.Decimal) (*providers.RemoteQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, Update{QuoteID: quote.ID, Picked: picked})
	if len(f.UpdateErrs) > 0 {
		err := f.UpdateErrs[0]
		f.UpdateErrs = f.UpdateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return quote, nil
}

func (f *Fake) ListItems(ctx context.Context, token tokens.TokenData) ([]providers.RemoteItem, error) {
	out := make([]providers.RemoteItem, 0, len(f.Items))
	for _, item := range f.Items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) FetchItem(ctx context.Context, token tokens.TokenData, id string) (*providers.RemoteItem, error) {
	item, ok := f.Items[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %s not found", id))
	}
	return &item, nil
}

func (f *Fake) ItemsByIDs(ctx context.Context, token tokens.TokenData, ids []string) ([]providers.RemoteItem, error) {
	f.mu.Lock()
	f.itemsByIDsArgs = append(f.itemsByIDsArgs, append([]string(nil), ids...))
	f.mu.Unlock()
	if f.ItemsByIDsErr != nil {
		return nil, f.ItemsByIDsErr
	}
	var out []providers.RemoteItem
	for _, id := range ids {
		if item, ok := f.Items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// FetchCalls reports how often FetchQuote was called for id.
func (f *Fake) FetchCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls[id]
}

// TotalFetchCalls reports every FetchQuote call.
func (f *Fake) TotalFetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.fetchCalls {
		total += n
	}
	return total
}

// Updates returns the recorded write-backs.
func (f *Fake) Updates() []Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Update(nil), f.updates...)
}

// ItemsByIDsCalls returns the id lists passed to ItemsByIDs.
func (f *Fake) ItemsByIDsCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.itemsByIDsArgs...)
}

// MaxConcurrentQuoteLists is the peak number of overlapping ListOpenQuotes calls.
func (f *Fake) MaxConcurrentQuoteLists() int {
	return int(f.maxInflight.Load())
}

// Tokens is a providers.TokenSource returning a fixed credential or error.
type Tokens struct {
	Token tokens.TokenData
	Err   error
	calls atomic.Int32
}

// QBOTokens returns a token source holding a QBO credential for realm.
func QBOTokens(realm string) *Tokens {
	return &Tokens{Token: tokens.TokenData{
		Provider: enums.ProviderQBO,
		QBO:      &tokens.QBOToken{AccessToken: "access", RefreshToken: "refresh", RealmID: realm, ExpiresIn: 3600},
	}}
}

func (t *Tokens) GetValidToken(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (tokens.TokenData, error) {
	t.calls.Add(1)
	if t.Err != nil {
		return tokens.TokenData{}, t.Err
	}
	return t.Token, nil
}

// Calls reports how many tokens were requested.
func (t *Tokens) Calls() int {
	return int(t.calls.Load())
}
