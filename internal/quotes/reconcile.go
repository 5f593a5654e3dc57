package quotes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/pkg/db"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
)

// QuoteFetchError reports a remote quote that cannot be imported. Nothing of
// the quote is written when it is returned.
type QuoteFetchError struct {
	QuoteID     string
	ProductName string
	Reason      string
}

func (e *QuoteFetchError) Error() string {
	return fmt.Sprintf("quote %s: product %q: %s", e.QuoteID, e.ProductName, e.Reason)
}

// ProductLine is one local product on a filtered quote.
type ProductLine struct {
	ProductID     uuid.UUID
	RemoteItemID  string
	Name          string
	SKU           string
	OriginalQty   int
	PickingQty    int
	PickingStatus enums.PickingStatus
	UnitPrice     decimal.Decimal
	TaxCodeRef    *string
}

// FilteredQuote is a remote quote reduced to resolved product lines.
type FilteredQuote struct {
	TenantID         uuid.UUID
	Provider         enums.Provider
	RemoteQuoteID    string
	QuoteNumber      string
	CustomerRemoteID string
	CustomerName     string
	TotalAmount      decimal.Decimal
	SyncToken        string
	RemoteUpdatedAt  time.Time
	// Products holds one entry per local product in first-seen line order.
	Products []ProductLine
}

// Product returns the line for a local product id.
func (f *FilteredQuote) Product(id uuid.UUID) (ProductLine, bool) {
	for _, p := range f.Products {
		if p.ProductID == id {
			return p, true
		}
	}
	return ProductLine{}, false
}

type productLookup interface {
	FindActiveByRemoteItemIDs(ctx context.Context, tenantID uuid.UUID, remoteItemIDs []string) ([]models.Product, error)
}

type ReconcilerParams struct {
	Products productLookup
	Repo     *Repository
	DB       *db.Client
	Location *time.Location
}

// Reconciler turns remote quotes into local quote rows.
type Reconciler struct {
	products productLookup
	repo     *Repository
	dbClient *db.Client
	loc      *time.Location
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("quote repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{products: params.Products, repo: params.Repo, dbClient: params.DB, loc: loc}, nil
}

// FilterRemoteQuote resolves every item line of raw to a local product. It
// fails with *QuoteFetchError naming the first line that cannot be resolved.
func (r *Reconciler) FilterRemoteQuote(ctx context.Context, raw *providers.RemoteQuote, tenantID uuid.UUID, provider enums.Provider) (*FilteredQuote, error) {
	if raw == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "remote quote is required")
	}

	var itemLines []providers.RemoteLine
	var remoteIDs []string
	for _, line := range raw.Lines {
		if line.Kind != providers.LineKindItem {
			continue
		}
		if line.RemoteItemID == "" {
			return nil, &QuoteFetchError{QuoteID: raw.ID, ProductName: line.DisplayName(), Reason: "line has no item reference"}
		}
		itemLines = append(itemLines, line)
		remoteIDs = append(remoteIDs, line.RemoteItemID)
	}

	rows, err := r.products.FindActiveByRemoteItemIDs(ctx, tenantID, remoteIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve quote products")
	}
	byRemote := make(map[string]models.Product, len(rows))
	for _, p := range rows {
		if p.RemoteItemID != nil {
			byRemote[*p.RemoteItemID] = p
		}
	}

	fq := &FilteredQuote{
		TenantID:         tenantID,
		Provider:         provider,
		RemoteQuoteID:    raw.ID,
		QuoteNumber:      raw.Number,
		CustomerRemoteID: raw.CustomerID,
		CustomerName:     raw.CustomerName,
		TotalAmount:      raw.Total,
		SyncToken:        raw.SyncToken,
		RemoteUpdatedAt:  raw.UpdatedAt.In(r.loc),
	}
	index := map[uuid.UUID]int{}
	var qtys []decimal.Decimal
	for _, line := range itemLines {
		product, ok := byRemote[line.RemoteItemID]
		if !ok {
			return nil, &QuoteFetchError{
				QuoteID:     raw.ID,
				ProductName: line.DisplayName(),
				Reason:      fmt.Sprintf("no active product linked to remote item %s", line.RemoteItemID),
			}
		}
		if line.Qty.IsNegative() {
			return nil, &QuoteFetchError{QuoteID: raw.ID, ProductName: line.DisplayName(), Reason: "negative quantity"}
		}
		if i, seen := index[product.ID]; seen {
			qtys[i] = qtys[i].Add(line.Qty)
			continue
		}
		var taxCode *string
		if line.TaxCodeRef != "" {
			tc := line.TaxCodeRef
			taxCode = &tc
		}
		index[product.ID] = len(fq.Products)
		qtys = append(qtys, line.Qty)
		fq.Products = append(fq.Products, ProductLine{
			ProductID:     product.ID,
			RemoteItemID:  line.RemoteItemID,
			Name:          product.Name,
			SKU:           product.SKU,
			PickingStatus: enums.PickingStatusPending,
			UnitPrice:     line.UnitPrice,
			TaxCodeRef:    taxCode,
		})
	}
	// Quantities are summed per product before rounding up, as the webhook
	// path does.
	for i := range fq.Products {
		qty := int(qtys[i].Ceil().IntPart())
		fq.Products[i].OriginalQty = qty
		fq.Products[i].PickingQty = qty
	}
	return fq, nil
}

// EstimateToDB writes fq in one transaction: the quote row is matched on
// (tenant, remote quote id) and its items are replaced wholesale. Local status
// and notes are left as they are.
func (r *Reconciler) EstimateToDB(ctx context.Context, fq *FilteredQuote) (*models.Quote, error) {
	if fq == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "filtered quote is required")
	}

	var stored *models.Quote
	err := r.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)

		var syncToken *string
		if fq.SyncToken != "" {
			st := fq.SyncToken
			syncToken = &st
		}
		quote, err := repo.UpsertRemote(ctx, &models.Quote{
			TenantID:         fq.TenantID,
			RemoteQuoteID:    fq.RemoteQuoteID,
			QuoteNumber:      fq.QuoteNumber,
			CustomerRemoteID: fq.CustomerRemoteID,
			CustomerName:     fq.CustomerName,
			Status:           enums.QuoteStatusPending,
			TotalAmount:      fq.TotalAmount,
			SyncToken:        syncToken,
			RemoteUpdatedAt:  fq.RemoteUpdatedAt,
		})
		if err != nil {
			return err
		}

		items := make([]models.QuoteItem, 0, len(fq.Products))
		for _, p := range fq.Products {
			items = append(items, models.QuoteItem{
				ID:            ItemID(quote.ID, p.ProductID),
				QuoteID:       quote.ID,
				ProductID:     p.ProductID,
				RemoteItemID:  p.RemoteItemID,
				Name:          p.Name,
				SKU:           p.SKU,
				OriginalQty:   p.OriginalQty,
				PickingQty:    p.PickingQty,
				PickingStatus: p.PickingStatus,
				UnitPrice:     p.UnitPrice,
				TaxCodeRef:    p.TaxCodeRef,
			})
		}
		if err := repo.ReplaceItems(ctx, quote.ID, items); err != nil {
			return err
		}
		quote.Items = items
		stored = quote
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store quote")
	}
	return stored, nil
}

// ItemID derives the stable id of a quote item from its quote and product.
func ItemID(quoteID, productID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(quoteID, productID[:])
}
