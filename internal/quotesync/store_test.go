package quotesync

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	product "github.com/angelmondragon/pickflow-backend/internal/products"
	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/internal/providers/providerstest"
	"github.com/angelmondragon/pickflow-backend/internal/quotes"
	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/pkg/db"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

const storeSchema = `
CREATE TABLE products (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  remote_item_id TEXT,
  price TEXT NOT NULL,
  qty_on_hand TEXT NOT NULL,
  tax_code_ref TEXT,
  is_archived BOOLEAN NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE quotes (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  remote_quote_id TEXT NOT NULL,
  quote_number TEXT NOT NULL DEFAULT '',
  customer_remote_id TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  total_amount TEXT NOT NULL,
  sync_token TEXT,
  picker_note TEXT,
  admin_note TEXT,
  remote_updated_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (tenant_id, remote_quote_id)
);
CREATE TABLE quote_items (
  id TEXT PRIMARY KEY,
  quote_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  remote_item_id TEXT NOT NULL,
  name TEXT NOT NULL,
  sku TEXT NOT NULL,
  original_qty INTEGER NOT NULL,
  picking_qty INTEGER NOT NULL,
  picking_status TEXT NOT NULL,
  unit_price TEXT NOT NULL,
  tax_code_ref TEXT
);`

// storeEnv wires the orchestrator to the real reconciler over sqlite.
type storeEnv struct {
	svc  *Service
	fake *providerstest.Fake
	conn *gorm.DB
}

func newStoreEnv(t *testing.T, tenantID uuid.UUID) storeEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:quotesync_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// one connection keeps concurrent customer writes from tripping sqlite table locks
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.Exec(storeSchema).Error)

	remoteID := "item-1"
	require.NoError(t, conn.Create(&models.Product{
		ID:           uuid.New(),
		TenantID:     tenantID,
		SKU:          "WID",
		Name:         "Widget",
		RemoteItemID: &remoteID,
		Price:        decimal.NewFromInt(5),
		QtyOnHand:    decimal.NewFromInt(100),
	}).Error)

	quoteRepo := quotes.NewRepository(conn)
	rec, err := quotes.NewReconciler(quotes.ReconcilerParams{
		Products: product.NewRepository(conn),
		Repo:     quoteRepo,
		DB:       db.NewFromConn(conn),
	})
	require.NoError(t, err)

	fake := providerstest.New(enums.ProviderQBO)
	svc, err := NewService(ServiceParams{
		Tokens:     providerstest.QBOTokens("realm"),
		Providers:  providers.NewRegistry(fake),
		Quotes:     quoteRepo,
		Reconciler: rec,
		Tenants:    stubTenants{},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return storeEnv{svc: svc, fake: fake, conn: conn}
}

func TestSyncAllPendingQuotesStoresEveryQuote(t *testing.T) {
	tenantID := uuid.New()
	e := newStoreEnv(t, tenantID)
	populate(e.fake, 25, 2)

	e.fake.Customers = append(e.fake.Customers, providers.RemoteCustomer{ID: "C99", Name: "Customer C99", Active: true})
	e.fake.AddQuote(providers.RemoteQuote{
		ID:         "C99-Q0",
		CustomerID: "C99",
		Lines: []providers.RemoteLine{
			{Kind: providers.LineKindItem, RemoteItemID: "item-1", ItemName: "Widget", Qty: decimal.NewFromInt(1)},
			{Kind: providers.LineKindItem, RemoteItemID: "gone", ItemName: "Retired Gadget", Qty: decimal.NewFromInt(1)},
		},
	})

	ctx := context.Background()
	res, err := e.svc.SyncAllPendingQuotes(ctx, tenantID, enums.ProviderQBO)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Synced)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "C99-Q0", res.Errors[0].QuoteID)
	assert.Contains(t, res.Errors[0].Error, "Retired Gadget")

	var quoteCount, itemCount, partial int64
	require.NoError(t, e.conn.Model(&models.Quote{}).Where("tenant_id = ?", tenantID).Count(&quoteCount).Error)
	require.NoError(t, e.conn.Model(&models.QuoteItem{}).Count(&itemCount).Error)
	require.NoError(t, e.conn.Model(&models.Quote{}).Where("remote_quote_id = ?", "C99-Q0").Count(&partial).Error)
	assert.EqualValues(t, 50, quoteCount)
	assert.EqualValues(t, 50, itemCount)
	assert.Zero(t, partial)

	// a second run rewrites the same rows
	res, err = e.svc.SyncAllPendingQuotes(ctx, tenantID, enums.ProviderQBO)
	require.NoError(t, err)
	assert.Equal(t, 50, res.Synced)
	require.NoError(t, e.conn.Model(&models.Quote{}).Where("tenant_id = ?", tenantID).Count(&quoteCount).Error)
	assert.EqualValues(t, 50, quoteCount)
}

// panickyClient crashes while listing one customer's quotes.
type panickyClient struct {
	*providerstest.Fake
	crashFor string
}

func (c panickyClient) ListOpenQuotes(ctx context.Context, token tokens.TokenData, customerID string) ([]providers.RemoteQuote, error) {
	if customerID == c.crashFor {
		var missing *providers.RemoteQuote
		return []providers.RemoteQuote{*missing}, nil
	}
	return c.Fake.ListOpenQuotes(ctx, token, customerID)
}

func TestSyncAllPendingQuotesContainsCustomerPanic(t *testing.T) {
	fake := providerstest.New(enums.ProviderQBO)
	populate(fake, 12, 1)
	rec := &stubReconciler{}
	svc, err := NewService(ServiceParams{
		Tokens:     providerstest.QBOTokens("realm"),
		Providers:  providers.NewRegistry(panickyClient{Fake: fake, crashFor: "C03"}),
		Quotes:     stubStatuses{},
		Reconciler: rec,
		Tenants:    stubTenants{},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)

	res, err := svc.SyncAllPendingQuotes(context.Background(), uuid.New(), enums.ProviderQBO)
	require.NoError(t, err)
	assert.Equal(t, 11, res.Synced)
	assert.Equal(t, 11, rec.count())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Customer C03", res.Errors[0].CustomerName)
	assert.True(t, strings.HasPrefix(res.Errors[0].Error, "panic: "), res.Errors[0].Error)
}
