package quotes

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/pkg/db"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
)

const testSchema = `
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
);
CREATE TABLE run_items (
  id TEXT PRIMARY KEY,
  run_id TEXT NOT NULL,
  quote_id TEXT NOT NULL,
  priority INTEGER NOT NULL,
  created_at DATETIME
);`

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:quotes_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(testSchema).Error)
	return conn
}

// productStore resolves products straight from the products table.
type productStore struct {
	db *gorm.DB
}

func (p productStore) FindActiveByRemoteItemIDs(ctx context.Context, tenantID uuid.UUID, remoteItemIDs []string) ([]models.Product, error) {
	var rows []models.Product
	err := p.db.WithContext(ctx).
		Where("tenant_id = ? AND is_archived = ? AND remote_item_id IN ?", tenantID, false, remoteItemIDs).
		Find(&rows).Error
	return rows, err
}

func newTestReconciler(t *testing.T, conn *gorm.DB, loc *time.Location) *Reconciler {
	t.Helper()
	r, err := NewReconciler(ReconcilerParams{
		Products: productStore{db: conn},
		Repo:     NewRepository(conn),
		DB:       db.NewFromConn(conn),
		Location: loc,
	})
	require.NoError(t, err)
	return r
}

func seedProduct(t *testing.T, conn *gorm.DB, tenantID uuid.UUID, sku, remoteID string, archived bool) models.Product {
	t.Helper()
	p := models.Product{
		ID:           uuid.New(),
		TenantID:     tenantID,
		SKU:          sku,
		Name:         "Product " + sku,
		RemoteItemID: &remoteID,
		Price:        decimal.NewFromInt(5),
		QtyOnHand:    decimal.NewFromInt(100),
		IsArchived:   archived,
	}
	require.NoError(t, conn.Create(&p).Error)
	return p
}

func itemLine(remoteItemID, name string, qty int64) providers.RemoteLine {
	return providers.RemoteLine{
		Kind:         providers.LineKindItem,
		RemoteItemID: remoteItemID,
		ItemName:     name,
		Qty:          decimal.NewFromInt(qty),
		UnitPrice:    decimal.RequireFromString("2.50"),
	}
}

func remoteQuote(id, customerID string, lines ...providers.RemoteLine) *providers.RemoteQuote {
	return &providers.RemoteQuote{
		ID:           id,
		Number:       "EST-" + id,
		SyncToken:    "0",
		CustomerID:   customerID,
		CustomerName: "Customer " + customerID,
		Total:        decimal.RequireFromString("42.00"),
		UpdatedAt:    time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		Lines:        lines,
	}
}
