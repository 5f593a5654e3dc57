package runs

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/pkg/db"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:runs_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`
CREATE TABLE runs (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE run_items (
  id TEXT PRIMARY KEY,
  run_id TEXT NOT NULL,
  quote_id TEXT NOT NULL,
  priority INTEGER NOT NULL,
  created_at DATETIME
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
  updated_at DATETIME
);`).Error)
	return conn
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := setupTestDB(t)
	svc, err := NewService(NewRepository(conn), db.NewFromConn(conn), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return svc, conn
}

func seedQuote(t *testing.T, conn *gorm.DB, tenantID uuid.UUID, number string, status enums.QuoteStatus) uuid.UUID {
	t.Helper()
	q := models.Quote{
		ID:               uuid.New(),
		TenantID:         tenantID,
		RemoteQuoteID:    "r-" + number,
		QuoteNumber:      number,
		CustomerRemoteID: "C1",
		CustomerName:     "Customer",
		Status:           status,
		TotalAmount:      decimal.NewFromInt(10),
		RemoteUpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&q).Error)
	return q.ID
}

func quoteStatus(t *testing.T, conn *gorm.DB, id uuid.UUID) enums.QuoteStatus {
	t.Helper()
	var q models.Quote
	require.NoError(t, conn.First(&q, "id = ?", id).Error)
	return q.Status
}

func TestCreateAssignsQuotesInOrder(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()
	a := seedQuote(t, conn, tenantID, "A", enums.QuoteStatusPending)
	b := seedQuote(t, conn, tenantID, "B", enums.QuoteStatusChecking)

	run, err := svc.Create(ctx, tenantID, CreateRunInput{Name: " Morning ", QuoteIDs: []uuid.UUID{b, a}})
	require.NoError(t, err)
	assert.Equal(t, "Morning", run.Name)
	assert.Equal(t, enums.RunStatusPending, run.Status)
	require.Len(t, run.Items, 2)
	assert.Equal(t, b, run.Items[0].QuoteID)
	assert.Equal(t, 1, run.Items[0].Priority)
	assert.Equal(t, a, run.Items[1].QuoteID)
	assert.Equal(t, 2, run.Items[1].Priority)
	assert.Equal(t, enums.QuoteStatusAssigned, run.Items[0].QuoteStatus)

	assert.Equal(t, enums.QuoteStatusAssigned, quoteStatus(t, conn, a))
	assert.Equal(t, enums.QuoteStatusAssigned, quoteStatus(t, conn, b))
}

func TestAddQuotesContinuesPriority(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()
	a := seedQuote(t, conn, tenantID, "A", enums.QuoteStatusPending)
	b := seedQuote(t, conn, tenantID, "B", enums.QuoteStatusPending)
	c := seedQuote(t, conn, tenantID, "C", enums.QuoteStatusPending)

	run, err := svc.Create(ctx, tenantID, CreateRunInput{QuoteIDs: []uuid.UUID{a}})
	require.NoError(t, err)

	run, err = svc.AddQuotes(ctx, tenantID, run.ID, []uuid.UUID{c, b})
	require.NoError(t, err)
	require.Len(t, run.Items, 3)
	for i := 1; i < len(run.Items); i++ {
		assert.Greater(t, run.Items[i].Priority, run.Items[i-1].Priority)
	}
	assert.Equal(t, c, run.Items[1].QuoteID)
	assert.Equal(t, b, run.Items[2].QuoteID)
}

func TestAddQuotesRejectsBusyQuotesAtomically(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()
	free := seedQuote(t, conn, tenantID, "A", enums.QuoteStatusPending)
	busy := seedQuote(t, conn, tenantID, "B", enums.QuoteStatusPreparing)

	_, err := svc.Create(ctx, tenantID, CreateRunInput{QuoteIDs: []uuid.UUID{free, busy}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	assert.Equal(t, enums.QuoteStatusPending, quoteStatus(t, conn, free))
	var runs int64
	require.NoError(t, conn.Model(&models.Run{}).Count(&runs).Error)
	assert.Zero(t, runs)
}

func TestAddQuotesRejectsOtherTenantsQuote(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()
	foreign := seedQuote(t, conn, uuid.New(), "X", enums.QuoteStatusPending)

	run, err := svc.Create(ctx, tenantID, CreateRunInput{Name: "Empty"})
	require.NoError(t, err)
	_, err = svc.AddQuotes(ctx, tenantID, run.ID, []uuid.UUID{foreign})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestTransitionFollowsRunWorkflow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()
	run, err := svc.Create(ctx, tenantID, CreateRunInput{Name: "R"})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, tenantID, run.ID, enums.RunStatusFinalised)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	got, err := svc.Transition(ctx, tenantID, run.ID, enums.RunStatusChecking)
	require.NoError(t, err)
	assert.Equal(t, enums.RunStatusChecking, got.Status)

	got, err = svc.Transition(ctx, tenantID, run.ID, enums.RunStatusFinalised)
	require.NoError(t, err)
	assert.Equal(t, enums.RunStatusFinalised, got.Status)

	_, err = svc.AddQuotes(ctx, tenantID, run.ID, []uuid.UUID{uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestDeleteReleasesQuotes(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()
	a := seedQuote(t, conn, tenantID, "A", enums.QuoteStatusPending)
	b := seedQuote(t, conn, tenantID, "B", enums.QuoteStatusPending)

	run, err := svc.Create(ctx, tenantID, CreateRunInput{QuoteIDs: []uuid.UUID{a, b}})
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.Quote{}).Where("id = ?", b).Update("status", enums.QuoteStatusChecking).Error)

	require.NoError(t, svc.Delete(ctx, tenantID, run.ID))
	assert.Equal(t, enums.QuoteStatusPending, quoteStatus(t, conn, a))
	assert.Equal(t, enums.QuoteStatusPending, quoteStatus(t, conn, b))

	var placements int64
	require.NoError(t, conn.Model(&models.RunItem{}).Count(&placements).Error)
	assert.Zero(t, placements)

	_, err = svc.Get(ctx, tenantID, run.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tenantID := uuid.New()
	first, err := svc.Create(ctx, tenantID, CreateRunInput{Name: "one"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, tenantID, CreateRunInput{Name: "two"})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, tenantID, first.ID, enums.RunStatusChecking)
	require.NoError(t, err)

	all, err := svc.List(ctx, tenantID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	checking, err := svc.List(ctx, tenantID, enums.RunStatusChecking)
	require.NoError(t, err)
	require.Len(t, checking, 1)
	assert.Equal(t, first.ID, checking[0].ID)

	_, err = svc.List(ctx, tenantID, "archived")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
