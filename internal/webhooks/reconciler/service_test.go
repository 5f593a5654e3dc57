package reconciler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	product "github.com/angelmondragon/pickflow-backend/internal/products"
	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/internal/providers/providerstest"
	"github.com/angelmondragon/pickflow-backend/internal/quotes"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
	"github.com/angelmondragon/pickflow-backend/pkg/metrics"
)

const realm = "9130"

type stubTenants struct {
	tenant *models.Tenant
}

func (s stubTenants) FindByRemoteAccount(ctx context.Context, provider enums.Provider, remoteAccountID string) (*models.Tenant, error) {
	if s.tenant == nil || remoteAccountID != realm {
		return nil, gorm.ErrRecordNotFound
	}
	return s.tenant, nil
}

type stubCatalog struct {
	applied  []providers.RemoteItem
	archived []string
	takenSKU string
}

func (c *stubCatalog) ApplyRemoteItem(ctx context.Context, tenantID uuid.UUID, item providers.RemoteItem) (product.ApplyOutcome, error) {
	c.applied = append(c.applied, item)
	if !item.Active {
		return product.ApplyOutcome{Action: product.ActionArchived}, nil
	}
	return product.ApplyOutcome{Action: product.ActionUpdated, SKUConflict: item.SKU == c.takenSKU}, nil
}

func (c *stubCatalog) ArchiveRemoteItem(ctx context.Context, tenantID uuid.UUID, remoteItemID string) (product.ApplyOutcome, error) {
	c.archived = append(c.archived, remoteItemID)
	return product.ApplyOutcome{Action: product.ActionArchived}, nil
}

type stubQuotes struct {
	byRemote map[string]*models.Quote
}

func (s stubQuotes) FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteQuoteID string) (*models.Quote, error) {
	q, ok := s.byRemote[remoteQuoteID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return q, nil
}

// stubWriter maps each item line to a product derived from its remote item id.
type stubWriter struct {
	filtered     []*providers.RemoteQuote
	written      []*quotes.FilteredQuote
	sawDeadlines []bool
}

func productFor(remoteItemID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(remoteItemID))
}

func (w *stubWriter) FilterRemoteQuote(ctx context.Context, raw *providers.RemoteQuote, tenantID uuid.UUID, provider enums.Provider) (*quotes.FilteredQuote, error) {
	w.filtered = append(w.filtered, raw)
	fq := &quotes.FilteredQuote{TenantID: tenantID, Provider: provider, RemoteQuoteID: raw.ID}
	for _, line := range raw.Lines {
		if line.Kind != providers.LineKindItem {
			continue
		}
		qty := int(line.Qty.IntPart())
		fq.Products = append(fq.Products, quotes.ProductLine{
			ProductID:    productFor(line.RemoteItemID),
			RemoteItemID: line.RemoteItemID,
			Name:         line.ItemName,
			OriginalQty:  qty,
			PickingQty:   qty,
		})
	}
	return fq, nil
}

func (w *stubWriter) EstimateToDB(ctx context.Context, fq *quotes.FilteredQuote) (*models.Quote, error) {
	_, hasDeadline := ctx.Deadline()
	w.sawDeadlines = append(w.sawDeadlines, hasDeadline)
	w.written = append(w.written, fq)
	return &models.Quote{RemoteQuoteID: fq.RemoteQuoteID}, nil
}

type env struct {
	svc     *Service
	fake    *providerstest.Fake
	catalog *stubCatalog
	quotes  stubQuotes
	writer  *stubWriter
	logs    *bytes.Buffer
	reg     *prometheus.Registry
	tenant  *models.Tenant
}

func newEnv(t *testing.T) env {
	t.Helper()
	qbo := enums.ProviderQBO
	tenant := &models.Tenant{ID: uuid.New(), Name: "Acme", Provider: &qbo}
	e := env{
		fake:    providerstest.New(enums.ProviderQBO),
		catalog: &stubCatalog{takenSKU: "TAKEN"},
		quotes:  stubQuotes{byRemote: map[string]*models.Quote{}},
		writer:  &stubWriter{},
		logs:    &bytes.Buffer{},
		reg:     prometheus.NewRegistry(),
		tenant:  tenant,
	}
	svc, err := NewService(ServiceParams{
		Tenants:      stubTenants{tenant: tenant},
		Catalog:      e.catalog,
		Quotes:       e.quotes,
		Writer:       e.writer,
		Tokens:       providerstest.QBOTokens(realm),
		Providers:    providers.NewRegistry(e.fake),
		Metrics:      metrics.NewSyncMetrics(e.reg),
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: e.logs}),
		EventTimeout: time.Second,
	})
	require.NoError(t, err)
	e.svc = svc
	return e
}

func notification(events ...Event) Notification {
	return Notification{Provider: enums.ProviderQBO, RemoteAccountID: realm, Events: events}
}

func estimateEvent(id string, op enums.WebhookOperation) Event {
	return Event{ID: id, Operation: op, EntityType: enums.WebhookEntityEstimate, LastUpdated: time.Now()}
}

func line(remoteItemID, name string, qty int64) providers.RemoteLine {
	return providers.RemoteLine{Kind: providers.LineKindItem, RemoteItemID: remoteItemID, ItemName: name, Qty: decimal.NewFromInt(qty)}
}

func TestProcessNotificationDropsUnknownAccount(t *testing.T) {
	e := newEnv(t)
	n := notification(estimateEvent("100", enums.WebhookOperationUpdate))
	n.RemoteAccountID = "unknown"

	require.NoError(t, e.svc.ProcessNotification(context.Background(), n))
	assert.Zero(t, e.fake.TotalFetchCalls())
	assert.Contains(t, e.logs.String(), "webhook for unknown account dropped")
}

func TestItemUpdateWithSKUConflictIsLogged(t *testing.T) {
	e := newEnv(t)
	e.fake.Items["7"] = providers.RemoteItem{ID: "7", SKU: "TAKEN", Name: "Bolt", Active: true, Price: decimal.NewFromInt(3)}

	err := e.svc.ProcessNotification(context.Background(), notification(Event{ID: "7", Operation: enums.WebhookOperationUpdate, EntityType: enums.WebhookEntityItem}))
	require.NoError(t, err)
	require.Len(t, e.catalog.applied, 1)
	assert.Equal(t, "Bolt", e.catalog.applied[0].Name)
	assert.Contains(t, e.logs.String(), "item sku conflict")
}

func TestItemDeleteArchivesWithoutFetching(t *testing.T) {
	e := newEnv(t)

	err := e.svc.ProcessNotification(context.Background(), notification(Event{ID: "7", Operation: enums.WebhookOperationDelete, EntityType: enums.WebhookEntityItem}))
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, e.catalog.archived)
	assert.Empty(t, e.catalog.applied)
	series, err := testutil.GatherAndCount(e.reg, "webhook_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestEstimateUpdateCombinesDuplicateLines(t *testing.T) {
	e := newEnv(t)
	e.fake.AddQuote(providers.RemoteQuote{
		ID:         "100",
		CustomerID: "C1",
		Lines: []providers.RemoteLine{
			line("1", "Widget", 3),
			line("2", "Gadget", 1),
			line("1", "Widget", 4),
		},
	})

	require.NoError(t, e.svc.ProcessNotification(context.Background(), notification(estimateEvent("100", enums.WebhookOperationUpdate))))
	require.Len(t, e.writer.filtered, 1)
	lines := e.writer.filtered[0].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, "Widget", lines[0].ItemName)
	assert.True(t, lines[0].Qty.Equal(decimal.NewFromInt(7)))
	require.Len(t, e.writer.written, 1)
	assert.Equal(t, []bool{true}, e.writer.sawDeadlines)
	assert.Contains(t, e.logs.String(), "duplicate quote lines combined")
}

func TestEstimateEventsSkipProtectedStatuses(t *testing.T) {
	for _, status := range []enums.QuoteStatus{enums.QuoteStatusPreparing, enums.QuoteStatusChecking, enums.QuoteStatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			e := newEnv(t)
			e.quotes.byRemote["100"] = &models.Quote{RemoteQuoteID: "100", Status: status}
			e.fake.AddQuote(providers.RemoteQuote{ID: "100", CustomerID: "C1", Lines: []providers.RemoteLine{line("1", "Widget", 1)}})

			require.NoError(t, e.svc.ProcessNotification(context.Background(), notification(estimateEvent("100", enums.WebhookOperationUpdate))))
			assert.Zero(t, e.fake.FetchCalls("100"))
			assert.Empty(t, e.writer.written)
		})
	}
}

func TestEstimateCreateForKnownQuoteUpdatesAndLogsDiff(t *testing.T) {
	e := newEnv(t)
	e.quotes.byRemote["100"] = &models.Quote{
		RemoteQuoteID: "100",
		Status:        enums.QuoteStatusAssigned,
		Items: []models.QuoteItem{
			{ProductID: productFor("1"), Name: "Widget", OriginalQty: 2},
			{ProductID: productFor("3"), Name: "Sprocket", OriginalQty: 1},
		},
	}
	e.fake.AddQuote(providers.RemoteQuote{ID: "100", CustomerID: "C1", Lines: []providers.RemoteLine{
		line("1", "Widget", 5),
		line("2", "Gadget", 1),
	}})

	require.NoError(t, e.svc.ProcessNotification(context.Background(), notification(estimateEvent("100", enums.WebhookOperationCreate))))
	require.Len(t, e.writer.written, 1)
	logs := e.logs.String()
	assert.Contains(t, logs, "create for known quote handled as update")
	assert.Contains(t, logs, "quote items changed")
	assert.Contains(t, logs, "Sprocket")
}

func TestEstimateDeleteIsIgnored(t *testing.T) {
	e := newEnv(t)
	e.quotes.byRemote["100"] = &models.Quote{RemoteQuoteID: "100", Status: enums.QuoteStatusPending}

	require.NoError(t, e.svc.ProcessNotification(context.Background(), notification(estimateEvent("100", enums.WebhookOperationDelete))))
	assert.Zero(t, e.fake.FetchCalls("100"))
	assert.Empty(t, e.writer.written)
}

func TestFailingEventDoesNotStopTheRest(t *testing.T) {
	e := newEnv(t)
	e.fake.AddQuote(providers.RemoteQuote{ID: "100", CustomerID: "C1", Lines: []providers.RemoteLine{line("1", "Widget", 1)}})
	e.fake.AddQuote(providers.RemoteQuote{ID: "101", CustomerID: "C1", Lines: []providers.RemoteLine{line("1", "Widget", 2)}})
	e.fake.FetchQuoteErr["100"] = pkgerrors.New(pkgerrors.CodeDependency, "provider unavailable")

	err := e.svc.ProcessNotification(context.Background(), notification(
		estimateEvent("100", enums.WebhookOperationUpdate),
		estimateEvent("101", enums.WebhookOperationUpdate),
	))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Len(t, e.writer.written, 1)
	assert.Equal(t, "101", e.writer.written[0].RemoteQuoteID)
}

func TestProcessNotificationFailsWithoutCredential(t *testing.T) {
	e := newEnv(t)
	svc, err := NewService(ServiceParams{
		Tenants:   stubTenants{tenant: e.tenant},
		Catalog:   e.catalog,
		Quotes:    e.quotes,
		Writer:    e.writer,
		Tokens:    &providerstest.Tokens{Err: pkgerrors.New(pkgerrors.CodeReauthRequired, "reconnect")},
		Providers: providers.NewRegistry(e.fake),
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: e.logs}),
	})
	require.NoError(t, err)

	err = svc.ProcessNotification(context.Background(), notification(estimateEvent("100", enums.WebhookOperationUpdate)))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReauthRequired))
	assert.False(t, errors.Is(err, gorm.ErrRecordNotFound))
}
