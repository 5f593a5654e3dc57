// Package bootstrap builds the service graph shared by the api and cron-worker
// binaries.
package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	product "github.com/angelmondragon/pickflow-backend/internal/products"
	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/internal/quotes"
	"github.com/angelmondragon/pickflow-backend/internal/quotesync"
	"github.com/angelmondragon/pickflow-backend/internal/runs"
	"github.com/angelmondragon/pickflow-backend/internal/tenants"
	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/internal/webhooks/reconciler"
	"github.com/angelmondragon/pickflow-backend/pkg/config"
	"github.com/angelmondragon/pickflow-backend/pkg/db"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
	"github.com/angelmondragon/pickflow-backend/pkg/metrics"
	"github.com/angelmondragon/pickflow-backend/pkg/qbo"
	"github.com/angelmondragon/pickflow-backend/pkg/redis"
	"github.com/angelmondragon/pickflow-backend/pkg/security"
	"github.com/angelmondragon/pickflow-backend/pkg/xero"
)

// Services holds every domain service a binary may need.
type Services struct {
	Tenants     *tenants.Repository
	Tokens      *tokens.Manager
	Connector   *tokens.Connector
	Providers   providers.Registry
	Products    product.Service
	Quotes      quotes.Service
	Reconciler  *quotes.Reconciler
	Runs        runs.Service
	QuoteSync   *quotesync.Service
	Webhooks    *reconciler.Service
	SyncMetrics *metrics.SyncMetrics
}

// New wires the services on top of the shared db and redis clients. Sync
// metrics are registered on reg.
func New(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*Services, error) {
	loc, err := cfg.Sync.Location()
	if err != nil {
		return nil, err
	}
	cipher, err := security.NewTokenCipher(cfg.Crypto)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	gormDB := dbClient.DB()
	httpClient := &http.Client{Timeout: cfg.Sync.RefreshTimeout}

	tenantRepo := tenants.NewRepository(gormDB)
	credentials, err := tokens.NewStore(gormDB, cipher)
	if err != nil {
		return nil, err
	}
	manager, err := tokens.NewManager(tokens.ManagerParams{
		Store:          credentials,
		Refresher:      tokens.NewOAuthRefresher(cfg.QBO, cfg.Xero, httpClient),
		Logger:         logg,
		RefreshBuffer:  cfg.Sync.RefreshBuffer,
		RefreshTimeout: cfg.Sync.RefreshTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	qboClient, err := qbo.NewClient(cfg.QBO, logg)
	if err != nil {
		return nil, fmt.Errorf("qbo client: %w", err)
	}
	xeroClient, err := xero.NewClient(cfg.Xero, logg)
	if err != nil {
		return nil, fmt.Errorf("xero client: %w", err)
	}
	registry := providers.NewRegistry(providers.NewQBO(qboClient), providers.NewXero(xeroClient))

	connector, err := tokens.NewConnector(tokens.ConnectorParams{
		Store:      credentials,
		States:     redisClient,
		Xero:       xeroClient,
		QBO:        cfg.QBO,
		XeroConfig: cfg.Xero,
		StateTTL:   cfg.OAuth.StateTTL,
		HTTPClient: httpClient,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("connector: %w", err)
	}

	productRepo := product.NewRepository(gormDB)
	productService, err := product.NewService(product.ServiceParams{
		Repo:      productRepo,
		DB:        dbClient,
		Tokens:    manager,
		Providers: registry,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}

	quoteRepo := quotes.NewRepository(gormDB)
	quoteReconciler, err := quotes.NewReconciler(quotes.ReconcilerParams{
		Products: productRepo,
		Repo:     quoteRepo,
		DB:       dbClient,
		Location: loc,
	})
	if err != nil {
		return nil, fmt.Errorf("quote reconciler: %w", err)
	}
	quoteService, err := quotes.NewService(quotes.ServiceParams{
		Repo:      quoteRepo,
		Tenants:   tenantRepo,
		Tokens:    manager,
		Providers: registry,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("quote service: %w", err)
	}

	runService, err := runs.NewService(runs.NewRepository(gormDB), dbClient, logg)
	if err != nil {
		return nil, fmt.Errorf("run service: %w", err)
	}

	syncMetrics := metrics.NewSyncMetrics(reg)
	syncService, err := quotesync.NewService(quotesync.ServiceParams{
		Tokens:     manager,
		Providers:  registry,
		Quotes:     quoteRepo,
		Reconciler: quoteReconciler,
		Tenants:    tenantRepo,
		Metrics:    syncMetrics,
		Logger:     logg,
		BatchSize:  cfg.Sync.CustomerBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("quote sync service: %w", err)
	}

	webhookService, err := reconciler.NewService(reconciler.ServiceParams{
		Tenants:      tenantRepo,
		Catalog:      productService,
		Quotes:       quoteRepo,
		Writer:       quoteReconciler,
		Tokens:       manager,
		Providers:    registry,
		Metrics:      syncMetrics,
		Logger:       logg,
		EventTimeout: cfg.Webhooks.EventTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}

	return &Services{
		Tenants:     tenantRepo,
		Tokens:      manager,
		Connector:   connector,
		Providers:   registry,
		Products:    productService,
		Quotes:      quoteService,
		Reconciler:  quoteReconciler,
		Runs:        runService,
		QuoteSync:   syncService,
		Webhooks:    webhookService,
		SyncMetrics: syncMetrics,
	}, nil
}
