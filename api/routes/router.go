package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pickflow-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/pickflow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/pickflow-backend/api/middleware"
	productsvc "github.com/angelmondragon/pickflow-backend/internal/products"
	"github.com/angelmondragon/pickflow-backend/internal/quotes"
	"github.com/angelmondragon/pickflow-backend/internal/runs"
	"github.com/angelmondragon/pickflow-backend/pkg/config"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
	"github.com/angelmondragon/pickflow-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	pingers map[string]controllers.Pinger,
	idempotencyStore redis.IdempotencyStore,
	gatherer prometheus.Gatherer,
	tenants controllers.TenantFinder,
	connections controllers.ConnectionService,
	syncer controllers.QuoteSyncer,
	quoteService quotes.Service,
	runService runs.Service,
	productService productsvc.Service,
	webhookService webhookcontrollers.NotificationProcessor,
	webhookGuard webhookcontrollers.EventGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, pingers, logg))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/qbo", webhookcontrollers.QBOWebhook(webhookService, cfg.QBO.VerifierToken, webhookGuard, logg))
	})

	// Provider redirects carry no bearer token; the oauth state ties them to a tenant.
	r.Get("/api/v1/connections/{provider}/callback", controllers.ConnectionCallback(connections, cfg.OAuth.PostConnectURL, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Post("/connections/{provider}", controllers.StartConnection(connections, logg))
		r.Delete("/connections", controllers.Disconnect(connections, logg))

		r.Post("/sync", controllers.SyncQuotes(syncer, tenants, logg))

		r.Route("/quotes", func(r chi.Router) {
			r.Get("/", controllers.ListQuotes(quoteService, logg))
			r.Delete("/", controllers.DeleteQuotes(quoteService, logg))
			r.Route("/{quoteID}", func(r chi.Router) {
				r.Get("/", controllers.GetQuote(quoteService, logg))
				r.Patch("/notes", controllers.UpdateQuoteNotes(quoteService, logg))
				r.Post("/transition", controllers.TransitionQuote(quoteService, logg))
				r.Post("/finalise", controllers.FinaliseQuote(quoteService, logg))
				r.Patch("/items/{itemID}/picking", controllers.UpdateQuotePicking(quoteService, logg))
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", controllers.ListRuns(runService, logg))
			r.Post("/", controllers.CreateRun(runService, logg))
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", controllers.GetRun(runService, logg))
				r.Delete("/", controllers.DeleteRun(runService, logg))
				r.Post("/quotes", controllers.AddRunQuotes(runService, logg))
				r.Post("/transition", controllers.TransitionRun(runService, logg))
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(productService, logg))
			r.Post("/sync", controllers.SyncCatalog(productService, tenants, logg))
			r.Post("/refresh", controllers.RefreshCatalog(productService, tenants, logg))
		})
	})

	return r
}
