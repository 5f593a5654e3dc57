// Package reconciler applies provider change notifications to the local
// catalog and quotes.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	product "github.com/angelmondragon/pickflow-backend/internal/products"
	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/internal/quotes"
	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/internal/workflow"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
	"github.com/angelmondragon/pickflow-backend/pkg/metrics"
)

const defaultEventTimeout = 30 * time.Second

const (
	outcomeApplied  = "applied"
	outcomeArchived = "archived"
	outcomeSkipped  = "skipped"
	outcomeIgnored  = "ignored"
	outcomeFailed   = "failed"
)

// Event is one entity change inside a notification.
type Event struct {
	ID          string
	Operation   enums.WebhookOperation
	EntityType  enums.WebhookEntity
	LastUpdated time.Time
}

// Notification groups the events a provider reported for one account.
type Notification struct {
	Provider        enums.Provider
	RemoteAccountID string
	Events          []Event
}

type tenantLookup interface {
	FindByRemoteAccount(ctx context.Context, provider enums.Provider, remoteAccountID string) (*models.Tenant, error)
}

type catalog interface {
	ApplyRemoteItem(ctx context.Context, tenantID uuid.UUID, item providers.RemoteItem) (product.ApplyOutcome, error)
	ArchiveRemoteItem(ctx context.Context, tenantID uuid.UUID, remoteItemID string) (product.ApplyOutcome, error)
}

type quoteStore interface {
	FindByRemoteID(ctx context.Context, tenantID uuid.UUID, remoteQuoteID string) (*models.Quote, error)
}

type quoteWriter interface {
	FilterRemoteQuote(ctx context.Context, raw *providers.RemoteQuote, tenantID uuid.UUID, provider enums.Provider) (*quotes.FilteredQuote, error)
	EstimateToDB(ctx context.Context, fq *quotes.FilteredQuote) (*models.Quote, error)
}

type ServiceParams struct {
	Tenants      tenantLookup
	Catalog      catalog
	Quotes       quoteStore
	Writer       quoteWriter
	Tokens       providers.TokenSource
	Providers    providers.Registry
	Metrics      *metrics.SyncMetrics
	Logger       *logger.Logger
	EventTimeout time.Duration
}

type Service struct {
	tenants   tenantLookup
	catalog   catalog
	quotes    quoteStore
	writer    quoteWriter
	tokens    providers.TokenSource
	providers providers.Registry
	metrics   *metrics.SyncMetrics
	logg      *logger.Logger
	timeout   time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant lookup required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quote store required")
	}
	if params.Writer == nil {
		return nil, fmt.Errorf("quote writer required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token source required")
	}
	if len(params.Providers) == 0 {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.EventTimeout
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}
	return &Service{
		tenants:   params.Tenants,
		catalog:   params.Catalog,
		quotes:    params.Quotes,
		writer:    params.Writer,
		tokens:    params.Tokens,
		providers: params.Providers,
		metrics:   params.Metrics,
		logg:      params.Logger,
		timeout:   timeout,
	}, nil
}

// ProcessNotification applies every event of n in order. A failing event does
// not stop the others; all failures are combined into the returned error.
// Notifications for accounts no tenant is connected to are dropped.
func (s *Service) ProcessNotification(ctx context.Context, n Notification) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"provider":          n.Provider.String(),
		"remote_account_id": n.RemoteAccountID,
	})

	tenant, err := s.tenants.FindByRemoteAccount(ctx, n.Provider, n.RemoteAccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Info(ctx, "webhook for unknown account dropped")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve webhook tenant")
	}
	ctx = s.logg.WithTenantID(ctx, tenant.ID.String())

	client, err := s.providers.For(n.Provider)
	if err != nil {
		return err
	}
	token, err := s.tokens.GetValidToken(ctx, tenant.ID, n.Provider)
	if err != nil {
		return err
	}

	var errs error
	for _, event := range n.Events {
		evCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":  event.ID,
			"operation": string(event.Operation),
			"entity":    string(event.EntityType),
		})
		outcome, err := s.processEvent(evCtx, tenant.ID, n.Provider, client, token, event)
		if err != nil {
			outcome = outcomeFailed
			s.logg.Error(evCtx, "webhook event failed", err)
			errs = multierr.Append(errs, fmt.Errorf("%s %s %s: %w", event.EntityType, event.Operation, event.ID, err))
		}
		s.metrics.IncWebhookEvent(n.Provider.String(), string(event.EntityType), outcome)
	}
	return errs
}

func (s *Service) processEvent(ctx context.Context, tenantID uuid.UUID, provider enums.Provider, client providers.Client, token tokens.TokenData, event Event) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch event.EntityType {
	case enums.WebhookEntityItem:
		return s.applyItem(ctx, tenantID, client, token, event)
	case enums.WebhookEntityEstimate:
		return s.applyEstimate(ctx, tenantID, provider, client, token, event)
	default:
		s.logg.Info(ctx, "webhook entity not handled")
		return outcomeIgnored, nil
	}
}

func (s *Service) applyItem(ctx context.Context, tenantID uuid.UUID, client providers.Client, token tokens.TokenData, event Event) (string, error) {
	if event.Operation == enums.WebhookOperationDelete {
		if _, err := s.catalog.ArchiveRemoteItem(ctx, tenantID, event.ID); err != nil {
			return "", err
		}
		return outcomeArchived, nil
	}

	item, err := client.FetchItem(ctx, token, event.ID)
	if err != nil {
		return "", err
	}
	outcome, err := s.catalog.ApplyRemoteItem(ctx, tenantID, *item)
	if err != nil {
		return "", err
	}
	if outcome.SKUConflict {
		s.logg.Warn(s.logg.WithField(ctx, "sku", item.SKU), "item sku conflict; sku left unchanged")
	}
	if outcome.Action == product.ActionArchived {
		return outcomeArchived, nil
	}
	return outcomeApplied, nil
}

func (s *Service) applyEstimate(ctx context.Context, tenantID uuid.UUID, provider enums.Provider, client providers.Client, token tokens.TokenData, event Event) (string, error) {
	local, err := s.quotes.FindByRemoteID(ctx, tenantID, event.ID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		local = nil
	case err != nil:
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load local quote")
	}

	if local != nil && workflow.SkipOnWebhook(local.Status) {
		s.logg.Info(s.logg.WithField(ctx, "status", local.Status.String()), "quote is being picked; webhook ignored")
		return outcomeSkipped, nil
	}

	op := event.Operation
	if op == enums.WebhookOperationDelete {
		s.logg.Info(ctx, "remote quote deleted; local quote kept")
		return outcomeIgnored, nil
	}
	if op == enums.WebhookOperationCreate && local != nil {
		s.logg.Info(ctx, "create for known quote handled as update")
	}

	raw, err := client.FetchQuote(ctx, token, event.ID)
	if err != nil {
		return "", err
	}
	lines, combined := CombineDuplicateLines(raw.Lines)
	for _, c := range combined {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"product": c.Name,
			"lines":   c.Lines,
			"qty":     c.Qty.String(),
		}), "duplicate quote lines combined")
	}
	raw.Lines = lines

	fq, err := s.writer.FilterRemoteQuote(ctx, raw, tenantID, provider)
	if err != nil {
		return "", err
	}
	if local != nil {
		if diff := DiffItems(local.Items, fq.Products); !diff.Empty() {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"added":            diff.Added,
				"removed":          diff.Removed,
				"quantity_changes": diff.QuantityChanges,
			}), "quote items changed")
		}
	}
	if _, err := s.writer.EstimateToDB(ctx, fq); err != nil {
		return "", err
	}
	return outcomeApplied, nil
}
