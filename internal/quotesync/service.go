// Package quotesync pulls every open remote quote of a tenant into the local
// store.
package quotesync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

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

const defaultBatchSize = 10

// QuoteError describes one quote, or one customer when QuoteID is empty, that
// could not be synced.
type QuoteError struct {
	QuoteID      string `json:"quote_id,omitempty"`
	Error        string `json:"error"`
	CustomerName string `json:"customer_name"`
}

// Result tallies one sync run.
type Result struct {
	Synced   int           `json:"synced"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Errors   []QuoteError  `json:"errors"`
	Duration time.Duration `json:"duration_ns"`
}

type quoteStatuses interface {
	StatusesByRemoteIDs(ctx context.Context, tenantID uuid.UUID, remoteQuoteIDs []string) (map[string]enums.QuoteStatus, error)
}

type reconciler interface {
	FilterRemoteQuote(ctx context.Context, raw *providers.RemoteQuote, tenantID uuid.UUID, provider enums.Provider) (*quotes.FilteredQuote, error)
	EstimateToDB(ctx context.Context, fq *quotes.FilteredQuote) (*models.Quote, error)
}

type tenantLister interface {
	ListConnected(ctx context.Context) ([]models.Tenant, error)
}

type ServiceParams struct {
	Tokens     providers.TokenSource
	Providers  providers.Registry
	Quotes     quoteStatuses
	Reconciler reconciler
	Tenants    tenantLister
	Metrics    *metrics.SyncMetrics
	Logger     *logger.Logger
	// BatchSize is the number of customers synced concurrently. Defaults to 10.
	BatchSize int
}

// Service is the sync orchestrator.
type Service struct {
	tokens     providers.TokenSource
	providers  providers.Registry
	quotes     quoteStatuses
	reconciler reconciler
	tenants    tenantLister
	metrics    *metrics.SyncMetrics
	logg       *logger.Logger
	batchSize  int
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tokens == nil {
		return nil, fmt.Errorf("token source required")
	}
	if len(params.Providers) == 0 {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quote store required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant lister required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Service{
		tokens:     params.Tokens,
		providers:  params.Providers,
		quotes:     params.Quotes,
		reconciler: params.Reconciler,
		tenants:    params.Tenants,
		metrics:    params.Metrics,
		logg:       params.Logger,
		batchSize:  batch,
		now:        time.Now,
	}, nil
}

// tally is the mutex-guarded Result shared by the customer workers of a run.
type tally struct {
	mu sync.Mutex
	Result
}

func (t *tally) add(fn func(r *Result)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.Result)
}

// SyncAllPendingQuotes imports every open remote quote of the tenant. Customers
// are synced in concurrent batches, quotes of one customer in sequence. The
// returned error is non-nil only when a credential cannot be obtained; the
// partial result is returned with it.
func (s *Service) SyncAllPendingQuotes(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (Result, error) {
	started := s.now()
	ctx = s.logg.WithTenant(ctx, tenantID.String(), provider.String())
	t := &tally{}

	finish := func(err error) (Result, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.Duration = s.now().Sub(started)
		res := t.Result
		if res.Errors == nil {
			res.Errors = []QuoteError{}
		}
		s.metrics.ObserveRun(provider.String(), res.Synced, res.Failed, res.Skipped, res.Duration)
		fields := map[string]any{
			"synced":      res.Synced,
			"failed":      res.Failed,
			"skipped":     res.Skipped,
			"duration_ms": res.Duration.Milliseconds(),
		}
		if err != nil {
			s.logg.Error(s.logg.WithFields(ctx, fields), "quote sync aborted", err)
		} else {
			s.logg.Info(s.logg.WithFields(ctx, fields), "quote sync finished")
		}
		return res, err
	}

	client, err := s.providers.For(provider)
	if err != nil {
		return finish(err)
	}
	token, err := s.tokens.GetValidToken(ctx, tenantID, provider)
	if err != nil {
		return finish(err)
	}

	customers, err := client.ListCustomers(ctx, token)
	if err != nil {
		t.add(func(r *Result) {
			r.Errors = append(r.Errors, QuoteError{Error: fmt.Sprintf("list customers: %v", err)})
		})
		s.logg.Error(ctx, "list customers failed", err)
		return finish(nil)
	}

	active := make([]providers.RemoteCustomer, 0, len(customers))
	for _, c := range customers {
		if c.Active {
			active = append(active, c)
		}
	}

	for batch := range slices.Chunk(active, s.batchSize) {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		var g errgroup.Group
		for _, customer := range batch {
			g.Go(func() error {
				return s.syncCustomer(ctx, t, tenantID, provider, client, customer)
			})
		}
		if err := g.Wait(); err != nil {
			return finish(err)
		}
	}
	return finish(nil)
}

// syncCustomer returns an error only for credential failures. A panic is
// recorded against the customer so the rest of the batch keeps going.
func (s *Service) syncCustomer(ctx context.Context, t *tally, tenantID uuid.UUID, provider enums.Provider, client providers.Client, customer providers.RemoteCustomer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			s.logg.Error(s.logg.WithField(ctx, "customer", customer.Name), "customer sync panicked", errors.New(msg))
			t.add(func(res *Result) {
				res.Errors = append(res.Errors, QuoteError{Error: msg, CustomerName: customer.Name})
			})
			err = nil
		}
	}()

	token, err := s.tokens.GetValidToken(ctx, tenantID, provider)
	if err != nil {
		return err
	}
	ctx = s.logg.WithField(ctx, "customer", customer.Name)

	remoteQuotes, err := client.ListOpenQuotes(ctx, token, customer.ID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "list open quotes failed")
		t.add(func(r *Result) {
			r.Errors = append(r.Errors, QuoteError{Error: fmt.Sprintf("list quotes: %v", err), CustomerName: customer.Name})
		})
		return nil
	}
	if len(remoteQuotes) == 0 {
		return nil
	}

	ids := make([]string, 0, len(remoteQuotes))
	for _, q := range remoteQuotes {
		ids = append(ids, q.ID)
	}
	statuses, err := s.quotes.StatusesByRemoteIDs(ctx, tenantID, ids)
	if err != nil {
		s.logg.Error(ctx, "load local quote statuses failed", err)
		t.add(func(r *Result) {
			for _, id := range ids {
				r.Failed++
				r.Errors = append(r.Errors, QuoteError{QuoteID: id, Error: "load local status: " + err.Error(), CustomerName: customer.Name})
			}
		})
		return nil
	}

	for _, summary := range remoteQuotes {
		if status, ok := statuses[summary.ID]; ok && workflow.SkipOnSync(status) {
			t.add(func(r *Result) { r.Skipped++ })
			continue
		}
		if err := s.syncQuote(ctx, tenantID, provider, client, token, summary.ID); err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"remote_quote_id": summary.ID, "error": err.Error()}), "quote sync failed")
			t.add(func(r *Result) {
				r.Failed++
				r.Errors = append(r.Errors, QuoteError{QuoteID: summary.ID, Error: err.Error(), CustomerName: customer.Name})
			})
			continue
		}
		t.add(func(r *Result) { r.Synced++ })
	}
	return nil
}

func (s *Service) syncQuote(ctx context.Context, tenantID uuid.UUID, provider enums.Provider, client providers.Client, token tokens.TokenData, remoteID string) error {
	detail, err := client.FetchQuote(ctx, token, remoteID)
	if err != nil {
		return err
	}
	fq, err := s.reconciler.FilterRemoteQuote(ctx, detail, tenantID, provider)
	if err != nil {
		return err
	}
	_, err = s.reconciler.EstimateToDB(ctx, fq)
	return err
}

// TenantsSummary tallies a sync over every connected tenant.
type TenantsSummary struct {
	Tenants        int
	Synced         int
	Failed         int
	Skipped        int
	ReauthRequired int
	Aborted        int
}

// SyncAllTenants runs SyncAllPendingQuotes for every connected tenant in
// sequence. A tenant whose credential fails is counted and skipped.
func (s *Service) SyncAllTenants(ctx context.Context) (TenantsSummary, error) {
	var summary TenantsSummary
	tenants, err := s.tenants.ListConnected(ctx)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list connected tenants")
	}
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if tenant.Provider == nil {
			continue
		}
		summary.Tenants++
		res, err := s.SyncAllPendingQuotes(ctx, tenant.ID, *tenant.Provider)
		summary.Synced += res.Synced
		summary.Failed += res.Failed
		summary.Skipped += res.Skipped
		switch {
		case err == nil:
		case pkgerrors.IsCode(err, pkgerrors.CodeReauthRequired):
			summary.ReauthRequired++
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return summary, err
		default:
			summary.Aborted++
		}
	}
	return summary, nil
}
