package quotes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/internal/workflow"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
	"github.com/angelmondragon/pickflow-backend/pkg/pagination"
)

// Service exposes the quote operations used by pickers and admins.
type Service interface {
	List(ctx context.Context, input ListQuotesInput) (*QuoteListResult, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*QuoteDTO, error)
	UpdateNotes(ctx context.Context, tenantID, id uuid.UUID, input NotesInput) (*QuoteDTO, error)
	Transition(ctx context.Context, tenantID, id uuid.UUID, to enums.QuoteStatus) (*QuoteDTO, error)
	UpdatePicking(ctx context.Context, tenantID, quoteID, itemID uuid.UUID, input PickingInput) (*QuoteItemDTO, error)
	Delete(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error)
	// FinaliseToProvider writes picked quantities back to the remote quote and
	// marks the local quote finalised.
	FinaliseToProvider(ctx context.Context, tenantID, id uuid.UUID) (*QuoteDTO, error)
}

type tenantLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

type ServiceParams struct {
	Repo      *Repository
	Tenants   tenantLookup
	Tokens    providers.TokenSource
	Providers providers.Registry
	Logger    *logger.Logger
}

type service struct {
	repo      *Repository
	tenants   tenantLookup
	tokens    providers.TokenSource
	providers providers.Registry
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("quote repository required")
	}
	if params.Tenants == nil {
		return nil, fmt.Errorf("tenant lookup required")
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
	return &service{
		repo:      params.Repo,
		tenants:   params.Tenants,
		tokens:    params.Tokens,
		providers: params.Providers,
		logg:      params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, input ListQuotesInput) (*QuoteListResult, error) {
	for _, status := range input.Statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quote status %q", status))
		}
	}
	if _, err := pagination.ParseCursor(input.Pagination.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.List(ctx, quoteListQuery(input))
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list quotes")
	}
	out := make([]QuoteDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return &QuoteListResult{Quotes: out, NextCursor: next}, nil
}

func (s *service) Get(ctx context.Context, tenantID, id uuid.UUID) (*QuoteDTO, error) {
	quote, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*quote)
	return &dto, nil
}

func (s *service) UpdateNotes(ctx context.Context, tenantID, id uuid.UUID, input NotesInput) (*QuoteDTO, error) {
	updates := map[string]any{}
	if input.PickerNote != nil {
		updates["picker_note"] = *input.PickerNote
	}
	if input.AdminNote != nil {
		updates["admin_note"] = *input.AdminNote
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no notes provided")
	}
	changed, err := s.repo.UpdateNotes(ctx, tenantID, id, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update notes")
	}
	if !changed {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	return s.Get(ctx, tenantID, id)
}

func (s *service) Transition(ctx context.Context, tenantID, id uuid.UUID, to enums.QuoteStatus) (*QuoteDTO, error) {
	if to == enums.QuoteStatusFinalised {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quotes are finalised by writing them back to the provider")
	}
	quote, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckQuoteTransition(quote.Status, to); err != nil {
		return nil, err
	}
	changed, err := s.repo.UpdateStatus(ctx, tenantID, id, to, quote.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update quote status")
	}
	if !changed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "quote status changed concurrently")
	}
	return s.Get(ctx, tenantID, id)
}

func (s *service) UpdatePicking(ctx context.Context, tenantID, quoteID, itemID uuid.UUID, input PickingInput) (*QuoteItemDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid picking status %q", input.Status))
	}
	if input.PickingQty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "picking quantity cannot be negative")
	}

	quote, err := s.load(ctx, tenantID, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status != enums.QuoteStatusPreparing && quote.Status != enums.QuoteStatusChecking {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("quote is %s; picking is only recorded while preparing or checking", quote.Status))
	}

	item, err := s.repo.FindItem(ctx, quoteID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quote item")
	}
	if input.PickingQty > item.PickingQty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "picking quantity cannot increase").
			WithDetails(map[string]any{"current": item.PickingQty, "requested": input.PickingQty})
	}

	changed, err := s.repo.UpdateItemPicking(ctx, itemID, input.PickingQty, input.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update picking")
	}
	if !changed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "picking quantity changed concurrently")
	}
	item.PickingQty = input.PickingQty
	item.PickingStatus = input.Status
	dto := itemFromModel(*item)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "at least one quote id is required")
	}
	var deleted int64
	err := s.repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).DeleteByIDs(ctx, tenantID, ids)
		deleted = n
		return err
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete quotes")
	}
	return deleted, nil
}

func (s *service) FinaliseToProvider(ctx context.Context, tenantID, id uuid.UUID) (*QuoteDTO, error) {
	quote, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !workflow.CanFinalise(quote.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("quote is %s; only checking or completed quotes can be finalised", quote.Status))
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant")
	}
	if tenant.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeReauthRequired, "tenant is not connected to a provider")
	}
	provider := *tenant.Provider
	client, err := s.providers.For(provider)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.GetValidToken(ctx, tenantID, provider)
	if err != nil {
		return nil, err
	}

	picked := make(map[string]decimal.Decimal, len(quote.Items))
	for _, item := range quote.Items {
		picked[item.RemoteItemID] = picked[item.RemoteItemID].Add(decimal.NewFromInt(int64(item.PickingQty)))
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"tenant_id":       tenantID.String(),
		"provider":        provider.String(),
		"quote_id":        quote.ID.String(),
		"remote_quote_id": quote.RemoteQuoteID,
	})
	err = s.writeBack(ctx, client, token, quote.RemoteQuoteID, picked)
	if errors.Is(err, providers.ErrStaleObject) {
		s.logg.Warn(ctx, "remote quote changed during finalise; retrying with a fresh copy")
		err = s.writeBack(ctx, client, token, quote.RemoteQuoteID, picked)
	}
	if errors.Is(err, providers.ErrStaleObject) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "remote quote changed again during finalise")
	}
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write picked quantities")
	}

	changed, err := s.repo.UpdateStatus(ctx, tenantID, id, enums.QuoteStatusFinalised, enums.QuoteStatusChecking, enums.QuoteStatusCompleted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark quote finalised")
	}
	if !changed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "quote status changed during finalise")
	}
	s.logg.Info(ctx, "quote finalised")
	return s.Get(ctx, tenantID, id)
}

func (s *service) writeBack(ctx context.Context, client providers.Client, token tokens.TokenData, remoteID string, picked map[string]decimal.Decimal) error {
	remote, err := client.FetchQuote(ctx, token, remoteID)
	if err != nil {
		return err
	}
	_, err = client.UpdateQuoteQuantities(ctx, token, remote, picked)
	return err
}

func (s *service) load(ctx context.Context, tenantID, id uuid.UUID) (*models.Quote, error) {
	quote, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quote")
	}
	return quote, nil
}
