package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/internal/workflow"
	"github.com/angelmondragon/pickflow-backend/pkg/db"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

// Service manages picking runs.
type Service interface {
	Create(ctx context.Context, tenantID uuid.UUID, input CreateRunInput) (*RunDTO, error)
	// AddQuotes appends quotes to the run in the given order. Every quote must
	// be addable or none is added.
	AddQuotes(ctx context.Context, tenantID, runID uuid.UUID, quoteIDs []uuid.UUID) (*RunDTO, error)
	Transition(ctx context.Context, tenantID, runID uuid.UUID, to enums.RunStatus) (*RunDTO, error)
	// Delete removes the run and releases every quote in it to pending.
	Delete(ctx context.Context, tenantID, runID uuid.UUID) error
	Get(ctx context.Context, tenantID, runID uuid.UUID) (*RunDTO, error)
	List(ctx context.Context, tenantID uuid.UUID, status enums.RunStatus) ([]RunDTO, error)
}

type service struct {
	repo     *Repository
	dbClient *db.Client
	logg     *logger.Logger
}

func NewService(repo *Repository, dbClient *db.Client, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("run repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, dbClient: dbClient, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, tenantID uuid.UUID, input CreateRunInput) (*RunDTO, error) {
	run := &models.Run{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     strings.TrimSpace(input.Name),
		Status:   enums.RunStatusPending,
	}
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, run); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create run")
		}
		return s.addQuotes(ctx, repo, tenantID, run.ID, input.QuoteIDs)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"tenant_id": tenantID.String(),
		"run_id":    run.ID.String(),
		"quotes":    len(input.QuoteIDs),
	}), "run created")
	return s.Get(ctx, tenantID, run.ID)
}

func (s *service) AddQuotes(ctx context.Context, tenantID, runID uuid.UUID, quoteIDs []uuid.UUID) (*RunDTO, error) {
	if len(quoteIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one quote id is required")
	}
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, err := s.loadRun(ctx, repo, tenantID, runID)
		if err != nil {
			return err
		}
		if run.Status == enums.RunStatusFinalised {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "run is finalised")
		}
		return s.addQuotes(ctx, repo, tenantID, runID, quoteIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, tenantID, runID)
}

// addQuotes places quoteIDs after the run's current last priority and marks
// them assigned.
func (s *service) addQuotes(ctx context.Context, repo *Repository, tenantID, runID uuid.UUID, quoteIDs []uuid.UUID) error {
	if len(quoteIDs) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(quoteIDs))
	for _, id := range quoteIDs {
		if _, dup := seen[id]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quote %s listed twice", id))
		}
		seen[id] = struct{}{}
	}

	quotes, err := repo.Quotes(ctx, tenantID, quoteIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quotes")
	}
	byID := make(map[uuid.UUID]models.Quote, len(quotes))
	for _, q := range quotes {
		byID[q.ID] = q
	}
	for _, id := range quoteIDs {
		q, ok := byID[id]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("quote %s not found", id))
		}
		if !workflow.CanAddToRun(q.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("quote %s is %s and cannot join a run", q.QuoteNumber, q.Status)).
				WithDetails(map[string]any{"quote_id": id, "status": q.Status})
		}
	}

	if err := repo.RemovePlacements(ctx, quoteIDs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear previous placements")
	}
	priority, err := repo.MaxPriority(ctx, runID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read run priority")
	}
	items := make([]models.RunItem, 0, len(quoteIDs))
	for _, id := range quoteIDs {
		priority++
		items = append(items, models.RunItem{ID: uuid.New(), RunID: runID, QuoteID: id, Priority: priority})
	}
	if err := repo.AddItems(ctx, items); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add run items")
	}

	changed, err := repo.SetQuoteStatus(ctx, tenantID, quoteIDs, enums.QuoteStatusAssigned, enums.QuoteStatusPending, enums.QuoteStatusChecking)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign quotes")
	}
	if int(changed) != len(quoteIDs) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "quote statuses changed while adding to run")
	}
	return nil
}

func (s *service) Transition(ctx context.Context, tenantID, runID uuid.UUID, to enums.RunStatus) (*RunDTO, error) {
	run, err := s.loadRun(ctx, s.repo, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckRunTransition(run.Status, to); err != nil {
		return nil, err
	}
	changed, err := s.repo.UpdateStatus(ctx, tenantID, runID, run.Status, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update run status")
	}
	if !changed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "run status changed concurrently")
	}
	return s.Get(ctx, tenantID, runID)
}

func (s *service) Delete(ctx context.Context, tenantID, runID uuid.UUID) error {
	return s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		run, err := s.loadRun(ctx, repo, tenantID, runID)
		if err != nil {
			return err
		}
		quoteIDs := make([]uuid.UUID, 0, len(run.Items))
		for _, item := range run.Items {
			quoteIDs = append(quoteIDs, item.QuoteID)
		}
		if _, err := repo.SetQuoteStatus(ctx, tenantID, quoteIDs, enums.QuoteStatusPending); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release quotes")
		}
		if err := repo.Delete(ctx, tenantID, runID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete run")
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"tenant_id": tenantID.String(),
			"run_id":    runID.String(),
			"released":  len(quoteIDs),
		}), "run deleted")
		return nil
	})
}

func (s *service) Get(ctx context.Context, tenantID, runID uuid.UUID) (*RunDTO, error) {
	run, err := s.loadRun(ctx, s.repo, tenantID, runID)
	if err != nil {
		return nil, err
	}
	dtos, err := s.withQuotes(ctx, tenantID, []models.Run{*run})
	if err != nil {
		return nil, err
	}
	return &dtos[0], nil
}

func (s *service) List(ctx context.Context, tenantID uuid.UUID, status enums.RunStatus) ([]RunDTO, error) {
	if status != "" && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid run status %q", status))
	}
	rows, err := s.repo.List(ctx, tenantID, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list runs")
	}
	return s.withQuotes(ctx, tenantID, rows)
}

func (s *service) withQuotes(ctx context.Context, tenantID uuid.UUID, rows []models.Run) ([]RunDTO, error) {
	var ids []uuid.UUID
	for _, run := range rows {
		for _, item := range run.Items {
			ids = append(ids, item.QuoteID)
		}
	}
	quotes, err := s.repo.Quotes(ctx, tenantID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load run quotes")
	}
	byID := make(map[uuid.UUID]models.Quote, len(quotes))
	for _, q := range quotes {
		byID[q.ID] = q
	}
	out := make([]RunDTO, 0, len(rows))
	for _, run := range rows {
		out = append(out, toDTO(run, byID))
	}
	return out, nil
}

func (s *service) loadRun(ctx context.Context, repo *Repository, tenantID, runID uuid.UUID) (*models.Run, error) {
	run, err := repo.FindByID(ctx, tenantID, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "run not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load run")
	}
	return run, nil
}
