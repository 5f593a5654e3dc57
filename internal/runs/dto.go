package runs

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

type CreateRunInput struct {
	Name     string      `json:"name" validate:"max=120"`
	QuoteIDs []uuid.UUID `json:"quote_ids"`
}

type RunItemDTO struct {
	QuoteID      uuid.UUID         `json:"quote_id"`
	Priority     int               `json:"priority"`
	QuoteNumber  string            `json:"quote_number"`
	CustomerName string            `json:"customer_name"`
	QuoteStatus  enums.QuoteStatus `json:"quote_status"`
}

type RunDTO struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Status    enums.RunStatus `json:"status"`
	Items     []RunItemDTO    `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toDTO(run models.Run, quotes map[uuid.UUID]models.Quote) RunDTO {
	dto := RunDTO{
		ID:        run.ID,
		Name:      run.Name,
		Status:    run.Status,
		Items:     make([]RunItemDTO, 0, len(run.Items)),
		CreatedAt: run.CreatedAt,
		UpdatedAt: run.UpdatedAt,
	}
	for _, item := range run.Items {
		q := quotes[item.QuoteID]
		dto.Items = append(dto.Items, RunItemDTO{
			QuoteID:      item.QuoteID,
			Priority:     item.Priority,
			QuoteNumber:  q.QuoteNumber,
			CustomerName: q.CustomerName,
			QuoteStatus:  q.Status,
		})
	}
	return dto
}
