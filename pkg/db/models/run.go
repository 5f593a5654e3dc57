package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

// Run is an ordered batch of quotes handed to pickers.
type Run struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID  uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;not null;default:''"`
	Status    enums.RunStatus `gorm:"column:status;type:run_status;not null;default:'pending'"`
	Items     []RunItem       `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// RunItem places a quote in a run. Priority is strictly increasing within a run.
type RunItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RunID     uuid.UUID `gorm:"column:run_id;type:uuid;not null"`
	QuoteID   uuid.UUID `gorm:"column:quote_id;type:uuid;not null"`
	Priority  int       `gorm:"column:priority;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
