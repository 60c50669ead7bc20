package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ContractTemplate is a purchasable, admin-authored contract definition.
// Instances snapshot the task list at purchase time, so edits here never
// change contracts that are already in flight.
type ContractTemplate struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Slug          string         `gorm:"column:slug;uniqueIndex;not null"`
	Title         string         `gorm:"column:title;not null"`
	PriceTokens   int64          `gorm:"column:price_tokens;not null"`
	RewardTokens  int64          `gorm:"column:reward_tokens;not null"`
	PenaltyTokens int64          `gorm:"column:penalty_tokens;not null"`
	DeadlineDays  int            `gorm:"column:deadline_days;not null"`
	ExpiresAt     *time.Time     `gorm:"column:expires_at"`
	Active        bool           `gorm:"column:active;not null;default:true"`
	Tasks         []TemplateTask `gorm:"foreignKey:TemplateID;references:ID"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// TemplateTask is one ordered task of a contract template. Criteria holds the
// open map of named bounds evaluated against job telemetry.
type TemplateTask struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TemplateID uuid.UUID       `gorm:"column:template_id;type:uuid;not null;index"`
	TaskOrder  int             `gorm:"column:task_order;not null"`
	Title      string          `gorm:"column:title;not null"`
	Criteria   json.RawMessage `gorm:"column:criteria;type:jsonb"`
}
