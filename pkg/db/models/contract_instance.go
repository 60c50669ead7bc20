package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/pkg/enums"
)

// ContractInstance is one rider's attempt at a contract template. Reward,
// penalty and the task list are frozen copies captured at purchase time.
type ContractInstance struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	RiderID       uuid.UUID            `gorm:"column:rider_id;type:uuid;not null;index"`
	TemplateID    uuid.UUID            `gorm:"column:template_id;type:uuid;not null;index"`
	Title         string               `gorm:"column:title;not null"`
	RewardTokens  int64                `gorm:"column:reward_tokens;not null"`
	PenaltyTokens int64                `gorm:"column:penalty_tokens;not null"`
	Status        enums.InstanceStatus `gorm:"column:status;not null;index"`
	DeadlineAt    time.Time            `gorm:"column:deadline_at;not null;index"`
	CompletedAt   *time.Time           `gorm:"column:completed_at"`
	FailedAt      *time.Time           `gorm:"column:failed_at"`
	Tasks         []InstanceTask       `gorm:"foreignKey:InstanceID;references:ID"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// InstanceTask mirrors one template task with its frozen criteria and tracks
// which ingested job satisfied it.
type InstanceTask struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	InstanceID   uuid.UUID        `gorm:"column:instance_id;type:uuid;not null;index"`
	TaskOrder    int              `gorm:"column:task_order;not null"`
	Title        string           `gorm:"column:title;not null"`
	Criteria     json.RawMessage  `gorm:"column:criteria;type:jsonb"`
	Status       enums.TaskStatus `gorm:"column:status;not null"`
	MatchedJobID *uuid.UUID       `gorm:"column:matched_job_id;type:uuid"`
	DoneAt       *time.Time       `gorm:"column:done_at"`
}
