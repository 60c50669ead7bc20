package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/pkg/enums"
)

// LedgerAccount holds a token balance: the shared bank (RiderID nil) or one
// account per rider. Balance is a cached running total; the transaction log is
// the source of truth and the balance is reconstructible from it.
type LedgerAccount struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Kind      enums.AccountKind `gorm:"column:kind;not null"`
	RiderID   *uuid.UUID        `gorm:"column:rider_id;type:uuid;uniqueIndex"`
	Balance   int64             `gorm:"column:balance;not null;check:balance >= 0"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
