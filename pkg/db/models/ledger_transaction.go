package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/pkg/enums"
)

// LedgerTransaction is an append-only record of one balance mutation. Rows are
// never updated or deleted; (account_id, idempotency_key) is unique so a
// replayed operation resolves to the original row.
type LedgerTransaction struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	AccountID      uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index;uniqueIndex:idx_ledger_account_idem,priority:1"`
	Type           enums.LedgerEntryType `gorm:"column:type;not null"`
	Amount         int64                 `gorm:"column:amount;not null"`
	BalanceAfter   int64                 `gorm:"column:balance_after;not null"`
	Source         enums.LedgerSource    `gorm:"column:source;not null"`
	RefID          *uuid.UUID            `gorm:"column:ref_id;type:uuid"`
	Title          string                `gorm:"column:title;not null"`
	IdempotencyKey string                `gorm:"column:idempotency_key;not null;uniqueIndex:idx_ledger_account_idem,priority:2"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
}
