package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	"github.com/haulboard/haulboard-backend/pkg/pagination"
)

// Repository manages persistence for ledger accounts and their append-only
// transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAccount(ctx context.Context, account *models.LedgerAccount) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.LedgerAccount, error)
	GetBankAccount(ctx context.Context) (*models.LedgerAccount, error)
	GetRiderAccount(ctx context.Context, riderID uuid.UUID) (*models.LedgerAccount, error)
	ApplyDelta(ctx context.Context, accountID uuid.UUID, delta int64) (bool, error)
	CreateTransaction(ctx context.Context, row *models.LedgerTransaction) error
	GetTransactionByKey(ctx context.Context, accountID uuid.UUID, key string) (*models.LedgerTransaction, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateAccount(ctx context.Context, account *models.LedgerAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) GetAccount(ctx context.Context, id uuid.UUID) (*models.LedgerAccount, error) {
	var account models.LedgerAccount
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) GetBankAccount(ctx context.Context) (*models.LedgerAccount, error) {
	var account models.LedgerAccount
	err := r.db.WithContext(ctx).First(&account, "kind = ?", enums.AccountKindBank).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) GetRiderAccount(ctx context.Context, riderID uuid.UUID) (*models.LedgerAccount, error) {
	var account models.LedgerAccount
	err := r.db.WithContext(ctx).First(&account, "rider_id = ?", riderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ApplyDelta mutates the cached balance with a single conditional update. The
// balance >= 0 guard lives in the WHERE clause so an overdraw simply affects
// zero rows instead of tripping the check constraint.
func (r *repository) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.LedgerAccount{}).
		Where("id = ? AND balance + ? >= 0", accountID, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateTransaction(ctx context.Context, row *models.LedgerTransaction) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) GetTransactionByKey(ctx context.Context, accountID uuid.UUID, key string) (*models.LedgerTransaction, error) {
	var row models.LedgerTransaction
	err := r.db.WithContext(ctx).
		First(&row, "account_id = ? AND idempotency_key = ?", accountID, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LedgerTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)

	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.LedgerTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
