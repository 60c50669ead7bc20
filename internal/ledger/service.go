package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/pkg/config"
	"github.com/haulboard/haulboard-backend/pkg/db"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	apperrors "github.com/haulboard/haulboard-backend/pkg/errors"
	"github.com/haulboard/haulboard-backend/pkg/logger"
	"github.com/haulboard/haulboard-backend/pkg/pagination"
)

const (
	bankOpeningKey = "bank:opening-balance"

	// debitUpToAttempts bounds the read-then-update retry loop when the
	// balance moves under a clamped debit.
	debitUpToAttempts = 3
)

// Service exposes the token ledger. Every mutation carries a caller-supplied
// idempotency key; replaying a key returns the transaction the first call
// recorded, without moving the balance again.
type Service interface {
	EnsureBankAccount(ctx context.Context) (*models.LedgerAccount, error)
	EnsureRiderAccount(ctx context.Context, riderID uuid.UUID) (*models.LedgerAccount, error)
	GetBankAccount(ctx context.Context) (*models.LedgerAccount, error)
	GetRiderAccount(ctx context.Context, riderID uuid.UUID) (*models.LedgerAccount, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)
	Credit(ctx context.Context, input MutationInput) (*models.LedgerTransaction, error)
	Debit(ctx context.Context, input MutationInput) (*models.LedgerTransaction, error)
	DebitInTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*models.LedgerTransaction, error)
	DebitUpTo(ctx context.Context, input MutationInput) (*models.LedgerTransaction, error)
	BonusMany(ctx context.Context, input BonusManyInput) ([]models.LedgerTransaction, error)
	FindTransaction(ctx context.Context, accountID uuid.UUID, key string) (*models.LedgerTransaction, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.LedgerTransaction, string, error)
}

// MutationInput carries one balance mutation request.
type MutationInput struct {
	AccountID      uuid.UUID
	Amount         int64
	Source         enums.LedgerSource
	RefID          *uuid.UUID
	Title          string
	IdempotencyKey string
}

// BonusManyInput pays the same bank-funded amount to every listed rider
// atomically.
type BonusManyInput struct {
	RiderIDs       []uuid.UUID
	Amount         int64
	Title          string
	IdempotencyKey string
}

type service struct {
	repo   Repository
	db     *db.Client
	bank   config.BankConfig
	logger *logger.Logger
}

// NewService wires the ledger service with its repository and the shared
// database client used for multi-step transactions.
func NewService(repo Repository, dbClient *db.Client, bank config.BankConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("database client required")
	}
	return &service{repo: repo, db: dbClient, bank: bank, logger: logg}, nil
}

func (s *service) EnsureBankAccount(ctx context.Context) (*models.LedgerAccount, error) {
	existing, err := s.repo.GetBankAccount(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	account := &models.LedgerAccount{Kind: enums.AccountKindBank}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.CreateAccount(ctx, account); err != nil {
			return err
		}
		if s.bank.OpeningBalance <= 0 {
			return nil
		}
		_, err := s.applyMutation(ctx, txRepo, enums.LedgerEntryTypeCredit, MutationInput{
			AccountID:      account.ID,
			Amount:         s.bank.OpeningBalance,
			Source:         enums.LedgerSourceOpeningBalance,
			Title:          "bank opening balance",
			IdempotencyKey: bankOpeningKey,
		})
		return err
	})
	if err != nil {
		// lost the singleton race, another process seeded the bank
		if db.IsUniqueViolation(err, "") {
			return s.repo.GetBankAccount(ctx)
		}
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info(ctx, "bank account seeded")
	}
	return s.repo.GetAccount(ctx, account.ID)
}

func (s *service) EnsureRiderAccount(ctx context.Context, riderID uuid.UUID) (*models.LedgerAccount, error) {
	if riderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "rider id is required")
	}

	existing, err := s.repo.GetRiderAccount(ctx, riderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	rid := riderID
	account := &models.LedgerAccount{Kind: enums.AccountKindRider, RiderID: &rid}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		if db.IsUniqueViolation(err, "") {
			return s.repo.GetRiderAccount(ctx, riderID)
		}
		return nil, err
	}
	return account, nil
}

func (s *service) GetBankAccount(ctx context.Context) (*models.LedgerAccount, error) {
	account, err := s.repo.GetBankAccount(ctx)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "bank account not found")
	}
	return account, nil
}

func (s *service) GetRiderAccount(ctx context.Context, riderID uuid.UUID) (*models.LedgerAccount, error) {
	if riderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "rider id is required")
	}
	account, err := s.repo.GetRiderAccount(ctx, riderID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "ledger account not found")
	}
	return account, nil
}

func (s *service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if accountID == uuid.Nil {
		return 0, apperrors.New(apperrors.CodeValidation, "account id is required")
	}
	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if account == nil {
		return 0, apperrors.New(apperrors.CodeNotFound, "ledger account not found")
	}
	return account.Balance, nil
}

func (s *service) Credit(ctx context.Context, input MutationInput) (*models.LedgerTransaction, error) {
	if err := validateMutation(input); err != nil {
		return nil, err
	}
	var row *models.LedgerTransaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		row, err = s.applyMutation(ctx, s.repo.WithTx(tx), enums.LedgerEntryTypeCredit, input)
		return err
	})
	if err != nil {
		return s.resolveReplayRace(ctx, input, err)
	}
	return row, nil
}

func (s *service) Debit(ctx context.Context, input MutationInput) (*models.LedgerTransaction, error) {
	if err := validateMutation(input); err != nil {
		return nil, err
	}
	var row *models.LedgerTransaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		row, err = s.applyMutation(ctx, s.repo.WithTx(tx), enums.LedgerEntryTypeDebit, input)
		return err
	})
	if err != nil {
		return s.resolveReplayRace(ctx, input, err)
	}
	return row, nil
}

// DebitInTx applies a debit through the caller's open transaction, so the
// debit commits or rolls back together with the caller's other writes.
func (s *service) DebitInTx(ctx context.Context, tx *gorm.DB, input MutationInput) (*models.LedgerTransaction, error) {
	if tx == nil {
		return nil, apperrors.New(apperrors.CodeValidation, "transaction handle is required")
	}
	if err := validateMutation(input); err != nil {
		return nil, err
	}
	return s.applyMutation(ctx, s.repo.WithTx(tx), enums.LedgerEntryTypeDebit, input)
}

// DebitUpTo debits min(input.Amount, balance). A zero clamp records nothing
// and returns a nil transaction.
func (s *service) DebitUpTo(ctx context.Context, input MutationInput) (*models.LedgerTransaction, error) {
	if err := validateMutation(input); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < debitUpToAttempts; attempt++ {
		existing, err := s.repo.GetTransactionByKey(ctx, input.AccountID, input.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		account, err := s.repo.GetAccount(ctx, input.AccountID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, apperrors.New(apperrors.CodeNotFound, "ledger account not found")
		}

		clamped := input
		if account.Balance < clamped.Amount {
			clamped.Amount = account.Balance
		}
		if clamped.Amount == 0 {
			return nil, nil
		}

		var row *models.LedgerTransaction
		err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			row, err = s.applyMutation(ctx, s.repo.WithTx(tx), enums.LedgerEntryTypeDebit, clamped)
			return err
		})
		if err == nil {
			return row, nil
		}
		// the balance dropped below the clamp between read and write
		if apperrors.IsCode(err, apperrors.CodeInsufficientBalance) {
			continue
		}
		return nil, err
	}
	return nil, apperrors.New(apperrors.CodeConflict, "ledger account contended, retry later")
}

func (s *service) BonusMany(ctx context.Context, input BonusManyInput) ([]models.LedgerTransaction, error) {
	if len(input.RiderIDs) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "at least one rider id is required")
	}
	if input.Amount <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "amount must be positive")
	}
	if input.IdempotencyKey == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "idempotency key is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.RiderIDs))
	for _, riderID := range input.RiderIDs {
		if riderID == uuid.Nil {
			return nil, apperrors.New(apperrors.CodeValidation, "rider id is required")
		}
		if _, dup := seen[riderID]; dup {
			return nil, apperrors.New(apperrors.CodeValidation, "duplicate rider id")
		}
		seen[riderID] = struct{}{}
	}

	title := input.Title
	if title == "" {
		title = "bank bonus"
	}

	total := input.Amount * int64(len(input.RiderIDs))

	var rows []models.LedgerTransaction
	run := func() error {
		return s.db.WithTx(ctx, func(tx *gorm.DB) error {
			txRepo := s.repo.WithTx(tx)
			rows = rows[:0]

			bank, err := txRepo.GetBankAccount(ctx)
			if err != nil {
				return err
			}
			if bank == nil {
				return apperrors.New(apperrors.CodeNotFound, "bank account not found")
			}

			// a replayed key must describe the batch it originally paid for
			existing, err := txRepo.GetTransactionByKey(ctx, bank.ID, input.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil && existing.Amount != total {
				return apperrors.New(apperrors.CodeIdempotency, "idempotency key reused with a different batch")
			}

			if _, err := s.applyMutation(ctx, txRepo, enums.LedgerEntryTypeDebit, MutationInput{
				AccountID:      bank.ID,
				Amount:         total,
				Source:         enums.LedgerSourceBankBonus,
				Title:          title,
				IdempotencyKey: input.IdempotencyKey,
			}); err != nil {
				return err
			}

			for _, riderID := range input.RiderIDs {
				account, err := txRepo.GetRiderAccount(ctx, riderID)
				if err != nil {
					return err
				}
				if account == nil {
					return apperrors.New(apperrors.CodeNotFound, "ledger account not found").
						WithDetails(map[string]string{"rider_id": riderID.String()})
				}
				row, err := s.applyMutation(ctx, txRepo, enums.LedgerEntryTypeCredit, MutationInput{
					AccountID:      account.ID,
					Amount:         input.Amount,
					Source:         enums.LedgerSourceBankBonus,
					Title:          title,
					IdempotencyKey: input.IdempotencyKey + ":" + account.ID.String(),
				})
				if err != nil {
					return err
				}
				rows = append(rows, *row)
			}
			return nil
		})
	}

	err := run()
	if err != nil && db.IsUniqueViolation(err, "") {
		// a concurrent batch with this key committed first; rerunning
		// resolves every mutation to the rows it recorded
		err = run()
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindTransaction resolves an idempotency key to its recorded transaction,
// nil when the key was never used.
func (s *service) FindTransaction(ctx context.Context, accountID uuid.UUID, key string) (*models.LedgerTransaction, error) {
	if accountID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "account id is required")
	}
	if key == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "idempotency key is required")
	}
	return s.repo.GetTransactionByKey(ctx, accountID, key)
}

func (s *service) ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.LedgerTransaction, string, error) {
	if accountID == uuid.Nil {
		return nil, "", apperrors.New(apperrors.CodeValidation, "account id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListTransactions(ctx, accountID, limit+1, cursor)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// resolveReplayRace handles two callers racing on the same idempotency key:
// the loser's insert hits the unique constraint, so the transaction the winner
// recorded is returned instead of the violation.
func (s *service) resolveReplayRace(ctx context.Context, input MutationInput, cause error) (*models.LedgerTransaction, error) {
	if !db.IsUniqueViolation(cause, "") {
		return nil, cause
	}
	existing, err := s.repo.GetTransactionByKey(ctx, input.AccountID, input.IdempotencyKey)
	if err != nil || existing == nil {
		return nil, cause
	}
	return existing, nil
}

// applyMutation runs the idempotency lookup, the conditional balance update
// and the transaction insert. Callers supply the repository already bound to
// an open transaction when atomicity across calls matters.
func (s *service) applyMutation(ctx context.Context, repo Repository, entryType enums.LedgerEntryType, input MutationInput) (*models.LedgerTransaction, error) {
	existing, err := repo.GetTransactionByKey(ctx, input.AccountID, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	delta := input.Amount
	if entryType == enums.LedgerEntryTypeDebit {
		delta = -input.Amount
	}

	ok, err := repo.ApplyDelta(ctx, input.AccountID, delta)
	if err != nil {
		return nil, err
	}
	if !ok {
		account, err := repo.GetAccount(ctx, input.AccountID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, apperrors.New(apperrors.CodeNotFound, "ledger account not found")
		}
		return nil, apperrors.New(apperrors.CodeInsufficientBalance, "balance too low").
			WithDetails(map[string]int64{"balance": account.Balance, "requested": input.Amount})
	}

	account, err := repo.GetAccount(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	row := &models.LedgerTransaction{
		AccountID:      input.AccountID,
		Type:           entryType,
		Amount:         input.Amount,
		BalanceAfter:   account.Balance,
		Source:         input.Source,
		RefID:          input.RefID,
		Title:          input.Title,
		IdempotencyKey: input.IdempotencyKey,
	}
	if err := repo.CreateTransaction(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func validateMutation(input MutationInput) error {
	if input.AccountID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "account id is required")
	}
	if input.Amount <= 0 {
		return apperrors.New(apperrors.CodeValidation, "amount must be positive")
	}
	if input.IdempotencyKey == "" {
		return apperrors.New(apperrors.CodeValidation, "idempotency key is required")
	}
	if !input.Source.IsValid() {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid ledger source %q", input.Source))
	}
	return nil
}
