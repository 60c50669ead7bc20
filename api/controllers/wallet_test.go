package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/internal/ledger"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	"github.com/haulboard/haulboard-backend/pkg/pagination"
)

type testLedgerService struct {
	ensureRiderFn func(ctx context.Context, riderID uuid.UUID) (*models.LedgerAccount, error)
	listFn        func(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.LedgerTransaction, string, error)
	debitFn       func(ctx context.Context, input ledger.MutationInput) (*models.LedgerTransaction, error)
	bonusManyFn   func(ctx context.Context, input ledger.BonusManyInput) ([]models.LedgerTransaction, error)
}

func (s *testLedgerService) EnsureBankAccount(context.Context) (*models.LedgerAccount, error) {
	return &models.LedgerAccount{ID: uuid.New(), Kind: enums.AccountKindBank, Balance: 1000000}, nil
}
func (s *testLedgerService) EnsureRiderAccount(ctx context.Context, riderID uuid.UUID) (*models.LedgerAccount, error) {
	if s.ensureRiderFn != nil {
		return s.ensureRiderFn(ctx, riderID)
	}
	return &models.LedgerAccount{ID: uuid.New(), Kind: enums.AccountKindRider, RiderID: &riderID}, nil
}
func (s *testLedgerService) GetBankAccount(context.Context) (*models.LedgerAccount, error) {
	return nil, nil
}
func (s *testLedgerService) GetRiderAccount(context.Context, uuid.UUID) (*models.LedgerAccount, error) {
	return nil, nil
}
func (s *testLedgerService) GetBalance(context.Context, uuid.UUID) (int64, error) { return 0, nil }
func (s *testLedgerService) Credit(context.Context, ledger.MutationInput) (*models.LedgerTransaction, error) {
	return nil, nil
}
func (s *testLedgerService) Debit(ctx context.Context, input ledger.MutationInput) (*models.LedgerTransaction, error) {
	if s.debitFn != nil {
		return s.debitFn(ctx, input)
	}
	return nil, nil
}
func (s *testLedgerService) DebitInTx(context.Context, *gorm.DB, ledger.MutationInput) (*models.LedgerTransaction, error) {
	return nil, nil
}
func (s *testLedgerService) DebitUpTo(context.Context, ledger.MutationInput) (*models.LedgerTransaction, error) {
	return nil, nil
}
func (s *testLedgerService) BonusMany(ctx context.Context, input ledger.BonusManyInput) ([]models.LedgerTransaction, error) {
	if s.bonusManyFn != nil {
		return s.bonusManyFn(ctx, input)
	}
	return nil, nil
}
func (s *testLedgerService) FindTransaction(context.Context, uuid.UUID, string) (*models.LedgerTransaction, error) {
	return nil, nil
}
func (s *testLedgerService) ListTransactions(ctx context.Context, accountID uuid.UUID, params pagination.Params) ([]models.LedgerTransaction, string, error) {
	if s.listFn != nil {
		return s.listFn(ctx, accountID, params)
	}
	return nil, "", nil
}

func TestWalletBalanceCreatesAccountOnFirstRead(t *testing.T) {
	riderID := uuid.New()
	accountID := uuid.New()
	svc := &testLedgerService{
		ensureRiderFn: func(ctx context.Context, rid uuid.UUID) (*models.LedgerAccount, error) {
			if rid != riderID {
				t.Fatalf("unexpected rider %s", rid)
			}
			return &models.LedgerAccount{ID: accountID, Kind: enums.AccountKindRider, RiderID: &rid, Balance: 250}, nil
		},
	}

	req := riderRequest(http.MethodGet, "/api/v1/wallet", riderID, nil)
	resp := httptest.NewRecorder()
	WalletBalance(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data accountResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Balance != 250 {
		t.Fatalf("unexpected balance %d", envelope.Data.Balance)
	}
}

func TestWalletTransactionsPassesPagination(t *testing.T) {
	riderID := uuid.New()
	accountID := uuid.New()
	svc := &testLedgerService{
		ensureRiderFn: func(ctx context.Context, rid uuid.UUID) (*models.LedgerAccount, error) {
			return &models.LedgerAccount{ID: accountID, Kind: enums.AccountKindRider, RiderID: &rid}, nil
		},
		listFn: func(ctx context.Context, aid uuid.UUID, params pagination.Params) ([]models.LedgerTransaction, string, error) {
			if aid != accountID {
				t.Fatalf("unexpected account %s", aid)
			}
			if params.Limit != 10 || params.Cursor != "abc" {
				t.Fatalf("unexpected params %+v", params)
			}
			return []models.LedgerTransaction{{ID: uuid.New(), AccountID: aid, Amount: 100}}, "next", nil
		},
	}

	req := riderRequest(http.MethodGet, "/api/v1/wallet/transactions?limit=10&cursor=abc", riderID, nil)
	resp := httptest.NewRecorder()
	WalletTransactions(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data transactionListResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.NextCursor != "next" {
		t.Fatalf("unexpected cursor %q", envelope.Data.NextCursor)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("unexpected item count %d", len(envelope.Data.Items))
	}
}

func TestWalletTransactionsRejectsOversizedLimit(t *testing.T) {
	req := riderRequest(http.MethodGet, "/api/v1/wallet/transactions?limit=5000", uuid.New(), nil)
	resp := httptest.NewRecorder()
	WalletTransactions(&testLedgerService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestAdminBankBonusFansOut(t *testing.T) {
	riders := []uuid.UUID{uuid.New(), uuid.New()}
	svc := &testLedgerService{
		bonusManyFn: func(ctx context.Context, input ledger.BonusManyInput) ([]models.LedgerTransaction, error) {
			if len(input.RiderIDs) != 2 {
				t.Fatalf("unexpected rider count %d", len(input.RiderIDs))
			}
			if input.Amount != 500 {
				t.Fatalf("unexpected amount %d", input.Amount)
			}
			if input.IdempotencyKey != "bonus-2026-08" {
				t.Fatalf("unexpected key %q", input.IdempotencyKey)
			}
			out := make([]models.LedgerTransaction, 0, len(input.RiderIDs))
			for range input.RiderIDs {
				out = append(out, models.LedgerTransaction{ID: uuid.New(), Amount: input.Amount})
			}
			return out, nil
		},
	}

	body := `{"rider_ids":["` + riders[0].String() + `","` + riders[1].String() + `"],"amount":500,"title":"august event"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/bank/bonus", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "bonus-2026-08")
	resp := httptest.NewRecorder()
	AdminBankBonus(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminBankDeductRejectsNonPositiveAmount(t *testing.T) {
	body := `{"rider_id":"` + uuid.NewString() + `","amount":0,"title":"oops"}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/bank/deduct", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "deduct-1")
	resp := httptest.NewRecorder()
	AdminBankDeduct(&testLedgerService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
