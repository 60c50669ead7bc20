package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/api/responses"
	"github.com/haulboard/haulboard-backend/api/validators"
	"github.com/haulboard/haulboard-backend/internal/ledger"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	"github.com/haulboard/haulboard-backend/pkg/logger"
	"github.com/haulboard/haulboard-backend/pkg/pagination"
)

// WalletBalance returns the rider's token account, creating it on first read.
func WalletBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		riderID, err := riderFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		account, err := svc.EnsureRiderAccount(r.Context(), riderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, accountResponseFromModel(account))
	}
}

// WalletTransactions lists the rider's ledger history, newest first, with
// cursor pagination.
func WalletTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		riderID, err := riderFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		account, err := svc.EnsureRiderAccount(r.Context(), riderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, next, err := svc.ListTransactions(r.Context(), account.ID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]transactionResponse, 0, len(items))
		for i := range items {
			out = append(out, transactionResponseFromModel(&items[i]))
		}
		responses.WriteSuccess(w, transactionListResponse{Items: out, NextCursor: next})
	}
}

type accountResponse struct {
	ID      uuid.UUID  `json:"id"`
	Kind    string     `json:"kind"`
	RiderID *uuid.UUID `json:"rider_id,omitempty"`
	Balance int64      `json:"balance"`
}

func accountResponseFromModel(m *models.LedgerAccount) accountResponse {
	return accountResponse{
		ID:      m.ID,
		Kind:    string(m.Kind),
		RiderID: m.RiderID,
		Balance: m.Balance,
	}
}

type transactionResponse struct {
	ID             uuid.UUID             `json:"id"`
	Type           enums.LedgerEntryType `json:"type"`
	Amount         int64                 `json:"amount"`
	BalanceAfter   int64                 `json:"balance_after"`
	Source         enums.LedgerSource    `json:"source"`
	RefID          *uuid.UUID            `json:"ref_id,omitempty"`
	Title          string                `json:"title"`
	IdempotencyKey string                `json:"idempotency_key"`
	CreatedAt      time.Time             `json:"created_at"`
}

func transactionResponseFromModel(m *models.LedgerTransaction) transactionResponse {
	return transactionResponse{
		ID:             m.ID,
		Type:           m.Type,
		Amount:         m.Amount,
		BalanceAfter:   m.BalanceAfter,
		Source:         m.Source,
		RefID:          m.RefID,
		Title:          m.Title,
		IdempotencyKey: m.IdempotencyKey,
		CreatedAt:      m.CreatedAt,
	}
}

type transactionListResponse struct {
	Items      []transactionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}
