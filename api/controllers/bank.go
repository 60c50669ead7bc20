package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/api/responses"
	"github.com/haulboard/haulboard-backend/api/validators"
	"github.com/haulboard/haulboard-backend/internal/ledger"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	pkgerrors "github.com/haulboard/haulboard-backend/pkg/errors"
	"github.com/haulboard/haulboard-backend/pkg/logger"
)

// AdminBankBalance returns the shared bank account, seeding it on first read.
func AdminBankBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := svc.EnsureBankAccount(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, accountResponseFromModel(account))
	}
}

type bankBonusRequest struct {
	RiderIDs []string `json:"rider_ids" validate:"required,min=1,dive,required"`
	Amount   int64    `json:"amount" validate:"required,min=1"`
	Title    string   `json:"title" validate:"required"`
}

// AdminBankBonus pays the same bank-funded amount to every listed rider. The
// bank is debited once for the whole batch; all credits land or none do.
func AdminBankBonus(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if idempotencyKey == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}

		var payload bankBonusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		riderIDs := make([]uuid.UUID, 0, len(payload.RiderIDs))
		for _, raw := range payload.RiderIDs {
			id, err := uuid.Parse(strings.TrimSpace(raw))
			if err != nil || id == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid rider id").WithDetails(map[string]any{"rider_id": raw}))
				return
			}
			riderIDs = append(riderIDs, id)
		}

		created, err := svc.BonusMany(r.Context(), ledger.BonusManyInput{
			RiderIDs:       riderIDs,
			Amount:         payload.Amount,
			Title:          validators.SanitizeString(payload.Title, 200),
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]transactionResponse, 0, len(created))
		for i := range created {
			out = append(out, transactionResponseFromModel(&created[i]))
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

type bankDeductRequest struct {
	RiderID string `json:"rider_id" validate:"required"`
	Amount  int64  `json:"amount" validate:"required,min=1"`
	Title   string `json:"title" validate:"required"`
}

// AdminBankDeduct removes tokens from one rider's account. The debit fails
// rather than overdraw.
func AdminBankDeduct(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if idempotencyKey == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}

		var payload bankDeductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		riderID, err := uuid.Parse(strings.TrimSpace(payload.RiderID))
		if err != nil || riderID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid rider_id"))
			return
		}

		account, err := svc.EnsureRiderAccount(r.Context(), riderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Debit(r.Context(), ledger.MutationInput{
			AccountID:      account.ID,
			Amount:         payload.Amount,
			Source:         enums.LedgerSourceBankDeduct,
			Title:          validators.SanitizeString(payload.Title, 200),
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, transactionResponseFromModel(created))
	}
}
