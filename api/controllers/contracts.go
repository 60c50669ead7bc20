package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/api/middleware"
	"github.com/haulboard/haulboard-backend/api/responses"
	"github.com/haulboard/haulboard-backend/api/validators"
	"github.com/haulboard/haulboard-backend/internal/contracts"
	"github.com/haulboard/haulboard-backend/internal/orchestrator"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	pkgerrors "github.com/haulboard/haulboard-backend/pkg/errors"
	"github.com/haulboard/haulboard-backend/pkg/logger"
)

type purchaseRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
}

// ContractPurchase buys one contract instance from a template. The
// Idempotency-Key header scopes the debit so retries converge on the
// original instance.
func ContractPurchase(orch orchestrator.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		riderID, err := riderFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if idempotencyKey == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
			return
		}

		var payload purchaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		templateID, err := uuid.Parse(strings.TrimSpace(payload.TemplateID))
		if err != nil || templateID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid template_id"))
			return
		}

		instance, err := orch.Purchase(r.Context(), orchestrator.PurchaseInput{
			RiderID:        riderID,
			TemplateID:     templateID,
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, instanceResponseFromModel(instance))
	}
}

// ContractList returns the rider's contract instances, optionally filtered
// by lifecycle status.
func ContractList(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		riderID, err := riderFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.InstanceStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, parseErr := enums.ParseInstanceStatus(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter"))
				return
			}
			status = &parsed
		}

		items, err := svc.ListByRider(r.Context(), riderID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]instanceResponse, 0, len(items))
		for i := range items {
			out = append(out, instanceResponseFromModel(&items[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// ContractDetail returns one owned contract instance with its tasks.
func ContractDetail(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		riderID, err := riderFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contractID, err := pathUUID(r, "contractID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		instance, err := svc.GetOwned(r.Context(), riderID, contractID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, instanceResponseFromModel(instance))
	}
}

// AdminContractCancel fails an active contract on admin request without
// charging the penalty.
func AdminContractCancel(svc contracts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contractID, err := pathUUID(r, "contractID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		canceled, err := svc.Cancel(r.Context(), contractID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !canceled {
			instance, findErr := svc.Find(r.Context(), contractID)
			if findErr != nil {
				responses.WriteError(r.Context(), logg, w, findErr)
				return
			}
			if instance == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "contract instance not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "contract instance is not active"))
			return
		}

		responses.WriteSuccess(w, map[string]bool{"canceled": true})
	}
}

type instanceTaskResponse struct {
	ID           uuid.UUID        `json:"id"`
	TaskOrder    int              `json:"task_order"`
	Title        string           `json:"title"`
	Criteria     json.RawMessage  `json:"criteria"`
	Status       enums.TaskStatus `json:"status"`
	MatchedJobID *uuid.UUID       `json:"matched_job_id"`
	DoneAt       *time.Time       `json:"done_at"`
}

type instanceResponse struct {
	ID            uuid.UUID              `json:"id"`
	RiderID       uuid.UUID              `json:"rider_id"`
	TemplateID    uuid.UUID              `json:"template_id"`
	Title         string                 `json:"title"`
	RewardTokens  int64                  `json:"reward_tokens"`
	PenaltyTokens int64                  `json:"penalty_tokens"`
	Status        enums.InstanceStatus   `json:"status"`
	DeadlineAt    time.Time              `json:"deadline_at"`
	CompletedAt   *time.Time             `json:"completed_at"`
	FailedAt      *time.Time             `json:"failed_at"`
	Tasks         []instanceTaskResponse `json:"tasks"`
	CreatedAt     time.Time              `json:"created_at"`
}

func instanceResponseFromModel(m *models.ContractInstance) instanceResponse {
	tasks := make([]instanceTaskResponse, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		tasks = append(tasks, instanceTaskResponse{
			ID:           t.ID,
			TaskOrder:    t.TaskOrder,
			Title:        t.Title,
			Criteria:     t.Criteria,
			Status:       t.Status,
			MatchedJobID: t.MatchedJobID,
			DoneAt:       t.DoneAt,
		})
	}
	return instanceResponse{
		ID:            m.ID,
		RiderID:       m.RiderID,
		TemplateID:    m.TemplateID,
		Title:         m.Title,
		RewardTokens:  m.RewardTokens,
		PenaltyTokens: m.PenaltyTokens,
		Status:        m.Status,
		DeadlineAt:    m.DeadlineAt,
		CompletedAt:   m.CompletedAt,
		FailedAt:      m.FailedAt,
		Tasks:         tasks,
		CreatedAt:     m.CreatedAt,
	}
}

func riderFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.RiderIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "rider context missing")
	}
	riderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid rider context")
	}
	return riderID, nil
}
