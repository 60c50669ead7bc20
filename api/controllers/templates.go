package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/api/responses"
	"github.com/haulboard/haulboard-backend/api/validators"
	"github.com/haulboard/haulboard-backend/internal/templates"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
	pkgerrors "github.com/haulboard/haulboard-backend/pkg/errors"
	"github.com/haulboard/haulboard-backend/pkg/logger"
)

type templateTaskRequest struct {
	Title    string         `json:"title" validate:"required"`
	Criteria map[string]any `json:"criteria" validate:"required"`
}

type templateRequest struct {
	Slug          string                `json:"slug" validate:"required"`
	Title         string                `json:"title" validate:"required"`
	PriceTokens   int64                 `json:"price_tokens" validate:"min=0"`
	RewardTokens  int64                 `json:"reward_tokens" validate:"min=0"`
	PenaltyTokens int64                 `json:"penalty_tokens" validate:"min=0"`
	DeadlineDays  int                   `json:"deadline_days" validate:"required,min=1"`
	ExpiresAt     *time.Time            `json:"expires_at"`
	Tasks         []templateTaskRequest `json:"tasks" validate:"required,min=1,dive"`
}

func (r templateRequest) tasks() []templates.TaskInput {
	tasks := make([]templates.TaskInput, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		tasks = append(tasks, templates.TaskInput{
			Title:    validators.SanitizeString(t.Title, 200),
			Criteria: t.Criteria,
		})
	}
	return tasks
}

// AdminTemplateCreate handles adding a new contract template to the catalog.
func AdminTemplateCreate(svc templates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload templateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), templates.CreateTemplateInput{
			Slug:          validators.SanitizeString(payload.Slug, 80),
			Title:         validators.SanitizeString(payload.Title, 200),
			PriceTokens:   payload.PriceTokens,
			RewardTokens:  payload.RewardTokens,
			PenaltyTokens: payload.PenaltyTokens,
			DeadlineDays:  payload.DeadlineDays,
			ExpiresAt:     payload.ExpiresAt,
			Tasks:         payload.tasks(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, templateResponseFromModel(created))
	}
}

// AdminTemplateUpdate replaces a template definition wholesale.
func AdminTemplateUpdate(svc templates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID, err := pathUUID(r, "templateID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload templateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Update(r.Context(), templateID, templates.UpdateTemplateInput{
			Slug:          validators.SanitizeString(payload.Slug, 80),
			Title:         validators.SanitizeString(payload.Title, 200),
			PriceTokens:   payload.PriceTokens,
			RewardTokens:  payload.RewardTokens,
			PenaltyTokens: payload.PenaltyTokens,
			DeadlineDays:  payload.DeadlineDays,
			ExpiresAt:     payload.ExpiresAt,
			Tasks:         payload.tasks(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, templateResponseFromModel(updated))
	}
}

// AdminTemplateDelete removes a template, or disables it when purchased
// instances still reference it.
func AdminTemplateDelete(svc templates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID, err := pathUUID(r, "templateID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Delete(r.Context(), templateID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, outcome)
	}
}

// AdminTemplateGet returns one template with its task list.
func AdminTemplateGet(svc templates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID, err := pathUUID(r, "templateID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		template, err := svc.Get(r.Context(), templateID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, templateResponseFromModel(template))
	}
}

// AdminTemplateList returns the full catalog, optionally only active entries.
func AdminTemplateList(svc templates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := strings.EqualFold(r.URL.Query().Get("active"), "true")

		items, err := svc.List(r.Context(), activeOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, templateListResponse(items))
	}
}

// TemplateCatalog is the rider-facing listing: active, unexpired templates
// that can be purchased right now.
func TemplateCatalog(svc templates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListPurchasable(r.Context(), time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, templateListResponse(items))
	}
}

type templateTaskResponse struct {
	ID        uuid.UUID       `json:"id"`
	TaskOrder int             `json:"task_order"`
	Title     string          `json:"title"`
	Criteria  json.RawMessage `json:"criteria"`
}

type templateResponse struct {
	ID            uuid.UUID              `json:"id"`
	Slug          string                 `json:"slug"`
	Title         string                 `json:"title"`
	PriceTokens   int64                  `json:"price_tokens"`
	RewardTokens  int64                  `json:"reward_tokens"`
	PenaltyTokens int64                  `json:"penalty_tokens"`
	DeadlineDays  int                    `json:"deadline_days"`
	ExpiresAt     *time.Time             `json:"expires_at"`
	Active        bool                   `json:"active"`
	Tasks         []templateTaskResponse `json:"tasks"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func templateResponseFromModel(m *models.ContractTemplate) templateResponse {
	tasks := make([]templateTaskResponse, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		tasks = append(tasks, templateTaskResponse{
			ID:        t.ID,
			TaskOrder: t.TaskOrder,
			Title:     t.Title,
			Criteria:  t.Criteria,
		})
	}
	return templateResponse{
		ID:            m.ID,
		Slug:          m.Slug,
		Title:         m.Title,
		PriceTokens:   m.PriceTokens,
		RewardTokens:  m.RewardTokens,
		PenaltyTokens: m.PenaltyTokens,
		DeadlineDays:  m.DeadlineDays,
		ExpiresAt:     m.ExpiresAt,
		Active:        m.Active,
		Tasks:         tasks,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func templateListResponse(items []models.ContractTemplate) []templateResponse {
	out := make([]templateResponse, 0, len(items))
	for i := range items {
		out = append(out, templateResponseFromModel(&items[i]))
	}
	return out
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid identifier").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}
