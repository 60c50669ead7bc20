package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/internal/templates"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
)

type testTemplatesService struct {
	createFn      func(ctx context.Context, input templates.CreateTemplateInput) (*models.ContractTemplate, error)
	deleteFn      func(ctx context.Context, id uuid.UUID) (*templates.DeleteOutcome, error)
	purchasableFn func(ctx context.Context, now time.Time) ([]models.ContractTemplate, error)
}

func (s *testTemplatesService) Create(ctx context.Context, input templates.CreateTemplateInput) (*models.ContractTemplate, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, nil
}
func (s *testTemplatesService) Update(context.Context, uuid.UUID, templates.UpdateTemplateInput) (*models.ContractTemplate, error) {
	return nil, nil
}
func (s *testTemplatesService) Delete(ctx context.Context, id uuid.UUID) (*templates.DeleteOutcome, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return &templates.DeleteOutcome{}, nil
}
func (s *testTemplatesService) Get(context.Context, uuid.UUID) (*models.ContractTemplate, error) {
	return nil, nil
}
func (s *testTemplatesService) GetForPurchase(context.Context, uuid.UUID, time.Time) (*models.ContractTemplate, error) {
	return nil, nil
}
func (s *testTemplatesService) List(context.Context, bool) ([]models.ContractTemplate, error) {
	return nil, nil
}
func (s *testTemplatesService) ListPurchasable(ctx context.Context, now time.Time) ([]models.ContractTemplate, error) {
	if s.purchasableFn != nil {
		return s.purchasableFn(ctx, now)
	}
	return nil, nil
}

const templateCreateBody = `{
	"slug": "bergen-fish-run",
	"title": "Bergen Fish Run",
	"price_tokens": 100,
	"reward_tokens": 400,
	"penalty_tokens": 150,
	"deadline_days": 7,
	"tasks": [
		{"title": "Haul fish out of Bergen", "criteria": {"sourceCity": "Bergen", "cargoName": "Frozen Fish"}}
	]
}`

func TestAdminTemplateCreateSuccess(t *testing.T) {
	templateID := uuid.New()
	svc := &testTemplatesService{
		createFn: func(ctx context.Context, input templates.CreateTemplateInput) (*models.ContractTemplate, error) {
			if input.Slug != "bergen-fish-run" {
				t.Fatalf("unexpected slug %q", input.Slug)
			}
			if len(input.Tasks) != 1 {
				t.Fatalf("unexpected task count %d", len(input.Tasks))
			}
			return &models.ContractTemplate{
				ID:           templateID,
				Slug:         input.Slug,
				Title:        input.Title,
				PriceTokens:  input.PriceTokens,
				RewardTokens: input.RewardTokens,
				DeadlineDays: input.DeadlineDays,
				Active:       true,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/templates", strings.NewReader(templateCreateBody))
	resp := httptest.NewRecorder()
	AdminTemplateCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data templateResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ID != templateID {
		t.Fatalf("unexpected template id %s", envelope.Data.ID)
	}
}

func TestAdminTemplateCreateRejectsMissingTasks(t *testing.T) {
	called := false
	svc := &testTemplatesService{
		createFn: func(context.Context, templates.CreateTemplateInput) (*models.ContractTemplate, error) {
			called = true
			return nil, nil
		},
	}

	body := `{"slug":"empty","title":"Empty","deadline_days":3,"tasks":[]}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/templates", strings.NewReader(body))
	resp := httptest.NewRecorder()
	AdminTemplateCreate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if called {
		t.Fatal("service should not be called for invalid payload")
	}
}

func TestAdminTemplateDeleteReportsDisabled(t *testing.T) {
	svc := &testTemplatesService{
		deleteFn: func(ctx context.Context, id uuid.UUID) (*templates.DeleteOutcome, error) {
			return &templates.DeleteOutcome{Disabled: true}, nil
		},
	}

	templateID := uuid.New()
	req := routeParamRequest(http.MethodDelete, "/api/admin/v1/templates/"+templateID.String(), "templateID", templateID.String())
	resp := httptest.NewRecorder()
	AdminTemplateDelete(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data templates.DeleteOutcome `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data.Disabled {
		t.Fatal("expected disabled outcome")
	}
}

func TestTemplateCatalogListsPurchasable(t *testing.T) {
	svc := &testTemplatesService{
		purchasableFn: func(ctx context.Context, now time.Time) ([]models.ContractTemplate, error) {
			return []models.ContractTemplate{
				{ID: uuid.New(), Slug: "bergen-fish-run", Active: true},
				{ID: uuid.New(), Slug: "oslo-express", Active: true},
			}, nil
		},
	}

	req := riderRequest(http.MethodGet, "/api/v1/templates", uuid.New(), nil)
	resp := httptest.NewRecorder()
	TemplateCatalog(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data []templateResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("unexpected catalog size %d", len(envelope.Data))
	}
}
