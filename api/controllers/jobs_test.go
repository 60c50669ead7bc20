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

	"github.com/haulboard/haulboard-backend/internal/jobs"
	"github.com/haulboard/haulboard-backend/internal/orchestrator"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
)

func jobPayload(jobID, riderID uuid.UUID) string {
	return `{
		"id": "` + jobID.String() + `",
		"rider_id": "` + riderID.String() + `",
		"source_city": "Bergen",
		"source_company": "Sea Food AS",
		"destination_city": "Oslo",
		"destination_company": "Fresh Mart",
		"cargo_name": "Frozen Fish",
		"distance_km": 850,
		"avg_speed_kmh": 72,
		"top_speed_kmh": 95,
		"truck_damage_percent": 2,
		"trailer_damage_percent": 1,
		"revenue": 14200,
		"completed_at": "2026-08-20T14:00:00Z"
	}`
}

func TestJobIngestReturnsCreated(t *testing.T) {
	jobID := uuid.New()
	riderID := uuid.New()
	instanceID := uuid.New()

	orch := &testOrchestrator{
		jobFn: func(ctx context.Context, input jobs.RecordJobInput) (*orchestrator.JobOutcome, error) {
			if input.ID != jobID || input.RiderID != riderID {
				t.Fatalf("unexpected identifiers %s %s", input.ID, input.RiderID)
			}
			if input.DistanceKm != 850 {
				t.Fatalf("unexpected distance %v", input.DistanceKm)
			}
			return &orchestrator.JobOutcome{
				Job:          &models.JobRecord{ID: jobID, RiderID: riderID, CompletedAt: input.CompletedAt},
				TasksMatched: 1,
				Rewards:      []orchestrator.RewardGrant{{InstanceID: instanceID, Amount: 400}},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(jobPayload(jobID, riderID)))
	resp := httptest.NewRecorder()
	JobIngest(orch, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data jobOutcomeResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.TasksMatched != 1 {
		t.Fatalf("unexpected tasks matched %d", envelope.Data.TasksMatched)
	}
	if len(envelope.Data.Rewards) != 1 || envelope.Data.Rewards[0].Amount != 400 {
		t.Fatalf("unexpected rewards %+v", envelope.Data.Rewards)
	}
}

func TestJobIngestRedeliveryReturnsOK(t *testing.T) {
	jobID := uuid.New()
	riderID := uuid.New()

	orch := &testOrchestrator{
		jobFn: func(ctx context.Context, input jobs.RecordJobInput) (*orchestrator.JobOutcome, error) {
			return &orchestrator.JobOutcome{
				Job:         &models.JobRecord{ID: jobID, RiderID: riderID, CompletedAt: time.Now()},
				Redelivered: true,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(jobPayload(jobID, riderID)))
	resp := httptest.NewRecorder()
	JobIngest(orch, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestJobIngestRejectsMalformedIDs(t *testing.T) {
	jobID := uuid.New()
	payload := strings.Replace(jobPayload(jobID, uuid.New()), jobID.String(), "not-a-uuid", 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(payload))
	resp := httptest.NewRecorder()
	JobIngest(&testOrchestrator{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestJobIngestRejectsNegativeTelemetry(t *testing.T) {
	payload := strings.Replace(jobPayload(uuid.New(), uuid.New()), `"distance_km": 850`, `"distance_km": -1`, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(payload))
	resp := httptest.NewRecorder()
	JobIngest(&testOrchestrator{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
