package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/api/responses"
	"github.com/haulboard/haulboard-backend/api/validators"
	"github.com/haulboard/haulboard-backend/internal/jobs"
	"github.com/haulboard/haulboard-backend/internal/orchestrator"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
	pkgerrors "github.com/haulboard/haulboard-backend/pkg/errors"
	"github.com/haulboard/haulboard-backend/pkg/logger"
	"github.com/haulboard/haulboard-backend/pkg/pagination"
)

type jobIngestRequest struct {
	ID                   string    `json:"id" validate:"required"`
	RiderID              string    `json:"rider_id" validate:"required"`
	SourceCity           string    `json:"source_city"`
	SourceCompany        string    `json:"source_company"`
	DestinationCity      string    `json:"destination_city"`
	DestinationCompany   string    `json:"destination_company"`
	CargoName            string    `json:"cargo_name"`
	DistanceKm           float64   `json:"distance_km" validate:"min=0"`
	AvgSpeedKmh          float64   `json:"avg_speed_kmh" validate:"min=0"`
	TopSpeedKmh          float64   `json:"top_speed_kmh" validate:"min=0"`
	TruckDamagePercent   float64   `json:"truck_damage_percent" validate:"min=0"`
	TrailerDamagePercent float64   `json:"trailer_damage_percent" validate:"min=0"`
	Revenue              float64   `json:"revenue" validate:"min=0"`
	CompletedAt          time.Time `json:"completed_at" validate:"required"`
}

// JobIngest records one completed delivery and settles any contracts it
// touches. Delivery is keyed by job ID: redeliveries are acknowledged
// without re-settling.
func JobIngest(orch orchestrator.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload jobIngestRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		jobID, err := uuid.Parse(strings.TrimSpace(payload.ID))
		if err != nil || jobID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid job id"))
			return
		}
		riderID, err := uuid.Parse(strings.TrimSpace(payload.RiderID))
		if err != nil || riderID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid rider_id"))
			return
		}

		outcome, err := orch.OnJobArrived(r.Context(), jobs.RecordJobInput{
			ID:                   jobID,
			RiderID:              riderID,
			SourceCity:           payload.SourceCity,
			SourceCompany:        payload.SourceCompany,
			DestinationCity:      payload.DestinationCity,
			DestinationCompany:   payload.DestinationCompany,
			CargoName:            payload.CargoName,
			DistanceKm:           payload.DistanceKm,
			AvgSpeedKmh:          payload.AvgSpeedKmh,
			TopSpeedKmh:          payload.TopSpeedKmh,
			TruckDamagePercent:   payload.TruckDamagePercent,
			TrailerDamagePercent: payload.TrailerDamagePercent,
			Revenue:              payload.Revenue,
			CompletedAt:          payload.CompletedAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if outcome.Redelivered {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, jobOutcomeResponse{
			Job:          jobResponseFromModel(outcome.Job),
			Redelivered:  outcome.Redelivered,
			TasksMatched: outcome.TasksMatched,
			Rewards:      outcome.Rewards,
		})
	}
}

// JobList returns the rider's recorded deliveries, newest first.
func JobList(svc jobs.Service, logg *logger.Logger) http.HandlerFunc {
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

		items, err := svc.ListByRider(r.Context(), riderID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]jobResponse, 0, len(items))
		for i := range items {
			out = append(out, jobResponseFromModel(&items[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type jobOutcomeResponse struct {
	Job          jobResponse                `json:"job"`
	Redelivered  bool                       `json:"redelivered"`
	TasksMatched int                        `json:"tasks_matched"`
	Rewards      []orchestrator.RewardGrant `json:"rewards"`
}

type jobResponse struct {
	ID                   uuid.UUID `json:"id"`
	RiderID              uuid.UUID `json:"rider_id"`
	SourceCity           string    `json:"source_city"`
	SourceCompany        string    `json:"source_company"`
	DestinationCity      string    `json:"destination_city"`
	DestinationCompany   string    `json:"destination_company"`
	CargoName            string    `json:"cargo_name"`
	DistanceKm           float64   `json:"distance_km"`
	AvgSpeedKmh          float64   `json:"avg_speed_kmh"`
	TopSpeedKmh          float64   `json:"top_speed_kmh"`
	TruckDamagePercent   float64   `json:"truck_damage_percent"`
	TrailerDamagePercent float64   `json:"trailer_damage_percent"`
	Revenue              float64   `json:"revenue"`
	CompletedAt          time.Time `json:"completed_at"`
}

func jobResponseFromModel(m *models.JobRecord) jobResponse {
	if m == nil {
		return jobResponse{}
	}
	return jobResponse{
		ID:                   m.ID,
		RiderID:              m.RiderID,
		SourceCity:           m.SourceCity,
		SourceCompany:        m.SourceCompany,
		DestinationCity:      m.DestinationCity,
		DestinationCompany:   m.DestinationCompany,
		CargoName:            m.CargoName,
		DistanceKm:           m.DistanceKm,
		AvgSpeedKmh:          m.AvgSpeedKmh,
		TopSpeedKmh:          m.TopSpeedKmh,
		TruckDamagePercent:   m.TruckDamagePercent,
		TrailerDamagePercent: m.TrailerDamagePercent,
		Revenue:              m.Revenue,
		CompletedAt:          m.CompletedAt,
	}
}
