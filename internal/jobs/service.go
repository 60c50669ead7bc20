package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haulboard/haulboard-backend/pkg/db/models"
	apperrors "github.com/haulboard/haulboard-backend/pkg/errors"
)

// Service stores completed delivery telemetry handed over by the ingestion
// pipeline. Records are immutable; a redelivered job keeps its original row.
type Service interface {
	Record(ctx context.Context, input RecordJobInput) (*models.JobRecord, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.JobRecord, error)
	ListByRider(ctx context.Context, riderID uuid.UUID, limit int) ([]models.JobRecord, error)
}

// RecordJobInput carries one completed delivery. The ingestion side assigns
// the ID and keeps it stable across redeliveries.
type RecordJobInput struct {
	ID                   uuid.UUID
	RiderID              uuid.UUID
	SourceCity           string
	SourceCompany        string
	DestinationCity      string
	DestinationCompany   string
	CargoName            string
	DistanceKm           float64
	AvgSpeedKmh          float64
	TopSpeedKmh          float64
	TruckDamagePercent   float64
	TrailerDamagePercent float64
	Revenue              float64
	CompletedAt          time.Time
}

type service struct {
	repo Repository
}

// NewService wires the job record service with its repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("job record repository required")
	}
	return &service{repo: repo}, nil
}

// Record persists the job and reports whether this delivery was the first.
// Redeliveries return the stored row untouched.
func (s *service) Record(ctx context.Context, input RecordJobInput) (*models.JobRecord, bool, error) {
	if input.ID == uuid.Nil {
		return nil, false, apperrors.New(apperrors.CodeValidation, "job id is required")
	}
	if input.RiderID == uuid.Nil {
		return nil, false, apperrors.New(apperrors.CodeValidation, "rider id is required")
	}
	if input.CompletedAt.IsZero() {
		return nil, false, apperrors.New(apperrors.CodeValidation, "completed at is required")
	}
	if input.DistanceKm < 0 || input.Revenue < 0 ||
		input.TruckDamagePercent < 0 || input.TrailerDamagePercent < 0 {
		return nil, false, apperrors.New(apperrors.CodeValidation, "telemetry values must not be negative")
	}

	record := &models.JobRecord{
		ID:                   input.ID,
		RiderID:              input.RiderID,
		SourceCity:           input.SourceCity,
		SourceCompany:        input.SourceCompany,
		DestinationCity:      input.DestinationCity,
		DestinationCompany:   input.DestinationCompany,
		CargoName:            input.CargoName,
		DistanceKm:           input.DistanceKm,
		AvgSpeedKmh:          input.AvgSpeedKmh,
		TopSpeedKmh:          input.TopSpeedKmh,
		TruckDamagePercent:   input.TruckDamagePercent,
		TrailerDamagePercent: input.TrailerDamagePercent,
		Revenue:              input.Revenue,
		CompletedAt:          input.CompletedAt,
	}
	created, err := s.repo.Insert(ctx, record)
	if err != nil {
		return nil, false, err
	}
	if !created {
		stored, err := s.repo.Get(ctx, input.ID)
		if err != nil {
			return nil, false, err
		}
		if stored == nil {
			return nil, false, apperrors.New(apperrors.CodeInternal, "job record vanished during redelivery")
		}
		return stored, false, nil
	}
	return record, true, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.JobRecord, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "job id is required")
	}
	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "job record not found")
	}
	return record, nil
}

func (s *service) ListByRider(ctx context.Context, riderID uuid.UUID, limit int) ([]models.JobRecord, error) {
	if riderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "rider id is required")
	}
	return s.repo.ListByRider(ctx, riderID, limit)
}
