package jobs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/haulboard/haulboard-backend/pkg/db/models"
)

// Repository manages persistence for ingested job records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, record *models.JobRecord) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.JobRecord, error)
	ListByRider(ctx context.Context, riderID uuid.UUID, limit int) ([]models.JobRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a job record repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Insert stores the record, ignoring redeliveries. The ingestion side owns the
// primary key, so a second delivery of the same job collides on ID and is
// skipped. Returns whether a row was actually written.
func (r *repository) Insert(ctx context.Context, record *models.JobRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.JobRecord, error) {
	var record models.JobRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByRider(ctx context.Context, riderID uuid.UUID, limit int) ([]models.JobRecord, error) {
	query := r.db.WithContext(ctx).
		Where("rider_id = ?", riderID).
		Order("completed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.JobRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
