package contracts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
)

// Repository manages persistence for contract instances and their snapshot
// tasks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, instance *models.ContractInstance) error
	Get(ctx context.Context, id uuid.UUID) (*models.ContractInstance, error)
	ListByRider(ctx context.Context, riderID uuid.UUID, status *enums.InstanceStatus) ([]models.ContractInstance, error)
	ListActiveByRider(ctx context.Context, riderID uuid.UUID) ([]models.ContractInstance, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ContractInstance, error)
	TransitionFromActive(ctx context.Context, id uuid.UUID, to enums.InstanceStatus, at time.Time) (bool, error)
	MarkTaskDone(ctx context.Context, taskID, jobID uuid.UUID, at time.Time) (bool, error)
	CountPendingTasks(ctx context.Context, instanceID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an instance repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, instance *models.ContractInstance) error {
	if instance.ID == uuid.Nil {
		instance.ID = uuid.New()
	}
	for i := range instance.Tasks {
		if instance.Tasks[i].ID == uuid.Nil {
			instance.Tasks[i].ID = uuid.New()
		}
		instance.Tasks[i].InstanceID = instance.ID
	}
	return r.db.WithContext(ctx).Create(instance).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.ContractInstance, error) {
	var instance models.ContractInstance
	err := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("task_order ASC") }).
		First(&instance, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *repository) ListByRider(ctx context.Context, riderID uuid.UUID, status *enums.InstanceStatus) ([]models.ContractInstance, error) {
	query := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("task_order ASC") }).
		Where("rider_id = ?", riderID).
		Order("created_at DESC")
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var rows []models.ContractInstance
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListActiveByRider(ctx context.Context, riderID uuid.UUID) ([]models.ContractInstance, error) {
	active := enums.InstanceStatusActive
	return r.ListByRider(ctx, riderID, &active)
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ContractInstance, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND deadline_at < ?", enums.InstanceStatusActive, now).
		Order("deadline_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.ContractInstance
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TransitionFromActive flips an active instance to a terminal status. The
// status guard in the WHERE clause is what serializes competing completions,
// expiries and failures: exactly one caller sees a row affected.
func (r *repository) TransitionFromActive(ctx context.Context, id uuid.UUID, to enums.InstanceStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": at}
	switch to {
	case enums.InstanceStatusCompleted:
		updates["completed_at"] = at
	case enums.InstanceStatusFailed:
		updates["failed_at"] = at
	}

	res := r.db.WithContext(ctx).Model(&models.ContractInstance{}).
		Where("id = ? AND status = ?", id, enums.InstanceStatusActive).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkTaskDone records which job satisfied a pending task. The pending guard
// keeps a redelivered job from overwriting the original match.
func (r *repository) MarkTaskDone(ctx context.Context, taskID, jobID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.InstanceTask{}).
		Where("id = ? AND status = ?", taskID, enums.TaskStatusPending).
		Updates(map[string]any{
			"status":         enums.TaskStatusDone,
			"matched_job_id": jobID,
			"done_at":        at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CountPendingTasks(ctx context.Context, instanceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InstanceTask{}).
		Where("instance_id = ? AND status = ?", instanceID, enums.TaskStatusPending).
		Count(&count).Error
	return count, err
}
