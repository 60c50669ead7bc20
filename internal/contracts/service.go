package contracts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	apperrors "github.com/haulboard/haulboard-backend/pkg/errors"
)

// Service owns the contract instance lifecycle. An instance starts active and
// ends exactly once, either completed or failed; everything a running
// contract needs is frozen into the row at creation so later template edits
// cannot reach it.
type Service interface {
	CreateFromTemplate(ctx context.Context, tx *gorm.DB, id, riderID uuid.UUID, template *models.ContractTemplate, now time.Time) (*models.ContractInstance, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ContractInstance, error)
	Find(ctx context.Context, id uuid.UUID) (*models.ContractInstance, error)
	GetOwned(ctx context.Context, riderID, id uuid.UUID) (*models.ContractInstance, error)
	ListByRider(ctx context.Context, riderID uuid.UUID, status *enums.InstanceStatus) ([]models.ContractInstance, error)
	ListActiveWithTasks(ctx context.Context, riderID uuid.UUID) ([]models.ContractInstance, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ContractInstance, error)
	MarkTaskDone(ctx context.Context, taskID, jobID uuid.UUID, now time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	PendingTaskCount(ctx context.Context, instanceID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
}

// NewService wires the contract instance service with its repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("contract instance repository required")
	}
	return &service{repo: repo}, nil
}

// CreateFromTemplate snapshots the template into a new active instance. A
// non-nil id pins the primary key, which lets the purchase flow derive the
// instance identity from its debit transaction and converge on replays. The
// caller may pass an open transaction when the creation has to commit with
// other writes.
func (s *service) CreateFromTemplate(ctx context.Context, tx *gorm.DB, id, riderID uuid.UUID, template *models.ContractTemplate, now time.Time) (*models.ContractInstance, error) {
	if riderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "rider id is required")
	}
	if template == nil {
		return nil, apperrors.New(apperrors.CodeValidation, "template is required")
	}
	if len(template.Tasks) == 0 {
		return nil, apperrors.New(apperrors.CodeStateConflict, "template has no tasks")
	}

	tasks := make([]models.InstanceTask, 0, len(template.Tasks))
	for _, task := range template.Tasks {
		tasks = append(tasks, models.InstanceTask{
			TaskOrder: task.TaskOrder,
			Title:     task.Title,
			Criteria:  task.Criteria,
			Status:    enums.TaskStatusPending,
		})
	}

	instance := &models.ContractInstance{
		ID:            id,
		RiderID:       riderID,
		TemplateID:    template.ID,
		Title:         template.Title,
		RewardTokens:  template.RewardTokens,
		PenaltyTokens: template.PenaltyTokens,
		Status:        enums.InstanceStatusActive,
		DeadlineAt:    now.Add(time.Duration(template.DeadlineDays) * 24 * time.Hour),
		Tasks:         tasks,
	}
	if err := s.repo.WithTx(tx).Create(ctx, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ContractInstance, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "instance id is required")
	}
	instance, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "contract instance not found")
	}
	return instance, nil
}

// Find is the lookup variant that reports absence as nil instead of an error.
func (s *service) Find(ctx context.Context, id uuid.UUID) (*models.ContractInstance, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "instance id is required")
	}
	return s.repo.Get(ctx, id)
}

// GetOwned hides other riders' instances behind a plain not-found.
func (s *service) GetOwned(ctx context.Context, riderID, id uuid.UUID) (*models.ContractInstance, error) {
	instance, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance.RiderID != riderID {
		return nil, apperrors.New(apperrors.CodeNotFound, "contract instance not found")
	}
	return instance, nil
}

func (s *service) ListByRider(ctx context.Context, riderID uuid.UUID, status *enums.InstanceStatus) ([]models.ContractInstance, error) {
	if riderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "rider id is required")
	}
	if status != nil && !status.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid instance status %q", *status))
	}
	return s.repo.ListByRider(ctx, riderID, status)
}

func (s *service) ListActiveWithTasks(ctx context.Context, riderID uuid.UUID) ([]models.ContractInstance, error) {
	if riderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "rider id is required")
	}
	return s.repo.ListActiveByRider(ctx, riderID)
}

func (s *service) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.ContractInstance, error) {
	return s.repo.ListExpired(ctx, now, limit)
}

func (s *service) MarkTaskDone(ctx context.Context, taskID, jobID uuid.UUID, now time.Time) (bool, error) {
	if taskID == uuid.Nil || jobID == uuid.Nil {
		return false, apperrors.New(apperrors.CodeValidation, "task id and job id are required")
	}
	return s.repo.MarkTaskDone(ctx, taskID, jobID, now)
}

// Complete flips active to completed. Returns false when the instance already
// reached a terminal status, which callers treat as "someone else won".
func (s *service) Complete(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, apperrors.New(apperrors.CodeValidation, "instance id is required")
	}
	return s.repo.TransitionFromActive(ctx, id, enums.InstanceStatusCompleted, now)
}

// Expire flips active to failed once the deadline passed.
func (s *service) Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, apperrors.New(apperrors.CodeValidation, "instance id is required")
	}
	return s.repo.TransitionFromActive(ctx, id, enums.InstanceStatusFailed, now)
}

// Cancel fails an active instance on admin request. Unlike the expiry sweep,
// cancellation carries no penalty debit.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	if id == uuid.Nil {
		return false, apperrors.New(apperrors.CodeValidation, "instance id is required")
	}
	return s.repo.TransitionFromActive(ctx, id, enums.InstanceStatusFailed, now)
}

func (s *service) PendingTaskCount(ctx context.Context, instanceID uuid.UUID) (int64, error) {
	if instanceID == uuid.Nil {
		return 0, apperrors.New(apperrors.CodeValidation, "instance id is required")
	}
	return s.repo.CountPendingTasks(ctx, instanceID)
}
