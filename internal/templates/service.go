package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/internal/criteria"
	"github.com/haulboard/haulboard-backend/pkg/db"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
	apperrors "github.com/haulboard/haulboard-backend/pkg/errors"
	"github.com/haulboard/haulboard-backend/pkg/logger"
)

// Service owns the contract template catalog. Templates are definitions only;
// purchased instances carry frozen copies, so catalog edits never reach a
// contract already in flight.
type Service interface {
	Create(ctx context.Context, input CreateTemplateInput) (*models.ContractTemplate, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateTemplateInput) (*models.ContractTemplate, error)
	Delete(ctx context.Context, id uuid.UUID) (*DeleteOutcome, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ContractTemplate, error)
	GetForPurchase(ctx context.Context, id uuid.UUID, now time.Time) (*models.ContractTemplate, error)
	List(ctx context.Context, activeOnly bool) ([]models.ContractTemplate, error)
	ListPurchasable(ctx context.Context, now time.Time) ([]models.ContractTemplate, error)
}

// TaskInput describes one template task; list position fixes the order.
type TaskInput struct {
	Title    string         `json:"title"`
	Criteria map[string]any `json:"criteria"`
}

// CreateTemplateInput carries a new catalog entry.
type CreateTemplateInput struct {
	Slug          string      `json:"slug"`
	Title         string      `json:"title"`
	PriceTokens   int64       `json:"price_tokens"`
	RewardTokens  int64       `json:"reward_tokens"`
	PenaltyTokens int64       `json:"penalty_tokens"`
	DeadlineDays  int         `json:"deadline_days"`
	ExpiresAt     *time.Time  `json:"expires_at"`
	Tasks         []TaskInput `json:"tasks"`
}

// UpdateTemplateInput replaces the template definition wholesale.
type UpdateTemplateInput struct {
	Slug          string      `json:"slug"`
	Title         string      `json:"title"`
	PriceTokens   int64       `json:"price_tokens"`
	RewardTokens  int64       `json:"reward_tokens"`
	PenaltyTokens int64       `json:"penalty_tokens"`
	DeadlineDays  int         `json:"deadline_days"`
	ExpiresAt     *time.Time  `json:"expires_at"`
	Active        bool        `json:"active"`
	Tasks         []TaskInput `json:"tasks"`
}

// DeleteOutcome reports whether the template was removed or only disabled
// because purchased instances still reference it.
type DeleteOutcome struct {
	Disabled bool `json:"disabled"`
}

type service struct {
	repo   Repository
	db     *db.Client
	logger *logger.Logger
}

// NewService wires the template service with its repository.
func NewService(repo Repository, dbClient *db.Client, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("template repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("database client required")
	}
	return &service{repo: repo, db: dbClient, logger: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateTemplateInput) (*models.ContractTemplate, error) {
	tasks, err := validateDefinition(input.Slug, input.Title, input.PriceTokens, input.RewardTokens,
		input.PenaltyTokens, input.DeadlineDays, input.Tasks)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetBySlug(ctx, input.Slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.New(apperrors.CodeConflict, "template slug already in use")
	}

	template := &models.ContractTemplate{
		Slug:          input.Slug,
		Title:         input.Title,
		PriceTokens:   input.PriceTokens,
		RewardTokens:  input.RewardTokens,
		PenaltyTokens: input.PenaltyTokens,
		DeadlineDays:  input.DeadlineDays,
		ExpiresAt:     input.ExpiresAt,
		Active:        true,
		Tasks:         tasks,
	}
	if err := s.repo.Create(ctx, template); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, apperrors.New(apperrors.CodeConflict, "template slug already in use")
		}
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info(ctx, "contract template created")
	}
	return s.repo.Get(ctx, template.ID)
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateTemplateInput) (*models.ContractTemplate, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "template id is required")
	}
	tasks, err := validateDefinition(input.Slug, input.Title, input.PriceTokens, input.RewardTokens,
		input.PenaltyTokens, input.DeadlineDays, input.Tasks)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "template not found")
	}

	if input.Slug != current.Slug {
		other, err := s.repo.GetBySlug(ctx, input.Slug)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, apperrors.New(apperrors.CodeConflict, "template slug already in use")
		}
	}

	updated := &models.ContractTemplate{
		ID:            id,
		Slug:          input.Slug,
		Title:         input.Title,
		PriceTokens:   input.PriceTokens,
		RewardTokens:  input.RewardTokens,
		PenaltyTokens: input.PenaltyTokens,
		DeadlineDays:  input.DeadlineDays,
		ExpiresAt:     input.ExpiresAt,
		Active:        input.Active,
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.Update(ctx, updated); err != nil {
			return err
		}
		return txRepo.ReplaceTasks(ctx, id, tasks)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes an unreferenced template outright. Once any rider has
// purchased it the row must survive for instance lineage, so it is disabled
// instead.
func (s *service) Delete(ctx context.Context, id uuid.UUID) (*DeleteOutcome, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "template id is required")
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "template not found")
	}

	count, err := s.repo.CountInstances(ctx, id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		if err := s.repo.SetActive(ctx, id, false); err != nil {
			return nil, err
		}
		return &DeleteOutcome{Disabled: true}, nil
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return &DeleteOutcome{Disabled: false}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ContractTemplate, error) {
	if id == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "template id is required")
	}
	template, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "template not found")
	}
	return template, nil
}

// GetForPurchase enforces the purchasable gate: the template must exist, be
// active and not be past its own expiry.
func (s *service) GetForPurchase(ctx context.Context, id uuid.UUID, now time.Time) (*models.ContractTemplate, error) {
	template, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !template.Active {
		return nil, apperrors.New(apperrors.CodeStateConflict, "template is disabled")
	}
	if template.ExpiresAt != nil && !template.ExpiresAt.After(now) {
		return nil, apperrors.New(apperrors.CodeStateConflict, "template offer has expired")
	}
	return template, nil
}

func (s *service) List(ctx context.Context, activeOnly bool) ([]models.ContractTemplate, error) {
	return s.repo.List(ctx, activeOnly)
}

func (s *service) ListPurchasable(ctx context.Context, now time.Time) ([]models.ContractTemplate, error) {
	rows, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, err
	}
	purchasable := rows[:0]
	for _, row := range rows {
		if row.ExpiresAt != nil && !row.ExpiresAt.After(now) {
			continue
		}
		purchasable = append(purchasable, row)
	}
	return purchasable, nil
}

func validateDefinition(slug, title string, price, reward, penalty int64, deadlineDays int, tasks []TaskInput) ([]models.TemplateTask, error) {
	if slug == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "slug is required")
	}
	if title == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "title is required")
	}
	if price < 0 || reward < 0 || penalty < 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "token amounts must not be negative")
	}
	if deadlineDays < 1 {
		return nil, apperrors.New(apperrors.CodeValidation, "deadline must be at least one day")
	}
	if len(tasks) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "at least one task is required")
	}

	rows := make([]models.TemplateTask, 0, len(tasks))
	for i, task := range tasks {
		if task.Title == "" {
			return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("task %d title is required", i+1))
		}
		if err := criteria.Validate(task.Criteria); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, err, fmt.Sprintf("task %d criteria invalid", i+1))
		}
		var raw json.RawMessage
		if len(task.Criteria) > 0 {
			encoded, err := json.Marshal(task.Criteria)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeValidation, err, "encoding task criteria")
			}
			raw = encoded
		}
		rows = append(rows, models.TemplateTask{
			TaskOrder: i + 1,
			Title:     task.Title,
			Criteria:  raw,
		})
	}
	return rows, nil
}
