package templates

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/pkg/db/models"
)

// Repository manages persistence for contract templates and their tasks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, template *models.ContractTemplate) error
	Update(ctx context.Context, template *models.ContractTemplate) error
	Get(ctx context.Context, id uuid.UUID) (*models.ContractTemplate, error)
	GetBySlug(ctx context.Context, slug string) (*models.ContractTemplate, error)
	List(ctx context.Context, activeOnly bool) ([]models.ContractTemplate, error)
	ReplaceTasks(ctx context.Context, templateID uuid.UUID, tasks []models.TemplateTask) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountInstances(ctx context.Context, templateID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a template repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, template *models.ContractTemplate) error {
	if template.ID == uuid.Nil {
		template.ID = uuid.New()
	}
	for i := range template.Tasks {
		if template.Tasks[i].ID == uuid.Nil {
			template.Tasks[i].ID = uuid.New()
		}
		template.Tasks[i].TemplateID = template.ID
	}
	return r.db.WithContext(ctx).Create(template).Error
}

func (r *repository) Update(ctx context.Context, template *models.ContractTemplate) error {
	return r.db.WithContext(ctx).
		Model(&models.ContractTemplate{}).
		Where("id = ?", template.ID).
		Updates(map[string]any{
			"slug":           template.Slug,
			"title":          template.Title,
			"price_tokens":   template.PriceTokens,
			"reward_tokens":  template.RewardTokens,
			"penalty_tokens": template.PenaltyTokens,
			"deadline_days":  template.DeadlineDays,
			"expires_at":     template.ExpiresAt,
			"active":         template.Active,
		}).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.ContractTemplate, error) {
	var template models.ContractTemplate
	err := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("task_order ASC") }).
		First(&template, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *repository) GetBySlug(ctx context.Context, slug string) (*models.ContractTemplate, error) {
	var template models.ContractTemplate
	err := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("task_order ASC") }).
		First(&template, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]models.ContractTemplate, error) {
	query := r.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("task_order ASC") }).
		Order("created_at DESC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var rows []models.ContractTemplate
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ReplaceTasks(ctx context.Context, templateID uuid.UUID, tasks []models.TemplateTask) error {
	if err := r.db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Delete(&models.TemplateTask{}).Error; err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}
	for i := range tasks {
		if tasks[i].ID == uuid.Nil {
			tasks[i].ID = uuid.New()
		}
		tasks[i].TemplateID = templateID
	}
	return r.db.WithContext(ctx).Create(&tasks).Error
}

func (r *repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.ContractTemplate{}).
		Where("id = ?", id).
		Update("active", active).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Where("template_id = ?", id).
		Delete(&models.TemplateTask{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.ContractTemplate{}).Error
}

func (r *repository) CountInstances(ctx context.Context, templateID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ContractInstance{}).
		Where("template_id = ?", templateID).
		Count(&count).Error
	return count, err
}
