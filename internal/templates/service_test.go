package templates

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/pkg/db"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	apperrors "github.com/haulboard/haulboard-backend/pkg/errors"
)

func setupTemplatesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS contract_templates (
  id TEXT PRIMARY KEY,
  slug TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  price_tokens INTEGER NOT NULL,
  reward_tokens INTEGER NOT NULL,
  penalty_tokens INTEGER NOT NULL,
  deadline_days INTEGER NOT NULL,
  expires_at DATETIME,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS template_tasks (
  id TEXT PRIMARY KEY,
  template_id TEXT NOT NULL,
  task_order INTEGER NOT NULL,
  title TEXT NOT NULL,
  criteria TEXT,
  UNIQUE (template_id, task_order)
);`, `
CREATE TABLE IF NOT EXISTS contract_instances (
  id TEXT PRIMARY KEY,
  rider_id TEXT NOT NULL,
  template_id TEXT NOT NULL,
  title TEXT NOT NULL,
  reward_tokens INTEGER NOT NULL,
  penalty_tokens INTEGER NOT NULL,
  status TEXT NOT NULL,
  deadline_at DATETIME NOT NULL,
  completed_at DATETIME,
  failed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	t.Cleanup(func() {
		conn.Exec("DELETE FROM contract_instances")
		conn.Exec("DELETE FROM template_tasks")
		conn.Exec("DELETE FROM contract_templates")
	})

	return conn
}

func newTemplatesService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), nil)
	require.NoError(t, err)
	return svc
}

func sampleCreateInput(slug string) CreateTemplateInput {
	return CreateTemplateInput{
		Slug:          slug,
		Title:         "Nordic Fish Run",
		PriceTokens:   100,
		RewardTokens:  400,
		PenaltyTokens: 150,
		DeadlineDays:  7,
		Tasks: []TaskInput{
			{Title: "Haul fish out of Bergen", Criteria: map[string]any{"sourceCity": "Bergen", "cargoName": "fish"}},
			{Title: "Long leg", Criteria: map[string]any{"minDistance": 800.0}},
		},
	}
}

func TestCreateTemplate(t *testing.T) {
	conn := setupTemplatesTestDB(t)
	svc := newTemplatesService(t, conn)
	ctx := context.Background()

	created, err := svc.Create(ctx, sampleCreateInput("nordic-fish-run"))
	require.NoError(t, err)
	assert.True(t, created.Active)
	require.Len(t, created.Tasks, 2)
	assert.Equal(t, 1, created.Tasks[0].TaskOrder)
	assert.Equal(t, 2, created.Tasks[1].TaskOrder)
	assert.JSONEq(t, `{"sourceCity":"Bergen","cargoName":"fish"}`, string(created.Tasks[0].Criteria))

	_, err = svc.Create(ctx, sampleCreateInput("nordic-fish-run"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestCreateTemplateValidation(t *testing.T) {
	conn := setupTemplatesTestDB(t)
	svc := newTemplatesService(t, conn)
	ctx := context.Background()

	mutate := func(fn func(*CreateTemplateInput)) CreateTemplateInput {
		input := sampleCreateInput("broken")
		fn(&input)
		return input
	}

	cases := []struct {
		name  string
		input CreateTemplateInput
	}{
		{"missing slug", mutate(func(i *CreateTemplateInput) { i.Slug = "" })},
		{"missing title", mutate(func(i *CreateTemplateInput) { i.Title = "" })},
		{"negative price", mutate(func(i *CreateTemplateInput) { i.PriceTokens = -1 })},
		{"negative reward", mutate(func(i *CreateTemplateInput) { i.RewardTokens = -1 })},
		{"negative penalty", mutate(func(i *CreateTemplateInput) { i.PenaltyTokens = -1 })},
		{"zero deadline", mutate(func(i *CreateTemplateInput) { i.DeadlineDays = 0 })},
		{"no tasks", mutate(func(i *CreateTemplateInput) { i.Tasks = nil })},
		{"task without title", mutate(func(i *CreateTemplateInput) { i.Tasks[0].Title = "" })},
		{"unknown criteria key", mutate(func(i *CreateTemplateInput) {
			i.Tasks[0].Criteria = map[string]any{"minCargoWeight": 5.0}
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
		})
	}
}

func TestUpdateTemplateReplacesTasks(t *testing.T) {
	conn := setupTemplatesTestDB(t)
	svc := newTemplatesService(t, conn)
	ctx := context.Background()

	created, err := svc.Create(ctx, sampleCreateInput("update-me"))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, UpdateTemplateInput{
		Slug:          "update-me",
		Title:         "Nordic Fish Run v2",
		PriceTokens:   120,
		RewardTokens:  500,
		PenaltyTokens: 150,
		DeadlineDays:  10,
		Active:        true,
		Tasks: []TaskInput{
			{Title: "Single combined leg", Criteria: map[string]any{"minDistance": 1200.0}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Nordic Fish Run v2", updated.Title)
	assert.Equal(t, int64(500), updated.RewardTokens)
	require.Len(t, updated.Tasks, 1)
	assert.Equal(t, "Single combined leg", updated.Tasks[0].Title)

	_, err = svc.Update(ctx, uuid.New(), UpdateTemplateInput{
		Slug: "ghost", Title: "x", DeadlineDays: 1,
		Tasks: []TaskInput{{Title: "t"}},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestDeleteTemplate(t *testing.T) {
	conn := setupTemplatesTestDB(t)
	svc := newTemplatesService(t, conn)
	ctx := context.Background()

	unreferenced, err := svc.Create(ctx, sampleCreateInput("throwaway"))
	require.NoError(t, err)

	outcome, err := svc.Delete(ctx, unreferenced.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Disabled)

	_, err = svc.Get(ctx, unreferenced.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	// a purchased template survives as a disabled row
	referenced, err := svc.Create(ctx, sampleCreateInput("purchased"))
	require.NoError(t, err)
	require.NoError(t, conn.Create(&models.ContractInstance{
		ID:         uuid.New(),
		RiderID:    uuid.New(),
		TemplateID: referenced.ID,
		Title:      referenced.Title,
		Status:     enums.InstanceStatusActive,
		DeadlineAt: time.Now().Add(24 * time.Hour),
	}).Error)

	outcome, err = svc.Delete(ctx, referenced.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Disabled)

	kept, err := svc.Get(ctx, referenced.ID)
	require.NoError(t, err)
	assert.False(t, kept.Active)
}

func TestGetForPurchase(t *testing.T) {
	conn := setupTemplatesTestDB(t)
	svc := newTemplatesService(t, conn)
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	fresh, err := svc.Create(ctx, sampleCreateInput("fresh"))
	require.NoError(t, err)

	got, err := svc.GetForPurchase(ctx, fresh.ID, now)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.ID)

	expiry := now.Add(-time.Hour)
	expiredInput := sampleCreateInput("expired")
	expiredInput.ExpiresAt = &expiry
	expired, err := svc.Create(ctx, expiredInput)
	require.NoError(t, err)

	_, err = svc.GetForPurchase(ctx, expired.ID, now)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))

	disabled, err := svc.Create(ctx, sampleCreateInput("disabled"))
	require.NoError(t, err)
	require.NoError(t, NewRepository(conn).SetActive(ctx, disabled.ID, false))

	_, err = svc.GetForPurchase(ctx, disabled.ID, now)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
}

func TestListPurchasable(t *testing.T) {
	conn := setupTemplatesTestDB(t)
	svc := newTemplatesService(t, conn)
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, sampleCreateInput("listed"))
	require.NoError(t, err)

	expiry := now.Add(-time.Minute)
	expiredInput := sampleCreateInput("listed-expired")
	expiredInput.ExpiresAt = &expiry
	_, err = svc.Create(ctx, expiredInput)
	require.NoError(t, err)

	disabled, err := svc.Create(ctx, sampleCreateInput("listed-disabled"))
	require.NoError(t, err)
	require.NoError(t, NewRepository(conn).SetActive(ctx, disabled.ID, false))

	rows, err := svc.ListPurchasable(ctx, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "listed", rows[0].Slug)
}
