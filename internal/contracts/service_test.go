package contracts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	apperrors "github.com/haulboard/haulboard-backend/pkg/errors"
)

func setupContractsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
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
);`, `
CREATE TABLE IF NOT EXISTS instance_tasks (
  id TEXT PRIMARY KEY,
  instance_id TEXT NOT NULL,
  task_order INTEGER NOT NULL,
  title TEXT NOT NULL,
  criteria TEXT,
  status TEXT NOT NULL,
  matched_job_id TEXT,
  done_at DATETIME,
  UNIQUE (instance_id, task_order)
);`}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}

	t.Cleanup(func() {
		conn.Exec("DELETE FROM instance_tasks")
		conn.Exec("DELETE FROM contract_instances")
	})

	return conn
}

func newContractsService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc
}

func sampleTemplate() *models.ContractTemplate {
	return &models.ContractTemplate{
		ID:            uuid.New(),
		Slug:          "nordic-fish-run",
		Title:         "Nordic Fish Run",
		PriceTokens:   100,
		RewardTokens:  400,
		PenaltyTokens: 150,
		DeadlineDays:  7,
		Active:        true,
		Tasks: []models.TemplateTask{
			{ID: uuid.New(), TaskOrder: 1, Title: "Out of Bergen", Criteria: json.RawMessage(`{"sourceCity":"Bergen"}`)},
			{ID: uuid.New(), TaskOrder: 2, Title: "Long leg", Criteria: json.RawMessage(`{"minDistance":800}`)},
		},
	}
}

func TestCreateFromTemplateSnapshots(t *testing.T) {
	conn := setupContractsTestDB(t)
	svc := newContractsService(t, conn)
	ctx := context.Background()
	riderID := uuid.New()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	template := sampleTemplate()
	instance, err := svc.CreateFromTemplate(ctx, nil, uuid.Nil, riderID, template, now)
	require.NoError(t, err)
	assert.Equal(t, enums.InstanceStatusActive, instance.Status)
	assert.Equal(t, template.RewardTokens, instance.RewardTokens)
	assert.Equal(t, template.PenaltyTokens, instance.PenaltyTokens)
	assert.Equal(t, now.Add(7*24*time.Hour), instance.DeadlineAt)

	stored, err := svc.Get(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, stored.Tasks, 2)
	assert.Equal(t, enums.TaskStatusPending, stored.Tasks[0].Status)
	assert.JSONEq(t, `{"sourceCity":"Bergen"}`, string(stored.Tasks[0].Criteria))

	// later template edits must not reach the snapshot
	template.RewardTokens = 9000
	again, err := svc.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), again.RewardTokens)
}

func TestCreateFromTemplateValidation(t *testing.T) {
	conn := setupContractsTestDB(t)
	svc := newContractsService(t, conn)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.CreateFromTemplate(ctx, nil, uuid.Nil, uuid.Nil, sampleTemplate(), now)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = svc.CreateFromTemplate(ctx, nil, uuid.Nil, uuid.New(), nil, now)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	empty := sampleTemplate()
	empty.Tasks = nil
	_, err = svc.CreateFromTemplate(ctx, nil, uuid.Nil, uuid.New(), empty, now)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
}

func TestGetOwned(t *testing.T) {
	conn := setupContractsTestDB(t)
	svc := newContractsService(t, conn)
	ctx := context.Background()
	owner := uuid.New()

	instance, err := svc.CreateFromTemplate(ctx, nil, uuid.Nil, owner, sampleTemplate(), time.Now())
	require.NoError(t, err)

	got, err := svc.GetOwned(ctx, owner, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, instance.ID, got.ID)

	_, err = svc.GetOwned(ctx, uuid.New(), instance.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestMarkTaskDoneOnce(t *testing.T) {
	conn := setupContractsTestDB(t)
	svc := newContractsService(t, conn)
	ctx := context.Background()
	now := time.Now()

	instance, err := svc.CreateFromTemplate(ctx, nil, uuid.Nil, uuid.New(), sampleTemplate(), now)
	require.NoError(t, err)
	taskID := instance.Tasks[0].ID
	jobID := uuid.New()

	done, err := svc.MarkTaskDone(ctx, taskID, jobID, now)
	require.NoError(t, err)
	assert.True(t, done)

	// a second job cannot overwrite the original match
	done, err = svc.MarkTaskDone(ctx, taskID, uuid.New(), now)
	require.NoError(t, err)
	assert.False(t, done)

	stored, err := svc.Get(ctx, instance.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Tasks[0].MatchedJobID)
	assert.Equal(t, jobID, *stored.Tasks[0].MatchedJobID)

	pending, err := svc.PendingTaskCount(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestTerminalTransitionsAreExclusive(t *testing.T) {
	conn := setupContractsTestDB(t)
	svc := newContractsService(t, conn)
	ctx := context.Background()
	now := time.Now()

	instance, err := svc.CreateFromTemplate(ctx, nil, uuid.Nil, uuid.New(), sampleTemplate(), now)
	require.NoError(t, err)

	completed, err := svc.Complete(ctx, instance.ID, now)
	require.NoError(t, err)
	assert.True(t, completed)

	// the sweep arriving late loses the race
	expired, err := svc.Expire(ctx, instance.ID, now)
	require.NoError(t, err)
	assert.False(t, expired)

	stored, err := svc.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InstanceStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.FailedAt)

	// repeated completion is a no-op as well
	completed, err = svc.Complete(ctx, instance.ID, now)
	require.NoError(t, err)
	assert.False(t, completed)
}

func TestCancelFailsActiveInstance(t *testing.T) {
	conn := setupContractsTestDB(t)
	svc := newContractsService(t, conn)
	ctx := context.Background()
	now := time.Now()

	instance, err := svc.CreateFromTemplate(ctx, nil, uuid.Nil, uuid.New(), sampleTemplate(), now)
	require.NoError(t, err)

	canceled, err := svc.Cancel(ctx, instance.ID, now)
	require.NoError(t, err)
	assert.True(t, canceled)

	stored, err := svc.Get(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.InstanceStatusFailed, stored.Status)
	require.NotNil(t, stored.FailedAt)

	// already settled, nothing left to cancel
	canceled, err = svc.Cancel(ctx, instance.ID, now)
	require.NoError(t, err)
	assert.False(t, canceled)
}

func TestListExpired(t *testing.T) {
	conn := setupContractsTestDB(t)
	svc := newContractsService(t, conn)
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	overdue := sampleTemplate()
	overdue.DeadlineDays = 1
	expiredInstance, err := svc.CreateFromTemplate(ctx, nil, uuid.Nil, uuid.New(), overdue, now.Add(-48*time.Hour))
	require.NoError(t, err)

	_, err = svc.CreateFromTemplate(ctx, nil, uuid.Nil, uuid.New(), sampleTemplate(), now)
	require.NoError(t, err)

	rows, err := svc.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, expiredInstance.ID, rows[0].ID)

	// already failed instances drop out of the sweep set
	ok, err := svc.Expire(ctx, expiredInstance.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err = svc.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListByRiderStatusFilter(t *testing.T) {
	conn := setupContractsTestDB(t)
	svc := newContractsService(t, conn)
	ctx := context.Background()
	rider := uuid.New()
	now := time.Now()

	first, err := svc.CreateFromTemplate(ctx, nil, uuid.Nil, rider, sampleTemplate(), now)
	require.NoError(t, err)
	_, err = svc.CreateFromTemplate(ctx, nil, uuid.Nil, rider, sampleTemplate(), now)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, first.ID, now)
	require.NoError(t, err)

	all, err := svc.ListByRider(ctx, rider, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active := enums.InstanceStatusActive
	activeRows, err := svc.ListByRider(ctx, rider, &active)
	require.NoError(t, err)
	require.Len(t, activeRows, 1)
	assert.NotEqual(t, first.ID, activeRows[0].ID)

	bogus := enums.InstanceStatus("paused")
	_, err = svc.ListByRider(ctx, rider, &bogus)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}
