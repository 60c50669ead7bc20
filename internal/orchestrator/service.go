// Package orchestrator composes the template catalog, the instance lifecycle
// and the token ledger into the three business flows: purchasing a contract,
// reacting to an ingested job and sweeping expired contracts.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/haulboard/haulboard-backend/internal/contracts"
	"github.com/haulboard/haulboard-backend/internal/criteria"
	"github.com/haulboard/haulboard-backend/internal/jobs"
	"github.com/haulboard/haulboard-backend/internal/ledger"
	"github.com/haulboard/haulboard-backend/internal/templates"
	"github.com/haulboard/haulboard-backend/pkg/db"
	"github.com/haulboard/haulboard-backend/pkg/db/models"
	"github.com/haulboard/haulboard-backend/pkg/enums"
	apperrors "github.com/haulboard/haulboard-backend/pkg/errors"
	"github.com/haulboard/haulboard-backend/pkg/logger"
)

// Service drives the contract engine's cross-aggregate flows.
type Service interface {
	Purchase(ctx context.Context, input PurchaseInput) (*models.ContractInstance, error)
	OnJobArrived(ctx context.Context, input jobs.RecordJobInput) (*JobOutcome, error)
	SweepExpired(ctx context.Context, now time.Time, limit int) (*SweepResult, error)
}

// PurchaseInput carries one purchase request. The idempotency key scopes the
// debit, and through it the whole purchase: replays converge on the original
// instance.
type PurchaseInput struct {
	RiderID        uuid.UUID
	TemplateID     uuid.UUID
	IdempotencyKey string
}

// RewardGrant reports one contract completion paid out by a job arrival.
type RewardGrant struct {
	InstanceID uuid.UUID `json:"instance_id"`
	Amount     int64     `json:"amount"`
}

// JobOutcome summarizes what one ingested job changed.
type JobOutcome struct {
	Job          *models.JobRecord `json:"job"`
	Redelivered  bool              `json:"redelivered"`
	TasksMatched int               `json:"tasks_matched"`
	Rewards      []RewardGrant     `json:"rewards"`
}

// SweepResult summarizes one expiry sweep pass.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Penalized int `json:"penalized"`
}

type service struct {
	templates templates.Service
	contracts contracts.Service
	ledger    ledger.Service
	jobs      jobs.Service
	db        *db.Client
	logger    *logger.Logger
}

// NewService wires the orchestrator with the collaborating services and the
// shared database client carrying the purchase transaction.
func NewService(templatesSvc templates.Service, contractsSvc contracts.Service, ledgerSvc ledger.Service, jobsSvc jobs.Service, dbClient *db.Client, logg *logger.Logger) (Service, error) {
	if templatesSvc == nil {
		return nil, fmt.Errorf("template service required")
	}
	if contractsSvc == nil {
		return nil, fmt.Errorf("contract instance service required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if jobsSvc == nil {
		return nil, fmt.Errorf("job record service required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("database client required")
	}
	return &service{
		templates: templatesSvc,
		contracts: contractsSvc,
		ledger:    ledgerSvc,
		jobs:      jobsSvc,
		db:        dbClient,
		logger:    logg,
	}, nil
}

// freePurchaseNamespace anchors purchases of zero-price templates: with no
// debit transaction to reuse, the instance ID is derived from the rider and
// the purchase key so replays still converge on one instance.
var freePurchaseNamespace = uuid.MustParse("b8f1d1a6-42c9-4c3e-9e57-3a0d6f84c2b1")

// Purchase debits the template price and creates the active instance in one
// database transaction, so a failure on either side rolls back both. The
// instance reuses the debit transaction's ID, so a replayed purchase resolves
// the original debit and from it the original instance.
func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*models.ContractInstance, error) {
	if input.RiderID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "rider id is required")
	}
	if input.TemplateID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "template id is required")
	}
	if input.IdempotencyKey == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "idempotency key is required")
	}

	now := time.Now().UTC()
	template, err := s.templates.GetForPurchase(ctx, input.TemplateID, now)
	if err != nil {
		return nil, err
	}

	account, err := s.ledger.EnsureRiderAccount(ctx, input.RiderID)
	if err != nil {
		return nil, err
	}

	var instance *models.ContractInstance
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		instanceID := freePurchaseID(input)
		if template.PriceTokens > 0 {
			debit, err := s.ledger.DebitInTx(ctx, tx, ledger.MutationInput{
				AccountID:      account.ID,
				Amount:         template.PriceTokens,
				Source:         enums.LedgerSourceContractPurchase,
				RefID:          &template.ID,
				Title:          fmt.Sprintf("purchase: %s", template.Title),
				IdempotencyKey: input.IdempotencyKey,
			})
			if err != nil {
				return err
			}
			instanceID = debit.ID
		}

		existing, err := s.contracts.Find(ctx, instanceID)
		if err != nil {
			return err
		}
		if existing != nil {
			instance = existing
			return nil
		}

		created, err := s.contracts.CreateFromTemplate(ctx, tx, instanceID, input.RiderID, template, now)
		if err != nil {
			return err
		}
		instance = created
		return nil
	})
	if err != nil {
		// a concurrent purchase with this key committed first
		if db.IsUniqueViolation(err, "") {
			if winner, findErr := s.findPurchasedInstance(ctx, account.ID, template, input); findErr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info(s.logger.WithInstanceID(ctx, instance.ID.String()), "contract purchased")
	}
	return instance, nil
}

func freePurchaseID(input PurchaseInput) uuid.UUID {
	return uuid.NewSHA1(freePurchaseNamespace, []byte(input.RiderID.String()+"|"+input.IdempotencyKey))
}

// findPurchasedInstance resolves a purchase key to the instance a concurrent
// call recorded for it.
func (s *service) findPurchasedInstance(ctx context.Context, accountID uuid.UUID, template *models.ContractTemplate, input PurchaseInput) (*models.ContractInstance, error) {
	instanceID := freePurchaseID(input)
	if template.PriceTokens > 0 {
		debit, err := s.ledger.FindTransaction(ctx, accountID, input.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if debit == nil {
			return nil, nil
		}
		instanceID = debit.ID
	}
	return s.contracts.Find(ctx, instanceID)
}

// OnJobArrived records the job and matches it against the rider's active
// contracts. One job may satisfy any number of still-pending tasks; when the
// last task of an instance closes, the instance completes and the reward is
// credited exactly once under the instance ID as idempotency key.
func (s *service) OnJobArrived(ctx context.Context, input jobs.RecordJobInput) (*JobOutcome, error) {
	job, created, err := s.jobs.Record(ctx, input)
	if err != nil {
		return nil, err
	}

	outcome := &JobOutcome{Job: job, Redelivered: !created}

	active, err := s.contracts.ListActiveWithTasks(ctx, job.RiderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range active {
		instance := &active[i]
		if job.CompletedAt.After(instance.DeadlineAt) {
			continue
		}

		matchedAny := false
		for _, task := range instance.Tasks {
			if task.Status != enums.TaskStatusPending {
				continue
			}
			spec, err := criteria.Decode(task.Criteria)
			if err != nil {
				if s.logger != nil {
					s.logger.Error(s.logger.WithInstanceID(ctx, instance.ID.String()), "stored criteria unreadable", err)
				}
				continue
			}
			if !criteria.Evaluate(spec, *job) {
				continue
			}
			done, err := s.contracts.MarkTaskDone(ctx, task.ID, job.ID, now)
			if err != nil {
				return nil, err
			}
			if done {
				outcome.TasksMatched++
				matchedAny = true
			}
		}
		if !matchedAny {
			continue
		}

		grant, err := s.settleIfComplete(ctx, instance, now)
		if err != nil {
			return nil, err
		}
		if grant != nil {
			outcome.Rewards = append(outcome.Rewards, *grant)
		}
	}
	return outcome, nil
}

// settleIfComplete completes the instance once its last task closes and pays
// the reward. The active-to-completed transition admits one winner, and the
// reward credit is keyed by instance ID, so neither can double-fire.
func (s *service) settleIfComplete(ctx context.Context, instance *models.ContractInstance, now time.Time) (*RewardGrant, error) {
	pending, err := s.contracts.PendingTaskCount(ctx, instance.ID)
	if err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, nil
	}

	won, err := s.contracts.Complete(ctx, instance.ID, now)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, nil
	}

	if instance.RewardTokens <= 0 {
		return &RewardGrant{InstanceID: instance.ID, Amount: 0}, nil
	}

	account, err := s.ledger.EnsureRiderAccount(ctx, instance.RiderID)
	if err != nil {
		return nil, err
	}
	row, err := s.ledger.Credit(ctx, ledger.MutationInput{
		AccountID:      account.ID,
		Amount:         instance.RewardTokens,
		Source:         enums.LedgerSourceContractReward,
		RefID:          &instance.ID,
		Title:          fmt.Sprintf("reward: %s", instance.Title),
		IdempotencyKey: instance.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info(s.logger.WithInstanceID(ctx, instance.ID.String()), "contract completed, reward credited")
	}
	return &RewardGrant{InstanceID: instance.ID, Amount: row.Amount}, nil
}

// SweepExpired fails every active instance past its deadline and applies the
// snapshot penalty, clamped to whatever balance the rider still has. Failures
// on individual instances do not stop the sweep; they are collected and
// returned together.
func (s *service) SweepExpired(ctx context.Context, now time.Time, limit int) (*SweepResult, error) {
	expired, err := s.contracts.ListExpired(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(expired)}
	var errs error
	for i := range expired {
		instance := &expired[i]
		won, err := s.contracts.Expire(ctx, instance.ID, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expiring instance %s: %w", instance.ID, err))
			continue
		}
		if !won {
			// completed (or already failed) between listing and update
			continue
		}
		result.Expired++

		if instance.PenaltyTokens <= 0 {
			continue
		}
		account, err := s.ledger.EnsureRiderAccount(ctx, instance.RiderID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("resolving account for instance %s: %w", instance.ID, err))
			continue
		}
		row, err := s.ledger.DebitUpTo(ctx, ledger.MutationInput{
			AccountID:      account.ID,
			Amount:         instance.PenaltyTokens,
			Source:         enums.LedgerSourceContractPenalty,
			RefID:          &instance.ID,
			Title:          fmt.Sprintf("penalty: %s", instance.Title),
			IdempotencyKey: "penalty:" + instance.ID.String(),
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("penalizing instance %s: %w", instance.ID, err))
			continue
		}
		if row != nil {
			result.Penalized++
		}
	}

	if s.logger != nil && result.Expired > 0 {
		s.logger.Info(ctx, fmt.Sprintf("expiry sweep failed %d contracts", result.Expired))
	}
	return result, errs
}
