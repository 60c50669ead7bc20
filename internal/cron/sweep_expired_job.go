package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/haulboard/haulboard-backend/internal/orchestrator"
	"github.com/haulboard/haulboard-backend/pkg/metrics"
)

const (
	sweepExpiredJobName   = "contract_expiry_sweep"
	defaultSweepBatchSize = 200
)

// SweepExpiredJob fails overdue contract instances and applies their
// penalties in batches until the backlog is drained.
type SweepExpiredJob struct {
	orchestrator orchestrator.Service
	metrics      *metrics.SweepJobMetrics
	batchSize    int
	now          func() time.Time
}

// SweepExpiredJobParams configure the sweep job.
type SweepExpiredJobParams struct {
	Orchestrator orchestrator.Service
	Metrics      *metrics.SweepJobMetrics
	BatchSize    int
}

// NewSweepExpiredJob builds the expiry sweep job.
func NewSweepExpiredJob(params SweepExpiredJobParams) (*SweepExpiredJob, error) {
	if params.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &SweepExpiredJob{
		orchestrator: params.Orchestrator,
		metrics:      params.Metrics,
		batchSize:    batchSize,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *SweepExpiredJob) Name() string {
	return sweepExpiredJobName
}

// Run drains the expired backlog. The deadline cutoff is fixed once per run so
// instances expiring mid-sweep wait for the next cycle.
func (j *SweepExpiredJob) Run(ctx context.Context) error {
	cutoff := j.now()
	for {
		result, err := j.orchestrator.SweepExpired(ctx, cutoff, j.batchSize)
		if result != nil && j.metrics != nil && result.Expired > 0 {
			j.metrics.AddExpired(result.Expired)
		}
		if err != nil {
			return err
		}
		if result.Scanned < j.batchSize {
			return nil
		}
	}
}
