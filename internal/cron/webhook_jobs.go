package cron

import (
	"context"
	"fmt"

	"github.com/lazydrop/lazydrop-billing/internal/webhooks/processor"
)

// webhookSweeper is the processor surface the sweep jobs drive.
type webhookSweeper interface {
	ProcessReceived(ctx context.Context) (processor.SweepResult, error)
	RetryFailed(ctx context.Context) (processor.SweepResult, error)
	RecoverStuck(ctx context.Context) (processor.SweepResult, error)
}

// WebhookJobsParams configures the three webhook ledger sweeps.
type WebhookJobsParams struct {
	Processor webhookSweeper
}

// WebhookJobs groups the ledger sweeps. They run without a lock: the
// per-row claim is what keeps concurrent workers apart.
type WebhookJobs struct {
	Received Job
	Failed   Job
	Stuck    Job
}

// NewWebhookJobs builds the received, failed and stuck sweep jobs.
func NewWebhookJobs(params WebhookJobsParams) (*WebhookJobs, error) {
	if params.Processor == nil {
		return nil, fmt.Errorf("webhook processor required")
	}
	return &WebhookJobs{
		Received: &webhookSweepJob{name: "webhooks-received", sweep: params.Processor.ProcessReceived},
		Failed:   &webhookSweepJob{name: "webhooks-retry-failed", sweep: params.Processor.RetryFailed},
		Stuck:    &webhookSweepJob{name: "webhooks-recover-stuck", sweep: params.Processor.RecoverStuck},
	}, nil
}

// webhookSweepJob adapts one processor sweep to a Job. The processor logs
// the sweep summary itself.
type webhookSweepJob struct {
	name  string
	sweep func(ctx context.Context) (processor.SweepResult, error)
}

func (j *webhookSweepJob) Name() string { return j.name }

func (j *webhookSweepJob) Run(ctx context.Context) error {
	if _, err := j.sweep(ctx); err != nil {
		return fmt.Errorf("%s sweep: %w", j.name, err)
	}
	return nil
}
