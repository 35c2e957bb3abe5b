package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

type jobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Enqueuer inserts background jobs for the domain services. It satisfies
// both the webhook and certificate enqueue interfaces.
type Enqueuer struct {
	client jobInserter
	policy *RetryPolicy
}

// NewEnqueuer wraps a River client with the retry policy's attempt limits.
func NewEnqueuer(client *river.Client[pgx.Tx], policy *RetryPolicy) *Enqueuer {
	return &Enqueuer{client: client, policy: policy}
}

func (e *Enqueuer) EnqueueWebhookDelivery(ctx context.Context, deliveryID string) error {
	opts := e.policy.InsertOptsForKind(JobKindWebhookDelivery)
	_, err := e.client.Insert(ctx, WebhookDeliveryArgs{DeliveryID: deliveryID}, &opts)
	if err != nil {
		return fmt.Errorf("enqueue webhook delivery: %w", err)
	}
	return nil
}

func (e *Enqueuer) EnqueueCertificateSubmission(ctx context.Context, certificateID string) error {
	opts := e.policy.InsertOptsForKind(JobKindCertificateSubmission)
	opts.Queue = "blockchain"
	_, err := e.client.Insert(ctx, CertificateSubmissionArgs{CertificateID: certificateID}, &opts)
	if err != nil {
		return fmt.Errorf("enqueue certificate submission: %w", err)
	}
	return nil
}
