package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"github.com/tradeconnect/server/internal/domain/capacity"
	"github.com/tradeconnect/server/internal/domain/certs"
	"github.com/tradeconnect/server/internal/domain/webhooks"
	"github.com/tradeconnect/server/internal/metrics"
)

// WebhookDeliveryArgs carries a single pending delivery to attempt.
type WebhookDeliveryArgs struct {
	DeliveryID string `json:"delivery_id"`
}

func (WebhookDeliveryArgs) Kind() string { return JobKindWebhookDelivery }

// CertificateSubmissionArgs carries a certificate to anchor on chain.
type CertificateSubmissionArgs struct {
	CertificateID string `json:"certificate_id"`
}

func (CertificateSubmissionArgs) Kind() string { return JobKindCertificateSubmission }

func (CertificateSubmissionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: "blockchain"}
}

// LockExpirySweepArgs defines the periodic capacity lock sweep.
type LockExpirySweepArgs struct{}

func (LockExpirySweepArgs) Kind() string { return JobKindLockExpirySweep }

// DeliveryCleanupArgs defines the job that prunes old delivered webhooks.
type DeliveryCleanupArgs struct{}

func (DeliveryCleanupArgs) Kind() string { return JobKindDeliveryCleanup }

// WebhookDeliveryWorker pushes one delivery to its endpoint.
type WebhookDeliveryWorker struct {
	river.WorkerDefaults[WebhookDeliveryArgs]
	Deliverer *webhooks.Deliverer
}

func (WebhookDeliveryWorker) Kind() string { return JobKindWebhookDelivery }

func (w WebhookDeliveryWorker) Work(ctx context.Context, job *river.Job[WebhookDeliveryArgs]) error {
	if w.Deliverer == nil {
		return fmt.Errorf("deliverer not configured")
	}
	if job == nil {
		return fmt.Errorf("webhook delivery job missing")
	}
	if job.Args.DeliveryID == "" {
		return fmt.Errorf("delivery ID is required")
	}

	if err := w.Deliverer.Deliver(ctx, job.Args.DeliveryID); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
		return err
	}
	metrics.WebhookDeliveries.WithLabelValues("success").Inc()
	return nil
}

// CertificateSubmissionWorker submits a pending certificate to the gateway.
type CertificateSubmissionWorker struct {
	river.WorkerDefaults[CertificateSubmissionArgs]
	Certificates *certs.Service
}

func (CertificateSubmissionWorker) Kind() string { return JobKindCertificateSubmission }

func (w CertificateSubmissionWorker) Work(ctx context.Context, job *river.Job[CertificateSubmissionArgs]) error {
	if w.Certificates == nil {
		return fmt.Errorf("certificate service not configured")
	}
	if job == nil {
		return fmt.Errorf("certificate submission job missing")
	}
	if job.Args.CertificateID == "" {
		return fmt.Errorf("certificate ID is required")
	}

	if err := w.Certificates.Submit(ctx, job.Args.CertificateID); err != nil {
		metrics.CertificateSubmissions.WithLabelValues("failure").Inc()
		return err
	}
	metrics.CertificateSubmissions.WithLabelValues("success").Inc()
	return nil
}

// LockExpirySweepWorker expires overdue capacity locks and promotes the waitlist.
type LockExpirySweepWorker struct {
	river.WorkerDefaults[LockExpirySweepArgs]
	Capacity *capacity.Service
}

func (LockExpirySweepWorker) Kind() string { return JobKindLockExpirySweep }

func (w LockExpirySweepWorker) Work(ctx context.Context, job *river.Job[LockExpirySweepArgs]) error {
	if w.Capacity == nil {
		return fmt.Errorf("capacity service not configured")
	}

	expired, err := w.Capacity.SweepExpiredLocks(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired locks: %w", err)
	}
	metrics.CapacityLocksExpired.Add(float64(len(expired)))
	return nil
}

// deliveredRetention is how long delivered webhook payloads are kept.
const deliveredRetention = "30 days"

// DeliveryCleanupWorker prunes delivered webhook rows past retention.
type DeliveryCleanupWorker struct {
	river.WorkerDefaults[DeliveryCleanupArgs]
	Pool *pgxpool.Pool
}

func (DeliveryCleanupWorker) Kind() string { return JobKindDeliveryCleanup }

func (w DeliveryCleanupWorker) Work(ctx context.Context, job *river.Job[DeliveryCleanupArgs]) error {
	if w.Pool == nil {
		return fmt.Errorf("database pool not configured")
	}

	const deleteQuery = `
		DELETE FROM webhook_deliveries
		WHERE status = 'delivered' AND delivered_at < now() - $1::interval`
	_, err := w.Pool.Exec(ctx, deleteQuery, deliveredRetention)
	if err != nil {
		return fmt.Errorf("delete old webhook deliveries: %w", err)
	}
	return nil
}

// RegisterWorkers adds every worker the server runs to an existing set.
// The set may already be attached to a client as long as it has not
// started; the services the workers wrap need the client's enqueuer, so
// registration happens after the client exists.
func RegisterWorkers(workers *river.Workers, deliverer *webhooks.Deliverer, certificates *certs.Service, capacitySvc *capacity.Service, pool *pgxpool.Pool) {
	river.AddWorker[WebhookDeliveryArgs](workers, WebhookDeliveryWorker{Deliverer: deliverer})
	river.AddWorker[CertificateSubmissionArgs](workers, CertificateSubmissionWorker{Certificates: certificates})
	river.AddWorker[LockExpirySweepArgs](workers, LockExpirySweepWorker{Capacity: capacitySvc})
	river.AddWorker[DeliveryCleanupArgs](workers, DeliveryCleanupWorker{Pool: pool})
}

// NewWorkers builds a fresh worker set with everything registered.
func NewWorkers(deliverer *webhooks.Deliverer, certificates *certs.Service, capacitySvc *capacity.Service, pool *pgxpool.Pool) *river.Workers {
	workers := river.NewWorkers()
	RegisterWorkers(workers, deliverer, certificates, capacitySvc, pool)
	return workers
}
