package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindWebhookDelivery       = "webhook_delivery"
	JobKindCertificateSubmission = "certificate_submission"
	JobKindLockExpirySweep       = "lock_expiry_sweep"
	JobKindDeliveryCleanup       = "delivery_cleanup"
)

const (
	WebhookDeliveryMaxAttempts       = 8
	CertificateSubmissionMaxAttempts = 10
	LockExpirySweepMaxAttempts       = 1
	DeliveryCleanupMaxAttempts       = 3
)

// LockSweepInterval is how often expired capacity locks are swept.
const LockSweepInterval = time.Minute

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the retry policy. Zero or negative attempt limits
// fall back to the per-kind defaults.
func NewRetryPolicy(webhookMaxAttempts, certificateMaxAttempts int) *RetryPolicy {
	if webhookMaxAttempts <= 0 {
		webhookMaxAttempts = WebhookDeliveryMaxAttempts
	}
	if certificateMaxAttempts <= 0 {
		certificateMaxAttempts = CertificateSubmissionMaxAttempts
	}
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindWebhookDelivery: {
				MaxAttempts: webhookMaxAttempts,
				BaseDelay:   30 * time.Second,
				MaxDelay:    1 * time.Hour,
			},
			JobKindCertificateSubmission: {
				MaxAttempts: certificateMaxAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    2 * time.Hour,
			},
			JobKindLockExpirySweep: {
				MaxAttempts: LockExpirySweepMaxAttempts,
				BaseDelay:   0,
				MaxDelay:    0,
			},
			JobKindDeliveryCleanup: {
				MaxAttempts: DeliveryCleanupMaxAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    30 * time.Minute,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}

	return time.Now().Add(delay)
}

// InsertOptsForKind returns insert options carrying the kind's attempt limit.
func (p *RetryPolicy) InsertOptsForKind(kind string) river.InsertOpts {
	return river.InsertOpts{MaxAttempts: p.configFor(kind).MaxAttempts}
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(policy *RetryPolicy, workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) *river.Config {
	config := &river.Config{
		Workers:      workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
			// Blockchain gateway is rate limited upstream.
			"blockchain": {MaxWorkers: 1},
		},
		Hooks: hooks,
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = NewAlertingErrorHandler(logger, nil)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, policy *RetryPolicy, workers *river.Workers, logger *slog.Logger, hooks []rivertype.Hook, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(policy, workers, logger, hooks, periodicJobs))
}

// NewPeriodicJobs creates the recurring job schedule:
// - Lock expiry sweep: every minute, runs once on startup
// - Delivery cleanup: daily
func NewPeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(LockSweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return LockExpirySweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return DeliveryCleanupArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: 3, BaseDelay: 30 * time.Second, MaxDelay: 30 * time.Minute}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}
