// Package postgres implements the domain repository interfaces on pgx.
// Transactions are carried on the context so a service can group repository
// calls with WithTx without the domain packages importing pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Speakers() *SpeakerRepository {
	return &SpeakerRepository{db: r}
}

func (r *Repository) Capacity() *CapacityRepository {
	return &CapacityRepository{db: r}
}

func (r *Repository) Attendance() *AttendanceRepository {
	return &AttendanceRepository{db: r}
}

func (r *Repository) Invoices() *InvoiceRepository {
	return &InvoiceRepository{db: r}
}

func (r *Repository) Certificates() *CertificateRepository {
	return &CertificateRepository{db: r}
}

func (r *Repository) Webhooks() *WebhookRepository {
	return &WebhookRepository{db: r}
}

func (r *Repository) Reports() *ReportRepository {
	return &ReportRepository{db: r}
}

func (r *Repository) Users() *UserRepository {
	return &UserRepository{db: r}
}

func (r *Repository) Audit() *AuditRepository {
	return &AuditRepository{db: r}
}

func (r *Repository) Localization() *LocalizationRepository {
	return &LocalizationRepository{db: r}
}

type txKey struct{}

// WithTx runs fn inside a single transaction. Nested calls reuse the
// transaction already on the context.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok && tx != nil {
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) queryer(ctx context.Context) queryer {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok && tx != nil {
		return tx
	}
	return r.pool
}
