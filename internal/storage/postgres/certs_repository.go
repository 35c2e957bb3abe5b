package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tradeconnect/server/internal/domain/certs"
)

var _ certs.Repository = (*CertificateRepository)(nil)

type CertificateRepository struct {
	db *Repository
}

const certificateColumns = `id, registration_id, event_ulid, attendee_name, content_hash,
       network, tx_id, status, attempts, last_error, created_at, confirmed_at`

func scanCertificate(row pgx.Row) (certs.Certificate, error) {
	var cert certs.Certificate
	var txID, lastError *string
	var createdAt, confirmedAt pgtype.Timestamptz
	err := row.Scan(
		&cert.ID,
		&cert.RegistrationID,
		&cert.EventULID,
		&cert.AttendeeName,
		&cert.ContentHash,
		&cert.Network,
		&txID,
		&cert.Status,
		&cert.Attempts,
		&lastError,
		&createdAt,
		&confirmedAt,
	)
	if err != nil {
		return certs.Certificate{}, err
	}
	cert.TxID = derefString(txID)
	cert.LastError = derefString(lastError)
	cert.CreatedAt = createdAt.Time
	if confirmedAt.Valid {
		value := confirmedAt.Time
		cert.ConfirmedAt = &value
	}
	return cert, nil
}

func (r *CertificateRepository) Create(ctx context.Context, cert certs.Certificate) error {
	q := r.db.queryer(ctx)

	_, err := q.Exec(ctx, `
INSERT INTO blockchain_certificates
  (id, registration_id, event_ulid, attendee_name, content_hash, network, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`,
		cert.ID,
		cert.RegistrationID,
		strings.ToUpper(cert.EventULID),
		cert.AttendeeName,
		cert.ContentHash,
		cert.Network,
		cert.Status,
		cert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

func (r *CertificateRepository) Get(ctx context.Context, id string) (*certs.Certificate, error) {
	q := r.db.queryer(ctx)

	cert, err := scanCertificate(q.QueryRow(ctx, `
SELECT `+certificateColumns+` FROM blockchain_certificates WHERE id = $1
`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return &cert, nil
}

func (r *CertificateRepository) List(ctx context.Context, eventULID string, status string, limit int) ([]certs.Certificate, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
SELECT `+certificateColumns+`
  FROM blockchain_certificates
  WHERE ($1 = '' OR event_ulid = $1)
    AND ($2 = '' OR status = $2)
 ORDER BY created_at DESC
 LIMIT $3
`, strings.ToUpper(eventULID), status, limit)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var certificates []certs.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		certificates = append(certificates, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certificates, nil
}

func (r *CertificateRepository) MarkConfirmed(ctx context.Context, id, txID string, at time.Time) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `
UPDATE blockchain_certificates
   SET status = 'confirmed', tx_id = $2, confirmed_at = $3, last_error = NULL
 WHERE id = $1
`, id, txID, at)
	if err != nil {
		return fmt.Errorf("mark certificate confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return certs.ErrCertificateNotFound
	}
	return nil
}

func (r *CertificateRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `
UPDATE blockchain_certificates SET status = 'failed', last_error = $2 WHERE id = $1
`, id, lastError)
	if err != nil {
		return fmt.Errorf("mark certificate failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return certs.ErrCertificateNotFound
	}
	return nil
}

func (r *CertificateRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	q := r.db.queryer(ctx)

	var attempts int
	err := q.QueryRow(ctx, `
UPDATE blockchain_certificates SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts
`, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, certs.ErrCertificateNotFound
		}
		return 0, fmt.Errorf("increment certificate attempts: %w", err)
	}
	return attempts, nil
}
