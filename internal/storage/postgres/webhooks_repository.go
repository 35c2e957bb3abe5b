package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tradeconnect/server/internal/domain/webhooks"
)

var _ webhooks.Repository = (*WebhookRepository)(nil)

type WebhookRepository struct {
	db *Repository
}

const endpointColumns = `id, url, secret, event_types, active, created_at, updated_at`

func scanEndpoint(row pgx.Row) (webhooks.Endpoint, error) {
	var ep webhooks.Endpoint
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(
		&ep.ID,
		&ep.URL,
		&ep.Secret,
		&ep.EventTypes,
		&ep.Active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return webhooks.Endpoint{}, err
	}
	ep.CreatedAt = createdAt.Time
	ep.UpdatedAt = updatedAt.Time
	return ep, nil
}

func (r *WebhookRepository) CreateEndpoint(ctx context.Context, ep webhooks.Endpoint) error {
	q := r.db.queryer(ctx)

	_, err := q.Exec(ctx, `
INSERT INTO webhook_endpoints (id, url, secret, event_types, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, ep.ID, ep.URL, ep.Secret, ep.EventTypes, ep.Active, ep.CreatedAt, ep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create webhook endpoint: %w", err)
	}
	return nil
}

func (r *WebhookRepository) GetEndpoint(ctx context.Context, id string) (*webhooks.Endpoint, error) {
	q := r.db.queryer(ctx)

	ep, err := scanEndpoint(q.QueryRow(ctx, `
SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1
`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook endpoint: %w", err)
	}
	return &ep, nil
}

func (r *WebhookRepository) ListEndpoints(ctx context.Context, activeOnly bool) ([]webhooks.Endpoint, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
SELECT `+endpointColumns+`
  FROM webhook_endpoints
 WHERE NOT $1::boolean OR active
 ORDER BY created_at ASC
`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []webhooks.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	return endpoints, nil
}

func (r *WebhookRepository) UpdateEndpoint(ctx context.Context, ep webhooks.Endpoint) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `
UPDATE webhook_endpoints
   SET url = $2, event_types = $3, active = $4, updated_at = $5
 WHERE id = $1
`, ep.ID, ep.URL, ep.EventTypes, ep.Active, ep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhooks.ErrEndpointNotFound
	}
	return nil
}

func (r *WebhookRepository) DeleteEndpoint(ctx context.Context, id string) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhooks.ErrEndpointNotFound
	}
	return nil
}

const deliveryColumns = `id, endpoint_id, event_type, payload, status, attempts, response_code, last_error, created_at, delivered_at`

func scanDelivery(row pgx.Row) (webhooks.Delivery, error) {
	var d webhooks.Delivery
	var lastError *string
	var createdAt, deliveredAt pgtype.Timestamptz
	err := row.Scan(
		&d.ID,
		&d.EndpointID,
		&d.EventType,
		&d.Payload,
		&d.Status,
		&d.Attempts,
		&d.ResponseCode,
		&lastError,
		&createdAt,
		&deliveredAt,
	)
	if err != nil {
		return webhooks.Delivery{}, err
	}
	d.LastError = derefString(lastError)
	d.CreatedAt = createdAt.Time
	if deliveredAt.Valid {
		value := deliveredAt.Time
		d.DeliveredAt = &value
	}
	return d, nil
}

func (r *WebhookRepository) CreateDelivery(ctx context.Context, d webhooks.Delivery) error {
	q := r.db.queryer(ctx)

	_, err := q.Exec(ctx, `
INSERT INTO webhook_deliveries (id, endpoint_id, event_type, payload, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, d.ID, d.EndpointID, d.EventType, d.Payload, d.Status, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create webhook delivery: %w", err)
	}
	return nil
}

func (r *WebhookRepository) GetDelivery(ctx context.Context, id string) (*webhooks.Delivery, error) {
	q := r.db.queryer(ctx)

	d, err := scanDelivery(q.QueryRow(ctx, `
SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = $1
`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook delivery: %w", err)
	}
	return &d, nil
}

func (r *WebhookRepository) ListDeliveries(ctx context.Context, endpointID string, limit int) ([]webhooks.Delivery, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
SELECT `+deliveryColumns+`
  FROM webhook_deliveries
 WHERE ($1 = '' OR endpoint_id::text = $1)
 ORDER BY created_at DESC
 LIMIT $2
`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []webhooks.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	return deliveries, nil
}

func (r *WebhookRepository) MarkDelivered(ctx context.Context, id string, responseCode int, at time.Time) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `
UPDATE webhook_deliveries
   SET status = 'delivered', response_code = $2, delivered_at = $3, attempts = attempts + 1
 WHERE id = $1
`, id, responseCode, at)
	if err != nil {
		return fmt.Errorf("mark delivery delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhooks.ErrDeliveryNotFound
	}
	return nil
}

func (r *WebhookRepository) MarkFailed(ctx context.Context, id string, responseCode int, lastError string, attempts int) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `
UPDATE webhook_deliveries
   SET status = 'failed', response_code = $2, last_error = $3, attempts = $4
 WHERE id = $1
`, id, responseCode, lastError, attempts)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return webhooks.ErrDeliveryNotFound
	}
	return nil
}
