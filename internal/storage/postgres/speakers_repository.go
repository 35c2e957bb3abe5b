package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tradeconnect/server/internal/api/pagination"
	"github.com/tradeconnect/server/internal/domain/speakers"
)

var _ speakers.Repository = (*SpeakerRepository)(nil)

type SpeakerRepository struct {
	db *Repository
}

type speakerRow struct {
	ID        string
	ULID      string
	FirstName string
	LastName  string
	Email     string
	Bio       *string
	Category  string
	BaseRate  float64
	Verified  bool
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
}

func (row speakerRow) toDomain() speakers.Speaker {
	return speakers.Speaker{
		ID:        row.ID,
		ULID:      row.ULID,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Email:     row.Email,
		Bio:       derefString(row.Bio),
		Category:  row.Category,
		BaseRate:  row.BaseRate,
		Verified:  row.Verified,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

const speakerColumns = `id, ulid, first_name, last_name, email, bio, category, base_rate, verified, created_at, updated_at`

func scanSpeaker(row pgx.Row) (speakers.Speaker, error) {
	var data speakerRow
	err := row.Scan(
		&data.ID,
		&data.ULID,
		&data.FirstName,
		&data.LastName,
		&data.Email,
		&data.Bio,
		&data.Category,
		&data.BaseRate,
		&data.Verified,
		&data.CreatedAt,
		&data.UpdatedAt,
	)
	if err != nil {
		return speakers.Speaker{}, err
	}
	return data.toDomain(), nil
}

func (r *SpeakerRepository) List(ctx context.Context, filters speakers.Filters, paginationArgs speakers.Pagination) (speakers.ListResult, error) {
	q := r.db.queryer(ctx)

	var cursorULID string
	if strings.TrimSpace(paginationArgs.After) != "" {
		decoded, err := pagination.DecodeSpeakerCursor(paginationArgs.After)
		if err != nil {
			return speakers.ListResult{}, err
		}
		cursorULID = decoded
	}

	limit := paginationArgs.Limit
	if limit <= 0 {
		limit = 50
	}
	limitPlusOne := limit + 1

	rows, err := q.Query(ctx, `
SELECT `+speakerColumns+`
  FROM speakers
  WHERE ($1 = '' OR first_name ILIKE '%' || $1 || '%' OR last_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')
    AND ($2 = '' OR category = $2)
    AND ($3::boolean IS NULL OR verified = $3::boolean)
    AND ($4 = '' OR ulid > $4)
 ORDER BY ulid ASC
 LIMIT $5
`,
		filters.Query,
		filters.Category,
		filters.Verified,
		cursorULID,
		limitPlusOne,
	)
	if err != nil {
		return speakers.ListResult{}, fmt.Errorf("list speakers: %w", err)
	}
	defer rows.Close()

	items := make([]speakers.Speaker, 0, limitPlusOne)
	for rows.Next() {
		speaker, err := scanSpeaker(rows)
		if err != nil {
			return speakers.ListResult{}, fmt.Errorf("scan speaker: %w", err)
		}
		items = append(items, speaker)
	}
	if err := rows.Err(); err != nil {
		return speakers.ListResult{}, fmt.Errorf("list speakers: %w", err)
	}

	result := speakers.ListResult{Speakers: items}
	if len(items) > limit {
		result.Speakers = items[:limit]
		result.NextCursor = pagination.EncodeSpeakerCursor(items[limit-1].ULID)
	}
	return result, nil
}

func (r *SpeakerRepository) GetByULID(ctx context.Context, ulid string) (*speakers.Speaker, error) {
	q := r.db.queryer(ctx)

	speaker, err := scanSpeaker(q.QueryRow(ctx, `
SELECT `+speakerColumns+` FROM speakers WHERE ulid = $1
`, strings.ToUpper(ulid)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, speakers.ErrNotFound
		}
		return nil, fmt.Errorf("get speaker: %w", err)
	}
	return &speaker, nil
}

func (r *SpeakerRepository) Create(ctx context.Context, params speakers.CreateParams) (*speakers.Speaker, error) {
	q := r.db.queryer(ctx)

	speaker, err := scanSpeaker(q.QueryRow(ctx, `
INSERT INTO speakers (ulid, first_name, last_name, email, bio, category, base_rate)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+speakerColumns+`
`,
		params.ULID,
		params.FirstName,
		params.LastName,
		params.Email,
		params.Bio,
		params.Category,
		params.BaseRate,
	))
	if err != nil {
		return nil, fmt.Errorf("create speaker: %w", err)
	}
	return &speaker, nil
}

func (r *SpeakerRepository) Update(ctx context.Context, ulid string, params speakers.UpdateParams) (*speakers.Speaker, error) {
	q := r.db.queryer(ctx)

	speaker, err := scanSpeaker(q.QueryRow(ctx, `
UPDATE speakers
   SET first_name = COALESCE($2, first_name),
       last_name  = COALESCE($3, last_name),
       email      = COALESCE($4, email),
       bio        = COALESCE($5, bio),
       category   = COALESCE($6, category),
       base_rate  = COALESCE($7, base_rate),
       updated_at = now()
 WHERE ulid = $1
RETURNING `+speakerColumns+`
`,
		strings.ToUpper(ulid),
		params.FirstName,
		params.LastName,
		params.Email,
		params.Bio,
		params.Category,
		params.BaseRate,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, speakers.ErrNotFound
		}
		return nil, fmt.Errorf("update speaker: %w", err)
	}
	return &speaker, nil
}

func (r *SpeakerRepository) Delete(ctx context.Context, ulid string) error {
	q := r.db.queryer(ctx)

	tag, err := q.Exec(ctx, `DELETE FROM speakers WHERE ulid = $1`, strings.ToUpper(ulid))
	if err != nil {
		return fmt.Errorf("delete speaker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return speakers.ErrNotFound
	}
	return nil
}

func (r *SpeakerRepository) SetVerified(ctx context.Context, ulid string, verified bool) (*speakers.Speaker, error) {
	q := r.db.queryer(ctx)

	speaker, err := scanSpeaker(q.QueryRow(ctx, `
UPDATE speakers SET verified = $2, updated_at = now() WHERE ulid = $1
RETURNING `+speakerColumns+`
`, strings.ToUpper(ulid), verified))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, speakers.ErrNotFound
		}
		return nil, fmt.Errorf("set speaker verified: %w", err)
	}
	return &speaker, nil
}

func (r *SpeakerRepository) CountFutureAssignments(ctx context.Context, speakerID string, from time.Time) (int, error) {
	q := r.db.queryer(ctx)

	var count int
	err := q.QueryRow(ctx, `
SELECT count(*)
  FROM speaker_assignments a
  JOIN events e ON e.ulid = a.event_ulid
 WHERE a.speaker_id = $1
   AND e.starts_at > $2
`, speakerID, from).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count future assignments: %w", err)
	}
	return count, nil
}

func (r *SpeakerRepository) HasAssignment(ctx context.Context, speakerID string, eventULID string) (bool, error) {
	q := r.db.queryer(ctx)

	var exists bool
	err := q.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM speaker_assignments WHERE speaker_id = $1 AND event_ulid = $2
)
`, speakerID, strings.ToUpper(eventULID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return exists, nil
}

func (r *SpeakerRepository) ListAvailability(ctx context.Context, speakerID string) ([]speakers.AvailabilityBlock, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
SELECT id, speaker_id, start_date, end_date, notes, created_at
  FROM speaker_availability
 WHERE speaker_id = $1
 ORDER BY start_date ASC
`, speakerID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	defer rows.Close()

	var blocks []speakers.AvailabilityBlock
	for rows.Next() {
		var block speakers.AvailabilityBlock
		var start, end pgtype.Date
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&block.ID, &block.SpeakerID, &start, &end, &block.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		block.StartDate = start.Time
		block.EndDate = end.Time
		block.CreatedAt = createdAt.Time
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return blocks, nil
}

func (r *SpeakerRepository) CreateAvailability(ctx context.Context, params speakers.AvailabilityCreateParams) (*speakers.AvailabilityBlock, error) {
	q := r.db.queryer(ctx)

	var block speakers.AvailabilityBlock
	var start, end pgtype.Date
	var createdAt pgtype.Timestamptz
	err := q.QueryRow(ctx, `
INSERT INTO speaker_availability (speaker_id, start_date, end_date, notes)
VALUES ($1, $2, $3, $4)
RETURNING id, speaker_id, start_date, end_date, notes, created_at
`,
		params.SpeakerID,
		params.StartDate,
		params.EndDate,
		params.Notes,
	).Scan(&block.ID, &block.SpeakerID, &start, &end, &block.Notes, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("create availability: %w", err)
	}
	block.StartDate = start.Time
	block.EndDate = end.Time
	block.CreatedAt = createdAt.Time
	return &block, nil
}

func (r *SpeakerRepository) CreateEvaluation(ctx context.Context, params speakers.EvaluationCreateParams) (*speakers.Evaluation, error) {
	q := r.db.queryer(ctx)

	var evaluation speakers.Evaluation
	var createdAt pgtype.Timestamptz
	err := q.QueryRow(ctx, `
INSERT INTO speaker_evaluations
  (speaker_id, event_ulid, evaluator, content_score, delivery_score, material_score, overall_score, comments)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, speaker_id, event_ulid, evaluator, content_score, delivery_score, material_score, overall_score, comments, created_at
`,
		params.SpeakerID,
		strings.ToUpper(params.EventULID),
		params.Evaluator,
		params.ContentScore,
		params.DeliveryScore,
		params.MaterialScore,
		params.OverallScore,
		params.Comments,
	).Scan(
		&evaluation.ID,
		&evaluation.SpeakerID,
		&evaluation.EventULID,
		&evaluation.Evaluator,
		&evaluation.ContentScore,
		&evaluation.DeliveryScore,
		&evaluation.MaterialScore,
		&evaluation.OverallScore,
		&evaluation.Comments,
		&createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create evaluation: %w", err)
	}
	evaluation.CreatedAt = createdAt.Time
	return &evaluation, nil
}
