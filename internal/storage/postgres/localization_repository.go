package postgres

import (
	"context"
	"fmt"

	"github.com/tradeconnect/server/internal/domain/localization"
)

var _ localization.Repository = (*LocalizationRepository)(nil)

type LocalizationRepository struct {
	db *Repository
}

func (r *LocalizationRepository) ListOverrides(ctx context.Context, locale string) ([]localization.Override, error) {
	q := r.db.queryer(ctx)

	rows, err := q.Query(ctx, `
SELECT locale, key, message FROM localization_overrides WHERE locale = $1 ORDER BY key ASC
`, locale)
	if err != nil {
		return nil, fmt.Errorf("list localization overrides: %w", err)
	}
	defer rows.Close()

	var overrides []localization.Override
	for rows.Next() {
		var o localization.Override
		if err := rows.Scan(&o.Locale, &o.Key, &o.Message); err != nil {
			return nil, fmt.Errorf("scan localization override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list localization overrides: %w", err)
	}
	return overrides, nil
}

func (r *LocalizationRepository) UpsertOverride(ctx context.Context, override localization.Override) error {
	q := r.db.queryer(ctx)

	_, err := q.Exec(ctx, `
INSERT INTO localization_overrides (locale, key, message)
VALUES ($1, $2, $3)
ON CONFLICT (locale, key) DO UPDATE SET message = EXCLUDED.message, updated_at = now()
`, override.Locale, override.Key, override.Message)
	if err != nil {
		return fmt.Errorf("upsert localization override: %w", err)
	}
	return nil
}

func (r *LocalizationRepository) DeleteOverride(ctx context.Context, locale, key string) error {
	q := r.db.queryer(ctx)

	_, err := q.Exec(ctx, `DELETE FROM localization_overrides WHERE locale = $1 AND key = $2`, locale, key)
	if err != nil {
		return fmt.Errorf("delete localization override: %w", err)
	}
	return nil
}
