package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/recall-ingest/internal/recall"
)

const upsertAlert = `
INSERT INTO alert_preferences (email, categories, brands, is_active)
VALUES ($1, $2, $3, true)
ON CONFLICT (email) DO UPDATE
SET categories = EXCLUDED.categories,
	is_active = true,
	updated_at = now()`

// UpsertAlertPreference subscribes pref.Email, reactivating an existing row.
// Empty categories are stored as NULL, meaning every category.
func (s *Store) UpsertAlertPreference(ctx context.Context, pref recall.AlertPreference) error {
	var categories, brands []string
	if len(pref.Categories) > 0 {
		categories = pref.Categories
	}
	if len(pref.Brands) > 0 {
		brands = pref.Brands
	}
	if _, err := s.pool.Exec(ctx, upsertAlert, pref.Email, categories, brands); err != nil {
		return fmt.Errorf("upsert alert preference: %w", err)
	}
	return nil
}

// ListActiveAlertPreferences returns active subscriptions that cover category.
// An empty category returns every active subscription.
func (s *Store) ListActiveAlertPreferences(ctx context.Context, category string) ([]recall.AlertPreference, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id::text, email, categories, brands, is_active, created_at, updated_at
FROM alert_preferences
WHERE is_active AND ($1::text = '' OR categories IS NULL OR $1::text = ANY(categories))
ORDER BY email`, category)
	if err != nil {
		return nil, fmt.Errorf("query alert preferences: %w", err)
	}
	defer rows.Close()

	var out []recall.AlertPreference
	for rows.Next() {
		var p recall.AlertPreference
		if err := rows.Scan(&p.ID, &p.Email, &p.Categories, &p.Brands, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan alert preference: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert preferences: %w", err)
	}
	return out, nil
}
