package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/recall-ingest/internal/recall"
)

const uniqueViolation = "23505"

const insertRecall = `
INSERT INTO recalls (
	title,
	description,
	product_name,
	brand,
	category,
	recall_number,
	recall_date,
	risk_level,
	source,
	remedy_instructions,
	source_url
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (title, source) DO NOTHING
RETURNING id::text`

// Insert stores c and returns its ID. A (title, source) conflict yields recall.ErrDuplicate.
func (s *Store) Insert(ctx context.Context, c recall.Candidate) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, insertRecall,
		c.Title,
		c.Description,
		c.ProductName,
		c.Brand,
		c.Category,
		c.RecallNumber,
		c.RecallDate,
		string(c.RiskLevel),
		string(c.Source),
		c.RemedyInstructions,
		c.SourceURL,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("insert %q: %w", c.Title, recall.ErrDuplicate)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return "", fmt.Errorf("insert %q: %w", c.Title, recall.ErrDuplicate)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", recall.ErrStoreWrite, err)
	}
	return id, nil
}

// FindByTitleAndSource returns the ID of the recall with this identity, if any.
func (s *Store) FindByTitleAndSource(ctx context.Context, title string, source recall.Source) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id::text FROM recalls WHERE title = $1 AND source = $2 LIMIT 1`,
		title, string(source),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup recall: %w", err)
	}
	return id, true, nil
}

const selectRecalls = `
SELECT
	id::text,
	title,
	coalesce(description, ''),
	product_name,
	brand,
	category,
	recall_number,
	to_char(recall_date, 'YYYY-MM-DD'),
	risk_level,
	source,
	remedy_instructions,
	source_url,
	created_at,
	updated_at
FROM recalls`

var orderColumns = map[string]string{
	"":            "recall_date",
	"recall_date": "recall_date",
	"created_at":  "created_at",
	"title":       "title",
}

// Query returns recalls matching filters, sorted by ordering, at most limit rows.
func (s *Store) Query(ctx context.Context, filters recall.Filters, ordering recall.Ordering, limit int) ([]recall.StoredRecall, error) {
	query, args, err := buildQuery(filters, ordering, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recalls: %w", err)
	}
	defer rows.Close()

	var out []recall.StoredRecall
	for rows.Next() {
		var (
			r         recall.StoredRecall
			riskLevel string
			src       string
		)
		if err := rows.Scan(
			&r.ID,
			&r.Title,
			&r.Description,
			&r.ProductName,
			&r.Brand,
			&r.Category,
			&r.RecallNumber,
			&r.RecallDate,
			&riskLevel,
			&src,
			&r.RemedyInstructions,
			&r.SourceURL,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recall: %w", err)
		}
		r.RiskLevel = recall.RiskLevel(riskLevel)
		r.Source = recall.Source(src)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recalls: %w", err)
	}
	return out, nil
}

func buildQuery(filters recall.Filters, ordering recall.Ordering, limit int) (string, []any, error) {
	column, ok := orderColumns[ordering.Field]
	if !ok {
		return "", nil, fmt.Errorf("unsupported ordering field %q", ordering.Field)
	}
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.Search != "" {
		p := arg("%" + escapeLike(filters.Search) + "%")
		where = append(where, fmt.Sprintf(
			"(title ILIKE %[1]s OR product_name ILIKE %[1]s OR brand ILIKE %[1]s OR category ILIKE %[1]s)", p))
	}
	if filters.Category != "" {
		where = append(where, "category = "+arg(filters.Category))
	}
	if filters.RiskLevel != "" {
		where = append(where, "risk_level = "+arg(string(filters.RiskLevel)))
	}
	if filters.Source != "" {
		where = append(where, "source = "+arg(string(filters.Source)))
	}

	var b strings.Builder
	b.WriteString(selectRecalls)
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	direction := "ASC"
	if ordering.Descending {
		direction = "DESC"
	}
	fmt.Fprintf(&b, "\nORDER BY %s %s, created_at DESC", column, direction)
	if limit > 0 {
		b.WriteString("\nLIMIT " + arg(limit))
	}
	return b.String(), args, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
