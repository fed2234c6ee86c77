package postgres

import (
	"context"
	"fmt"

	"jobmate/alert-service/internal/model"
	"jobmate/alert-service/internal/predicate"
)

const jobColumns = `
	id::text, title, COALESCE(description, ''), COALESCE(requirements, ''), COALESCE(location, ''),
	COALESCE(industry, ''), COALESCE(job_type, ''), COALESCE(experience_level, ''),
	salary_min, salary_max, COALESCE(salary_currency, ''), created_at, is_active`

// Catalog reads postings from the jobs table.
type Catalog struct {
	db DB
}

// NewCatalog returns a configured Catalog.
func NewCatalog(db DB) *Catalog {
	return &Catalog{db: db}
}

// Search returns matching postings, newest first, at most limit.
func (c *Catalog) Search(ctx context.Context, expr predicate.Expr, limit int) ([]model.CatalogEntry, error) {
	q, args, err := searchQuery(expr, limit)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	defer rows.Close()

	out := make([]model.CatalogEntry, 0)
	for rows.Next() {
		var j model.CatalogEntry
		if err := rows.Scan(
			&j.ID, &j.Title, &j.Description, &j.Requirements, &j.Location,
			&j.Industry, &j.JobType, &j.ExperienceLevel,
			&j.SalaryMin, &j.SalaryMax, &j.SalaryCurrency, &j.CreatedAt, &j.Active,
		); err != nil {
			return nil, fmt.Errorf("catalog scan: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Count returns the number of matching postings.
func (c *Catalog) Count(ctx context.Context, expr predicate.Expr) (int, error) {
	q, args, err := countQuery(expr)
	if err != nil {
		return 0, err
	}
	var n int
	if err := c.db.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog count: %w", err)
	}
	return n, nil
}

func searchQuery(expr predicate.Expr, limit int) (string, []any, error) {
	where, args, err := predicate.ToSQL(expr, 1)
	if err != nil {
		return "", nil, fmt.Errorf("render predicate: %w", err)
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT %s FROM jobs WHERE %s ORDER BY created_at DESC LIMIT $%d`, jobColumns, where, len(args))
	return q, args, nil
}

func countQuery(expr predicate.Expr) (string, []any, error) {
	where, args, err := predicate.ToSQL(expr, 1)
	if err != nil {
		return "", nil, fmt.Errorf("render predicate: %w", err)
	}
	return `SELECT COUNT(*) FROM jobs WHERE ` + where, args, nil
}
