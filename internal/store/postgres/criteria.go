// Package postgres implements the alert stores on PostgreSQL through pgx.
//
// Alerts live in job_alerts and notifications in notifications; both are
// created by Migrate. The jobs table belongs to the catalog service and is
// only read.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"jobmate/alert-service/internal/alert"
	"jobmate/alert-service/internal/model"
)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

//go:embed schema.sql
var schema string

// Migrate creates the tables owned by this service if they are missing.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ─── CriteriaStore ───────────────────────────────────────────────────────────

const criteriaColumns = `
	id::text, owner_id, name, keywords, locations, industries, job_types, experience_levels,
	salary_min, salary_max, COALESCE(salary_currency, ''), cadence, notify_in_app, notify_email,
	is_active, total_matches, last_run_at, last_match_at, last_run, created_at, updated_at`

// CriteriaStore persists alerts in job_alerts.
type CriteriaStore struct {
	db DB
}

// NewCriteriaStore returns a configured CriteriaStore.
func NewCriteriaStore(db DB) *CriteriaStore {
	return &CriteriaStore{db: db}
}

// FindByOwner returns the owner's alerts, newest first.
func (s *CriteriaStore) FindByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]model.Criteria, error) {
	q := `SELECT ` + criteriaColumns + ` FROM job_alerts WHERE owner_id = $1`
	if activeOnly {
		q += ` AND is_active = true`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("findByOwner query: %w", err)
	}
	return collectCriteria(rows)
}

// FindEligible returns active alerts of the cadence whose last run is
// older than threshold or missing.
func (s *CriteriaStore) FindEligible(ctx context.Context, cadence model.Cadence, threshold time.Time) ([]model.Criteria, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+criteriaColumns+`
		 FROM job_alerts
		 WHERE is_active = true
		   AND cadence = $1
		   AND (last_run_at IS NULL OR last_run_at < $2)
		 ORDER BY created_at`,
		string(cadence), threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("findEligible query: %w", err)
	}
	return collectCriteria(rows)
}

// Get returns one alert or alert.ErrNotFound.
func (s *CriteriaStore) Get(ctx context.Context, id string) (*model.Criteria, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, alert.ErrNotFound
	}
	c, err := scanCriteria(s.db.QueryRow(ctx, `SELECT `+criteriaColumns+` FROM job_alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, alert.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return &c, nil
}

// Save upserts the criteria fields. The run bookkeeping columns are only
// written by RecordRun.
func (s *CriteriaStore) Save(ctx context.Context, c *model.Criteria) error {
	var salaryMin, salaryMax *int64
	var currency *string
	if c.Salary != nil {
		salaryMin, salaryMax = c.Salary.Min, c.Salary.Max
		if c.Salary.Currency != "" {
			currency = &c.Salary.Currency
		}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO job_alerts (
		   id, owner_id, name, keywords, locations, industries, job_types, experience_levels,
		   salary_min, salary_max, salary_currency, cadence, notify_in_app, notify_email,
		   is_active, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   keywords = EXCLUDED.keywords,
		   locations = EXCLUDED.locations,
		   industries = EXCLUDED.industries,
		   job_types = EXCLUDED.job_types,
		   experience_levels = EXCLUDED.experience_levels,
		   salary_min = EXCLUDED.salary_min,
		   salary_max = EXCLUDED.salary_max,
		   salary_currency = EXCLUDED.salary_currency,
		   cadence = EXCLUDED.cadence,
		   notify_in_app = EXCLUDED.notify_in_app,
		   notify_email = EXCLUDED.notify_email,
		   is_active = EXCLUDED.is_active,
		   updated_at = EXCLUDED.updated_at`,
		c.ID, c.OwnerID, c.Name, nonNil(c.Keywords), nonNil(c.Locations), nonNil(c.Industries),
		nonNil(c.JobTypes), nonNil(c.ExperienceLevels), salaryMin, salaryMax, currency,
		string(c.Cadence), c.Channels.InApp, c.Channels.Email, c.Active, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

// RecordRun writes the run bookkeeping. last_run_at only moves forward.
func (s *CriteriaStore) RecordRun(ctx context.Context, id string, stats model.ExecutionStats, run model.LastRun) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal last run: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE job_alerts
		 SET total_matches = $2,
		     last_run_at   = GREATEST(last_run_at, $3),
		     last_match_at = $4,
		     last_run      = $5::jsonb
		 WHERE id = $1`,
		id, stats.TotalMatches, stats.LastRunAt, stats.LastMatchAt, string(raw),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return alert.ErrNotFound
	}
	return nil
}

// Deactivate sets is_active = false.
func (s *CriteriaStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE job_alerts SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return alert.ErrNotFound
	}
	return nil
}

func collectCriteria(rows pgx.Rows) ([]model.Criteria, error) {
	defer rows.Close()
	out := make([]model.Criteria, 0)
	for rows.Next() {
		c, err := scanCriteria(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCriteria(row pgx.Row) (model.Criteria, error) {
	var (
		c                    model.Criteria
		salaryMin, salaryMax *int64
		currency, cadence    string
		lastRun              []byte
	)
	if err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Keywords, &c.Locations, &c.Industries,
		&c.JobTypes, &c.ExperienceLevels, &salaryMin, &salaryMax, &currency, &cadence,
		&c.Channels.InApp, &c.Channels.Email, &c.Active, &c.Stats.TotalMatches,
		&c.Stats.LastRunAt, &c.Stats.LastMatchAt, &lastRun, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return c, err
	}
	c.Cadence = model.Cadence(cadence)
	if salaryMin != nil || salaryMax != nil {
		c.Salary = &model.SalaryRange{Min: salaryMin, Max: salaryMax, Currency: currency}
	}
	if len(lastRun) > 0 {
		var lr model.LastRun
		if err := json.Unmarshal(lastRun, &lr); err != nil {
			return c, fmt.Errorf("decode last_run: %w", err)
		}
		c.LastRun = &lr
	}
	return c, nil
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
