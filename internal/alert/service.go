package alert

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobmate/alert-service/internal/model"
)

// ─── Inputs ──────────────────────────────────────────────────────────────────

// CriteriaInput is the caller-supplied part of a new alert.
type CriteriaInput struct {
	Name             string             `json:"name"`
	Keywords         []string           `json:"keywords"`
	Locations        []string           `json:"locations"`
	Industries       []string           `json:"industries"`
	JobTypes         []string           `json:"jobTypes"`
	ExperienceLevels []string           `json:"experienceLevels"`
	Salary           *model.SalaryRange `json:"salaryRange"`
	Cadence          model.Cadence      `json:"cadence"`
	Channels         *model.Channels    `json:"channels"`
}

func (in CriteriaInput) criteria(ownerID string) *model.Criteria {
	c := &model.Criteria{
		OwnerID:          ownerID,
		Name:             in.Name,
		Keywords:         in.Keywords,
		Locations:        in.Locations,
		Industries:       in.Industries,
		JobTypes:         in.JobTypes,
		ExperienceLevels: in.ExperienceLevels,
		Cadence:          in.Cadence,
		Channels:         model.Channels{InApp: true, Email: true},
		Active:           true,
	}
	if in.Salary != nil {
		s := *in.Salary
		c.Salary = &s
	}
	if in.Channels != nil {
		c.Channels = *in.Channels
	}
	return c
}

// CriteriaPatch replaces whole fields of an alert. Nil fields are kept; a
// supplied slice replaces the stored one.
type CriteriaPatch struct {
	Name             *string            `json:"name"`
	Keywords         *[]string          `json:"keywords"`
	Locations        *[]string          `json:"locations"`
	Industries       *[]string          `json:"industries"`
	JobTypes         *[]string          `json:"jobTypes"`
	ExperienceLevels *[]string          `json:"experienceLevels"`
	Salary           *model.SalaryRange `json:"salaryRange"`
	Cadence          *model.Cadence     `json:"cadence"`
	Channels         *model.Channels    `json:"channels"`
	Active           *bool              `json:"active"`
}

func (p CriteriaPatch) apply(c *model.Criteria) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Keywords != nil {
		c.Keywords = *p.Keywords
	}
	if p.Locations != nil {
		c.Locations = *p.Locations
	}
	if p.Industries != nil {
		c.Industries = *p.Industries
	}
	if p.JobTypes != nil {
		c.JobTypes = *p.JobTypes
	}
	if p.ExperienceLevels != nil {
		c.ExperienceLevels = *p.ExperienceLevels
	}
	if p.Salary != nil {
		s := *p.Salary
		if s.Currency == "" {
			s.Currency = DefaultCurrency
		}
		c.Salary = &s
		if s.IsZero() {
			c.Salary = nil
		}
	}
	if p.Cadence != nil {
		c.Cadence = *p.Cadence
	}
	if p.Channels != nil {
		c.Channels = *p.Channels
	}
	if p.Active != nil {
		c.Active = *p.Active
	}
}

// ─── Service ─────────────────────────────────────────────────────────────────

// Statistics aggregates a subscriber's alerts.
type Statistics struct {
	TotalAlerts    int                            `json:"totalAlerts"`
	ActiveAlerts   int                            `json:"activeAlerts"`
	TotalMatches   int                            `json:"totalMatches"`
	AverageMatches int                            `json:"averageMatchesPerAlert"`
	ByCadence      map[model.Cadence]CadenceStats `json:"byCadence"`
}

// CadenceStats counts alerts of one cadence.
type CadenceStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// Preview is an ad-hoc search that is never persisted.
type Preview struct {
	MatchCount int                  `json:"matchCount"`
	Jobs       []model.CatalogEntry `json:"previewJobs"`
	Criteria   model.Criteria       `json:"criteria"`
}

// DefaultPreviewSize is how many matches Preview returns.
const DefaultPreviewSize = 5

// Service is the alert lifecycle used by the transports. It never runs
// alerts; that is the Runner's job.
type Service struct {
	store   CriteriaStore
	catalog Catalog
	now     func() time.Time
	log     *zap.Logger
}

// NewService returns a configured Service.
func NewService(store CriteriaStore, catalog Catalog, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, catalog: catalog, now: time.Now, log: log}
}

// Create defaults, validates and stores a new active alert.
func (s *Service) Create(ctx context.Context, ownerID string, in CriteriaInput) (*model.Criteria, error) {
	c := in.criteria(ownerID)
	Normalize(c)
	ApplyDefaults(c)
	if err := Validate(c); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c.ID = uuid.NewString()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.store.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	s.log.Info("alert created", zap.String("alert_id", c.ID), zap.String("owner_id", ownerID))
	return c, nil
}

// List returns the owner's alerts, newest first.
func (s *Service) List(ctx context.Context, ownerID string, activeOnly bool) ([]model.Criteria, error) {
	list, err := s.store.FindByOwner(ctx, ownerID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// Get returns one alert, validating ownership.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.Criteria, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return c, nil
}

// Update applies patch and re-validates the whole alert.
func (s *Service) Update(ctx context.Context, ownerID, id string, patch CriteriaPatch) (*model.Criteria, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	patch.apply(c)
	Normalize(c)
	if err := Validate(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	return c, nil
}

// Toggle flips Active.
func (s *Service) Toggle(ctx context.Context, ownerID, id string) (*model.Criteria, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	c.Active = !c.Active
	c.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("toggle alert: %w", err)
	}
	return c, nil
}

// Deactivate retires an alert. Its statistics are kept.
func (s *Service) Deactivate(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.store.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}
	return nil
}

// Statistics aggregates every alert of the owner.
func (s *Service) Statistics(ctx context.Context, ownerID string) (*Statistics, error) {
	list, err := s.store.FindByOwner(ctx, ownerID, false)
	if err != nil {
		return nil, fmt.Errorf("alert statistics: %w", err)
	}
	st := &Statistics{ByCadence: make(map[model.Cadence]CadenceStats)}
	for _, c := range list {
		st.TotalAlerts++
		st.TotalMatches += c.Stats.TotalMatches
		cs := st.ByCadence[c.Cadence]
		cs.Total++
		if c.Active {
			st.ActiveAlerts++
			cs.Active++
		}
		st.ByCadence[c.Cadence] = cs
	}
	if st.TotalAlerts > 0 {
		st.AverageMatches = int(math.Round(float64(st.TotalMatches) / float64(st.TotalAlerts)))
	}
	return st, nil
}

// Preview compiles ad-hoc criteria without a creation fence and returns
// the total match count with the first limit matches.
func (s *Service) Preview(ctx context.Context, ownerID string, in CriteriaInput, limit int) (*Preview, error) {
	if limit <= 0 {
		limit = DefaultPreviewSize
	}
	c := in.criteria(ownerID)
	Normalize(c)
	ApplyDefaults(c)
	expr, err := CompileUnfenced(c)
	if err != nil {
		return nil, err
	}
	total, err := s.catalog.Count(ctx, expr)
	if err != nil {
		return nil, &CatalogUnavailableError{Err: err}
	}
	jobs, err := s.catalog.Search(ctx, expr, limit)
	if err != nil {
		return nil, &CatalogUnavailableError{Err: err}
	}
	return &Preview{MatchCount: total, Jobs: jobs, Criteria: *c}, nil
}
