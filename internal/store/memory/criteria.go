// Package memory holds mutex-guarded in-memory implementations of the alert
// stores. It backs tests and the --store=memory mode.
package memory

import (
	"context"
	"sync"
	"time"

	"jobmate/alert-service/internal/alert"
	"jobmate/alert-service/internal/model"
)

// CriteriaStore keeps alerts in a map keyed by id.
type CriteriaStore struct {
	mu    sync.RWMutex
	items map[string]model.Criteria
	order []string

	// FailRecordRun makes RecordRun fail for the listed alert ids.
	FailRecordRun map[string]error
}

// NewCriteriaStore returns a store seeded with alerts.
func NewCriteriaStore(seed ...model.Criteria) *CriteriaStore {
	s := &CriteriaStore{items: make(map[string]model.Criteria)}
	for _, c := range seed {
		s.put(c)
	}
	return s
}

func (s *CriteriaStore) put(c model.Criteria) {
	if _, ok := s.items[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.items[c.ID] = clone(c)
}

func (s *CriteriaStore) FindByOwner(_ context.Context, ownerID string, activeOnly bool) ([]model.Criteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Criteria, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.items[s.order[i]]
		if c.OwnerID != ownerID || (activeOnly && !c.Active) {
			continue
		}
		out = append(out, clone(c))
	}
	return out, nil
}

func (s *CriteriaStore) FindEligible(_ context.Context, cadence model.Cadence, threshold time.Time) ([]model.Criteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Criteria, 0)
	for _, id := range s.order {
		c := s.items[id]
		if !c.Active || c.Cadence != cadence {
			continue
		}
		if c.Stats.LastRunAt != nil && !c.Stats.LastRunAt.Before(threshold) {
			continue
		}
		out = append(out, clone(c))
	}
	return out, nil
}

func (s *CriteriaStore) Get(_ context.Context, id string) (*model.Criteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, alert.ErrNotFound
	}
	cp := clone(c)
	return &cp, nil
}

// Save writes the criteria fields. Stats and the last run of an existing
// alert are kept.
func (s *CriteriaStore) Save(_ context.Context, c *model.Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := clone(*c)
	if prev, ok := s.items[c.ID]; ok {
		next.Stats = prev.Stats
		next.LastRun = prev.LastRun
		next.CreatedAt = prev.CreatedAt
	}
	s.put(next)
	return nil
}

func (s *CriteriaStore) RecordRun(_ context.Context, id string, stats model.ExecutionStats, run model.LastRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailRecordRun[id]; err != nil {
		return err
	}
	c, ok := s.items[id]
	if !ok {
		return alert.ErrNotFound
	}
	prev := c.Stats.LastRunAt
	c.Stats = stats
	if prev != nil && (stats.LastRunAt == nil || prev.After(*stats.LastRunAt)) {
		c.Stats.LastRunAt = prev
	}
	c.LastRun = &run
	s.items[id] = clone(c)
	return nil
}

func (s *CriteriaStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	if !ok {
		return alert.ErrNotFound
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	s.items[id] = c
	return nil
}

func clone(c model.Criteria) model.Criteria { return c.Clone() }
