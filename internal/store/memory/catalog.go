package memory

import (
	"context"
	"sort"
	"sync"

	"jobmate/alert-service/internal/model"
	"jobmate/alert-service/internal/predicate"
)

// Catalog is an in-memory job catalog evaluated with predicate.Compile.
type Catalog struct {
	mu      sync.RWMutex
	entries []model.CatalogEntry

	// Err, when set, is returned by every query.
	Err error
	// FailWhen, when set, sees every query; a non-nil result fails it.
	FailWhen func(predicate.Expr) error
}

// NewCatalog returns a catalog holding entries.
func NewCatalog(entries ...model.CatalogEntry) *Catalog {
	return &Catalog{entries: append([]model.CatalogEntry(nil), entries...)}
}

// Add appends entries.
func (c *Catalog) Add(entries ...model.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entries...)
}

// Search returns matching entries, newest first, at most limit.
func (c *Catalog) Search(ctx context.Context, expr predicate.Expr, limit int) ([]model.CatalogEntry, error) {
	out, err := c.match(ctx, expr)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of matching entries.
func (c *Catalog) Count(ctx context.Context, expr predicate.Expr) (int, error) {
	out, err := c.match(ctx, expr)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

func (c *Catalog) match(ctx context.Context, expr predicate.Expr) ([]model.CatalogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Err != nil {
		return nil, c.Err
	}
	if c.FailWhen != nil {
		if err := c.FailWhen(expr); err != nil {
			return nil, err
		}
	}
	m, err := predicate.Compile(expr)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.CatalogEntry, 0)
	for _, e := range c.entries {
		if m(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
