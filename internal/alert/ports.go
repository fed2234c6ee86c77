package alert

import (
	"context"
	"time"

	"jobmate/alert-service/internal/model"
	"jobmate/alert-service/internal/predicate"
)

// Catalog is the read-only job catalog.
type Catalog interface {
	Search(ctx context.Context, expr predicate.Expr, limit int) ([]model.CatalogEntry, error)
	Count(ctx context.Context, expr predicate.Expr) (int, error)
}

// CriteriaStore persists alerts. Save writes the criteria fields and never
// the run bookkeeping; RecordRun writes only the bookkeeping. Neither can
// overwrite what the other owns. Get returns ErrNotFound for unknown ids.
type CriteriaStore interface {
	FindByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]model.Criteria, error)
	FindEligible(ctx context.Context, cadence model.Cadence, threshold time.Time) ([]model.Criteria, error)
	Get(ctx context.Context, id string) (*model.Criteria, error)
	Save(ctx context.Context, c *model.Criteria) error
	RecordRun(ctx context.Context, id string, stats model.ExecutionStats, run model.LastRun) error
	Deactivate(ctx context.Context, id string) error
}

// NotificationStore creates notification records from drafts.
type NotificationStore interface {
	Create(ctx context.Context, draft model.NotificationDraft) (*model.NotificationRecord, error)
}

// SeenStore remembers which catalog entries were already surfaced to an alert.
type SeenStore interface {
	Unseen(ctx context.Context, alertID string, ids []string) ([]string, error)
	Mark(ctx context.Context, alertID string, ids []string) error
}

// Publisher fans out domain events. Failures are logged, never fatal.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Locker guards a batch against a concurrent batch of the same cadence.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Recorder receives execution metrics.
type Recorder interface {
	AlertExecuted(cadence model.Cadence, outcome string)
	MatchesFound(cadence model.Cadence, n int)
	NotificationEmitted(outcome string)
	BatchFinished(cadence model.Cadence, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) AlertExecuted(model.Cadence, string)        {}
func (nopRecorder) MatchesFound(model.Cadence, int)            {}
func (nopRecorder) NotificationEmitted(string)                 {}
func (nopRecorder) BatchFinished(model.Cadence, time.Duration) {}
