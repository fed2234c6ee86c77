package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobmate/alert-service/internal/model"
	"jobmate/alert-service/internal/predicate"
)

// Mode selects whether an execution persists its outcome.
type Mode int

const (
	// ModeCommit writes stats, the last-run snapshot and the seen-set.
	ModeCommit Mode = iota
	// ModePreview runs the same search and writes nothing.
	ModePreview
)

func (m Mode) String() string {
	if m == ModePreview {
		return "preview"
	}
	return "commit"
}

// Policy decides which matches of a run count as new.
type Policy string

const (
	// PolicyCreatedSince treats matches created at or after the previous run
	// as new. Entries that start matching later are never surfaced.
	PolicyCreatedSince Policy = "created_since"
	// PolicySeenSet drops the creation fence and treats matches the alert
	// has not surfaced before as new.
	PolicySeenSet Policy = "seen_set"
)

// ParsePolicy converts a raw string to a Policy. Empty selects the default.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return PolicyCreatedSince, nil
	case PolicyCreatedSince, PolicySeenSet:
		return p, nil
	}
	return "", fmt.Errorf("unknown new-match policy %q (valid: created_since, seen_set)", s)
}

// DefaultResultLimit caps the entries returned by one catalog search.
const DefaultResultLimit = 100

// ExecutorConfig tunes Executor.
type ExecutorConfig struct {
	ResultLimit  int
	QueryTimeout time.Duration
	Policy       Policy
}

// ExecutionResult is the outcome of one successful execution. MatchCount
// counts every current match up to the result limit; NewMatchCount counts
// the ones the policy treats as new.
type ExecutionResult struct {
	Matches       []model.CatalogEntry `json:"matches"`
	NewMatches    []model.CatalogEntry `json:"-"`
	MatchCount    int                  `json:"matchCount"`
	NewMatchCount int                  `json:"newMatchCount"`
	RanAt         time.Time            `json:"ranAt"`
	Preview       bool                 `json:"preview"`
}

// Executor runs one alert's compiled predicate against the catalog.
type Executor struct {
	catalog Catalog
	store   CriteriaStore
	seen    SeenStore
	cfg     ExecutorConfig
	now     func() time.Time
	log     *zap.Logger
}

// NewExecutor returns an Executor. seen may be nil unless cfg.Policy is
// PolicySeenSet.
func NewExecutor(catalog Catalog, store CriteriaStore, seen SeenStore, cfg ExecutorConfig, log *zap.Logger) (*Executor, error) {
	if cfg.ResultLimit <= 0 {
		cfg.ResultLimit = DefaultResultLimit
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyCreatedSince
	}
	if cfg.Policy == PolicySeenSet && seen == nil {
		return nil, errors.New("seen_set policy requires a seen store")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		catalog: catalog,
		store:   store,
		seen:    seen,
		cfg:     cfg,
		now:     time.Now,
		log:     log,
	}, nil
}

// SetClock replaces the wall clock. Tests use it to freeze time.
func (e *Executor) SetClock(now func() time.Time) { e.now = now }

// Policy reports the configured new-match policy.
func (e *Executor) Policy() Policy { return e.cfg.Policy }

// Execute compiles c, searches the catalog and, in commit mode, records
// the run on c and in the criteria store. A failed commit-mode run stores
// the error on the last-run snapshot but leaves LastRunAt, and with it the
// creation fence, where it was.
func (e *Executor) Execute(ctx context.Context, c *model.Criteria, mode Mode) (*ExecutionResult, error) {
	now := e.now().UTC()
	log := e.log.With(zap.String("alert_id", c.ID), zap.String("mode", mode.String()))

	res, err := e.search(ctx, c, now)
	if err != nil {
		if mode == ModeCommit {
			e.recordFailure(ctx, c, now, err)
		}
		log.Warn("alert execution failed", zap.Error(err))
		return nil, err
	}
	res.Preview = mode == ModePreview
	if mode == ModePreview {
		return res, nil
	}

	stats := c.Stats
	stats.LastRunAt = later(stats.LastRunAt, now)
	if res.NewMatchCount > 0 {
		stats.LastMatchAt = &now
		stats.TotalMatches += res.NewMatchCount
	}
	run := model.LastRun{RunAt: now, MatchCount: res.MatchCount, NewMatchCount: res.NewMatchCount}
	if err := e.store.RecordRun(ctx, c.ID, stats, run); err != nil {
		return nil, fmt.Errorf("record run for alert %s: %w", c.ID, err)
	}
	c.Stats = stats
	c.LastRun = &run

	if e.cfg.Policy == PolicySeenSet && res.NewMatchCount > 0 {
		if err := e.seen.Mark(ctx, c.ID, entryIDs(res.NewMatches)); err != nil {
			log.Warn("mark seen entries", zap.Error(err))
		}
	}

	log.Debug("alert executed",
		zap.Int("match_count", res.MatchCount),
		zap.Int("new_match_count", res.NewMatchCount),
	)
	return res, nil
}

func (e *Executor) search(ctx context.Context, c *model.Criteria, now time.Time) (*ExecutionResult, error) {
	expr, err := CompileUnfenced(c)
	if err != nil {
		return nil, err
	}

	qctx := ctx
	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}
	matches, err := e.catalog.Search(qctx, expr, e.cfg.ResultLimit)
	if err != nil {
		if errors.Is(qctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("query timed out after %s: %w", e.cfg.QueryTimeout, err)
		}
		return nil, &CatalogUnavailableError{Err: err}
	}

	res := &ExecutionResult{
		Matches:    matches,
		NewMatches: matches,
		MatchCount: len(matches),
		RanAt:      now,
	}
	switch {
	case e.cfg.Policy == PolicySeenSet && len(matches) > 0:
		unseen, err := e.seen.Unseen(ctx, c.ID, entryIDs(matches))
		if err != nil {
			return nil, fmt.Errorf("seen-set lookup: %w", err)
		}
		res.NewMatches = filterByID(matches, unseen)
	case e.cfg.Policy == PolicyCreatedSince:
		if f := Fence(c); f != nil {
			isNew, err := predicate.Compile(f)
			if err != nil {
				return nil, err
			}
			res.NewMatches = filterMatches(matches, isNew)
		}
	}
	res.NewMatchCount = len(res.NewMatches)
	return res, nil
}

const recordFailureTimeout = 5 * time.Second

func (e *Executor) recordFailure(ctx context.Context, c *model.Criteria, now time.Time, cause error) {
	// The failure is often the caller's deadline; write it anyway.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordFailureTimeout)
	defer cancel()
	run := model.LastRun{RunAt: now, Error: cause.Error()}
	if err := e.store.RecordRun(wctx, c.ID, c.Stats, run); err != nil {
		e.log.Warn("record failed run", zap.String("alert_id", c.ID), zap.Error(err))
		return
	}
	c.LastRun = &run
}

// later returns whichever of prev and t is later; LastRunAt never moves back.
func later(prev *time.Time, t time.Time) *time.Time {
	if prev != nil && prev.After(t) {
		p := *prev
		return &p
	}
	return &t
}

func entryIDs(entries []model.CatalogEntry) []string {
	ids := make([]string, len(entries))
	for i, m := range entries {
		ids[i] = m.ID
	}
	return ids
}

func filterMatches(entries []model.CatalogEntry, keep predicate.Matcher) []model.CatalogEntry {
	out := make([]model.CatalogEntry, 0, len(entries))
	for _, m := range entries {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func filterByID(entries []model.CatalogEntry, keep []string) []model.CatalogEntry {
	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}
	out := make([]model.CatalogEntry, 0, len(keep))
	for _, m := range entries {
		if _, ok := set[m.ID]; ok {
			out = append(out, m)
		}
	}
	return out
}
