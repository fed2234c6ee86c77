package alert_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"jobmate/alert-service/internal/alert"
	"jobmate/alert-service/internal/model"
	"jobmate/alert-service/internal/predicate"
	"jobmate/alert-service/internal/store/memory"
)

func newExecutor(t *testing.T, cat alert.Catalog, store alert.CriteriaStore, cfg alert.ExecutorConfig, now time.Time) *alert.Executor {
	t.Helper()
	var seen alert.SeenStore
	if cfg.Policy == alert.PolicySeenSet {
		seen = memory.NewSeenStore()
	}
	ex, err := alert.NewExecutor(cat, store, seen, cfg, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	ex.SetClock(fixedClock(now))
	return ex
}

func load(t *testing.T, store alert.CriteriaStore, id string) *model.Criteria {
	t.Helper()
	c, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return c
}

// blockingCatalog waits for the query context to end.
type blockingCatalog struct{}

func (blockingCatalog) Search(ctx context.Context, _ predicate.Expr, _ int) ([]model.CatalogEntry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingCatalog) Count(ctx context.Context, _ predicate.Expr) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

// ── Commit mode ────────────────────────────────────────────────────────────

func TestExecute_BackendHanoiEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCriteriaStore(backendAlert("a1"))
	cat := memory.NewCatalog(job("j1", "Backend Engineer", "Hanoi", day0.Add(-2*time.Hour)))
	ex := newExecutor(t, cat, store, alert.ExecutorConfig{}, day0)

	c := load(t, store, "a1")
	res, err := ex.Execute(ctx, c, alert.ModeCommit)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.MatchCount != 1 || res.NewMatchCount != 1 {
		t.Errorf("MatchCount/NewMatchCount = %d/%d, want 1/1", res.MatchCount, res.NewMatchCount)
	}

	stored := load(t, store, "a1")
	if stored.Stats.TotalMatches != 1 {
		t.Errorf("TotalMatches = %d, want 1", stored.Stats.TotalMatches)
	}
	if stored.Stats.LastRunAt == nil || !stored.Stats.LastRunAt.Equal(day0) {
		t.Errorf("LastRunAt = %v, want %s", stored.Stats.LastRunAt, day0)
	}
	if stored.Stats.LastMatchAt == nil || !stored.Stats.LastMatchAt.Equal(day0) {
		t.Errorf("LastMatchAt = %v, want %s", stored.Stats.LastMatchAt, day0)
	}
	if stored.LastRun == nil || stored.LastRun.Error != "" || stored.LastRun.MatchCount != 1 {
		t.Errorf("LastRun = %+v, want clean run with 1 match", stored.LastRun)
	}

	d := alert.Draft(stored, res, alert.DefaultHighPriorityThreshold)
	if d.Priority != model.PriorityMedium {
		t.Errorf("draft priority = %q, want medium", d.Priority)
	}
}

func TestExecute_NoMatchesKeepsLastMatchAt(t *testing.T) {
	store := memory.NewCriteriaStore(backendAlert("a1"))
	ex := newExecutor(t, memory.NewCatalog(), store, alert.ExecutorConfig{}, day0)

	res, err := ex.Execute(context.Background(), load(t, store, "a1"), alert.ModeCommit)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.MatchCount != 0 {
		t.Errorf("MatchCount = %d, want 0", res.MatchCount)
	}
	stored := load(t, store, "a1")
	if stored.Stats.LastMatchAt != nil {
		t.Error("LastMatchAt should stay nil when nothing matched")
	}
	if stored.Stats.LastRunAt == nil {
		t.Error("LastRunAt should advance even with zero matches")
	}
}

func TestExecute_FenceSkipsAlreadyReportedEntries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCriteriaStore(backendAlert("a1"))
	cat := memory.NewCatalog(job("j1", "Backend Engineer", "Hanoi", day0.Add(-time.Hour)))

	if _, err := newExecutor(t, cat, store, alert.ExecutorConfig{}, day0).Execute(ctx, load(t, store, "a1"), alert.ModeCommit); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	cat.Add(job("j2", "Backend Lead", "Hanoi", day0.Add(time.Hour)))

	res, err := newExecutor(t, cat, store, alert.ExecutorConfig{}, day0.Add(25*time.Hour)).Execute(ctx, load(t, store, "a1"), alert.ModeCommit)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if res.MatchCount != 2 || res.NewMatchCount != 1 || res.NewMatches[0].ID != "j2" {
		t.Errorf("second run = %d matches, new %v; want 2 matches with only j2 new", res.MatchCount, res.NewMatches)
	}
	if got := load(t, store, "a1").Stats.TotalMatches; got != 2 {
		t.Errorf("TotalMatches = %d, want 2", got)
	}
}

func TestExecute_ResultLimit(t *testing.T) {
	cat := memory.NewCatalog(
		job("j1", "Backend 1", "Hanoi", day0.Add(-3*time.Hour)),
		job("j2", "Backend 2", "Hanoi", day0.Add(-2*time.Hour)),
		job("j3", "Backend 3", "Hanoi", day0.Add(-time.Hour)),
	)
	store := memory.NewCriteriaStore(backendAlert("a1"))
	ex := newExecutor(t, cat, store, alert.ExecutorConfig{ResultLimit: 2}, day0)

	res, err := ex.Execute(context.Background(), load(t, store, "a1"), alert.ModeCommit)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.MatchCount != 2 {
		t.Fatalf("MatchCount = %d, want 2", res.MatchCount)
	}
	if res.Matches[0].ID != "j3" {
		t.Errorf("first match = %s, want newest j3", res.Matches[0].ID)
	}
}

// LastRunAt never moves backwards even if the clock does.
func TestExecute_LastRunAtIsMonotonic(t *testing.T) {
	seed := backendAlert("a1")
	seed.Stats.LastRunAt = at(day0.Add(time.Hour))
	store := memory.NewCriteriaStore(seed)
	ex := newExecutor(t, memory.NewCatalog(), store, alert.ExecutorConfig{}, day0)

	if _, err := ex.Execute(context.Background(), load(t, store, "a1"), alert.ModeCommit); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := load(t, store, "a1").Stats.LastRunAt; !got.Equal(day0.Add(time.Hour)) {
		t.Errorf("LastRunAt = %s, want unchanged %s", got, day0.Add(time.Hour))
	}
}

// ── Failures ───────────────────────────────────────────────────────────────

func TestExecute_CatalogFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCriteriaStore(backendAlert("a1"))
	cat := memory.NewCatalog(job("j1", "Backend Engineer", "Hanoi", day0.Add(-time.Hour)))
	cat.Err = errors.New("connection refused")
	ex := newExecutor(t, cat, store, alert.ExecutorConfig{}, day0)

	_, err := ex.Execute(ctx, load(t, store, "a1"), alert.ModeCommit)
	var cerr *alert.CatalogUnavailableError
	if !errors.As(err, &cerr) {
		t.Fatalf("Execute error = %v, want *CatalogUnavailableError", err)
	}
	stored := load(t, store, "a1")
	if stored.LastRun == nil || !strings.Contains(stored.LastRun.Error, "connection refused") {
		t.Errorf("LastRun = %+v, want the catalog error recorded", stored.LastRun)
	}
	if stored.Stats.LastRunAt != nil {
		t.Error("a failed run should not advance the creation fence")
	}

	// The next successful run clears the error.
	cat.Err = nil
	if _, err := ex.Execute(ctx, load(t, store, "a1"), alert.ModeCommit); err != nil {
		t.Fatalf("retry Execute: %v", err)
	}
	if e := load(t, store, "a1").LastRun.Error; e != "" {
		t.Errorf("LastRun.Error = %q after successful run, want empty", e)
	}
}

func TestExecute_QueryTimeout(t *testing.T) {
	store := memory.NewCriteriaStore(backendAlert("a1"))
	ex := newExecutor(t, blockingCatalog{}, store, alert.ExecutorConfig{QueryTimeout: 20 * time.Millisecond}, day0)

	_, err := ex.Execute(context.Background(), load(t, store, "a1"), alert.ModeCommit)
	var cerr *alert.CatalogUnavailableError
	if !errors.As(err, &cerr) {
		t.Fatalf("Execute error = %v, want *CatalogUnavailableError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should wrap context.DeadlineExceeded, got %v", err)
	}
}

// deadlineStore refuses writes on a finished context, like a real database.
type deadlineStore struct {
	*memory.CriteriaStore
}

func (s deadlineStore) RecordRun(ctx context.Context, id string, stats model.ExecutionStats, run model.LastRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.CriteriaStore.RecordRun(ctx, id, stats, run)
}

func TestExecute_ExpiredAlertDeadlineStillRecordsFailure(t *testing.T) {
	inner := memory.NewCriteriaStore(backendAlert("a1"))
	store := deadlineStore{inner}
	ex := newExecutor(t, blockingCatalog{}, store, alert.ExecutorConfig{}, day0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ex.Execute(ctx, load(t, store, "a1"), alert.ModeCommit); err == nil {
		t.Fatal("Execute should fail once the alert deadline passes")
	}
	stored := load(t, store, "a1")
	if stored.LastRun == nil || !strings.Contains(stored.LastRun.Error, context.DeadlineExceeded.Error()) {
		t.Errorf("LastRun = %+v, want the deadline error recorded", stored.LastRun)
	}
	if stored.Stats.LastRunAt != nil {
		t.Error("a timed-out run should not advance the creation fence")
	}
}

func TestExecute_InvalidCriteriaRecordsValidationError(t *testing.T) {
	seed := backendAlert("a1")
	seed.Keywords = nil
	store := memory.NewCriteriaStore(seed)
	ex := newExecutor(t, memory.NewCatalog(), store, alert.ExecutorConfig{}, day0)

	_, err := ex.Execute(context.Background(), load(t, store, "a1"), alert.ModeCommit)
	var verr *alert.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Execute error = %v, want *ValidationError", err)
	}
	if load(t, store, "a1").LastRun == nil {
		t.Error("validation failure should be recorded on the last run")
	}
}

func TestExecute_RecordRunFailureFailsTheRun(t *testing.T) {
	store := memory.NewCriteriaStore(backendAlert("a1"))
	store.FailRecordRun = map[string]error{"a1": errors.New("disk full")}
	ex := newExecutor(t, memory.NewCatalog(), store, alert.ExecutorConfig{}, day0)

	if _, err := ex.Execute(context.Background(), load(t, store, "a1"), alert.ModeCommit); err == nil {
		t.Fatal("Execute should fail when the run cannot be recorded")
	}
}

// ── Preview mode ───────────────────────────────────────────────────────────

func TestExecute_PreviewNeverMutates(t *testing.T) {
	store := memory.NewCriteriaStore(backendAlert("a1"))
	cat := memory.NewCatalog(job("j1", "Backend Engineer", "Hanoi", day0.Add(-time.Hour)))
	ex := newExecutor(t, cat, store, alert.ExecutorConfig{}, day0)

	c := load(t, store, "a1")
	res, err := ex.Execute(context.Background(), c, alert.ModePreview)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Preview || res.MatchCount != 1 {
		t.Errorf("preview result = %+v, want Preview with 1 match", res)
	}
	stored := load(t, store, "a1")
	if stored.Stats.LastRunAt != nil || stored.LastRun != nil || stored.Stats.TotalMatches != 0 {
		t.Errorf("preview mutated the stored alert: %+v", stored.Stats)
	}
	if c.Stats.LastRunAt != nil || c.LastRun != nil {
		t.Error("preview mutated the in-memory alert")
	}
}

func TestExecute_PreviewFailureNotRecorded(t *testing.T) {
	store := memory.NewCriteriaStore(backendAlert("a1"))
	cat := memory.NewCatalog()
	cat.Err = errors.New("down")
	ex := newExecutor(t, cat, store, alert.ExecutorConfig{}, day0)

	if _, err := ex.Execute(context.Background(), load(t, store, "a1"), alert.ModePreview); err == nil {
		t.Fatal("expected error")
	}
	if load(t, store, "a1").LastRun != nil {
		t.Error("preview failure should not be recorded")
	}
}

// Two immediate runs on an unchanged catalog report the same match count
// while LastRunAt advances; only the first run counts the entry as new.
func TestExecute_CreatedSinceIdempotence(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCriteriaStore(backendAlert("a1"))
	cat := memory.NewCatalog(job("j1", "Backend Engineer", "Hanoi", day0.Add(-time.Hour)))
	ex := newExecutor(t, cat, store, alert.ExecutorConfig{}, day0)

	first, err := ex.Execute(ctx, load(t, store, "a1"), alert.ModeCommit)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	ex.SetClock(fixedClock(day0.Add(time.Second)))
	second, err := ex.Execute(ctx, load(t, store, "a1"), alert.ModeCommit)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if first.MatchCount != 1 || second.MatchCount != 1 {
		t.Errorf("MatchCount = %d, %d; want 1, 1", first.MatchCount, second.MatchCount)
	}
	if first.NewMatchCount != 1 || second.NewMatchCount != 0 {
		t.Errorf("NewMatchCount = %d, %d; want 1, 0", first.NewMatchCount, second.NewMatchCount)
	}
	stored := load(t, store, "a1")
	if !stored.Stats.LastRunAt.Equal(day0.Add(time.Second)) {
		t.Errorf("LastRunAt = %s, want advanced to second run", stored.Stats.LastRunAt)
	}
	if stored.Stats.TotalMatches != 1 {
		t.Errorf("TotalMatches = %d, want 1", stored.Stats.TotalMatches)
	}
	if stored.LastRun.MatchCount != 1 || stored.LastRun.NewMatchCount != 0 {
		t.Errorf("LastRun = %+v, want 1 match, 0 new", stored.LastRun)
	}
}

// ── Seen-set policy ────────────────────────────────────────────────────────

// Two immediate runs on an unchanged catalog report the same match count
// while LastRunAt advances.
func TestExecute_SeenSetIdempotence(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCriteriaStore(backendAlert("a1"))
	cat := memory.NewCatalog(job("j1", "Backend Engineer", "Hanoi", day0.Add(-time.Hour)))
	ex, err := alert.NewExecutor(cat, store, memory.NewSeenStore(), alert.ExecutorConfig{Policy: alert.PolicySeenSet}, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	ex.SetClock(fixedClock(day0))
	first, err := ex.Execute(ctx, load(t, store, "a1"), alert.ModeCommit)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	ex.SetClock(fixedClock(day0.Add(time.Second)))
	second, err := ex.Execute(ctx, load(t, store, "a1"), alert.ModeCommit)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if first.MatchCount != second.MatchCount {
		t.Errorf("MatchCount changed between runs: %d → %d", first.MatchCount, second.MatchCount)
	}
	if first.NewMatchCount != 1 || second.NewMatchCount != 0 {
		t.Errorf("NewMatchCount = %d, %d; want 1, 0", first.NewMatchCount, second.NewMatchCount)
	}
	stored := load(t, store, "a1")
	if !stored.Stats.LastRunAt.Equal(day0.Add(time.Second)) {
		t.Errorf("LastRunAt = %s, want advanced to second run", stored.Stats.LastRunAt)
	}
	if stored.Stats.TotalMatches != 1 {
		t.Errorf("TotalMatches = %d, want 1 (seen entries are not recounted)", stored.Stats.TotalMatches)
	}
}

// An old entry edited into matching is surfaced under the seen-set policy.
func TestExecute_SeenSetSurfacesOldEntries(t *testing.T) {
	seed := backendAlert("a1")
	seed.Stats.LastRunAt = at(day0.Add(-time.Hour))
	store := memory.NewCriteriaStore(seed)
	cat := memory.NewCatalog(job("old", "Backend Engineer", "Hanoi", day0.Add(-30*24*time.Hour)))
	ex := newExecutor(t, cat, store, alert.ExecutorConfig{Policy: alert.PolicySeenSet}, day0)

	res, err := ex.Execute(context.Background(), load(t, store, "a1"), alert.ModeCommit)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.NewMatchCount != 1 {
		t.Errorf("NewMatchCount = %d, want 1", res.NewMatchCount)
	}
}

func TestNewExecutor_SeenSetRequiresStore(t *testing.T) {
	_, err := alert.NewExecutor(memory.NewCatalog(), memory.NewCriteriaStore(), nil, alert.ExecutorConfig{Policy: alert.PolicySeenSet}, nil)
	if err == nil {
		t.Error("NewExecutor(seen_set, nil seen store) expected error, got nil")
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]alert.Policy{
		"":              alert.PolicyCreatedSince,
		"created_since": alert.PolicyCreatedSince,
		"seen_set":      alert.PolicySeenSet,
	} {
		got, err := alert.ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := alert.ParsePolicy("latest"); err == nil {
		t.Error("ParsePolicy(\"latest\") expected error, got nil")
	}
}
