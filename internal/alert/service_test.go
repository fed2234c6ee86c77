package alert_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobmate/alert-service/internal/alert"
	"jobmate/alert-service/internal/model"
	"jobmate/alert-service/internal/store/memory"
)

func newService(entries ...model.CatalogEntry) (*alert.Service, *memory.CriteriaStore) {
	store := memory.NewCriteriaStore()
	return alert.NewService(store, memory.NewCatalog(entries...), nil), store
}

func validInput() alert.CriteriaInput {
	return alert.CriteriaInput{
		Keywords:  []string{" golang ", "Golang", "backend"},
		Locations: []string{"Hanoi"},
	}
}

// ── Create ─────────────────────────────────────────────────────────────────

func TestService_CreateAppliesDefaults(t *testing.T) {
	svc, _ := newService()
	c, err := svc.Create(context.Background(), "user-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == "" || !c.Active {
		t.Errorf("created alert = %+v, want id and active", c)
	}
	if c.Name != "Alert for golang, backend" {
		t.Errorf("Name = %q, want generated default", c.Name)
	}
	if c.Cadence != model.CadenceDaily {
		t.Errorf("Cadence = %q, want daily", c.Cadence)
	}
	if len(c.Keywords) != 2 {
		t.Errorf("Keywords = %q, want trimmed and deduplicated", c.Keywords)
	}
	if !c.Channels.InApp || !c.Channels.Email {
		t.Errorf("Channels = %+v, want both enabled by default", c.Channels)
	}
}

func TestService_CreateDefaultsCurrency(t *testing.T) {
	svc, _ := newService()
	in := validInput()
	in.Salary = &model.SalaryRange{Min: i64(10_000_000)}
	c, err := svc.Create(context.Background(), "user-1", in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Salary == nil || c.Salary.Currency != alert.DefaultCurrency {
		t.Errorf("Salary = %+v, want currency %s", c.Salary, alert.DefaultCurrency)
	}
}

func TestService_CreateRejectsInvalid(t *testing.T) {
	cases := map[string]func(*alert.CriteriaInput){
		"no keywords":  func(in *alert.CriteriaInput) { in.Keywords = nil },
		"no locations": func(in *alert.CriteriaInput) { in.Locations = []string{" "} },
		"bad job type": func(in *alert.CriteriaInput) { in.JobTypes = []string{"Gig"} },
		"bad level":    func(in *alert.CriteriaInput) { in.ExperienceLevels = []string{"Wizard"} },
		"bad cadence":  func(in *alert.CriteriaInput) { in.Cadence = "hourly" },
		"bad currency": func(in *alert.CriteriaInput) { in.Salary = &model.SalaryRange{Max: i64(5), Currency: "GBP"} },
		"negative":     func(in *alert.CriteriaInput) { in.Salary = &model.SalaryRange{Min: i64(-1)} },
		"inverted":     func(in *alert.CriteriaInput) { in.Salary = &model.SalaryRange{Min: i64(9), Max: i64(1)} },
		"long keyword": func(in *alert.CriteriaInput) { in.Keywords = []string{string(make([]byte, 51))} },
	}
	for name, mutate := range cases {
		svc, store := newService()
		in := validInput()
		mutate(&in)
		_, err := svc.Create(context.Background(), "user-1", in)
		var verr *alert.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: Create error = %v, want *ValidationError", name, err)
			continue
		}
		if len(verr.Fields) == 0 {
			t.Errorf("%s: ValidationError has no field details", name)
		}
		if list, _ := store.FindByOwner(context.Background(), "user-1", false); len(list) != 0 {
			t.Errorf("%s: invalid alert was stored", name)
		}
	}
}

// ── Ownership and lifecycle ────────────────────────────────────────────────

func TestService_OwnershipIsEnforced(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	c, err := svc.Create(ctx, "user-1", validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Get(ctx, "user-2", c.ID); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("Get by other owner error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Toggle(ctx, "user-2", c.ID); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("Toggle by other owner error = %v, want ErrNotFound", err)
	}
	if err := svc.Deactivate(ctx, "user-2", c.ID); !errors.Is(err, alert.ErrNotFound) {
		t.Errorf("Deactivate by other owner error = %v, want ErrNotFound", err)
	}
}

func TestService_UpdateReplacesWholeFields(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	c, _ := svc.Create(ctx, "user-1", validInput())

	kw := []string{"rust"}
	weekly := model.CadenceWeekly
	got, err := svc.Update(ctx, "user-1", c.ID, alert.CriteriaPatch{Keywords: &kw, Cadence: &weekly})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got.Keywords) != 1 || got.Keywords[0] != "rust" || got.Cadence != model.CadenceWeekly {
		t.Errorf("updated = %+v", got)
	}
	if got.Locations[0] != "Hanoi" {
		t.Error("unpatched fields should be kept")
	}

	empty := []string{}
	if _, err := svc.Update(ctx, "user-1", c.ID, alert.CriteriaPatch{Locations: &empty}); err == nil {
		t.Error("Update to empty locations expected error, got nil")
	}
}

func TestService_UpdateKeepsRunBookkeeping(t *testing.T) {
	ctx := context.Background()
	svc, store := newService()
	c, _ := svc.Create(ctx, "user-1", validInput())
	if err := store.RecordRun(ctx, c.ID, model.ExecutionStats{TotalMatches: 4, LastRunAt: at(day0)}, model.LastRun{RunAt: day0, MatchCount: 4}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	name := "renamed"
	if _, err := svc.Update(ctx, "user-1", c.ID, alert.CriteriaPatch{Name: &name}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := load(t, store, c.ID)
	if got.Stats.TotalMatches != 4 || got.LastRun == nil {
		t.Errorf("Update overwrote run bookkeeping: %+v", got.Stats)
	}
}

func TestService_ToggleAndDeactivate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	c, _ := svc.Create(ctx, "user-1", validInput())

	toggled, err := svc.Toggle(ctx, "user-1", c.ID)
	if err != nil || toggled.Active {
		t.Fatalf("Toggle = %+v, %v; want inactive", toggled, err)
	}
	toggled, _ = svc.Toggle(ctx, "user-1", c.ID)
	if !toggled.Active {
		t.Error("second Toggle should reactivate")
	}

	if err := svc.Deactivate(ctx, "user-1", c.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	active, _ := svc.List(ctx, "user-1", true)
	if len(active) != 0 {
		t.Errorf("active alerts = %d, want 0", len(active))
	}
	all, _ := svc.List(ctx, "user-1", false)
	if len(all) != 1 {
		t.Errorf("all alerts = %d, want 1 (deactivation is soft)", len(all))
	}
}

func TestService_Statistics(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCriteriaStore()
	svc := alert.NewService(store, memory.NewCatalog(), nil)

	daily := backendAlert("d1")
	daily.Stats.TotalMatches = 3
	weekly := backendAlert("w1")
	weekly.Cadence = model.CadenceWeekly
	weekly.Active = false
	weekly.Stats.TotalMatches = 4
	other := backendAlert("x1")
	other.OwnerID = "user-2"
	for _, c := range []model.Criteria{daily, weekly, other} {
		if err := store.Save(ctx, &c); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	st, err := svc.Statistics(ctx, "user-1")
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.TotalAlerts != 2 || st.ActiveAlerts != 1 || st.TotalMatches != 7 {
		t.Errorf("stats = %+v", st)
	}
	if st.AverageMatches != 4 {
		t.Errorf("AverageMatches = %d, want round(3.5) = 4", st.AverageMatches)
	}
	if st.ByCadence[model.CadenceWeekly] != (alert.CadenceStats{Total: 1, Active: 0}) {
		t.Errorf("weekly = %+v", st.ByCadence[model.CadenceWeekly])
	}
}

func TestService_StatisticsEmpty(t *testing.T) {
	svc, _ := newService()
	st, err := svc.Statistics(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.TotalAlerts != 0 || st.AverageMatches != 0 || len(st.ByCadence) != 0 {
		t.Errorf("stats = %+v, want zero", st)
	}
}

// ── Preview ────────────────────────────────────────────────────────────────

func TestService_PreviewIgnoresFenceAndLimits(t *testing.T) {
	entries := make([]model.CatalogEntry, 0, 7)
	for i := 0; i < 7; i++ {
		entries = append(entries, job(string(rune('a'+i)), "Golang Developer", "Hanoi", day0.Add(-time.Duration(i)*24*time.Hour)))
	}
	svc, store := newService(entries...)

	p, err := svc.Preview(context.Background(), "user-1", validInput(), 0)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if p.MatchCount != 7 {
		t.Errorf("MatchCount = %d, want 7", p.MatchCount)
	}
	if len(p.Jobs) != alert.DefaultPreviewSize {
		t.Errorf("len(Jobs) = %d, want %d", len(p.Jobs), alert.DefaultPreviewSize)
	}
	if list, _ := store.FindByOwner(context.Background(), "user-1", false); len(list) != 0 {
		t.Error("Preview must not persist anything")
	}
}

func TestService_PreviewValidates(t *testing.T) {
	svc, _ := newService()
	_, err := svc.Preview(context.Background(), "user-1", alert.CriteriaInput{Locations: []string{"Hanoi"}}, 5)
	var verr *alert.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Preview error = %v, want *ValidationError", err)
	}
}
