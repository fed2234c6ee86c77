package postgres

import (
	"strings"
	"testing"

	"jobmate/alert-service/internal/predicate"
)

func TestSearchQuery_LimitIsLastParameter(t *testing.T) {
	expr := predicate.And{
		predicate.BoolEq{Field: predicate.FieldActive, Value: true},
		predicate.Contains{Field: predicate.FieldTitle, Term: "go"},
	}
	q, args, err := searchQuery(expr, 100)
	if err != nil {
		t.Fatalf("searchQuery: %v", err)
	}
	if !strings.HasSuffix(q, "ORDER BY created_at DESC LIMIT $3") {
		t.Errorf("query should end with the limit placeholder, got:\n%s", q)
	}
	if len(args) != 3 || args[2] != 100 {
		t.Errorf("args = %v, want limit 100 last", args)
	}
	if !strings.Contains(q, "FROM jobs WHERE (is_active = $1 AND title ILIKE $2 ESCAPE '\\')") {
		t.Errorf("unexpected WHERE clause:\n%s", q)
	}
}

func TestCountQuery(t *testing.T) {
	q, args, err := countQuery(predicate.In{Field: predicate.FieldIndustry, Values: []string{"IT"}})
	if err != nil {
		t.Fatalf("countQuery: %v", err)
	}
	if q != "SELECT COUNT(*) FROM jobs WHERE industry = ANY($1)" {
		t.Errorf("q = %q", q)
	}
	if len(args) != 1 {
		t.Errorf("args = %v", args)
	}
}

func TestSearchQuery_RejectsUnknownField(t *testing.T) {
	if _, _, err := searchQuery(predicate.Eq{Field: "owner_id", Value: "x"}, 10); err == nil {
		t.Error("searchQuery with unknown field expected error, got nil")
	}
}

func TestNonNil(t *testing.T) {
	if got := nonNil(nil); got == nil || len(got) != 0 {
		t.Errorf("nonNil(nil) = %#v, want empty non-nil slice", got)
	}
}
