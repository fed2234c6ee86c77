package alert

import (
	"jobmate/alert-service/internal/model"
	"jobmate/alert-service/internal/predicate"
)

// keywordFields are the catalog text fields a keyword may appear in.
var keywordFields = []predicate.Field{
	predicate.FieldTitle,
	predicate.FieldDescription,
	predicate.FieldRequirements,
}

// Compile turns criteria into a catalog predicate. When the alert has run
// before, only entries created at or after that run are matched.
func Compile(c *model.Criteria) (predicate.Expr, error) {
	expr, err := compile(c)
	if err != nil {
		return nil, err
	}
	if f := Fence(c); f != nil {
		expr = append(expr, f)
	}
	return expr, nil
}

// CompileUnfenced is Compile without the creation-time fence. The executor
// searches with it so MatchCount reflects every current match; previews
// use it too.
func CompileUnfenced(c *model.Criteria) (predicate.Expr, error) {
	return compile(c)
}

// Fence is the creation-time clause Compile adds for an alert that has run
// before, or nil for a first run.
func Fence(c *model.Criteria) predicate.Expr {
	if c.Stats.LastRunAt == nil {
		return nil
	}
	return predicate.TimeCmp{Field: predicate.FieldCreatedAt, Op: predicate.GTE, Value: *c.Stats.LastRunAt}
}

func compile(c *model.Criteria) (predicate.And, error) {
	n := c.Clone()
	Normalize(&n)
	if err := validateMatchable(&n); err != nil {
		return nil, err
	}

	expr := predicate.And{
		predicate.BoolEq{Field: predicate.FieldActive, Value: true},
		predicate.AnyContains(keywordFields, n.Keywords),
		predicate.AnyContains([]predicate.Field{predicate.FieldLocation}, n.Locations),
	}
	if len(n.Industries) > 0 {
		expr = append(expr, predicate.In{Field: predicate.FieldIndustry, Values: n.Industries})
	}
	if len(n.JobTypes) > 0 {
		expr = append(expr, predicate.In{Field: predicate.FieldJobType, Values: n.JobTypes})
	}
	if len(n.ExperienceLevels) > 0 {
		expr = append(expr, predicate.In{Field: predicate.FieldExperienceLevel, Values: n.ExperienceLevels})
	}
	if s := n.Salary; !s.IsZero() {
		currency := s.Currency
		if currency == "" {
			currency = DefaultCurrency
		}
		expr = append(expr, predicate.Eq{Field: predicate.FieldSalaryCurrency, Value: currency})
		// Narrowing: the posting's whole range must sit inside the wanted range.
		if s.Min != nil {
			expr = append(expr, predicate.IntCmp{Field: predicate.FieldSalaryMin, Op: predicate.GTE, Value: *s.Min})
		}
		if s.Max != nil {
			expr = append(expr, predicate.IntCmp{Field: predicate.FieldSalaryMax, Op: predicate.LTE, Value: *s.Max})
		}
	}
	return expr, nil
}
