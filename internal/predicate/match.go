package predicate

import (
	"fmt"
	"regexp"

	"jobmate/alert-service/internal/model"
)

// Matcher reports whether a catalog entry satisfies a compiled expression.
type Matcher func(model.CatalogEntry) bool

// Compile turns e into an in-memory Matcher. Contains terms are quoted with
// regexp.QuoteMeta so user input is never interpreted as a pattern.
func Compile(e Expr) (Matcher, error) {
	switch n := e.(type) {
	case And:
		ms, err := compileAll(n)
		if err != nil {
			return nil, err
		}
		return func(j model.CatalogEntry) bool {
			for _, m := range ms {
				if !m(j) {
					return false
				}
			}
			return true
		}, nil

	case Or:
		ms, err := compileAll(n)
		if err != nil {
			return nil, err
		}
		return func(j model.CatalogEntry) bool {
			for _, m := range ms {
				if m(j) {
					return true
				}
			}
			return false
		}, nil

	case Contains:
		if _, ok := textField(model.CatalogEntry{}, n.Field); !ok {
			return nil, fmt.Errorf("contains: %q is not a text field", n.Field)
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(n.Term))
		if err != nil {
			return nil, fmt.Errorf("contains %q: %w", n.Term, err)
		}
		return func(j model.CatalogEntry) bool {
			v, _ := textField(j, n.Field)
			return re.MatchString(v)
		}, nil

	case In:
		if _, ok := textField(model.CatalogEntry{}, n.Field); !ok {
			return nil, fmt.Errorf("in: %q is not a text field", n.Field)
		}
		set := make(map[string]struct{}, len(n.Values))
		for _, v := range n.Values {
			set[v] = struct{}{}
		}
		return func(j model.CatalogEntry) bool {
			v, _ := textField(j, n.Field)
			_, ok := set[v]
			return ok
		}, nil

	case Eq:
		if _, ok := textField(model.CatalogEntry{}, n.Field); !ok {
			return nil, fmt.Errorf("eq: %q is not a text field", n.Field)
		}
		return func(j model.CatalogEntry) bool {
			v, _ := textField(j, n.Field)
			return v == n.Value
		}, nil

	case IntCmp:
		if _, ok := intField(model.CatalogEntry{}, n.Field); !ok {
			return nil, fmt.Errorf("compare: %q is not a numeric field", n.Field)
		}
		return func(j model.CatalogEntry) bool {
			v, _ := intField(j, n.Field)
			if v == nil {
				return false
			}
			return compare(*v, n.Value, n.Op)
		}, nil

	case TimeCmp:
		if n.Field != FieldCreatedAt {
			return nil, fmt.Errorf("compare: %q is not a time field", n.Field)
		}
		return func(j model.CatalogEntry) bool {
			switch n.Op {
			case GTE:
				return !j.CreatedAt.Before(n.Value)
			case LTE:
				return !j.CreatedAt.After(n.Value)
			}
			return false
		}, nil

	case BoolEq:
		if n.Field != FieldActive {
			return nil, fmt.Errorf("bool: %q is not a boolean field", n.Field)
		}
		return func(j model.CatalogEntry) bool { return j.Active == n.Value }, nil
	}

	return nil, fmt.Errorf("unsupported expression %T", e)
}

// Match is a convenience for one-off evaluation.
func Match(e Expr, j model.CatalogEntry) (bool, error) {
	m, err := Compile(e)
	if err != nil {
		return false, err
	}
	return m(j), nil
}

func compileAll(list []Expr) ([]Matcher, error) {
	ms := make([]Matcher, 0, len(list))
	for _, c := range list {
		m, err := Compile(c)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, nil
}

func compare(v, ref int64, op CmpOp) bool {
	switch op {
	case GTE:
		return v >= ref
	case LTE:
		return v <= ref
	}
	return false
}

func textField(j model.CatalogEntry, f Field) (string, bool) {
	switch f {
	case FieldTitle:
		return j.Title, true
	case FieldDescription:
		return j.Description, true
	case FieldRequirements:
		return j.Requirements, true
	case FieldLocation:
		return j.Location, true
	case FieldIndustry:
		return j.Industry, true
	case FieldJobType:
		return j.JobType, true
	case FieldExperienceLevel:
		return j.ExperienceLevel, true
	case FieldSalaryCurrency:
		return j.SalaryCurrency, true
	}
	return "", false
}

func intField(j model.CatalogEntry, f Field) (*int64, bool) {
	switch f {
	case FieldSalaryMin:
		return j.SalaryMin, true
	case FieldSalaryMax:
		return j.SalaryMax, true
	}
	return nil, false
}
