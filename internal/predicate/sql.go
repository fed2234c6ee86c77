package predicate

import (
	"fmt"
	"strings"
)

// columns whitelists every field a rendered query may reference.
var columns = map[Field]string{
	FieldTitle:           "title",
	FieldDescription:     "description",
	FieldRequirements:    "requirements",
	FieldLocation:        "location",
	FieldIndustry:        "industry",
	FieldJobType:         "job_type",
	FieldExperienceLevel: "experience_level",
	FieldSalaryMin:       "salary_min",
	FieldSalaryMax:       "salary_max",
	FieldSalaryCurrency:  "salary_currency",
	FieldCreatedAt:       "created_at",
	FieldActive:          "is_active",
}

// ToSQL renders e as a PostgreSQL boolean expression. Placeholders start at
// $start and the matching arguments are returned in order.
func ToSQL(e Expr, start int) (string, []any, error) {
	r := &renderer{next: start}
	var b strings.Builder
	if err := r.render(&b, e); err != nil {
		return "", nil, err
	}
	return b.String(), r.args, nil
}

// EscapeLike escapes the LIKE metacharacters in s using backslash.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type renderer struct {
	next int
	args []any
}

func (r *renderer) param(v any) string {
	r.args = append(r.args, v)
	p := fmt.Sprintf("$%d", r.next)
	r.next++
	return p
}

func (r *renderer) render(b *strings.Builder, e Expr) error {
	switch n := e.(type) {
	case And:
		return r.list(b, []Expr(n), " AND ", "TRUE")
	case Or:
		return r.list(b, []Expr(n), " OR ", "FALSE")
	case Contains:
		col, err := column(n.Field)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, `%s ILIKE %s ESCAPE '\'`, col, r.param("%"+EscapeLike(n.Term)+"%"))
	case In:
		col, err := column(n.Field)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s = ANY(%s)", col, r.param(n.Values))
	case Eq:
		col, err := column(n.Field)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s = %s", col, r.param(n.Value))
	case IntCmp:
		col, err := column(n.Field)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s %s %s", col, n.Op, r.param(n.Value))
	case TimeCmp:
		col, err := column(n.Field)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s %s %s", col, n.Op, r.param(n.Value))
	case BoolEq:
		col, err := column(n.Field)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s = %s", col, r.param(n.Value))
	default:
		return fmt.Errorf("unsupported expression %T", e)
	}
	return nil
}

func (r *renderer) list(b *strings.Builder, list []Expr, sep, empty string) error {
	if len(list) == 0 {
		b.WriteString(empty)
		return nil
	}
	b.WriteByte('(')
	for i, c := range list {
		if i > 0 {
			b.WriteString(sep)
		}
		if err := r.render(b, c); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

func column(f Field) (string, error) {
	col, ok := columns[f]
	if !ok {
		return "", fmt.Errorf("unknown field %q", f)
	}
	return col, nil
}
