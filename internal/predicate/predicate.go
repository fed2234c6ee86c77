// Package predicate is the structured filter language shared by the alert
// compiler and the catalog backends.
//
// An Expr tree is built once per alert and then either evaluated in memory
// (Compile) or rendered to a parameterised PostgreSQL WHERE clause (ToSQL).
// User text only ever appears as a literal term: escaping for both targets
// lives in this package.
package predicate

import (
	"fmt"
	"strings"
	"time"
)

// Field names a catalog column an expression can reference.
type Field string

const (
	FieldTitle           Field = "title"
	FieldDescription     Field = "description"
	FieldRequirements    Field = "requirements"
	FieldLocation        Field = "location"
	FieldIndustry        Field = "industry"
	FieldJobType         Field = "job_type"
	FieldExperienceLevel Field = "experience_level"
	FieldSalaryMin       Field = "salary_min"
	FieldSalaryMax       Field = "salary_max"
	FieldSalaryCurrency  Field = "salary_currency"
	FieldCreatedAt       Field = "created_at"
	FieldActive          Field = "is_active"
)

// CmpOp is a comparison operator for ordered fields.
type CmpOp string

const (
	GTE CmpOp = ">="
	LTE CmpOp = "<="
)

// Expr is a node of the predicate tree.
type Expr interface {
	isExpr()
}

// And matches when every child matches. An empty And matches everything.
type And []Expr

// Or matches when at least one child matches. An empty Or matches nothing.
type Or []Expr

// Contains is a case-insensitive literal substring match on a text field.
type Contains struct {
	Field Field
	Term  string
}

// In matches when a text field equals one of Values exactly.
type In struct {
	Field  Field
	Values []string
}

// Eq matches when a text field equals Value exactly.
type Eq struct {
	Field Field
	Value string
}

// IntCmp compares a numeric field. Entries with the field unset never match.
type IntCmp struct {
	Field Field
	Op    CmpOp
	Value int64
}

// TimeCmp compares a timestamp field.
type TimeCmp struct {
	Field Field
	Op    CmpOp
	Value time.Time
}

// BoolEq matches a boolean field.
type BoolEq struct {
	Field Field
	Value bool
}

func (And) isExpr() {}
func (Or) isExpr() {}
func (Contains) isExpr() {}
func (In) isExpr() {}
func (Eq) isExpr() {}
func (IntCmp) isExpr() {}
func (TimeCmp) isExpr() {}
func (BoolEq) isExpr() {}

// AnyContains builds an Or of Contains terms: every term against every field.
func AnyContains(fields []Field, terms []string) Or {
	or := make(Or, 0, len(fields)*len(terms))
	for _, f := range fields {
		for _, t := range terms {
			or = append(or, Contains{Field: f, Term: t})
		}
	}
	return or
}

// String renders e in a compact human-readable form for logs.
func String(e Expr) string {
	var b strings.Builder
	write(&b, e)
	return b.String()
}

func write(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case And:
		writeList(b, []Expr(n), " AND ", "TRUE")
	case Or:
		writeList(b, []Expr(n), " OR ", "FALSE")
	case Contains:
		fmt.Fprintf(b, "%s ~ %q", n.Field, n.Term)
	case In:
		fmt.Fprintf(b, "%s IN %q", n.Field, n.Values)
	case Eq:
		fmt.Fprintf(b, "%s = %q", n.Field, n.Value)
	case IntCmp:
		fmt.Fprintf(b, "%s %s %d", n.Field, n.Op, n.Value)
	case TimeCmp:
		fmt.Fprintf(b, "%s %s %s", n.Field, n.Op, n.Value.UTC().Format(time.RFC3339))
	case BoolEq:
		fmt.Fprintf(b, "%s = %t", n.Field, n.Value)
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}

func writeList(b *strings.Builder, list []Expr, sep, empty string) {
	if len(list) == 0 {
		b.WriteString(empty)
		return
	}
	b.WriteByte('(')
	for i, c := range list {
		if i > 0 {
			b.WriteString(sep)
		}
		write(b, c)
	}
	b.WriteByte(')')
}
