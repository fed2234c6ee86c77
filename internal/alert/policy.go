package alert

import (
	"fmt"
	"strings"

	"jobmate/alert-service/internal/model"
)

// DefaultCurrency applies when a salary range is given without a currency.
const DefaultCurrency = "VND"

// Normalize trims every term, drops blanks and removes case-insensitive
// duplicates (first spelling wins). It is the only place criteria text is
// rewritten and callers invoke it explicitly.
func Normalize(c *model.Criteria) {
	c.Name = strings.TrimSpace(c.Name)
	c.Keywords = normalizeTerms(c.Keywords)
	c.Locations = normalizeTerms(c.Locations)
	c.Industries = normalizeTerms(c.Industries)
	c.JobTypes = normalizeTerms(c.JobTypes)
	c.ExperienceLevels = normalizeTerms(c.ExperienceLevels)
	if c.Salary != nil {
		c.Salary.Currency = strings.ToUpper(strings.TrimSpace(c.Salary.Currency))
	}
}

// ApplyDefaults fills the optional fields of a new alert: a generated name,
// daily cadence and the default salary currency. Nothing else is defaulted;
// in particular empty optional sets stay empty and mean "no restriction".
func ApplyDefaults(c *model.Criteria) {
	if c.Name == "" && len(c.Keywords) > 0 {
		c.Name = truncate(fmt.Sprintf("Alert for %s", strings.Join(c.Keywords, ", ")), maxNameLen)
	}
	if c.Cadence == "" {
		c.Cadence = model.CadenceDaily
	}
	if c.Salary != nil {
		if c.Salary.IsZero() {
			c.Salary = nil
		} else if c.Salary.Currency == "" {
			c.Salary.Currency = DefaultCurrency
		}
	}
}

func normalizeTerms(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
