package alert

import (
	"time"

	"jobmate/alert-service/internal/model"
)

// Threshold is the latest LastRunAt an alert of the cadence may carry and
// still be due at now.
func Threshold(cadence model.Cadence, now time.Time) time.Time {
	return now.Add(-cadence.Window())
}

// IsEligible reports whether c is due for the requested cadence at now.
func IsEligible(c *model.Criteria, cadence model.Cadence, now time.Time) bool {
	if !c.Active || c.Cadence != cadence {
		return false
	}
	last := c.Stats.LastRunAt
	return last == nil || last.Before(Threshold(cadence, now))
}

// SelectEligible filters all down to the alerts due at now. It preserves
// input order and has no side effects.
func SelectEligible(all []model.Criteria, cadence model.Cadence, now time.Time) []model.Criteria {
	out := make([]model.Criteria, 0, len(all))
	for i := range all {
		if IsEligible(&all[i], cadence, now) {
			out = append(out, all[i])
		}
	}
	return out
}
