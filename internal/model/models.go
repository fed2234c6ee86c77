// Package model defines shared data structures for the alert service.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cadence is how often an alert becomes due for re-evaluation.
type Cadence string

const (
	CadenceInstant Cadence = "instant"
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
)

// Cadences lists every supported cadence in ascending window order.
var Cadences = []Cadence{CadenceInstant, CadenceDaily, CadenceWeekly}

// ParseCadence converts a raw string to a Cadence, returning an error for
// unknown values.
func ParseCadence(s string) (Cadence, error) {
	c := Cadence(s)
	switch c {
	case CadenceInstant, CadenceDaily, CadenceWeekly:
		return c, nil
	}
	return "", fmt.Errorf("unknown cadence %q (valid: instant, daily, weekly)", s)
}

// Window returns the minimum time between two runs of an alert.
func (c Cadence) Window() time.Duration {
	switch c {
	case CadenceDaily:
		return 24 * time.Hour
	case CadenceWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// SalaryRange is an optional salary constraint. Nil bounds are unconstrained.
type SalaryRange struct {
	Min      *int64 `json:"min,omitempty"`
	Max      *int64 `json:"max,omitempty"`
	Currency string `json:"currency"`
}

// IsZero reports whether neither bound is set.
func (s *SalaryRange) IsZero() bool {
	return s == nil || (s.Min == nil && s.Max == nil)
}

// String renders the range the way the alert list displays it.
func (s *SalaryRange) String() string {
	if s.IsZero() {
		return "Any salary"
	}
	switch {
	case s.Min != nil && s.Max == nil:
		return fmt.Sprintf("From %s %s", groupThousands(*s.Min), s.Currency)
	case s.Min == nil && s.Max != nil:
		return fmt.Sprintf("Up to %s %s", groupThousands(*s.Max), s.Currency)
	}
	return fmt.Sprintf("%s - %s %s", groupThousands(*s.Min), groupThousands(*s.Max), s.Currency)
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// Channels selects where a subscriber wants alert notifications delivered.
type Channels struct {
	InApp bool `json:"inApp"`
	Email bool `json:"email"`
}

// ExecutionStats accumulates across every run of an alert.
type ExecutionStats struct {
	TotalMatches int        `json:"totalMatches"`
	LastRunAt    *time.Time `json:"lastRunAt"`
	LastMatchAt  *time.Time `json:"lastMatchAt"`
}

// LastRun is the diagnostic snapshot of the most recent run. It is
// overwritten by every run.
type LastRun struct {
	RunAt         time.Time `json:"runAt"`
	MatchCount    int       `json:"matchCount"`
	NewMatchCount int       `json:"newMatchCount"`
	Error         string    `json:"error,omitempty"`
}

// Criteria is a subscriber's standing search: the job_alerts row.
type Criteria struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"ownerId"`
	Name             string         `json:"name"`
	Keywords         []string       `json:"keywords"`
	Locations        []string       `json:"locations"`
	Industries       []string       `json:"industries"`
	JobTypes         []string       `json:"jobTypes"`
	ExperienceLevels []string       `json:"experienceLevels"`
	Salary           *SalaryRange   `json:"salaryRange,omitempty"`
	Cadence          Cadence        `json:"cadence"`
	Channels         Channels       `json:"channels"`
	Active           bool           `json:"active"`
	Stats            ExecutionStats `json:"stats"`
	LastRun          *LastRun       `json:"lastRun,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// MarshalJSON adds the display fields searchSummary and
// formattedSalaryRange to the stored fields.
func (c Criteria) MarshalJSON() ([]byte, error) {
	type plain Criteria
	return json.Marshal(struct {
		plain
		SearchSummary        string `json:"searchSummary"`
		FormattedSalaryRange string `json:"formattedSalaryRange"`
	}{plain(c), c.Summary(), c.Salary.String()})
}

// Clone returns a deep copy: no slice or pointer is shared with c.
func (c *Criteria) Clone() Criteria {
	out := *c
	out.Keywords = cloneStrings(c.Keywords)
	out.Locations = cloneStrings(c.Locations)
	out.Industries = cloneStrings(c.Industries)
	out.JobTypes = cloneStrings(c.JobTypes)
	out.ExperienceLevels = cloneStrings(c.ExperienceLevels)
	if c.Salary != nil {
		s := *c.Salary
		if s.Min != nil {
			v := *s.Min
			s.Min = &v
		}
		if s.Max != nil {
			v := *s.Max
			s.Max = &v
		}
		out.Salary = &s
	}
	if c.Stats.LastRunAt != nil {
		t := *c.Stats.LastRunAt
		out.Stats.LastRunAt = &t
	}
	if c.Stats.LastMatchAt != nil {
		t := *c.Stats.LastMatchAt
		out.Stats.LastMatchAt = &t
	}
	if c.LastRun != nil {
		r := *c.LastRun
		out.LastRun = &r
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// Summary renders the criteria as a one-line description.
func (c *Criteria) Summary() string {
	var parts []string
	if len(c.Keywords) > 0 {
		parts = append(parts, "Keywords: "+strings.Join(c.Keywords, ", "))
	}
	if len(c.Locations) > 0 {
		parts = append(parts, "Location: "+strings.Join(c.Locations, ", "))
	}
	if len(c.Industries) > 0 {
		parts = append(parts, "Industry: "+strings.Join(c.Industries, ", "))
	}
	if len(c.JobTypes) > 0 {
		parts = append(parts, "Type: "+strings.Join(c.JobTypes, ", "))
	}
	return strings.Join(parts, " | ")
}

// CatalogEntry is a job posting as read from the catalog. This service never
// writes it.
type CatalogEntry struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Requirements    string    `json:"requirements"`
	Location        string    `json:"location"`
	Industry        string    `json:"industry"`
	JobType         string    `json:"jobType"`
	ExperienceLevel string    `json:"experienceLevel"`
	SalaryMin       *int64    `json:"salaryMin,omitempty"`
	SalaryMax       *int64    `json:"salaryMax,omitempty"`
	SalaryCurrency  string    `json:"salaryCurrency,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	Active          bool      `json:"active"`
}

// NotificationType values mirror the notifications.type column.
const NotificationTypeJobAlert = "job_alert"

// Priority values for notifications.
const (
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// NotificationAction describes the call-to-action attached to a notification.
type NotificationAction struct {
	Type string `json:"actionType"`
	URL  string `json:"actionUrl"`
	Text string `json:"actionText"`
}

// NotificationMetadata carries correlation data for downstream consumers.
type NotificationMetadata struct {
	MatchCount   int    `json:"matchCount"`
	CriteriaID   string `json:"criteriaId"`
	CriteriaName string `json:"criteriaName"`
}

// NotificationDraft is handed to the notification store. Its lifecycle ends
// at hand-off.
type NotificationDraft struct {
	OwnerID  string               `json:"ownerId"`
	Type     string               `json:"type"`
	Title    string               `json:"title"`
	Body     string               `json:"body"`
	Priority string               `json:"priority"`
	Channels Channels             `json:"channels"`
	Action   NotificationAction   `json:"action"`
	Metadata NotificationMetadata `json:"metadata"`
}

// NotificationRecord is what the notification store returns after Create.
type NotificationRecord struct {
	ID        string            `json:"id"`
	Draft     NotificationDraft `json:"draft"`
	CreatedAt time.Time         `json:"createdAt"`
}
