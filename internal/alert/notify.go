package alert

import (
	"fmt"

	"jobmate/alert-service/internal/model"
)

// DefaultHighPriorityThreshold is the new-match count above which a
// notification is sent at high priority.
const DefaultHighPriorityThreshold = 5

// Draft builds the notification for a run that found new matches. It does
// not touch storage.
func Draft(c *model.Criteria, res *ExecutionResult, highThreshold int) model.NotificationDraft {
	n := res.NewMatchCount
	priority := model.PriorityMedium
	if n > highThreshold {
		priority = model.PriorityHigh
	}
	return model.NotificationDraft{
		OwnerID:  c.OwnerID,
		Type:     model.NotificationTypeJobAlert,
		Title:    fmt.Sprintf("%d New %s Found", n, plural(n, "Job", "Jobs")),
		Body:     fmt.Sprintf("Your alert \"%s\" found %d new %s matching your criteria.", c.Name, n, plural(n, "job", "jobs")),
		Priority: priority,
		Channels: c.Channels,
		Action: model.NotificationAction{
			Type: "view_jobs",
			URL:  "/jobs/search",
			Text: "View Jobs",
		},
		Metadata: model.NotificationMetadata{
			MatchCount:   n,
			CriteriaID:   c.ID,
			CriteriaName: c.Name,
		},
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
