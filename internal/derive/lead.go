package derive

import (
	"time"

	"crmline/internal/domain"
)

const maxLeadScore = 100

var activityPoints = map[domain.ActivityType]int{
	domain.ActivityEmail:   5,
	domain.ActivityCall:    10,
	domain.ActivityMeeting: 20,
}

// LeadScore scores profile completeness plus weighted activity counts,
// capped at 100.
func LeadScore(l domain.Lead) int {
	score := 0
	if l.Email != "" {
		score += 10
	}
	if l.Name != "" {
		score += 5
	}
	if l.Company != "" {
		score += 10
	}
	if l.Phone != "" {
		score += 15
	}
	for _, a := range l.Activities {
		score += activityPoints[a.Type]
		if score >= maxLeadScore {
			return maxLeadScore
		}
	}
	if score > maxLeadScore {
		return maxLeadScore
	}
	return score
}

// NeedsFollowUp reports whether an open lead has been idle longer than days.
func NeedsFollowUp(l domain.Lead, now time.Time, days int) bool {
	if l.Status == domain.LeadWon || l.Status == domain.LeadLost {
		return false
	}
	return l.LastActivity.Before(now.AddDate(0, 0, -days))
}
