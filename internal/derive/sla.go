package derive

import (
	"time"

	"crmline/internal/domain"
)

// SLADeadlines offsets createdAt by the response and resolution hours.
func SLADeadlines(createdAt time.Time, responseHours, resolutionHours int) (response, resolution time.Time) {
	response = createdAt.Add(time.Duration(responseHours) * time.Hour)
	resolution = createdAt.Add(time.Duration(resolutionHours) * time.Hour)
	return response, resolution
}

// SLABreached reports the breach flag at now. Once breached it stays
// breached.
func SLABreached(sla domain.SLA, firstResponse, resolved *time.Time, now time.Time) bool {
	if sla.IsBreached {
		return true
	}
	if !sla.ResponseDeadline.IsZero() && firstResponse == nil && now.After(sla.ResponseDeadline) {
		return true
	}
	if !sla.ResolutionDeadline.IsZero() && resolved == nil && now.After(sla.ResolutionDeadline) {
		return true
	}
	return false
}
