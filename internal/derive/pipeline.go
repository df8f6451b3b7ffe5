package derive

import "crmline/internal/domain"

// NextStage finds the active stage ordered immediately after order.
func NextStage(stages []domain.PipelineStage, order int) (domain.PipelineStage, bool) {
	for _, s := range stages {
		if s.IsActive && s.Order == order+1 {
			return s, true
		}
	}
	return domain.PipelineStage{}, false
}

// ConversionRate is next/current as a percentage; zero when the current
// stage is empty.
func ConversionRate(current, next int) float64 {
	if current <= 0 {
		return 0
	}
	return float64(next) / float64(current) * 100
}
