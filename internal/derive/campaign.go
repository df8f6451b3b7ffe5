package derive

import (
	"github.com/shopspring/decimal"

	"crmline/internal/domain"
)

// Effectiveness derives cost and return ratios from a campaign budget and
// its performance metrics. A zero budget is treated as 1.
func Effectiveness(budget decimal.Decimal, m domain.PerformanceMetrics) domain.Effectiveness {
	if budget.IsZero() {
		budget = decimal.NewFromInt(1)
	}
	leads := decimal.NewFromInt(int64(m.Leads))
	conversions := decimal.NewFromInt(int64(m.Conversions))
	eff := domain.Effectiveness{
		CostPerLead:       decimal.Zero,
		CostPerConversion: decimal.Zero,
		ROI:               decimal.Zero,
		ConversionRate:    decimal.Zero,
	}
	if m.Leads > 0 {
		eff.CostPerLead = budget.DivRound(leads, 4)
		eff.ConversionRate = conversions.Mul(hundred).DivRound(leads, 4)
	}
	if m.Conversions > 0 {
		eff.CostPerConversion = budget.DivRound(conversions, 4)
	}
	if m.Revenue.IsPositive() {
		eff.ROI = m.Revenue.Sub(budget).Mul(hundred).DivRound(budget, 4)
	}
	return eff
}

// NeedsAttention reports active campaigns under the lead or conversion floor.
func NeedsAttention(c domain.Campaign, minLeads, minConversions int) bool {
	if c.Status != domain.CampaignActive {
		return false
	}
	return c.PerformanceMetrics.Leads < minLeads || c.PerformanceMetrics.Conversions < minConversions
}
