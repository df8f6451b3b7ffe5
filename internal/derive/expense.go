package derive

import (
	"time"

	"crmline/internal/domain"
)

var taxDeductible = map[domain.ExpenseCategory]bool{
	domain.CategoryOfficeSupplies:       true,
	domain.CategoryUtilities:            true,
	domain.CategoryRent:                 true,
	domain.CategorySalaries:             true,
	domain.CategoryMarketing:            true,
	domain.CategoryTravel:               true,
	domain.CategorySoftware:             true,
	domain.CategoryHardware:             true,
	domain.CategoryProfessionalServices: true,
	domain.CategoryInsurance:            true,
	domain.CategoryMaintenance:          true,
}

func IsTaxDeductible(c domain.ExpenseCategory) bool { return taxDeductible[c] }

// AdvanceDueDate moves a recurrence date forward by one period. Frequency
// "none" or unknown leaves it unchanged.
func AdvanceDueDate(t time.Time, f domain.Frequency) time.Time {
	switch f {
	case domain.FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case domain.FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	case domain.FrequencyQuarterly:
		return t.AddDate(0, 3, 0)
	case domain.FrequencyYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t
	}
}
