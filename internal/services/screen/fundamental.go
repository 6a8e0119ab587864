package screen

import (
	"time"

	"github.com/bobmcallan/sift/internal/models"
)

// calendarYear maps a fiscal period end to the calendar year its figures
// describe. Fiscal years ending in the first five months mostly cover the
// prior calendar year, so they are attributed there.
func calendarYear(periodEnd time.Time) int {
	if periodEnd.Month() <= time.May {
		return periodEnd.Year() - 1
	}
	return periodEnd.Year()
}

// EvaluateRuleOf40 computes the Rule of 40 score from forward analyst
// estimates: year-over-year revenue growth percent plus projected net profit
// margin percent, using the estimate rows attributed to currentYear and the
// year before. Returns nil when either year is missing or the prior-year
// revenue is zero. When multiple rows map to the same calendar year the
// first occurrence wins.
func EvaluateRuleOf40(estimates []models.ForwardEstimate, currentYear int) *models.RuleOf40 {
	var current, prior *models.ForwardEstimate
	for i := range estimates {
		e := &estimates[i]
		switch calendarYear(e.PeriodEnd) {
		case currentYear:
			if current == nil {
				current = e
			}
		case currentYear - 1:
			if prior == nil {
				prior = e
			}
		}
	}

	if current == nil || prior == nil || prior.RevenueAvg == 0 {
		return nil
	}

	growth := (current.RevenueAvg - prior.RevenueAvg) / prior.RevenueAvg * 100

	// A non-positive current revenue makes the margin meaningless; score it 0.
	var margin float64
	if current.RevenueAvg > 0 {
		margin = current.NetIncomeAvg / current.RevenueAvg * 100
	}

	return &models.RuleOf40{
		RevenueGrowthPct: growth,
		ProfitMarginPct:  margin,
		Score:            growth + margin,
	}
}
