package service

import (
	"math"

	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"github.com/smallbiznis/creditmeter/internal/usage/domain"
)

// ConsistencyScore maps the coefficient of variation of a daily series onto 0..100.
// Series with fewer than two points or a zero mean score 100.
func ConsistencyScore(values []int64) int {
	if len(values) < 2 {
		return 100
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 100
	}
	var variance float64
	for _, v := range values {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(values))
	cv := math.Sqrt(variance) / mean
	return clampPercent(math.Round((1 - cv) * 100))
}

// growth is month over month change in percent; a zero month counts as one credit.
func growth(prev, cur int64) float64 {
	return float64(cur-prev) / float64(max(1, prev)) * 100
}

// forecastMonth projects the current month linearly and the next month from recent growth.
func forecastMonth(daily []int64, elapsed int, plan plandomain.Definition, trends []domain.MonthlyTrend) domain.Forecast {
	elapsed = min(max(elapsed, 1), len(daily))
	var used int64
	for _, c := range daily {
		used += c
	}

	f := domain.Forecast{
		UsedSoFar:        used,
		DaysElapsed:      elapsed,
		RemainingDays:    len(daily) - elapsed,
		MonthlyCredits:   plan.MonthlyCredits,
		ConsistencyScore: ConsistencyScore(daily[:elapsed]),
		Confidence:       100,
	}
	f.AverageDailyUsage = float64(used) / float64(elapsed)
	f.ProjectedEndOfMonth = int64(math.Round(float64(used) + f.AverageDailyUsage*float64(f.RemainingDays)))
	f.WillExceedLimit = !plan.IsUnlimited() && f.ProjectedEndOfMonth > plan.MonthlyCredits

	if len(trends) == 0 {
		return f
	}
	// The first point has no predecessor, so its growth carries no signal.
	var avgGrowth float64
	if withPrev := trends[1:]; len(withPrev) > 0 {
		recent := withPrev[max(0, len(withPrev)-3):]
		for _, t := range recent {
			avgGrowth += t.Growth
		}
		avgGrowth /= float64(len(recent))
	}
	last := float64(trends[len(trends)-1].Credits)
	f.NextMonthEstimate = int64(math.Round(math.Max(0, last*(1+avgGrowth/100))))
	f.Confidence = clampPercent(math.Round(100 - math.Abs(avgGrowth)*2))
	return f
}

func clampPercent(v float64) int {
	return int(math.Max(0, math.Min(100, v)))
}
