package service

import (
	"context"
	"io"
	"testing"
	"time"

	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"github.com/smallbiznis/creditmeter/internal/usage/domain"
	"github.com/smallbiznis/creditmeter/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func march(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

func TestBreakdownFillsEveryDayAndNamesUsers(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "org-a", "u1", "visuals_sketch", 10, march(2, 8))
	f.seed(t, "org-a", "u1", "visuals_sketch", 10, march(2, 9))
	f.seed(t, "org-a", "u2", "push_sow_to_loe", 5, march(5, 23))
	f.seed(t, "org-a", "u2", "push_sow_to_loe", 50, time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC))

	got, err := f.aggregator(t).Breakdown(context.Background(), "org-a", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "2026-03", got.Month)
	assert.Equal(t, int64(25), got.UsedCredits)
	assert.Equal(t, int64(75), got.RemainingCredits)
	assert.InDelta(t, 25.0, got.PercentageUsed, 1e-9)
	assert.False(t, got.IsNearLimit)

	require.Len(t, got.DailyUsage, 31)
	assert.Equal(t, "2026-03-01", got.DailyUsage[0].Date)
	assert.Equal(t, "2026-03-31", got.DailyUsage[30].Date)
	assert.Equal(t, int64(20), got.DailyUsage[1].Credits)
	assert.Equal(t, int64(5), got.DailyUsage[4].Credits)
	assert.Zero(t, got.DailyUsage[0].Credits)

	assert.Equal(t, domain.EventUsage{Count: 2, Credits: 20}, got.EventBreakdown["visuals_sketch"])
	assert.Equal(t, "Ada", got.UserBreakdown["u1"].Name)
	assert.Equal(t, "u2", got.UserBreakdown["u2"].Name)

	require.Len(t, got.TopEvents, 2)
	assert.Equal(t, "visuals_sketch", got.TopEvents[0].EventType)
	assert.InDelta(t, 80.0, got.TopEvents[0].Percentage, 1e-9)
}

func TestBreakdownUnlimitedPlan(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "org-u", "u1", "visuals_sketch", 10, march(3, 10))

	got, err := f.aggregator(t).Breakdown(context.Background(), "org-u", testNow)
	require.NoError(t, err)
	assert.True(t, got.Unlimited)
	assert.Equal(t, domain.Unlimited, got.TotalCredits)
	assert.Equal(t, domain.Unlimited, got.RemainingCredits)
	assert.Zero(t, got.PercentageUsed)
}

func TestBreakdownEmptyMonth(t *testing.T) {
	f := newFixture(t)

	got, err := f.aggregator(t).Breakdown(context.Background(), "org-s", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, got.DailyUsage, 28)
	assert.Empty(t, got.TopEvents)
	assert.Empty(t, got.EventBreakdown)
	assert.Equal(t, int64(1000), got.RemainingCredits)
}

func TestTrendsGrowthAndForecast(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "org-s", "u1", "visuals_sketch", 100, time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	f.seed(t, "org-s", "u1", "visuals_sketch", 200, time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC))
	for day := 1; day <= 10; day++ {
		f.seed(t, "org-s", "u1", "visuals_sketch", 10, march(day, 8))
	}

	got, err := f.aggregator(t).Trends(context.Background(), "org-s", 0)
	require.NoError(t, err)

	require.Len(t, got.MonthlyTrends, 3)
	assert.Equal(t, domain.MonthlyTrend{Month: "2026-01", Credits: 100, Growth: 0}, got.MonthlyTrends[0])
	assert.Equal(t, domain.MonthlyTrend{Month: "2026-02", Credits: 200, Growth: 100}, got.MonthlyTrends[1])
	assert.Equal(t, domain.MonthlyTrend{Month: "2026-03", Credits: 100, Growth: -50}, got.MonthlyTrends[2])

	fc := got.Forecast
	assert.Equal(t, int64(100), fc.UsedSoFar)
	assert.Equal(t, 10, fc.DaysElapsed)
	assert.Equal(t, 21, fc.RemainingDays)
	assert.InDelta(t, 10.0, fc.AverageDailyUsage, 1e-9)
	assert.Equal(t, int64(310), fc.ProjectedEndOfMonth)
	assert.False(t, fc.WillExceedLimit)
	assert.Equal(t, 100, fc.ConsistencyScore)
	// Mean growth of Feb (+100%) and Mar (-50%).
	assert.Equal(t, int64(125), fc.NextMonthEstimate)
	assert.Equal(t, 50, fc.Confidence)
}

func TestForecastGrowthSkipsFirstMonth(t *testing.T) {
	daily := make([]int64, 31)
	plan := plandomain.Definition{PlanName: "free", MonthlyCredits: 1000}

	two := []domain.MonthlyTrend{{Month: "2026-02", Credits: 100}, {Month: "2026-03", Credits: 110, Growth: 10}}
	fc := forecastMonth(daily, 10, plan, two)
	assert.Equal(t, int64(121), fc.NextMonthEstimate)
	assert.Equal(t, 80, fc.Confidence)

	one := []domain.MonthlyTrend{{Month: "2026-03", Credits: 40}}
	fc = forecastMonth(daily, 10, plan, one)
	assert.Equal(t, int64(40), fc.NextMonthEstimate)
	assert.Equal(t, 100, fc.Confidence)
}

func TestTrendsMonthCount(t *testing.T) {
	agg := newFixture(t).aggregator(t)

	_, err := agg.Trends(context.Background(), "org-s", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidMonthCount)

	got, err := agg.Trends(context.Background(), "org-s", 100)
	require.NoError(t, err)
	assert.Len(t, got.MonthlyTrends, 24)
	assert.Equal(t, "2024-04", got.MonthlyTrends[0].Month)
	assert.Equal(t, "2026-03", got.MonthlyTrends[23].Month)
}

func TestForecastWillExceedLimit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "org-a", "u1", "visuals_sketch", 60, march(4, 8))

	got, err := f.aggregator(t).Trends(context.Background(), "org-a", 1)
	require.NoError(t, err)
	assert.True(t, got.Forecast.WillExceedLimit)
	assert.Equal(t, int64(186), got.Forecast.ProjectedEndOfMonth)
}

func TestConsistencyScore(t *testing.T) {
	cases := []struct {
		name   string
		values []int64
		want   int
	}{
		{name: "empty", values: nil, want: 100},
		{name: "single", values: []int64{42}, want: 100},
		{name: "all zero", values: []int64{0, 0, 0}, want: 100},
		{name: "constant", values: []int64{7, 7, 7, 7}, want: 100},
		{name: "one spike", values: []int64{0, 0, 0, 100}, want: 0},
		{name: "mild", values: []int64{9, 11}, want: 90},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ConsistencyScore(tc.values))
		})
	}
}

func TestOverviewWarningsAndUpgrade(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "org-a", "u1", "visuals_sketch", 92, march(6, 10))

	got, err := f.aggregator(t).Overview(context.Background(), "org-a")
	require.NoError(t, err)

	assert.Equal(t, "org-a", got.Organization.ID)
	assert.Equal(t, "limited", got.Plan.PlanName)
	assert.Equal(t, int64(92), got.Usage.UsedCredits)
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, domain.WarningCritical, got.Warnings[0].Type)
	assert.True(t, got.Upgrade.ShouldUpgrade)
	assert.Equal(t, "starter", got.Upgrade.RecommendedPlan)
	require.NotNil(t, got.PeakDay)
	assert.Equal(t, "2026-03-06", got.PeakDay.Date)
	assert.Equal(t, testNow, got.GeneratedAt)
}

func TestOverviewQuietOrganization(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "org-s", "u1", "visuals_sketch", 100, march(6, 10))

	got, err := f.aggregator(t).Overview(context.Background(), "org-s")
	require.NoError(t, err)
	assert.Empty(t, got.Warnings)
	assert.False(t, got.Upgrade.ShouldUpgrade)
}

func TestEntriesPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.seed(t, "org-s", "u1", "visuals_sketch", int64(i+1), march(i+1, 8))
	}
	agg := f.aggregator(t)

	var seen []int64
	req := domain.ListEntriesRequest{OrganizationID: "org-s", Pagination: pagination.Pagination{PageSize: 2}}
	for page := 0; page < 5; page++ {
		resp, err := agg.Entries(context.Background(), req)
		require.NoError(t, err)
		for _, e := range resp.Entries {
			seen = append(seen, e.CreditsConsumed)
		}
		if !resp.HasMore {
			assert.Empty(t, resp.NextPageToken)
			break
		}
		req.PageToken = resp.NextPageToken
	}
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, seen)
}

func TestEntriesRejectsBadToken(t *testing.T) {
	agg := newFixture(t).aggregator(t)
	_, err := agg.Entries(context.Background(), domain.ListEntriesRequest{
		OrganizationID: "org-s",
		Pagination:     pagination.Pagination{PageToken: "not-a-token"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestStatementRendersPDF(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "org-a", "u1", "visuals_sketch", 10, march(2, 8))

	r, err := f.aggregator(t).Statement(context.Background(), "org-a", testNow)
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, len(body) > 4)
	assert.Equal(t, "%PDF", string(body[:4]))
}
