package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	ledgerdomain "github.com/smallbiznis/creditmeter/internal/ledger/domain"
	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"github.com/smallbiznis/creditmeter/internal/providers/pdf"
	"github.com/smallbiznis/creditmeter/internal/usage/domain"
	"github.com/smallbiznis/creditmeter/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"
)

type AggregatorParams struct {
	fx.In

	Ledger   ledgerdomain.Repository
	Plans    plandomain.Service
	Orgs     orgdomain.Service
	Clock    clock.Clock
	Log      *zap.Logger
	PDF      pdf.Provider
	Metering *config.MeteringConfigHolder `optional:"true"`
}

type aggregator struct {
	ledger   ledgerdomain.Repository
	plans    plandomain.Service
	orgs     orgdomain.Service
	resolver planResolver
	clock    clock.Clock
	log      *zap.Logger
	pdf      pdf.Provider
	metering *config.MeteringConfigHolder
}

func NewAggregator(p AggregatorParams) domain.Aggregator {
	return &aggregator{
		ledger:   p.Ledger,
		plans:    p.Plans,
		orgs:     p.Orgs,
		resolver: planResolver{orgs: p.Orgs, plans: p.Plans},
		clock:    p.Clock,
		log:      p.Log.Named("usage.aggregator"),
		pdf:      p.PDF,
		metering: p.Metering,
	}
}

func (a *aggregator) Breakdown(ctx context.Context, orgID string, month time.Time) (domain.Breakdown, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return domain.Breakdown{}, domain.ErrInvalidOrganization
	}
	if month.IsZero() {
		month = a.clock.Now()
	}
	plan, err := a.resolver.resolve(ctx, orgID)
	if err != nil {
		return domain.Breakdown{}, err
	}
	return a.breakdown(ctx, orgID, plan, ledgerdomain.MonthRange(month.UTC()))
}

func (a *aggregator) breakdown(ctx context.Context, orgID string, plan plandomain.Definition, rng ledgerdomain.Range) (domain.Breakdown, error) {
	entries, err := a.ledger.List(ctx, orgID, rng)
	if err != nil {
		return domain.Breakdown{}, err
	}

	cfg := a.metering.Get()
	events := make(map[string]domain.EventUsage)
	users := make(map[string]domain.UserUsage)
	daily := dailySeries(rng, entries)
	var used int64
	for _, e := range entries {
		used += e.CreditsConsumed

		ev := events[e.EventType]
		ev.Count++
		ev.Credits += e.CreditsConsumed
		events[e.EventType] = ev

		u := users[e.UserID]
		u.Count++
		u.Credits += e.CreditsConsumed
		users[e.UserID] = u
	}

	a.nameUsers(ctx, orgID, users)

	st := evaluate(plan, used, cfg)
	out := domain.Breakdown{
		Month:            rng.From.Format(monthLayout),
		PlanName:         plan.PlanName,
		Unlimited:        st.unlimited,
		TotalCredits:     plan.MonthlyCredits,
		UsedCredits:      used,
		RemainingCredits: st.remaining,
		PercentageUsed:   st.percent,
		IsNearLimit:      st.near,
		IsOverLimit:      st.over,
		EventBreakdown:   events,
		UserBreakdown:    users,
		DailyUsage:       make([]domain.DailyUsage, len(daily)),
		TopEvents:        topEvents(events, used, cfg.TopEvents),
	}
	for i, credits := range daily {
		out.DailyUsage[i] = domain.DailyUsage{
			Date:    rng.From.AddDate(0, 0, i).Format(dayLayout),
			Credits: credits,
		}
	}
	return out, nil
}

// nameUsers resolves display names; lookup failures leave user IDs in place.
func (a *aggregator) nameUsers(ctx context.Context, orgID string, users map[string]domain.UserUsage) {
	if len(users) == 0 {
		return
	}
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	names, err := a.orgs.MemberNames(ctx, orgID, ids)
	if err != nil {
		a.log.Warn("member name lookup failed", zap.String("org_id", orgID), zap.Error(err))
	}
	for id, u := range users {
		u.Name = id
		if name, ok := names[id]; ok && name != "" {
			u.Name = name
		}
		users[id] = u
	}
}

func (a *aggregator) Trends(ctx context.Context, orgID string, months int) (domain.Trends, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return domain.Trends{}, domain.ErrInvalidOrganization
	}
	plan, err := a.resolver.resolve(ctx, orgID)
	if err != nil {
		return domain.Trends{}, err
	}
	return a.trends(ctx, orgID, plan, months)
}

func (a *aggregator) trends(ctx context.Context, orgID string, plan plandomain.Definition, months int) (domain.Trends, error) {
	cfg := a.metering.Get()
	switch {
	case months < 0:
		return domain.Trends{}, domain.ErrInvalidMonthCount
	case months == 0:
		months = cfg.DefaultTrendMonths
	case months > cfg.MaxTrendMonths:
		months = cfg.MaxTrendMonths
	}

	now := a.clock.Now().UTC()
	current := ledgerdomain.MonthRange(now)
	monthly := make([]domain.MonthlyTrend, 0, months)
	for i := months - 1; i >= 0; i-- {
		rng := ledgerdomain.MonthRange(current.From.AddDate(0, -i, 0))
		credits, err := a.ledger.SumCredits(ctx, orgID, rng)
		if err != nil {
			return domain.Trends{}, err
		}
		trend := domain.MonthlyTrend{Month: rng.From.Format(monthLayout), Credits: credits}
		if n := len(monthly); n > 0 {
			trend.Growth = growth(monthly[n-1].Credits, credits)
		}
		monthly = append(monthly, trend)
	}

	entries, err := a.ledger.List(ctx, orgID, current)
	if err != nil {
		return domain.Trends{}, err
	}
	return domain.Trends{
		MonthlyTrends: monthly,
		Forecast:      forecastMonth(dailySeries(current, entries), now.Day(), plan, monthly),
	}, nil
}

func (a *aggregator) Overview(ctx context.Context, orgID string) (domain.Overview, error) {
	org, err := a.orgs.Get(ctx, orgID)
	if err != nil {
		return domain.Overview{}, err
	}
	plan, err := a.plans.Get(ctx, org.PlanName)
	if err != nil {
		return domain.Overview{}, err
	}

	now := a.clock.Now().UTC()
	usage, err := a.breakdown(ctx, org.ID, plan, ledgerdomain.MonthRange(now))
	if err != nil {
		return domain.Overview{}, err
	}
	trends, err := a.trends(ctx, org.ID, plan, 0)
	if err != nil {
		return domain.Overview{}, err
	}
	upgrade, err := a.plans.UpgradeRecommendation(ctx, plan.PlanName, usage.UsedCredits)
	if err != nil {
		return domain.Overview{}, err
	}

	return domain.Overview{
		Organization: *org,
		Plan:         plan,
		Usage:        usage,
		Trends:       trends,
		PeakDay:      peakDay(usage.DailyUsage),
		Warnings:     managementWarnings(usage, a.metering.Get()),
		Upgrade:      upgrade,
		GeneratedAt:  now,
	}, nil
}

func (a *aggregator) Entries(ctx context.Context, req domain.ListEntriesRequest) (domain.ListEntriesResponse, error) {
	orgID := strings.TrimSpace(req.OrganizationID)
	if orgID == "" {
		return domain.ListEntriesResponse{}, domain.ErrInvalidOrganization
	}
	limit := req.Size()
	q := ledgerdomain.PageQuery{
		OrganizationID: orgID,
		EventType:      req.EventType,
		Limit:          limit,
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := decodePageCursor(token)
		if err != nil {
			return domain.ListEntriesResponse{}, err
		}
		q.Cursor = cursor
	}

	rows, err := a.ledger.Page(ctx, q)
	if err != nil {
		return domain.ListEntriesResponse{}, err
	}
	info := pagination.BuildCursorPageInfo(rows, limit, func(e *ledgerdomain.UsageEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	resp := domain.ListEntriesResponse{Entries: make([]ledgerdomain.UsageEvent, 0, len(rows))}
	for _, row := range rows {
		if row != nil {
			resp.Entries = append(resp.Entries, *row)
		}
	}
	if info != nil {
		resp.PageInfo = *info
	}
	return resp, nil
}

func (a *aggregator) Statement(ctx context.Context, orgID string, month time.Time) (io.Reader, error) {
	org, err := a.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	plan, err := a.plans.Get(ctx, org.PlanName)
	if err != nil {
		return nil, err
	}
	if month.IsZero() {
		month = a.clock.Now()
	}
	usage, err := a.breakdown(ctx, org.ID, plan, ledgerdomain.MonthRange(month.UTC()))
	if err != nil {
		return nil, err
	}
	return a.pdf.GenerateStatement(ctx, statementData(org, plan, usage, a.clock.Now().UTC()))
}

func statementData(org *orgdomain.Organization, plan plandomain.Definition, usage domain.Breakdown, now time.Time) pdf.StatementData {
	data := pdf.StatementData{
		OrgName:     org.Name,
		OrgID:       org.ID,
		Month:       usage.Month,
		PlanName:    plan.DisplayName,
		GeneratedAt: now.Format(time.RFC1123),
		Used:        fmt.Sprintf("%d", usage.UsedCredits),
		Percentage:  fmt.Sprintf("%.1f%%", usage.PercentageUsed),
	}
	if usage.Unlimited {
		data.Allotment, data.Remaining = "Unlimited", "Unlimited"
	} else {
		data.Allotment = fmt.Sprintf("%d", usage.TotalCredits)
		data.Remaining = fmt.Sprintf("%d", usage.RemainingCredits)
	}

	share := func(credits int64) string {
		if usage.UsedCredits == 0 {
			return "0.0%"
		}
		return fmt.Sprintf("%.1f%%", float64(credits)/float64(usage.UsedCredits)*100)
	}
	for eventType, ev := range usage.EventBreakdown {
		data.Events = append(data.Events, pdf.StatementLine{Label: eventType, Count: ev.Count, Credits: ev.Credits, Share: share(ev.Credits)})
	}
	for _, u := range usage.UserBreakdown {
		data.Users = append(data.Users, pdf.StatementLine{Label: u.Name, Count: u.Count, Credits: u.Credits, Share: share(u.Credits)})
	}
	byCredits := func(lines []pdf.StatementLine) {
		sort.Slice(lines, func(i, j int) bool {
			if lines[i].Credits != lines[j].Credits {
				return lines[i].Credits > lines[j].Credits
			}
			return lines[i].Label < lines[j].Label
		})
	}
	byCredits(data.Events)
	byCredits(data.Users)
	return data
}

// dailySeries buckets credits by UTC day, one slot per day of the range.
func dailySeries(rng ledgerdomain.Range, entries []ledgerdomain.UsageEvent) []int64 {
	days := int(rng.To.Sub(rng.From).Hours()/24 + 0.5)
	series := make([]int64, days)
	for _, e := range entries {
		idx := int(e.CreatedAt.UTC().Sub(rng.From).Hours() / 24)
		if idx < 0 || idx >= days {
			continue
		}
		series[idx] += e.CreditsConsumed
	}
	return series
}

func topEvents(events map[string]domain.EventUsage, used int64, n int) []domain.TopEvent {
	out := make([]domain.TopEvent, 0, len(events))
	for eventType, ev := range events {
		top := domain.TopEvent{EventType: eventType, Credits: ev.Credits}
		if used > 0 {
			top.Percentage = float64(ev.Credits) / float64(used) * 100
		}
		out = append(out, top)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Credits != out[j].Credits {
			return out[i].Credits > out[j].Credits
		}
		return out[i].EventType < out[j].EventType
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func peakDay(days []domain.DailyUsage) *domain.DailyUsage {
	var peak *domain.DailyUsage
	for i := range days {
		if days[i].Credits > 0 && (peak == nil || days[i].Credits > peak.Credits) {
			peak = &days[i]
		}
	}
	return peak
}

func managementWarnings(usage domain.Breakdown, cfg config.MeteringConfig) []domain.Warning {
	warnings := []domain.Warning{}
	if usage.Unlimited {
		return warnings
	}
	switch {
	case usage.PercentageUsed >= cfg.CriticalPercent:
		warnings = append(warnings, domain.Warning{
			Type:    domain.WarningCritical,
			Message: fmt.Sprintf("Usage is at %.0f%% of monthly limit", cfg.CriticalPercent),
			Action:  "Consider upgrading plan or monitoring usage closely",
		})
	case usage.PercentageUsed >= cfg.WarningPercent:
		warnings = append(warnings, domain.Warning{
			Type:    domain.WarningWarning,
			Message: fmt.Sprintf("Usage is at %.0f%% of monthly limit", cfg.WarningPercent),
			Action:  "Monitor usage and consider plan upgrade if trend continues",
		})
	}
	return warnings
}

func decodePageCursor(token string) (*ledgerdomain.PageCursor, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	return &ledgerdomain.PageCursor{ID: id, CreatedAt: createdAt}, nil
}
