package service

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	ledgerdomain "github.com/smallbiznis/creditmeter/internal/ledger/domain"
	"github.com/smallbiznis/creditmeter/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditmeter/internal/observability/metrics"
	"github.com/smallbiznis/creditmeter/internal/observability/tracing"
	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"github.com/smallbiznis/creditmeter/internal/usage/domain"
	"github.com/smallbiznis/creditmeter/internal/usage/liveevents"
	"github.com/smallbiznis/creditmeter/internal/usage/pricing"
	"github.com/smallbiznis/creditmeter/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type MeterParams struct {
	fx.In

	Ledger     ledgerdomain.Repository
	Events     eventdomain.Service
	Plans      plandomain.Service
	Orgs       orgdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Log        *zap.Logger
	Metering   *config.MeteringConfigHolder `optional:"true"`
	Metrics    *obsmetrics.Metrics          `optional:"true"`
	LiveEvents *liveevents.Hub              `optional:"true"`
}

type meter struct {
	ledger     ledgerdomain.Repository
	events     eventdomain.Service
	plans      planResolver
	genID      *snowflake.Node
	clock      clock.Clock
	log        *zap.Logger
	metering   *config.MeteringConfigHolder
	metrics    *obsmetrics.Metrics
	liveEvents *liveevents.Hub
}

func NewMeter(p MeterParams) domain.Meter {
	return &meter{
		ledger:     p.Ledger,
		events:     p.Events,
		plans:      planResolver{orgs: p.Orgs, plans: p.Plans},
		genID:      p.GenID,
		clock:      p.Clock,
		log:        p.Log.Named("usage.meter"),
		metering:   p.Metering,
		metrics:    p.Metrics,
		liveEvents: p.LiveEvents,
	}
}

func (m *meter) Track(ctx context.Context, req domain.TrackRequest) (domain.TrackResult, error) {
	orgID := strings.TrimSpace(req.OrganizationID)
	userID := strings.TrimSpace(req.UserID)
	eventType := strings.TrimSpace(req.EventType)
	switch {
	case orgID == "":
		return domain.TrackResult{}, domain.ErrInvalidOrganization
	case userID == "":
		return domain.TrackResult{}, domain.ErrInvalidUser
	case eventType == "":
		return domain.TrackResult{}, domain.ErrInvalidEventType
	}

	ctx, span := tracing.StartSpan(ctx, "usage.track",
		attribute.String("org_id", orgID),
		attribute.String("event_type", eventType),
	)
	defer span.End()
	log := logger.WithContext(ctx, m.log)

	def, err := m.events.Get(ctx, eventType)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return domain.TrackResult{}, err
	}
	plan, err := m.plans.resolve(ctx, orgID)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return domain.TrackResult{}, err
	}
	quote, err := price(def, req.EventData, req.CreditsOverride)
	if err != nil {
		return domain.TrackResult{}, err
	}
	credits := quote.Rounded()

	now := m.clock.Now().UTC()
	entry := &ledgerdomain.UsageEvent{
		ID:              m.genID.Generate(),
		OrganizationID:  orgID,
		UserID:          userID,
		EventType:       eventType,
		CreditsConsumed: credits,
		SessionID:       normalizeSession(req.SessionID),
		CreatedAt:       now,
	}
	entry.EventData, err = snapshotEventData(ctx, req.EventData, def, quote, req.CreditsOverride != nil)
	if err != nil {
		return domain.TrackResult{}, err
	}

	if err := m.ledger.Append(ctx, entry); err != nil {
		span.RecordError(tracing.SafeError(err))
		log.Error("ledger append failed",
			zap.String("event_type", eventType),
			zap.Int64("credits", credits),
			zap.Error(err),
		)
		return domain.TrackResult{}, fmt.Errorf("%w: %w", domain.ErrTrackingFailed, err)
	}

	result := domain.TrackResult{
		CreditsConsumed: credits,
		LedgerEntryID:   entry.ID.String(),
	}

	used, err := m.ledger.SumCredits(ctx, orgID, ledgerdomain.MonthRange(now))
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		log.Error("usage standing lookup failed after append",
			zap.String("ledger_entry_id", result.LedgerEntryID),
			zap.Error(err),
		)
		return result, fmt.Errorf("%w: entry %s recorded: %w", domain.ErrStandingUnavailable, result.LedgerEntryID, err)
	}

	st := evaluate(plan, used, m.metering.Get())
	result.RemainingCredits = st.remaining
	if !req.SkipLimitCheck {
		result.LimitWarning = st.warning()
		if level := st.level(); level != "" {
			m.metrics.RecordLimitWarning(ctx, plan.PlanName, level)
			log.Warn("organization near or over monthly limit",
				zap.String("plan", plan.PlanName),
				zap.Float64("percentage_used", st.percent),
			)
		}
	}

	m.metrics.RecordUsageTracked(ctx, eventType, def.Category, credits)
	span.SetAttributes(attribute.Int64("credits", credits))
	m.publish(orgID, entry, st)

	log.Info("usage tracked",
		zap.String("event_type", eventType),
		zap.String("ledger_entry_id", result.LedgerEntryID),
		zap.Int64("credits", credits),
		zap.Int64("remaining", st.remaining),
	)
	return result, nil
}

func (m *meter) CheckUsageLimits(ctx context.Context, req domain.CheckRequest) (domain.CheckResult, error) {
	orgID := strings.TrimSpace(req.OrganizationID)
	eventType := strings.TrimSpace(req.EventType)
	if orgID == "" {
		return domain.CheckResult{}, domain.ErrInvalidOrganization
	}
	if eventType == "" {
		return domain.CheckResult{}, domain.ErrInvalidEventType
	}

	ctx, span := tracing.StartSpan(ctx, "usage.check",
		attribute.String("org_id", orgID),
		attribute.String("event_type", eventType),
	)
	defer span.End()

	def, err := m.events.Get(ctx, eventType)
	if err != nil {
		return domain.CheckResult{}, err
	}
	plan, err := m.plans.resolve(ctx, orgID)
	if err != nil {
		return domain.CheckResult{}, err
	}
	quote, err := price(def, req.EventData, req.CreditsNeeded)
	if err != nil {
		return domain.CheckResult{}, err
	}
	needed := quote.Rounded()

	if plan.IsUnlimited() {
		return domain.CheckResult{
			Allowed:          true,
			RemainingCredits: domain.Unlimited,
			CreditsNeeded:    needed,
		}, nil
	}

	used, err := m.ledger.SumCredits(ctx, orgID, ledgerdomain.MonthRange(m.clock.Now().UTC()))
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return domain.CheckResult{}, err
	}
	st := evaluate(plan, used, m.metering.Get())

	res := domain.CheckResult{
		Allowed:          true,
		RemainingCredits: st.remaining,
		PercentageUsed:   st.percent,
		CreditsNeeded:    needed,
	}
	if used+needed > plan.MonthlyCredits && !req.SkipLimitCheck {
		res.Allowed = false
		res.Reason = fmt.Sprintf("Credit limit exceeded. Used: %d, Needed: %d, Limit: %d", used, needed, plan.MonthlyCredits)
		m.metrics.RecordPreflightDenied(ctx, plan.PlanName)
	}
	return res, nil
}

func (m *meter) publish(orgID string, entry *ledgerdomain.UsageEvent, st standing) {
	if m.liveEvents == nil {
		return
	}
	m.liveEvents.Publish(orgID, liveevents.LiveEvent{
		LedgerEntryID:    entry.ID.String(),
		UserID:           entry.UserID,
		EventType:        entry.EventType,
		CreditsConsumed:  entry.CreditsConsumed,
		RemainingCredits: st.remaining,
		PercentageUsed:   st.percent,
		CreatedAt:        entry.CreatedAt.Format(time.RFC3339Nano),
		Status:           liveevents.StatusTracked,
		Source:           liveevents.SourceAPI,
	})
}

func price(def eventdomain.Definition, data map[string]any, override *float64) (pricing.Quote, error) {
	if override == nil {
		return pricing.Cost(def, data), nil
	}
	v := *override
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return pricing.Quote{}, domain.ErrInvalidCredits
	}
	return pricing.Override(v), nil
}

// snapshotEventData stores the caller's data next to the pricing inputs that produced the charge.
func snapshotEventData(ctx context.Context, data map[string]any, def eventdomain.Definition, quote pricing.Quote, overridden bool) (datatypes.JSON, error) {
	snapshot := make(map[string]any, len(data)+5)
	maps.Copy(snapshot, data)
	snapshot["baseCredits"] = def.BaseCredits
	snapshot["calculatedCredits"] = quote.Credits.InexactFloat64()
	snapshot["appliedMultipliers"] = quote.Applied
	if overridden {
		snapshot["creditsOverride"] = true
	}
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		snapshot["correlationId"] = cid
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidEventData, err)
	}
	return datatypes.JSON(raw), nil
}

func normalizeSession(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}
