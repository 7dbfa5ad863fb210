package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/creditmeter/internal/cache"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	configdomain "github.com/smallbiznis/creditmeter/internal/configstore/domain"
	obsmetrics "github.com/smallbiznis/creditmeter/internal/observability/metrics"
	"github.com/smallbiznis/creditmeter/internal/observability/tracing"
	"github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Repo     configdomain.Repository
	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Metering *config.MeteringConfigHolder `optional:"true"`
	Metrics  *obsmetrics.Metrics          `optional:"true"`
}

type service struct {
	repo     configdomain.Repository
	log      *zap.Logger
	clock    clock.Clock
	metering *config.MeteringConfigHolder
	snapshot *cache.Snapshot[domain.Definition]
}

func NewService(p Params) domain.Service {
	svc := &service{
		repo:     p.Repo,
		log:      p.Log.Named("plandef.service"),
		clock:    p.Clock,
		metering: p.Metering,
	}
	svc.snapshot = cache.NewSnapshot[domain.Definition](svc.load, cache.SnapshotOptions{
		Name:  "plan_definitions",
		TTL:   p.Config.Registry.TTL,
		Clock: p.Clock,
		Log:   svc.log,
		OnRefresh: func(ctx context.Context, outcome string) {
			p.Metrics.RecordRegistryRefresh(ctx, "plans", outcome)
		},
	})
	return svc
}

func (s *service) Get(ctx context.Context, planName string) (domain.Definition, error) {
	planName = strings.TrimSpace(planName)
	if def, ok := s.snapshot.Get(ctx, planName); ok {
		return def, nil
	}
	if !s.snapshot.Loaded() {
		return domain.Definition{}, domain.ErrRegistryUnavailable
	}
	return domain.Definition{}, fmt.Errorf("%w: %s", domain.ErrUnknownPlan, planName)
}

func (s *service) Exists(ctx context.Context, planName string) bool {
	_, ok := s.snapshot.Get(ctx, strings.TrimSpace(planName))
	return ok
}

func (s *service) List(ctx context.Context) map[string]domain.Definition {
	return s.snapshot.All(ctx)
}

// SortedByPrice orders plans by monthly price, then by name.
func (s *service) SortedByPrice(ctx context.Context) []domain.Definition {
	all := s.snapshot.All(ctx)
	plans := make([]domain.Definition, 0, len(all))
	for _, def := range all {
		plans = append(plans, def)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Pricing.Monthly != plans[j].Pricing.Monthly {
			return plans[i].Pricing.Monthly < plans[j].Pricing.Monthly
		}
		return plans[i].PlanName < plans[j].PlanName
	})
	return plans
}

// ByPriceRange returns plans whose monthly price lies in [min, max], cheapest first.
func (s *service) ByPriceRange(ctx context.Context, min, max float64) ([]domain.Definition, error) {
	if min < 0 || max < min {
		return nil, domain.ErrInvalidPriceRange
	}
	var out []domain.Definition
	for _, def := range s.SortedByPrice(ctx) {
		if def.Pricing.Monthly >= min && def.Pricing.Monthly <= max {
			out = append(out, def)
		}
	}
	return out, nil
}

func (s *service) UpgradeRecommendation(ctx context.Context, planName string, used int64) (domain.Recommendation, error) {
	current, err := s.Get(ctx, planName)
	if err != nil {
		return domain.Recommendation{}, err
	}
	if current.IsUnlimited() {
		return domain.Recommendation{}, nil
	}

	percent := float64(used) / float64(current.MonthlyCredits) * 100
	if percent < s.metering.Get().UpgradeRecommendationPercent {
		return domain.Recommendation{}, nil
	}

	var next *domain.Definition
	for _, def := range s.snapshot.All(ctx) {
		if !ranksAbove(def, current) {
			continue
		}
		if next == nil || ranksAbove(*next, def) {
			candidate := def
			next = &candidate
		}
	}
	if next == nil {
		return domain.Recommendation{
			ShouldUpgrade: true,
			Reason:        "Consider enterprise plan for higher limits",
		}, nil
	}

	credits := "unlimited"
	if !next.IsUnlimited() {
		credits = fmt.Sprintf("%d", next.MonthlyCredits)
	}
	return domain.Recommendation{
		ShouldUpgrade:   true,
		RecommendedPlan: next.PlanName,
		Reason: fmt.Sprintf("You're using %.1f%% of your credits. Upgrade to %s for %s monthly credits.",
			percent, next.DisplayName, credits),
	}, nil
}

// ranksAbove orders plans by allotment with unlimited on top; ties break by name.
func ranksAbove(a, b domain.Definition) bool {
	switch {
	case a.IsUnlimited() && b.IsUnlimited():
		return a.PlanName > b.PlanName
	case a.IsUnlimited():
		return true
	case b.IsUnlimited():
		return false
	case a.MonthlyCredits != b.MonthlyCredits:
		return a.MonthlyCredits > b.MonthlyCredits
	default:
		return false
	}
}

func (s *service) Update(ctx context.Context, req domain.UpdateRequest) (domain.Definition, error) {
	planName := strings.TrimSpace(req.PlanName)
	if !slug.IsSlug(planName) {
		return domain.Definition{}, configdomain.ErrInvalidConfigurationKey
	}

	var base []byte
	stored, err := s.repo.Get(ctx, configdomain.KindPlan, planName)
	switch {
	case err == nil:
		base = stored.Body
	case errors.Is(err, configdomain.ErrNotFound):
	default:
		return domain.Definition{}, err
	}

	merged, err := configdomain.MergePatch(base, req.Patch)
	if err != nil {
		return domain.Definition{}, err
	}
	def, err := decodeDefinition(planName, merged)
	if err != nil {
		return domain.Definition{}, err
	}

	body, err := json.Marshal(def)
	if err != nil {
		return domain.Definition{}, err
	}
	now := s.clock.Now()
	if err := s.repo.Upsert(ctx, configdomain.Document{
		Kind:      configdomain.KindPlan,
		Key:       planName,
		Body:      datatypes.JSON(body),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return domain.Definition{}, err
	}

	s.snapshot.Invalidate()
	s.log.Info("plan definition updated",
		zap.String("plan", planName),
		zap.Bool("created", stored == nil),
	)
	return def, nil
}

func (s *service) Delete(ctx context.Context, planName string) error {
	planName = strings.TrimSpace(planName)
	removed, err := s.repo.Delete(ctx, configdomain.KindPlan, planName)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", configdomain.ErrUnknownConfigurationKey, planName)
	}

	s.snapshot.Invalidate()
	s.log.Info("plan definition deleted", zap.String("plan", planName))
	return nil
}

func (s *service) Refresh(ctx context.Context) error {
	return s.snapshot.Refresh(ctx)
}

func (s *service) CacheInfo() cache.Info {
	return s.snapshot.Info()
}

func (s *service) load(ctx context.Context) (map[string]domain.Definition, error) {
	ctx, span := tracing.StartSpan(ctx, "plandef.refresh", attribute.String("registry", "plans"))
	defer span.End()

	docs, err := s.repo.List(ctx, configdomain.KindPlan)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return nil, err
	}

	defs := make(map[string]domain.Definition, len(docs))
	for _, doc := range docs {
		def, err := decodeDefinition(doc.Key, doc.Body)
		if err != nil {
			s.log.Warn("skipping invalid plan definition",
				zap.String("plan", doc.Key),
				zap.Error(err),
			)
			continue
		}
		defs[def.PlanName] = def
	}

	s.log.Info("plan definitions loaded",
		zap.Int("loaded", len(defs)),
		zap.Int("skipped", len(docs)-len(defs)),
	)
	return defs, nil
}
