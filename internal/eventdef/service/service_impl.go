package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/creditmeter/internal/cache"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	configdomain "github.com/smallbiznis/creditmeter/internal/configstore/domain"
	"github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	obsmetrics "github.com/smallbiznis/creditmeter/internal/observability/metrics"
	"github.com/smallbiznis/creditmeter/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Repo    configdomain.Repository
	Log     *zap.Logger
	Clock   clock.Clock
	Config  config.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	repo     configdomain.Repository
	log      *zap.Logger
	clock    clock.Clock
	snapshot *cache.Snapshot[domain.Definition]
}

func NewService(p Params) domain.Service {
	svc := &service{
		repo:  p.Repo,
		log:   p.Log.Named("eventdef.service"),
		clock: p.Clock,
	}
	svc.snapshot = cache.NewSnapshot[domain.Definition](svc.load, cache.SnapshotOptions{
		Name:  "event_definitions",
		TTL:   p.Config.Registry.TTL,
		Clock: p.Clock,
		Log:   svc.log,
		OnRefresh: func(ctx context.Context, outcome string) {
			p.Metrics.RecordRegistryRefresh(ctx, "events", outcome)
		},
	})
	return svc
}

func (s *service) Get(ctx context.Context, eventType string) (domain.Definition, error) {
	eventType = strings.TrimSpace(eventType)
	def, ok := s.snapshot.Get(ctx, eventType)
	if ok {
		return def, nil
	}
	if !s.snapshot.Loaded() {
		return domain.Definition{}, domain.ErrRegistryUnavailable
	}
	return domain.Definition{}, fmt.Errorf("%w: %s", domain.ErrUnknownEventType, eventType)
}

func (s *service) Exists(ctx context.Context, eventType string) bool {
	_, ok := s.snapshot.Get(ctx, strings.TrimSpace(eventType))
	return ok
}

func (s *service) List(ctx context.Context) map[string]domain.Definition {
	return s.snapshot.All(ctx)
}

func (s *service) ListByCategory(ctx context.Context, category string) map[string]domain.Definition {
	category = strings.TrimSpace(category)
	out := make(map[string]domain.Definition)
	for key, def := range s.snapshot.All(ctx) {
		if def.Category == category {
			out[key] = def
		}
	}
	return out
}

func (s *service) Update(ctx context.Context, req domain.UpdateRequest) (domain.Definition, error) {
	eventType := strings.TrimSpace(req.EventType)
	if !slug.IsSlug(eventType) {
		return domain.Definition{}, configdomain.ErrInvalidConfigurationKey
	}

	var base []byte
	stored, err := s.repo.Get(ctx, configdomain.KindEvent, eventType)
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
	def, err := decodeDefinition(eventType, merged)
	if err != nil {
		return domain.Definition{}, err
	}

	body, err := json.Marshal(def)
	if err != nil {
		return domain.Definition{}, err
	}
	now := s.clock.Now()
	if err := s.repo.Upsert(ctx, configdomain.Document{
		Kind:      configdomain.KindEvent,
		Key:       eventType,
		Body:      datatypes.JSON(body),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return domain.Definition{}, err
	}

	s.snapshot.Invalidate()
	s.log.Info("event definition updated",
		zap.String("event_type", eventType),
		zap.Bool("created", stored == nil),
	)
	return def, nil
}

func (s *service) Delete(ctx context.Context, eventType string) error {
	eventType = strings.TrimSpace(eventType)
	removed, err := s.repo.Delete(ctx, configdomain.KindEvent, eventType)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", configdomain.ErrUnknownConfigurationKey, eventType)
	}

	s.snapshot.Invalidate()
	s.log.Info("event definition deleted", zap.String("event_type", eventType))
	return nil
}

func (s *service) Refresh(ctx context.Context) error {
	return s.snapshot.Refresh(ctx)
}

func (s *service) CacheInfo() cache.Info {
	return s.snapshot.Info()
}

func (s *service) load(ctx context.Context) (map[string]domain.Definition, error) {
	ctx, span := tracing.StartSpan(ctx, "eventdef.refresh", attribute.String("registry", "events"))
	defer span.End()

	docs, err := s.repo.List(ctx, configdomain.KindEvent)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return nil, err
	}

	defs := make(map[string]domain.Definition, len(docs))
	for _, doc := range docs {
		def, err := decodeDefinition(doc.Key, doc.Body)
		if err != nil {
			s.log.Warn("skipping invalid event definition",
				zap.String("event_type", doc.Key),
				zap.Error(err),
			)
			continue
		}
		defs[def.EventType] = def
	}

	s.log.Info("event definitions loaded",
		zap.Int("loaded", len(defs)),
		zap.Int("skipped", len(docs)-len(defs)),
	)
	return defs, nil
}
