// Package seed installs the default event and plan catalogue and, optionally,
// a default organization.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	configdomain "github.com/smallbiznis/creditmeter/internal/configstore/domain"
	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"github.com/smallbiznis/creditmeter/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

const lockKey = "creditmeter:seed:catalogue"

//go:embed catalogue.yaml
var catalogueYAML []byte

var Module = fx.Module("seed",
	fx.Provide(NewSeeder),
	fx.Invoke(func(lc fx.Lifecycle, s *Seeder) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return s.Run(ctx)
			},
		})
	}),
)

// Catalogue is the parsed default definition set, keyed by event type and plan name.
type Catalogue struct {
	Events map[string]map[string]any `yaml:"events"`
	Plans  map[string]map[string]any `yaml:"plans"`
}

func LoadCatalogue() (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(catalogueYAML, &c); err != nil {
		return Catalogue{}, fmt.Errorf("parse catalogue: %w", err)
	}
	return c, nil
}

type Params struct {
	fx.In

	Repo   configdomain.Repository
	Events eventdomain.Service
	Plans  plandomain.Service
	Orgs   orgdomain.Service
	Clock  clock.Clock
	Cfg    config.Config
	Log    *zap.Logger
	Locker *ratelimit.Locker `optional:"true"`
}

type Seeder struct {
	repo   configdomain.Repository
	events eventdomain.Service
	plans  plandomain.Service
	orgs   orgdomain.Service
	clock  clock.Clock
	cfg    config.SeedConfig
	log    *zap.Logger
	locker *ratelimit.Locker
}

func NewSeeder(p Params) *Seeder {
	return &Seeder{
		repo:   p.Repo,
		events: p.Events,
		plans:  p.Plans,
		orgs:   p.Orgs,
		clock:  p.Clock,
		cfg:    p.Cfg.Seed,
		log:    p.Log.Named("seed"),
		locker: p.Locker,
	}
}

// Result counts documents inserted by one run.
type Result struct {
	Events  int
	Plans   int
	Skipped bool
}

// Run seeds missing catalogue entries, refreshes both registries and ensures
// the default organization. With a Redis locker only one replica seeds at a time.
func (s *Seeder) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	res, err := s.seedCatalogue(ctx)
	if err != nil {
		return err
	}
	if res.Skipped {
		s.log.Info("catalogue seed held by another instance")
	} else {
		s.log.Info("catalogue seeded", zap.Int("events", res.Events), zap.Int("plans", res.Plans))
	}

	if err := errors.Join(s.events.Refresh(ctx), s.plans.Refresh(ctx)); err != nil {
		return fmt.Errorf("refresh registries after seed: %w", err)
	}
	return s.ensureDefaultOrg(ctx)
}

func (s *Seeder) seedCatalogue(ctx context.Context) (Result, error) {
	if s.locker.Enabled() {
		token, ok, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			s.log.Warn("seed lock unavailable, seeding without it", zap.Error(err))
		} else if !ok {
			return Result{Skipped: true}, nil
		} else {
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
					s.log.Warn("seed lock release failed", zap.Error(err))
				}
			}()
		}
	}

	catalogue, err := LoadCatalogue()
	if err != nil {
		return Result{}, err
	}

	var res Result
	if res.Events, err = s.insertMissing(ctx, configdomain.KindEvent, catalogue.Events); err != nil {
		return res, err
	}
	if res.Plans, err = s.insertMissing(ctx, configdomain.KindPlan, catalogue.Plans); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Seeder) insertMissing(ctx context.Context, kind configdomain.Kind, docs map[string]map[string]any) (int, error) {
	keys := make([]string, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	inserted := 0
	for _, key := range keys {
		_, err := s.repo.Get(ctx, kind, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, configdomain.ErrNotFound) {
			return inserted, err
		}

		body, err := json.Marshal(docs[key])
		if err != nil {
			return inserted, fmt.Errorf("encode %s %q: %w", kind, key, err)
		}
		now := s.clock.Now()
		if err := s.repo.Upsert(ctx, configdomain.Document{
			Kind:      kind,
			Key:       key,
			Body:      datatypes.JSON(body),
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (s *Seeder) ensureDefaultOrg(ctx context.Context) error {
	id := strings.TrimSpace(s.cfg.DefaultOrgID)
	if id == "" {
		return nil
	}
	org, err := s.orgs.Ensure(ctx, orgdomain.EnsureOrganizationRequest{
		ID:       id,
		Name:     s.cfg.DefaultOrgName,
		PlanName: s.cfg.DefaultOrgPlan,
	})
	if err != nil {
		return fmt.Errorf("ensure default organization: %w", err)
	}
	s.log.Info("default organization ready", zap.String("org_id", org.ID), zap.String("plan", org.PlanName))
	return nil
}
