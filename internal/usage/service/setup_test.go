package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditmeter/internal/cache"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	configdomain "github.com/smallbiznis/creditmeter/internal/configstore/domain"
	configrepo "github.com/smallbiznis/creditmeter/internal/configstore/repository"
	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	eventservice "github.com/smallbiznis/creditmeter/internal/eventdef/service"
	ledgerdomain "github.com/smallbiznis/creditmeter/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/creditmeter/internal/ledger/repository"
	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
	orgrepo "github.com/smallbiznis/creditmeter/internal/organization/repository"
	orgservice "github.com/smallbiznis/creditmeter/internal/organization/service"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	planservice "github.com/smallbiznis/creditmeter/internal/plandef/service"
	"github.com/smallbiznis/creditmeter/internal/providers/pdf"
	"github.com/smallbiznis/creditmeter/internal/usage/domain"
	"github.com/smallbiznis/creditmeter/internal/usage/liveevents"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

var eventDocs = map[string]string{
	"analysis": `{"baseCredits":10,"description":"Analysis","category":"ai_analysis",
		"multipliers":{"complexity":{"min":1,"max":2.5},"features":{"echo":5}}}`,
	"visuals_sketch": `{"baseCredits":10,"description":"Sketch","category":"ai_visual"}`,
	"push_sow_to_loe": `{"baseCredits":5,"description":"Push","category":"data_transfer"}`,
}

var planDocs = map[string]string{
	"limited": `{"displayName":"Limited","monthlyCredits":100,"pricing":{"monthly":0,"annual":0},
		"limits":{"aiCallsPerMonth":50},"features":[],"overageRate":0}`,
	"starter": `{"displayName":"Starter","monthlyCredits":1000,"pricing":{"monthly":19,"annual":190},
		"limits":{"aiCallsPerMonth":500},"features":[],"overageRate":0.015}`,
	"unlimited": `{"displayName":"Unlimited","monthlyCredits":-1,"pricing":{"monthly":99,"annual":990},
		"limits":{"aiCallsPerMonth":-1},"features":[],"overageRate":0}`,
}

type fixture struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	node   *snowflake.Node
	ledger ledgerdomain.Repository
	events eventdomain.Service
	plans  plandomain.Service
	orgs   orgdomain.Service
	hub    *liveevents.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&configdomain.Document{},
		&ledgerdomain.UsageEvent{},
		&orgdomain.Organization{},
		&orgdomain.OrganizationMember{},
	))

	ctx := context.Background()
	store := configrepo.NewRepository(db)
	for key, body := range eventDocs {
		require.NoError(t, store.Upsert(ctx, configdomain.Document{Kind: configdomain.KindEvent, Key: key, Body: datatypes.JSON(body), CreatedAt: testNow, UpdatedAt: testNow}))
	}
	for key, body := range planDocs {
		require.NoError(t, store.Upsert(ctx, configdomain.Document{Kind: configdomain.KindPlan, Key: key, Body: datatypes.JSON(body), CreatedAt: testNow, UpdatedAt: testNow}))
	}

	clk := clock.NewFakeClock(testNow)
	cfg := config.Config{Registry: config.RegistryConfig{TTL: 5 * time.Minute}}
	log := zap.NewNop()
	metering := config.NewStaticMeteringConfigHolder(config.DefaultMeteringConfig())

	events := eventservice.NewService(eventservice.Params{Repo: store, Log: log, Clock: clk, Config: cfg})
	plans := planservice.NewService(planservice.Params{Repo: store, Log: log, Clock: clk, Config: cfg, Metering: metering})
	orgRepo := orgrepo.NewRepository(db)
	orgs := orgservice.NewService(orgservice.Params{
		Repo:     orgRepo,
		Plans:    plans,
		Resolver: cache.NewUsageResolverCache(clk),
		Clock:    clk,
		Log:      log,
	})

	for id, plan := range map[string]string{"org-a": "limited", "org-s": "starter", "org-u": "unlimited"} {
		_, err := orgs.Ensure(ctx, orgdomain.EnsureOrganizationRequest{ID: id, Name: "Org " + id, PlanName: plan})
		require.NoError(t, err)
	}
	_, err = orgRepo.CreateOrganization(ctx, orgdomain.Organization{ID: "org-ghost", Name: "Ghost", PlanName: "retired", CreatedAt: testNow, UpdatedAt: testNow})
	require.NoError(t, err)
	require.NoError(t, orgs.AddMember(ctx, orgdomain.AddMemberRequest{OrgID: "org-a", UserID: "u1", DisplayName: "Ada"}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &fixture{
		db:     db,
		clock:  clk,
		node:   node,
		ledger: ledgerrepo.NewRepository(db),
		events: events,
		plans:  plans,
		orgs:   orgs,
		hub:    liveevents.NewHub(),
	}
}

func (f *fixture) meter(t *testing.T) domain.Meter {
	t.Helper()
	return f.meterWith(t, f.ledger)
}

func (f *fixture) meterWith(t *testing.T, ledger ledgerdomain.Repository) domain.Meter {
	t.Helper()
	return NewMeter(MeterParams{
		Ledger:     ledger,
		Events:     f.events,
		Plans:      f.plans,
		Orgs:       f.orgs,
		GenID:      f.node,
		Clock:      f.clock,
		Log:        zap.NewNop(),
		Metering:   config.NewStaticMeteringConfigHolder(config.DefaultMeteringConfig()),
		LiveEvents: f.hub,
	})
}

func (f *fixture) aggregator(t *testing.T) domain.Aggregator {
	t.Helper()
	return NewAggregator(AggregatorParams{
		Ledger:   f.ledger,
		Plans:    f.plans,
		Orgs:     f.orgs,
		Clock:    f.clock,
		Log:      zap.NewNop(),
		PDF:      pdf.New(),
		Metering: config.NewStaticMeteringConfigHolder(config.DefaultMeteringConfig()),
	})
}

// seed appends a ledger entry directly, bypassing pricing.
func (f *fixture) seed(t *testing.T, orgID, userID, eventType string, credits int64, at time.Time) {
	t.Helper()
	require.NoError(t, f.ledger.Append(context.Background(), &ledgerdomain.UsageEvent{
		ID:              f.node.Generate(),
		OrganizationID:  orgID,
		UserID:          userID,
		EventType:       eventType,
		CreditsConsumed: credits,
		CreatedAt:       at,
	}))
}

func (f *fixture) ledgerCount(t *testing.T, orgID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&ledgerdomain.UsageEvent{}).Where("organization_id = ?", orgID).Count(&n).Error)
	return n
}
