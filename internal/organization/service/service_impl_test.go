package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditmeter/internal/cache"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/organization/domain"
	"github.com/smallbiznis/creditmeter/internal/organization/repository"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubPlans struct {
	plandomain.Service
	known map[string]bool
}

func (s *stubPlans) Get(_ context.Context, planName string) (plandomain.Definition, error) {
	if !s.known[planName] {
		return plandomain.Definition{}, fmt.Errorf("%w: %s", plandomain.ErrUnknownPlan, planName)
	}
	return plandomain.Definition{PlanName: planName}, nil
}

func setupService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Organization{}, &domain.OrganizationMember{}))

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		Repo:     repository.NewRepository(db),
		Plans:    &stubPlans{known: map[string]bool{"free": true, "starter": true}},
		Resolver: cache.NewUsageResolverCache(clk),
		Clock:    clk,
		Log:      zap.NewNop(),
	})
	return svc, db
}

func TestEnsureAndResolvePlan(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	org, err := svc.Ensure(ctx, domain.EnsureOrganizationRequest{ID: "org-1", Name: "Acme", PlanName: "free"})
	require.NoError(t, err)
	assert.Equal(t, "free", org.PlanName)

	again, err := svc.Ensure(ctx, domain.EnsureOrganizationRequest{ID: "org-1", Name: "Other", PlanName: "starter"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.Name, "existing organizations are left as they are")

	plan, err := svc.PlanName(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "free", plan)

	_, err = svc.PlanName(ctx, "org-404")
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	_, err = svc.Ensure(ctx, domain.EnsureOrganizationRequest{ID: "org-2", Name: "Bad", PlanName: "platinum"})
	assert.ErrorIs(t, err, plandomain.ErrUnknownPlan)
}

func TestChangePlanInvalidatesResolvedPlan(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Ensure(ctx, domain.EnsureOrganizationRequest{ID: "org-1", Name: "Acme", PlanName: "free"})
	require.NoError(t, err)
	_, err = svc.PlanName(ctx, "org-1")
	require.NoError(t, err)

	require.NoError(t, svc.ChangePlan(ctx, "org-1", "starter"))
	plan, err := svc.PlanName(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "starter", plan)

	assert.ErrorIs(t, svc.ChangePlan(ctx, "org-404", "starter"), domain.ErrOrganizationNotFound)
	assert.ErrorIs(t, svc.ChangePlan(ctx, "org-1", "platinum"), plandomain.ErrUnknownPlan)
}

func TestMemberNamesFallBackToUserID(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddMember(ctx, domain.AddMemberRequest{OrgID: "org-1", UserID: "u1", DisplayName: "Ada"}))
	require.NoError(t, svc.AddMember(ctx, domain.AddMemberRequest{OrgID: "org-1", UserID: "u2", DisplayName: "Grace", Role: "ADMIN"}))
	assert.ErrorIs(t, svc.AddMember(ctx, domain.AddMemberRequest{OrgID: "org-1", UserID: "u3", Role: "root"}), domain.ErrInvalidRole)

	names, err := svc.MemberNames(ctx, "org-1", []string{"u1", "u2", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "Ada", "u2": "Grace", "ghost": "ghost"}, names)
}
