package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/creditmeter/internal/cache"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/organization/domain"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Repo     domain.Repository
	Plans    plandomain.Service
	Resolver cache.UsageResolverCache
	Clock    clock.Clock
	Log      *zap.Logger
}

type service struct {
	repo     domain.Repository
	plans    plandomain.Service
	resolver cache.UsageResolverCache
	clock    clock.Clock
	log      *zap.Logger
}

func NewService(p Params) domain.Service {
	return &service{
		repo:     p.Repo,
		plans:    p.Plans,
		resolver: p.Resolver,
		clock:    p.Clock,
		log:      p.Log.Named("organization.service"),
	}
}

func (s *service) PlanName(ctx context.Context, orgID string) (string, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return "", domain.ErrInvalidOrganization
	}
	if plan, ok := s.resolver.GetOrgPlan(orgID); ok {
		return plan, nil
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return "", err
	}
	if org == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrOrganizationNotFound, orgID)
	}
	s.resolver.SetOrgPlan(orgID, org.PlanName)
	return org.PlanName, nil
}

func (s *service) MemberNames(ctx context.Context, orgID string, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	missing := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if name, ok := s.resolver.GetMemberName(orgID, id); ok {
			names[id] = name
			continue
		}
		names[id] = id
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return names, nil
	}

	members, err := s.repo.ListMembers(ctx, orgID, missing)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if strings.TrimSpace(m.DisplayName) == "" {
			continue
		}
		names[m.UserID] = m.DisplayName
		s.resolver.SetMemberName(orgID, m.UserID, m.DisplayName)
	}
	return names, nil
}

func (s *service) Get(ctx context.Context, orgID string) (*domain.Organization, error) {
	org, err := s.repo.GetOrganization(ctx, strings.TrimSpace(orgID))
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *service) Ensure(ctx context.Context, req domain.EnsureOrganizationRequest) (*domain.Organization, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, domain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	planName := strings.TrimSpace(req.PlanName)
	if _, err := s.plans.Get(ctx, planName); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	created, err := s.repo.CreateOrganization(ctx, domain.Organization{
		ID:        id,
		Name:      name,
		PlanName:  planName,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("organization created", zap.String("org_id", id), zap.String("plan", planName))
	}
	return s.Get(ctx, id)
}

func (s *service) ChangePlan(ctx context.Context, orgID, planName string) error {
	orgID = strings.TrimSpace(orgID)
	planName = strings.TrimSpace(planName)
	if _, err := s.plans.Get(ctx, planName); err != nil {
		return err
	}

	updated, err := s.repo.UpdatePlan(ctx, orgID, planName, s.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("%w: %s", domain.ErrOrganizationNotFound, orgID)
	}
	s.resolver.InvalidateOrg(orgID)
	s.log.Info("organization plan changed", zap.String("org_id", orgID), zap.String("plan", planName))
	return nil
}

func (s *service) AddMember(ctx context.Context, req domain.AddMemberRequest) error {
	orgID := strings.TrimSpace(req.OrgID)
	userID := strings.TrimSpace(req.UserID)
	if orgID == "" {
		return domain.ErrInvalidOrganization
	}
	if userID == "" {
		return domain.ErrInvalidUser
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	switch role {
	case "":
		role = domain.RoleMember
	case domain.RoleOwner, domain.RoleAdmin, domain.RoleMember:
	default:
		return domain.ErrInvalidRole
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = userID
	}

	return s.repo.UpsertMember(ctx, domain.OrganizationMember{
		OrgID:       orgID,
		UserID:      userID,
		DisplayName: name,
		Role:        role,
		CreatedAt:   s.clock.Now(),
	})
}
