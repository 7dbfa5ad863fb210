package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/creditmeter/internal/config"
	"github.com/smallbiznis/creditmeter/internal/observability/logger"
	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectUsage        = "usage"
	ObjectConfig       = "config"
	ObjectOrganization = "organization"
)

const (
	ActionUsageTrack  = "usage.track"
	ActionUsageCheck  = "usage.check"
	ActionUsageView   = "usage.view"
	ActionUsageManage = "usage.manage"

	ActionConfigView   = "config.view"
	ActionConfigManage = "config.manage"

	ActionOrganizationManage = "organization.manage"
)

const (
	SubjectSystem = "system"
	roleSystem    = "role:system"
	roleOperator  = "role:operator"

	// OperatorDomain holds grants over state shared by every organization.
	// Tenant domains are always "org:<id>" so the two never collide.
	OperatorDomain = "operator"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB, cfg config.Config) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := syncOperators(enforcer, cfg.Admin.OperatorUserIDs); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, orgID string, object string, action string) error {
	subject := strings.TrimSpace(actor.Subject)
	if subject == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := s.resolveRole(ctx, subject, actor.ClaimedRole, orgID)
	if err != nil {
		s.logDenied(ctx, subject, orgID, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(ctx, subject, orgID, object, action)
		return ErrForbidden
	}
	return nil
}

// AuthorizeOperator checks an action in the operator domain. Membership roles
// and claimed roles are never consulted there.
func (s *ServiceImpl) AuthorizeOperator(ctx context.Context, actor Actor, object string, action string) error {
	subject := strings.TrimSpace(actor.Subject)
	if subject == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	if subject == SubjectSystem {
		if err := s.ensureGrouping(subject, roleSystem, OperatorDomain); err != nil {
			return err
		}
	}

	allowed, err := s.enforcer.Enforce(subject, OperatorDomain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(ctx, subject, OperatorDomain, object, action)
		return ErrForbidden
	}
	return nil
}

// resolveRole prefers the stored membership role over the claimed one.
func (s *ServiceImpl) resolveRole(ctx context.Context, subject, claimed, orgID string) (string, error) {
	if subject == SubjectSystem {
		return roleSystem, nil
	}
	userID, ok := strings.CutPrefix(subject, "user:")
	if !ok || strings.TrimSpace(userID) == "" {
		return "", ErrInvalidActor
	}

	role, err := s.roleForUser(ctx, orgID, strings.TrimSpace(userID))
	if err != nil {
		return "", err
	}
	if role == "" {
		role = strings.ToLower(strings.TrimSpace(claimed))
	}
	switch role {
	case orgdomain.RoleOwner, orgdomain.RoleAdmin, orgdomain.RoleMember:
		return fmt.Sprintf("role:%s", role), nil
	default:
		return "", ErrForbidden
	}
}

func (s *ServiceImpl) roleForUser(ctx context.Context, orgID string, userID string) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(row.Role)), nil
}

// ensureGrouping keeps exactly one role per subject and domain.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) logDenied(ctx context.Context, subject, orgID, object, action string) {
	logger.WithContext(ctx, s.log).Info("authorization denied",
		zap.String("subject", subject),
		zap.String("org_id", orgID),
		zap.String("object", object),
		zap.String("action", action),
	)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Members meter usage and read their own standing
		{"role:member", ObjectUsage, ActionUsageTrack},
		{"role:member", ObjectUsage, ActionUsageCheck},
		{"role:member", ObjectUsage, ActionUsageView},

		{"role:admin", ObjectUsage, ActionUsageTrack},
		{"role:admin", ObjectUsage, ActionUsageCheck},
		{"role:admin", ObjectUsage, ActionUsageView},
		{"role:admin", ObjectUsage, ActionUsageManage},

		{"role:owner", ObjectUsage, ActionUsageTrack},
		{"role:owner", ObjectUsage, ActionUsageCheck},
		{"role:owner", ObjectUsage, ActionUsageView},
		{"role:owner", ObjectUsage, ActionUsageManage},
		{"role:owner", ObjectOrganization, ActionOrganizationManage},

		// Catalogue edits reach every tenant
		{roleOperator, ObjectConfig, ActionConfigView},
		{roleOperator, ObjectConfig, ActionConfigManage},

		// Automated callers
		{roleSystem, ObjectUsage, ActionUsageTrack},
		{roleSystem, ObjectUsage, ActionUsageCheck},
		{roleSystem, ObjectUsage, ActionUsageView},
		{roleSystem, ObjectUsage, ActionUsageManage},
		{roleSystem, ObjectConfig, ActionConfigView},
		{roleSystem, ObjectConfig, ActionConfigManage},
		{roleSystem, ObjectOrganization, ActionOrganizationManage},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

// syncOperators makes the configured users the only operator-domain members.
func syncOperators(enforcer *casbin.SyncedEnforcer, userIDs []string) error {
	if _, err := enforcer.RemoveFilteredGroupingPolicy(2, OperatorDomain); err != nil {
		return err
	}
	for _, userID := range userIDs {
		userID = strings.TrimSpace(userID)
		if userID == "" {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(fmt.Sprintf("user:%s", userID), roleOperator, OperatorDomain); err != nil {
			return err
		}
	}
	return nil
}
