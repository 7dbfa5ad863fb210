package domain

import (
	"context"
	"errors"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Service interface {
	// PlanName resolves the plan an organization is metered against.
	PlanName(ctx context.Context, orgID string) (string, error)
	// MemberNames maps user IDs to display names; unknown users map to their ID.
	MemberNames(ctx context.Context, orgID string, userIDs []string) (map[string]string, error)
	Get(ctx context.Context, orgID string) (*Organization, error)
	Ensure(ctx context.Context, req EnsureOrganizationRequest) (*Organization, error)
	ChangePlan(ctx context.Context, orgID, planName string) error
	AddMember(ctx context.Context, req AddMemberRequest) error
}

type EnsureOrganizationRequest struct {
	ID       string
	Name     string
	PlanName string
}

type AddMemberRequest struct {
	OrgID       string
	UserID      string
	DisplayName string
	Role        string
}

var (
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidRole          = errors.New("invalid_role")
)
